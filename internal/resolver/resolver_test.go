package resolver

import (
	"testing"
	"time"

	"real-estate-portal/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Building{}, &models.BuildingExternalID{}, &models.MasterProperty{},
		&models.PropertyListing{}, &models.ListingPriceHistory{},
	))
	return db
}

func intp(v int) *int          { return &v }
func floatp(v float64) *float64 { return &v }

func TestResolveBuildingCreatesThenReusesByCanonicalName(t *testing.T) {
	db := newTestDB(t)

	b1, _, err := ResolveBuilding(db, BuildingInput{
		SourceSite: "suumo", Name: "パークコート麻布十番", Address: "東京都港区麻布十番1-1-1",
	})
	require.NoError(t, err)
	require.NotZero(t, b1.ID)
	require.True(t, b1.IsValidName)

	// Decorative spelling differences fold to the same search key.
	b2, _, err := ResolveBuilding(db, BuildingInput{
		SourceSite: "homes", Name: "パークコート・麻布十番", Address: "東京都港区麻布十番1-1-1",
	})
	require.NoError(t, err)
	require.Equal(t, b1.ID, b2.ID)

	var count int64
	db.Model(&models.Building{}).Count(&count)
	require.EqualValues(t, 1, count)
}

func TestResolveBuildingExternalIDFastPath(t *testing.T) {
	db := newTestDB(t)

	b1, _, err := ResolveBuilding(db, BuildingInput{
		SourceSite: "suumo", ExternalPropertyID: "B-100", Name: "麻布ハウス", Address: "東京都港区麻布1-1-1",
	})
	require.NoError(t, err)

	// Same external id resolves to the same building even when the name no
	// longer folds to the same key.
	b2, _, err := ResolveBuilding(db, BuildingInput{
		SourceSite: "suumo", ExternalPropertyID: "B-100", Name: "アザブハウス別館",
	})
	require.NoError(t, err)
	require.Equal(t, b1.ID, b2.ID)
}

func TestResolveBuildingExternalIDNeverSilentlyRewritten(t *testing.T) {
	db := newTestDB(t)

	b1, _, err := ResolveBuilding(db, BuildingInput{
		SourceSite: "suumo", ExternalPropertyID: "B-200", Name: "麻布ハウス", Address: "東京都港区麻布1-1-1",
	})
	require.NoError(t, err)

	// A conflicting address on the existing binding is rejected, not applied.
	b2, _, err := ResolveBuilding(db, BuildingInput{
		SourceSite: "suumo", ExternalPropertyID: "B-200", Name: "麻布ハウス", Address: "東京都渋谷区神南9-9-9",
	})
	require.ErrorIs(t, err, ErrConflictingAddress)
	require.Equal(t, b1.ID, b2.ID)

	var ext models.BuildingExternalID
	require.NoError(t, db.Where("source_site = ? AND external_id = ?", "suumo", "B-200").First(&ext).Error)
	require.Equal(t, b1.ID, ext.BuildingID)

	var fresh models.Building
	require.NoError(t, db.First(&fresh, b1.ID).Error)
	require.Equal(t, "東京都港区麻布1-1-1", fresh.Address)
}

func TestResolveBuildingDeletesOrphanedExternalID(t *testing.T) {
	db := newTestDB(t)

	// A binding pointing at a building that no longer exists.
	require.NoError(t, db.Create(&models.BuildingExternalID{
		BuildingID: 9999, SourceSite: "suumo", ExternalID: "B-300",
	}).Error)

	b, _, err := ResolveBuilding(db, BuildingInput{
		SourceSite: "suumo", ExternalPropertyID: "B-300", Name: "麻布ハウス", Address: "東京都港区麻布1-1-1",
	})
	require.NoError(t, err)
	require.NotEqual(t, uint64(9999), b.ID)

	var count int64
	db.Model(&models.BuildingExternalID{}).Where("building_id = ?", 9999).Count(&count)
	require.Zero(t, count, "orphaned mapping must be deleted on detection")
}

func TestResolveBuildingAdCopyNameRequiresAddress(t *testing.T) {
	db := newTestDB(t)

	_, _, err := ResolveBuilding(db, BuildingInput{
		SourceSite: "athome", Name: "港区・徒歩5分・3LDKの中古マンション",
	})
	require.Error(t, err, "ad-copy name without an address cannot resolve")

	b, _, err := ResolveBuilding(db, BuildingInput{
		SourceSite: "athome", Name: "港区・徒歩5分・3LDKの中古マンション", Address: "東京都港区南麻布2-3-4",
	})
	require.NoError(t, err)
	require.False(t, b.IsValidName)

	// A later listing with the same address reuses the row rather than
	// creating a second building.
	b2, _, err := ResolveBuilding(db, BuildingInput{
		SourceSite: "nomu", Name: "築10年・徒歩3分の中古マンション", Address: "東京都港区南麻布2-3-4",
	})
	require.NoError(t, err)
	require.Equal(t, b.ID, b2.ID)
}

func TestResolveBuildingReturnsTrailingRoomNumber(t *testing.T) {
	db := newTestDB(t)

	b, room, err := ResolveBuilding(db, BuildingInput{
		SourceSite: "suumo", Name: "麻布ハウス 503号室", Address: "東京都港区麻布1-1-1",
	})
	require.NoError(t, err)
	require.Equal(t, "503", room)
	require.Equal(t, "麻布ハウス 503号室", b.NormalizedName, "display name keeps the original form")
	require.NotContains(t, b.CanonicalName, "503", "room number never enters the search key")
}

func TestResolvePropertyHashExcludesRoomNumber(t *testing.T) {
	db := newTestDB(t)
	b, _, err := ResolveBuilding(db, BuildingInput{
		SourceSite: "suumo", Name: "麻布ハウス", Address: "東京都港区麻布1-1-1",
	})
	require.NoError(t, err)

	r1, err := ResolveProperty(db, b, PropertyInput{
		RoomNumber: "503", Floor: intp(5), Area: floatp(60.0), Layout: "2LDK", Direction: "南",
	})
	require.NoError(t, err)
	require.True(t, r1.Created)

	r2, err := ResolveProperty(db, b, PropertyInput{
		RoomNumber: "", Floor: intp(5), Area: floatp(60.0), Layout: "2LDK", Direction: "南",
	})
	require.NoError(t, err)
	require.False(t, r2.Created)
	require.Equal(t, r1.Property.ID, r2.Property.ID, "room number must not fragment the unit")
}

func TestResolvePropertyFillsMissingAttributes(t *testing.T) {
	db := newTestDB(t)
	b, _, err := ResolveBuilding(db, BuildingInput{
		SourceSite: "suumo", Name: "麻布ハウス", Address: "東京都港区麻布1-1-1",
	})
	require.NoError(t, err)

	r1, err := ResolveProperty(db, b, PropertyInput{
		Floor: intp(5), Area: floatp(60.0), Layout: "2LDK", Direction: "南",
	})
	require.NoError(t, err)
	require.Empty(t, r1.Property.RoomNumber)

	r2, err := ResolveProperty(db, b, PropertyInput{
		RoomNumber: "503", Floor: intp(5), Area: floatp(60.0), Layout: "2LDK", Direction: "南",
		BalconyArea: floatp(8.2),
	})
	require.NoError(t, err)
	require.Equal(t, "503", r2.Property.RoomNumber)
	require.NotNil(t, r2.Property.BalconyArea)
}

func baseListingInput() ListingInput {
	return ListingInput{
		SourceSite:          "suumo",
		SitePropertyID:      "A1",
		URL:                 "https://suumo.example/a1",
		Price:               5000,
		ListingFloor:        intp(5),
		ListingArea:         floatp(60.0),
		ListingLayout:       "2LDK",
		ListingDirection:    "南",
		ListingAddress:      "東京都港区麻布1-1-1",
		ListingBuildingName: "麻布ハウス",
	}
}

func TestUpsertListingNewWritesInitialPriceHistory(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	res, err := UpsertListing(db, 1, baseListingInput(), now)
	require.NoError(t, err)
	require.Equal(t, UpdateNew, res.Type)
	require.True(t, res.Listing.IsActive)

	var hist []models.ListingPriceHistory
	require.NoError(t, db.Where("property_listing_id = ?", res.Listing.ID).Find(&hist).Error)
	require.Len(t, hist, 1)
	require.Equal(t, 5000, hist[0].Price)
}

func TestUpsertListingPriceChange(t *testing.T) {
	db := newTestDB(t)
	t0 := time.Now().Add(-time.Hour)

	res, err := UpsertListing(db, 1, baseListingInput(), t0)
	require.NoError(t, err)

	in := baseListingInput()
	in.Price = 4800
	t1 := time.Now()
	res2, err := UpsertListing(db, 1, in, t1)
	require.NoError(t, err)
	require.Equal(t, UpdatePriceUpdated, res2.Type)
	require.Equal(t, 4800, res2.Listing.CurrentPrice)
	require.Equal(t, res.Listing.ID, res2.Listing.ID)

	var hist []models.ListingPriceHistory
	require.NoError(t, db.Where("property_listing_id = ?", res.Listing.ID).Order("recorded_at").Find(&hist).Error)
	require.Len(t, hist, 2)
	require.Equal(t, 5000, hist[0].Price)
	require.Equal(t, 4800, hist[1].Price)
	require.False(t, hist[1].RecordedAt.Before(hist[0].RecordedAt), "history must be monotonic in recorded_at")
	require.Equal(t, res2.Listing.CurrentPrice, hist[1].Price, "last history row tracks current_price")
}

func TestUpsertListingOtherUpdates(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	_, err := UpsertListing(db, 1, baseListingInput(), now)
	require.NoError(t, err)

	in := baseListingInput()
	in.ManagementFee = intp(12000)
	res, err := UpsertListing(db, 1, in, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, UpdateOtherUpdates, res.Type)
	require.Contains(t, res.ChangedFields, "management_fee")
}

func TestUpsertListingRefetchedUnchanged(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	_, err := UpsertListing(db, 1, baseListingInput(), now)
	require.NoError(t, err)

	res, err := UpsertListing(db, 1, baseListingInput(), now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, UpdateRefetchedUnchanged, res.Type)

	var hist []models.ListingPriceHistory
	require.NoError(t, db.Where("property_listing_id = ?", res.Listing.ID).Find(&hist).Error)
	require.Len(t, hist, 1, "no new history row when the price is unchanged")
}

func TestUpsertListingURLChangeIsSilent(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	_, err := UpsertListing(db, 1, baseListingInput(), now)
	require.NoError(t, err)

	in := baseListingInput()
	in.URL = "https://suumo.example/a1-moved"
	res, err := UpsertListing(db, 1, in, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, UpdateRefetchedUnchanged, res.Type, "a url move alone is not a real change")
	require.Equal(t, "https://suumo.example/a1-moved", res.Listing.URL)
}

func TestUpsertListingSameURLDifferentPropertyDelistsStaleRow(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	in := baseListingInput()
	in.SitePropertyID = "" // legacy row identified by url only
	res, err := UpsertListing(db, 1, in, now)
	require.NoError(t, err)

	res2, err := UpsertListing(db, 2, in, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, UpdateNew, res2.Type)
	require.NotEqual(t, res.Listing.ID, res2.Listing.ID)

	var stale models.PropertyListing
	require.NoError(t, db.First(&stale, res.Listing.ID).Error)
	require.False(t, stale.IsActive)
	require.NotNil(t, stale.DelistedAt)
}

func TestUpsertListingSuspiciousAreaSwing(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	_, err := UpsertListing(db, 1, baseListingInput(), now)
	require.NoError(t, err)

	in := baseListingInput()
	in.ListingArea = floatp(180.0) // triple the previous area
	res, err := UpsertListing(db, 1, in, now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, res.SuspiciousUpdate)
}

func TestDelistIsAStateChangeNotADeletion(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	res, err := UpsertListing(db, 1, baseListingInput(), now)
	require.NoError(t, err)

	require.NoError(t, Delist(db, res.Listing, now.Add(time.Hour)))

	var l models.PropertyListing
	require.NoError(t, db.First(&l, res.Listing.ID).Error)
	require.False(t, l.IsActive)
	require.NotNil(t, l.DelistedAt)

	var hist []models.ListingPriceHistory
	require.NoError(t, db.Where("property_listing_id = ?", l.ID).Find(&hist).Error)
	require.Len(t, hist, 1, "price history survives delisting")
}

func seedListing(t *testing.T, db *gorm.DB, mpID uint64, site, id string, confirmed time.Time, mutate func(*ListingInput)) {
	t.Helper()
	in := baseListingInput()
	in.SourceSite = site
	in.SitePropertyID = id
	in.URL = "https://" + site + ".example/" + id
	if mutate != nil {
		mutate(&in)
	}
	_, err := UpsertListing(db, mpID, in, confirmed)
	require.NoError(t, err)
}

func TestReconcileMasterPropertyMajorityVote(t *testing.T) {
	db := newTestDB(t)
	b, _, err := ResolveBuilding(db, BuildingInput{SourceSite: "suumo", Name: "麻布ハウス", Address: "東京都港区麻布1-1-1"})
	require.NoError(t, err)
	rp, err := ResolveProperty(db, b, PropertyInput{Floor: intp(5), Area: floatp(60.0), Layout: "2LDK", Direction: "南"})
	require.NoError(t, err)

	base := time.Now().Add(-time.Hour)
	seedListing(t, db, rp.Property.ID, "suumo", "A1", base, nil)
	seedListing(t, db, rp.Property.ID, "homes", "H1", base.Add(time.Minute), nil)
	seedListing(t, db, rp.Property.ID, "athome", "T1", base.Add(2*time.Minute), func(in *ListingInput) {
		in.ListingFloor = intp(6)
		in.ListingLayout = "3LDK"
	})

	require.NoError(t, ReconcileMasterProperty(db, rp.Property.ID))

	var mp models.MasterProperty
	require.NoError(t, db.First(&mp, rp.Property.ID).Error)
	require.Equal(t, 5, *mp.Floor, "two of three listings say floor 5")
	require.Equal(t, "2LDK", mp.Layout)
}

func TestReconcileMasterPropertyIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	b, _, err := ResolveBuilding(db, BuildingInput{SourceSite: "suumo", Name: "麻布ハウス", Address: "東京都港区麻布1-1-1"})
	require.NoError(t, err)
	rp, err := ResolveProperty(db, b, PropertyInput{Floor: intp(5), Area: floatp(60.0), Layout: "2LDK", Direction: "南"})
	require.NoError(t, err)

	base := time.Now().Add(-time.Hour)
	seedListing(t, db, rp.Property.ID, "suumo", "A1", base, nil)
	seedListing(t, db, rp.Property.ID, "homes", "H1", base.Add(time.Minute), func(in *ListingInput) {
		in.ListingDirection = "南東"
	})

	require.NoError(t, ReconcileMasterProperty(db, rp.Property.ID))
	var once models.MasterProperty
	require.NoError(t, db.First(&once, rp.Property.ID).Error)

	require.NoError(t, ReconcileMasterProperty(db, rp.Property.ID))
	var twice models.MasterProperty
	require.NoError(t, db.First(&twice, rp.Property.ID).Error)

	require.Equal(t, once.Floor, twice.Floor)
	require.Equal(t, once.Layout, twice.Layout)
	require.Equal(t, once.Direction, twice.Direction)
}

func TestReconcileBuildingCorrectsAdCopyDisplayName(t *testing.T) {
	db := newTestDB(t)
	b, _, err := ResolveBuilding(db, BuildingInput{
		SourceSite: "athome", Name: "港区・徒歩5分・3LDKの中古マンション", Address: "東京都港区南麻布2-3-4",
	})
	require.NoError(t, err)
	require.False(t, b.IsValidName)

	rp, err := ResolveProperty(db, b, PropertyInput{Floor: intp(5), Area: floatp(60.0), Layout: "2LDK", Direction: "南"})
	require.NoError(t, err)

	base := time.Now().Add(-time.Hour)
	seedListing(t, db, rp.Property.ID, "suumo", "A1", base, func(in *ListingInput) {
		in.ListingBuildingName = "南麻布レジデンス"
	})
	seedListing(t, db, rp.Property.ID, "homes", "H1", base.Add(time.Minute), func(in *ListingInput) {
		in.ListingBuildingName = "南麻布レジデンス"
	})
	seedListing(t, db, rp.Property.ID, "athome", "T1", base.Add(2*time.Minute), func(in *ListingInput) {
		in.ListingBuildingName = "港区・徒歩5分・3LDKの中古マンション"
	})

	require.NoError(t, ReconcileBuilding(db, b.ID))

	var fresh models.Building
	require.NoError(t, db.First(&fresh, b.ID).Error)
	require.Equal(t, "南麻布レジデンス", fresh.NormalizedName)
	require.True(t, fresh.IsValidName)
}
