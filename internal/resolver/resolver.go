// Package resolver implements building/property/listing resolution:
// turning a parsed detail record into the durable Building/MasterProperty/
// PropertyListing rows. Each level is a get-or-create keyed on its own
// identity (external-id binding or canonical name, property hash, site
// listing id), followed by a majority-vote reconcile pass.
package resolver

import (
	"errors"
	"fmt"
	"time"

	"real-estate-portal/internal/canon"
	"real-estate-portal/internal/hasher"
	"real-estate-portal/internal/models"

	"gorm.io/gorm"
)

// UpdateType classifies a listing upsert outcome.
type UpdateType string

const (
	UpdateNew                UpdateType = "new"
	UpdatePriceUpdated       UpdateType = "price_updated"
	UpdateOtherUpdates       UpdateType = "other_updates"
	UpdateRefetchedUnchanged UpdateType = "refetched_unchanged"
	UpdateSkipped            UpdateType = "skipped"
)

// ErrConflictingAddress is returned (not fatal) when an existing
// BuildingExternalId binding's address conflicts with a newly observed one;
// the binding is kept as-is and the conflicting change rejected.
var ErrConflictingAddress = errors.New("resolver: conflicting address for existing external id binding")

// Input bundles everything needed to resolve a building from a detail fetch.
type BuildingInput struct {
	SourceSite         string
	ExternalPropertyID string
	Name               string
	Address            string
	BuiltYear          *int
	TotalFloors        *int
	BasementFloors     *int
	TotalUnits         *int
	Structure          string
}

// ResolveBuilding resolves or creates the Building for a detail record:
// external-id binding first, then ad-copy handling, then canonical-name
// lookup with an address tiebreak, creating only when nothing matches.
func ResolveBuilding(tx *gorm.DB, in BuildingInput) (*models.Building, string, error) {
	if in.Name == "" {
		return nil, "", fmt.Errorf("resolver: empty building name")
	}

	// Step 1: external id fast path.
	if in.ExternalPropertyID != "" {
		var ext models.BuildingExternalID
		err := tx.Where("source_site = ? AND external_id = ?", in.SourceSite, in.ExternalPropertyID).First(&ext).Error
		if err == nil {
			var b models.Building
			if err := tx.First(&b, ext.BuildingID).Error; err == nil {
				_, room := canon.SplitTrailingRoomNumber(in.Name)
				if in.Address != "" && b.Address != "" && b.Address != in.Address {
					return &b, room, ErrConflictingAddress
				}
				if applyRicherBuildingAttrs(&b, in) {
					if err := tx.Save(&b).Error; err != nil {
						return nil, room, err
					}
				}
				return &b, room, nil
			}
			// Orphaned mapping: the building is gone, delete and fall through.
			tx.Delete(&ext)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", err
		}
	}

	// Step 2: extract trailing room number for the caller; never stored on Building.
	cleanName, room := canon.SplitTrailingRoomNumber(in.Name)

	// Step 3: advertisement-copy names require an address-based lookup.
	if canon.LooksLikeAdCopy(cleanName) {
		if in.Address == "" {
			return nil, room, fmt.Errorf("resolver: ad-copy building name %q without address", cleanName)
		}
		var b models.Building
		err := tx.Where("address = ?", in.Address).First(&b).Error
		if err == nil {
			return &b, room, attachExternalID(tx, &b, in)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, room, err
		}
		b = models.Building{
			NormalizedName: in.Name,
			CanonicalName:  canon.Canonicalize(cleanName),
			Address:        in.Address,
			IsValidName:    false,
		}
		applyRicherBuildingAttrs(&b, in)
		if err := tx.Create(&b).Error; err != nil {
			return nil, room, err
		}
		// is_valid_name has a column default of true, which GORM writes in
		// place of a zero-valued bool on insert; store false explicitly.
		if err := tx.Model(&b).Update("is_valid_name", false).Error; err != nil {
			return nil, room, err
		}
		b.IsValidName = false
		return &b, room, attachExternalID(tx, &b, in)
	}

	// Step 4: canonical-name lookup, preferring an address match when given.
	searchKey := canon.Canonicalize(cleanName)
	var candidates []models.Building
	if err := tx.Where("canonical_name = ?", searchKey).Find(&candidates).Error; err != nil {
		return nil, room, err
	}
	var b *models.Building
	if in.Address != "" {
		for i := range candidates {
			if candidates[i].Address == in.Address {
				b = &candidates[i]
				break
			}
		}
	}
	if b == nil && len(candidates) > 0 {
		b = &candidates[0]
	}
	if b != nil {
		if applyRicherBuildingAttrs(b, in) {
			if err := tx.Save(b).Error; err != nil {
				return nil, room, err
			}
		}
		return b, room, attachExternalID(tx, b, in)
	}

	// Step 5: create.
	nb := models.Building{
		NormalizedName: in.Name,
		CanonicalName:  searchKey,
		Address:        in.Address,
		IsValidName:    true,
	}
	applyRicherBuildingAttrs(&nb, in)
	if err := tx.Create(&nb).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			var again models.Building
			if lookupErr := tx.Where("canonical_name = ?", searchKey).First(&again).Error; lookupErr == nil {
				return &again, room, attachExternalID(tx, &again, in)
			}
		}
		return nil, room, err
	}
	return &nb, room, attachExternalID(tx, &nb, in)
}

func applyRicherBuildingAttrs(b *models.Building, in BuildingInput) bool {
	updated := false
	if in.BuiltYear != nil && b.BuiltYear == nil {
		b.BuiltYear = in.BuiltYear
		updated = true
	}
	if in.TotalFloors != nil && b.TotalFloors == nil {
		b.TotalFloors = in.TotalFloors
		updated = true
	}
	if in.BasementFloors != nil && b.BasementFloors == nil {
		b.BasementFloors = in.BasementFloors
		updated = true
	}
	if in.TotalUnits != nil && b.TotalUnits == nil {
		b.TotalUnits = in.TotalUnits
		updated = true
	}
	if in.Structure != "" && b.Structure == "" {
		b.Structure = in.Structure
		updated = true
	}
	return updated
}

func attachExternalID(tx *gorm.DB, b *models.Building, in BuildingInput) error {
	if in.ExternalPropertyID == "" {
		return nil
	}
	var existing models.BuildingExternalID
	err := tx.Where("building_id = ? AND source_site = ? AND external_id = ?", b.ID, in.SourceSite, in.ExternalPropertyID).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	ext := models.BuildingExternalID{BuildingID: b.ID, SourceSite: in.SourceSite, ExternalID: in.ExternalPropertyID}
	if err := tx.Create(&ext).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	return nil
}

// PropertyInput bundles the attributes that determine a MasterProperty's
// identity hash plus the opportunistic-fill attributes.
type PropertyInput struct {
	RoomNumber  string
	Floor       *int
	Area        *float64
	Layout      string
	Direction   string
	BalconyArea *float64
}

// ResolvePropertyResult carries the resolved MasterProperty and whether this
// call created it. Created is false both for a hash-lookup hit and for a
// re-lookup after a unique-constraint race; the two are not distinguished.
type ResolvePropertyResult struct {
	Property *models.MasterProperty
	Created  bool
}

// ResolveProperty resolves or creates the MasterProperty for a unit within
// building: hash lookup, opportunistic attribute fill, insert with a
// re-lookup on a unique-violation race.
func ResolveProperty(tx *gorm.DB, building *models.Building, in PropertyInput) (ResolvePropertyResult, error) {
	hash := hasher.Hash(hasher.Input{
		BuildingID: uint64(building.ID),
		Floor:      in.Floor,
		Area:       in.Area,
		Layout:     in.Layout,
		Direction:  in.Direction,
	})

	var mp models.MasterProperty
	err := tx.Where("property_hash = ?", hash).First(&mp).Error
	if err == nil {
		if fillMasterPropertyAttrs(&mp, in) {
			if err := tx.Save(&mp).Error; err != nil {
				return ResolvePropertyResult{}, err
			}
		}
		return ResolvePropertyResult{Property: &mp}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ResolvePropertyResult{}, err
	}

	mp = models.MasterProperty{
		BuildingID:   building.ID,
		RoomNumber:   in.RoomNumber,
		Floor:        in.Floor,
		Area:         in.Area,
		Layout:       in.Layout,
		Direction:    in.Direction,
		BalconyArea:  in.BalconyArea,
		PropertyHash: hash,
	}
	if err := tx.Create(&mp).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			var again models.MasterProperty
			if lookupErr := tx.Where("property_hash = ?", hash).First(&again).Error; lookupErr == nil {
				return ResolvePropertyResult{Property: &again}, nil
			}
		}
		return ResolvePropertyResult{}, err
	}
	return ResolvePropertyResult{Property: &mp, Created: true}, nil
}

func fillMasterPropertyAttrs(mp *models.MasterProperty, in PropertyInput) bool {
	updated := false
	if in.RoomNumber != "" && mp.RoomNumber == "" {
		mp.RoomNumber = in.RoomNumber
		updated = true
	}
	if in.Floor != nil && mp.Floor == nil {
		mp.Floor = in.Floor
		updated = true
	}
	if in.Area != nil && mp.Area == nil {
		mp.Area = in.Area
		updated = true
	}
	if in.Layout != "" && mp.Layout == "" {
		mp.Layout = in.Layout
		updated = true
	}
	if in.Direction != "" && mp.Direction == "" {
		mp.Direction = in.Direction
		updated = true
	}
	if in.BalconyArea != nil && mp.BalconyArea == nil {
		mp.BalconyArea = in.BalconyArea
		updated = true
	}
	return updated
}

// ListingInput is the full set of listing-side fields a detail fetch
// produces, used both to create a new PropertyListing and to diff against an
// existing one for update classification.
type ListingInput struct {
	SourceSite         string
	SitePropertyID     string
	URL                string
	Title              string
	AgencyName         string
	Description        string
	StationInfo        string
	Features           string
	Price              int
	ManagementFee      *int
	RepairFund         *int
	ListingFloor       *int
	ListingArea        *float64
	ListingLayout      string
	ListingDirection   string
	ListingTotalFloors *int
	ListingBalconyArea *float64
	ListingAddress     string
	ListingBuildingName string
	PublishedAt        *time.Time
}

// UpsertResult reports the classification and, for other_updates, an
// itemized change list for logging/telemetry.
type UpsertResult struct {
	Listing       *models.PropertyListing
	Type          UpdateType
	ChangedFields []string
	SuspiciousUpdate bool
}

// UpsertListing creates or updates the PropertyListing for a detail visit,
// classifying the outcome from a field-by-field diff against the stored row.
func UpsertListing(tx *gorm.DB, masterPropertyID uint64, in ListingInput, now time.Time) (UpsertResult, error) {
	var listing models.PropertyListing
	var err error
	if in.SitePropertyID != "" {
		err = tx.Where("source_site = ? AND site_property_id = ?", in.SourceSite, in.SitePropertyID).First(&listing).Error
	} else {
		err = tx.Where("source_site = ? AND url = ?", in.SourceSite, in.URL).First(&listing).Error
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return createListing(tx, masterPropertyID, in, now)
	}
	if err != nil {
		return UpsertResult{}, err
	}

	if listing.URL != in.URL {
		listing.URL = in.URL
	}

	if listing.MasterPropertyID != masterPropertyID && in.SitePropertyID == "" {
		// Same URL maps to a different property: delist the stale row and
		// create a fresh one for the newly resolved property.
		listing.IsActive = false
		delistedAt := now
		listing.DelistedAt = &delistedAt
		if err := tx.Save(&listing).Error; err != nil {
			return UpsertResult{}, err
		}
		return createListing(tx, masterPropertyID, in, now)
	}

	return updateListing(tx, &listing, in, now)
}

func createListing(tx *gorm.DB, masterPropertyID uint64, in ListingInput, now time.Time) (UpsertResult, error) {
	l := models.PropertyListing{
		MasterPropertyID:    masterPropertyID,
		SourceSite:          in.SourceSite,
		SitePropertyID:      in.SitePropertyID,
		URL:                 in.URL,
		Title:               in.Title,
		AgencyName:          in.AgencyName,
		Description:         in.Description,
		StationInfo:         in.StationInfo,
		Features:            in.Features,
		CurrentPrice:        in.Price,
		ManagementFee:       in.ManagementFee,
		RepairFund:          in.RepairFund,
		ListingFloor:        in.ListingFloor,
		ListingArea:         in.ListingArea,
		ListingLayout:       in.ListingLayout,
		ListingDirection:    in.ListingDirection,
		ListingTotalFloors:  in.ListingTotalFloors,
		ListingBalconyArea:  in.ListingBalconyArea,
		ListingAddress:      in.ListingAddress,
		ListingBuildingName: in.ListingBuildingName,
		IsActive:            true,
		FirstSeenAt:         now,
		FirstPublishedAt:    in.PublishedAt,
		PublishedAt:         in.PublishedAt,
		LastConfirmedAt:     now,
		DetailFetchedAt:     &now,
	}
	if err := tx.Create(&l).Error; err != nil {
		return UpsertResult{}, err
	}
	// The initial price-history row; later rows are appended only on change.
	hist := models.ListingPriceHistory{PropertyListingID: l.ID, Price: in.Price, RecordedAt: now}
	if err := tx.Create(&hist).Error; err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{Listing: &l, Type: UpdateNew}, nil
}

const suspiciousChangeRate = 0.7

func updateListing(tx *gorm.DB, l *models.PropertyListing, in ListingInput, now time.Time) (UpsertResult, error) {
	var changed []string
	priceChanged := false
	suspicious := false

	if in.Price > 0 && l.CurrentPrice != in.Price {
		if l.CurrentPrice > 0 {
			rate := changeRate(float64(l.CurrentPrice), float64(in.Price))
			if rate > suspiciousChangeRate {
				suspicious = true
			}
		}
		hist := models.ListingPriceHistory{PropertyListingID: l.ID, Price: in.Price, RecordedAt: now}
		if err := tx.Create(&hist).Error; err != nil {
			return UpsertResult{}, err
		}
		l.CurrentPrice = in.Price
		l.PriceUpdatedAt = &now
		priceChanged = true
	}

	if in.ListingArea != nil {
		if l.ListingArea != nil {
			rate := changeRate(*l.ListingArea, *in.ListingArea)
			if rate > suspiciousChangeRate {
				suspicious = true
				changed = append(changed, fmt.Sprintf("area(%.2f->%.2f)", *l.ListingArea, *in.ListingArea))
			}
		}
	} else if l.ListingArea != nil {
		suspicious = true
	}

	if in.ListingFloor == nil && l.ListingFloor != nil {
		suspicious = true
	}

	if in.Title != "" && l.Title != in.Title {
		changed = append(changed, "title")
	}
	l.Title = orKeep(in.Title, l.Title)

	if in.AgencyName != "" && l.AgencyName != in.AgencyName {
		changed = append(changed, "agency_name")
	}
	l.AgencyName = orKeep(in.AgencyName, l.AgencyName)

	if in.SitePropertyID != "" && l.SitePropertyID != "" && l.SitePropertyID != in.SitePropertyID {
		changed = append(changed, "site_property_id")
	}
	l.SitePropertyID = orKeep(in.SitePropertyID, l.SitePropertyID)

	if in.Description != "" && l.Description != in.Description {
		changed = append(changed, "description")
	}
	l.Description = orKeep(in.Description, l.Description)

	if in.StationInfo != "" && l.StationInfo != in.StationInfo {
		changed = append(changed, "station_info")
	}
	l.StationInfo = orKeep(in.StationInfo, l.StationInfo)

	if in.Features != "" && l.Features != in.Features {
		changed = append(changed, "features")
	}
	l.Features = orKeep(in.Features, l.Features)

	if in.ManagementFee != nil && !intPtrEq(l.ManagementFee, in.ManagementFee) {
		changed = append(changed, "management_fee")
	}
	if in.ManagementFee != nil {
		l.ManagementFee = in.ManagementFee
	}

	if in.RepairFund != nil && !intPtrEq(l.RepairFund, in.RepairFund) {
		changed = append(changed, "repair_fund")
	}
	if in.RepairFund != nil {
		l.RepairFund = in.RepairFund
	}

	if in.ListingBuildingName != "" && l.ListingBuildingName != in.ListingBuildingName {
		changed = append(changed, "building_name")
	}
	l.ListingBuildingName = orKeep(in.ListingBuildingName, l.ListingBuildingName)

	if in.ListingFloor != nil && !intPtrEq(l.ListingFloor, in.ListingFloor) {
		changed = append(changed, "listing_floor")
	}
	if in.ListingFloor != nil {
		l.ListingFloor = in.ListingFloor
	}
	if in.ListingArea != nil {
		l.ListingArea = in.ListingArea
	}
	if in.ListingLayout != "" && l.ListingLayout != in.ListingLayout {
		changed = append(changed, "listing_layout")
	}
	l.ListingLayout = orKeep(in.ListingLayout, l.ListingLayout)
	if in.ListingDirection != "" && l.ListingDirection != in.ListingDirection {
		changed = append(changed, "listing_direction")
	}
	l.ListingDirection = orKeep(in.ListingDirection, l.ListingDirection)
	if in.ListingTotalFloors != nil && !intPtrEq(l.ListingTotalFloors, in.ListingTotalFloors) {
		changed = append(changed, "listing_total_floors")
	}
	if in.ListingTotalFloors != nil {
		l.ListingTotalFloors = in.ListingTotalFloors
	}
	if in.ListingBalconyArea != nil {
		l.ListingBalconyArea = in.ListingBalconyArea
	}
	if in.ListingAddress != "" && l.ListingAddress != in.ListingAddress {
		changed = append(changed, "listing_address")
	}
	l.ListingAddress = orKeep(in.ListingAddress, l.ListingAddress)

	if in.PublishedAt != nil && (l.PublishedAt == nil || in.PublishedAt.After(*l.PublishedAt)) {
		l.PublishedAt = in.PublishedAt
	}

	l.IsActive = true
	l.LastConfirmedAt = now
	l.DetailFetchedAt = &now

	var updateType UpdateType
	switch {
	case priceChanged:
		updateType = UpdatePriceUpdated
	case len(changed) > 0:
		updateType = UpdateOtherUpdates
	default:
		updateType = UpdateRefetchedUnchanged
	}

	if err := tx.Save(l).Error; err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{Listing: l, Type: updateType, ChangedFields: changed, SuspiciousUpdate: suspicious}, nil
}

func changeRate(old, new float64) float64 {
	if old == 0 {
		return 0
	}
	rate := (new - old) / old
	if rate < 0 {
		rate = -rate
	}
	return rate
}

func orKeep(newVal, old string) string {
	if newVal != "" {
		return newVal
	}
	return old
}

func intPtrEq(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// FindListingBySitePropertyID looks up an existing PropertyListing by
// (source_site, site_property_id), used by the orchestrator's Phase B fetch
// decision before any detail fetch happens. Returns (nil, nil) when
// not found.
func FindListingBySitePropertyID(tx *gorm.DB, sourceSite, sitePropertyID string) (*models.PropertyListing, error) {
	var l models.PropertyListing
	err := tx.Where("source_site = ? AND site_property_id = ?", sourceSite, sitePropertyID).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// TouchListing updates only last_confirmed_at, the "skip but still confirm
// seen" path in Phase B decision step 5.
func TouchListing(tx *gorm.DB, l *models.PropertyListing, now time.Time) error {
	return tx.Model(l).Update("last_confirmed_at", now).Error
}

// ActiveSitePropertyIDs returns the site_property_id of every currently
// active listing for sourceSite, used by the orchestrator's end-of-run
// delisting pass to find listings absent from this run's
// collected rows.
func ActiveSitePropertyIDs(tx *gorm.DB, sourceSite string) (map[string]uint64, error) {
	var rows []models.PropertyListing
	if err := tx.Where("source_site = ? AND is_active = ?", sourceSite, true).
		Select("id", "site_property_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]uint64, len(rows))
	for _, r := range rows {
		if r.SitePropertyID != "" {
			out[r.SitePropertyID] = r.ID
		}
	}
	return out, nil
}

// Delist implements the first-absence delisting cadence: the first run in
// which an active listing is absent from a site's current listings marks it
// inactive.
func Delist(tx *gorm.DB, l *models.PropertyListing, now time.Time) error {
	if !l.IsActive {
		return nil
	}
	l.IsActive = false
	l.DelistedAt = &now
	return tx.Save(l).Error
}
