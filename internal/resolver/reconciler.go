package resolver

import (
	"real-estate-portal/internal/canon"
	"real-estate-portal/internal/models"

	"gorm.io/gorm"
)

// ReconcileMasterProperty recomputes a MasterProperty's authoritative
// attributes as the mode across its active listings' listing-side fields,
// ties broken by the most recently confirmed listing. Invoked after every
// listing upsert that touched this property.
func ReconcileMasterProperty(tx *gorm.DB, masterPropertyID uint64) error {
	var listings []models.PropertyListing
	if err := tx.Where("master_property_id = ? AND is_active = ?", masterPropertyID, true).Find(&listings).Error; err != nil {
		return err
	}
	if len(listings) == 0 {
		return nil
	}

	var mp models.MasterProperty
	if err := tx.First(&mp, masterPropertyID).Error; err != nil {
		return err
	}

	if v, ok := majorityInt(listings, func(l models.PropertyListing) *int { return l.ListingFloor }); ok {
		mp.Floor = v
	}
	if v, ok := majorityFloat(listings, func(l models.PropertyListing) *float64 { return l.ListingArea }); ok {
		mp.Area = v
	}
	if v, ok := majorityString(listings, func(l models.PropertyListing) string { return l.ListingLayout }); ok {
		mp.Layout = v
	}
	if v, ok := majorityString(listings, func(l models.PropertyListing) string { return l.ListingDirection }); ok {
		mp.Direction = v
	}
	if v, ok := majorityFloat(listings, func(l models.PropertyListing) *float64 { return l.ListingBalconyArea }); ok {
		mp.BalconyArea = v
	}

	return tx.Save(&mp).Error
}

// ReconcileBuilding recomputes a Building's display name and canonical_name
// across all listings for all of its MasterProperty units, by majority vote
// of listing_building_name.
func ReconcileBuilding(tx *gorm.DB, buildingID uint64) error {
	var properties []models.MasterProperty
	if err := tx.Where("building_id = ?", buildingID).Find(&properties).Error; err != nil {
		return err
	}
	if len(properties) == 0 {
		return nil
	}
	propertyIDs := make([]uint64, len(properties))
	for i, p := range properties {
		propertyIDs[i] = p.ID
	}

	var listings []models.PropertyListing
	if err := tx.Where("master_property_id IN ? AND is_active = ?", propertyIDs, true).Find(&listings).Error; err != nil {
		return err
	}
	if len(listings) == 0 {
		return nil
	}

	name, ok := majorityString(listings, func(l models.PropertyListing) string { return l.ListingBuildingName })
	if !ok {
		return nil
	}

	var b models.Building
	if err := tx.First(&b, buildingID).Error; err != nil {
		return err
	}
	b.NormalizedName = name
	b.CanonicalName = canon.Canonicalize(name)
	b.IsValidName = !canon.LooksLikeAdCopy(name)
	return tx.Save(&b).Error
}

// majorityString returns the most frequent non-empty value of field across
// listings, ties broken by the most recently confirmed listing holding that
// value.
func majorityString(listings []models.PropertyListing, field func(models.PropertyListing) string) (string, bool) {
	counts := map[string]int{}
	latest := map[string]models.PropertyListing{}
	for _, l := range listings {
		v := field(l)
		if v == "" {
			continue
		}
		counts[v]++
		if cur, ok := latest[v]; !ok || l.LastConfirmedAt.After(cur.LastConfirmedAt) {
			latest[v] = l
		}
	}
	return pickMajority(counts, latest)
}

func majorityInt(listings []models.PropertyListing, field func(models.PropertyListing) *int) (*int, bool) {
	counts := map[int]int{}
	latest := map[int]models.PropertyListing{}
	for _, l := range listings {
		p := field(l)
		if p == nil {
			continue
		}
		counts[*p]++
		if cur, ok := latest[*p]; !ok || l.LastConfirmedAt.After(cur.LastConfirmedAt) {
			latest[*p] = l
		}
	}
	v, latestEntry, ok := pickMajorityInt(counts, latest)
	if !ok {
		return nil, false
	}
	_ = latestEntry
	return &v, true
}

func majorityFloat(listings []models.PropertyListing, field func(models.PropertyListing) *float64) (*float64, bool) {
	counts := map[float64]int{}
	latest := map[float64]models.PropertyListing{}
	for _, l := range listings {
		p := field(l)
		if p == nil {
			continue
		}
		counts[*p]++
		if cur, ok := latest[*p]; !ok || l.LastConfirmedAt.After(cur.LastConfirmedAt) {
			latest[*p] = l
		}
	}
	v, latestEntry, ok := pickMajorityFloat(counts, latest)
	if !ok {
		return nil, false
	}
	_ = latestEntry
	return &v, true
}

func pickMajority(counts map[string]int, latest map[string]models.PropertyListing) (string, bool) {
	if len(counts) == 0 {
		return "", false
	}
	best := ""
	bestCount := -1
	for v, c := range counts {
		if c > bestCount || (c == bestCount && latest[v].LastConfirmedAt.After(latest[best].LastConfirmedAt)) {
			best, bestCount = v, c
		}
	}
	return best, true
}

func pickMajorityInt(counts map[int]int, latest map[int]models.PropertyListing) (int, models.PropertyListing, bool) {
	if len(counts) == 0 {
		return 0, models.PropertyListing{}, false
	}
	best := 0
	bestCount := -1
	first := true
	for v, c := range counts {
		if first || c > bestCount || (c == bestCount && latest[v].LastConfirmedAt.After(latest[best].LastConfirmedAt)) {
			best, bestCount = v, c
			first = false
		}
	}
	return best, latest[best], true
}

func pickMajorityFloat(counts map[float64]int, latest map[float64]models.PropertyListing) (float64, models.PropertyListing, bool) {
	if len(counts) == 0 {
		return 0, models.PropertyListing{}, false
	}
	best := 0.0
	bestCount := -1
	first := true
	for v, c := range counts {
		if first || c > bestCount || (c == bestCount && latest[v].LastConfirmedAt.After(latest[best].LastConfirmedAt)) {
			best, bestCount = v, c
			first = false
		}
	}
	return best, latest[best], true
}
