// Package parser defines the per-site plug-in contract. The
// orchestrator treats every Parser as opaque: all knowledge of a site's HTML
// lives in its implementation, under internal/parser/sites. Parsers must not
// touch persistence.
package parser

import "real-estate-portal/internal/normalizer"

// ListRow is one row extracted from a list page.
type ListRow struct {
	URL                string
	SitePropertyID     string
	Price              int
	BuildingNameFromList string
	ListPageAddress    string
}

// Valid reports whether the row carries the three fields required for Phase A:
// url, site_property_id, price.
func (r ListRow) Valid() bool {
	return r.URL != "" && r.SitePropertyID != "" && r.Price > 0
}

// DetailRecord is the fully-parsed detail page. Pointer/zero-value fields
// that were not extracted are "absent" per the normalizer convention.
type DetailRecord struct {
	SitePropertyID string
	Price          int
	BuildingName   string
	Address        string
	Area           float64
	HasArea        bool
	Layout         string
	Floor          int
	HasFloor       bool
	TotalFloors    int
	HasTotalFloors bool
	Direction      string
	BuiltYear      int
	HasBuiltYear   bool
	BalconyArea    float64
	HasBalconyArea bool
	ManagementFee  int
	HasManagementFee bool
	RepairFund     int
	HasRepairFund  bool
	Title          string
	AgencyName     string
	Description    string
	StationInfo    string
	Features       string

	// BuildingNameAlt carries a second building-name candidate extracted
	// from the detail page, for sites that declare a multi-source
	// VerifyBuildingNamesMatch policy. Empty when the site has only
	// one candidate.
	BuildingNameAlt string
}

// RequiredFieldsReport names which required fields a DetailRecord is
// missing. Layout may be declared partial-required by a site (tolerated up
// to a per-run miss-rate, see Parser.PartialRequiredFields); the orchestrator
// is responsible for applying that tolerance, this report only states facts.
type RequiredFieldsReport struct {
	Missing []string
}

func (r RequiredFieldsReport) OK() bool { return len(r.Missing) == 0 }

// Validate checks DetailRecord against the required-fields contract,
// independent of any site-specific partial-required tolerance.
func Validate(d DetailRecord) RequiredFieldsReport {
	var missing []string
	if d.SitePropertyID == "" {
		missing = append(missing, "site_property_id")
	}
	if !normalizer.ValidatePrice(d.Price) {
		missing = append(missing, "price")
	}
	if d.BuildingName == "" {
		missing = append(missing, "building_name")
	}
	if d.Address == "" || !normalizer.ValidateAddress(d.Address) {
		missing = append(missing, "address")
	}
	if !d.HasArea || d.Area < normalizer.MinAreaM2 || d.Area > normalizer.MaxAreaM2 {
		missing = append(missing, "area")
	}
	if d.Layout == "" {
		missing = append(missing, "layout")
	}
	if d.HasFloor && d.HasTotalFloors {
		tf := d.TotalFloors
		if !normalizer.ValidateFloorNumber(d.Floor, &tf) {
			missing = append(missing, "floor")
		}
	}
	return RequiredFieldsReport{Missing: missing}
}

// MatchPolicy names a site's verify_building_names_match strategy.
type MatchPolicy int

const (
	AbbreviationPolicy MatchPolicy = iota
	PartialMatchPolicy
	MultiSourcePolicy
)

// MatchResult is the outcome of verify_building_names_match.
type MatchResult struct {
	OK           bool
	ResolvedName string
}

// Parser is the capability set every per-site plug-in exposes.
type Parser interface {
	SourceSite() string

	// BuildListURL builds the list-page URL for the given area and page.
	BuildListURL(area string, page int) string

	// ParseList extracts list rows from a fetched list page's HTML.
	ParseList(html string) ([]ListRow, error)

	// ParseDetail extracts a DetailRecord from a fetched detail page's HTML,
	// using list-page hints (building name, address) where the detail page
	// is ambiguous. ok=false means parsing failed outright (not merely that
	// a required field is missing — that is reported via Validate).
	ParseDetail(html string, hint ListRow) (DetailRecord, bool)

	// IsLastPage reports whether a fetched list page is the final page.
	IsLastPage(html string) bool

	// ValidateSitePropertyID checks a site_property_id's shape.
	ValidateSitePropertyID(id, url string) bool

	// VerifyBuildingNamesMatch governs whether to trust the detail page's
	// building name(s) (detail.BuildingName and, for multi-source sites,
	// detail.BuildingNameAlt) against the list page's, per the site's
	// declared MatchPolicy.
	VerifyBuildingNamesMatch(detail DetailRecord, listName string) MatchResult

	// PartialRequiredFields names fields this site may omit up to a
	// per-run missing-rate tolerance; layout is the common case.
	PartialRequiredFields() []string
}

// ResolveHref builds a detail-page or list-page absolute URL for a given
// relative href. Most sites emit absolute hrefs; this exists so parsers can
// share a small helper rather than re-implement URL-joining per site.
func ResolveHref(base, href string) string {
	if href == "" {
		return ""
	}
	if len(href) > 4 && (href[:4] == "http") {
		return href
	}
	if len(href) > 0 && href[0] == '/' {
		return base + href
	}
	return base + "/" + href
}
