package models

import "time"

// PropertyListing is one advertisement of a unit on one source site,
// identified by (source_site, site_property_id). URL is mutable; the
// identity key is the (source_site, site_property_id) pair, falling back to
// (source_site, url) for legacy rows scraped before an id could be
// extracted.
type PropertyListing struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	MasterPropertyID uint64 `gorm:"not null;index" json:"master_property_id"`
	// (source_site, site_property_id) is the identity pair; the index is
	// non-unique because legacy rows share an empty site_property_id, so
	// uniqueness is enforced by the upsert lookup instead of the schema.
	SourceSite       string `gorm:"type:varchar(50);not null;index:idx_source_site_property,priority:1" json:"source_site"`
	SitePropertyID   string `gorm:"type:varchar(100);index:idx_source_site_property,priority:2" json:"site_property_id,omitempty"`
	URL              string `gorm:"type:varchar(500);not null;index" json:"url"`

	Title         string `gorm:"type:text" json:"title,omitempty"`
	AgencyName    string `gorm:"type:varchar(255)" json:"agency_name,omitempty"`
	Description   string `gorm:"type:text" json:"description,omitempty"`
	StationInfo   string `gorm:"type:text" json:"station_info,omitempty"`
	Features      string `gorm:"type:text" json:"features,omitempty"`

	CurrentPrice   int  `gorm:"not null" json:"current_price"`
	ManagementFee  *int `gorm:"type:int" json:"management_fee,omitempty"`
	RepairFund     *int `gorm:"type:int" json:"repair_fund,omitempty"`

	ListingFloor       *int     `gorm:"type:int" json:"listing_floor,omitempty"`
	ListingArea        *float64 `gorm:"type:decimal(6,2)" json:"listing_area,omitempty"`
	ListingLayout      string   `gorm:"type:varchar(20)" json:"listing_layout,omitempty"`
	ListingDirection   string   `gorm:"type:varchar(10)" json:"listing_direction,omitempty"`
	ListingTotalFloors *int     `gorm:"type:int" json:"listing_total_floors,omitempty"`
	ListingBalconyArea *float64 `gorm:"type:decimal(6,2)" json:"listing_balcony_area,omitempty"`
	ListingAddress     string   `gorm:"type:varchar(255)" json:"listing_address,omitempty"`
	ListingBuildingName string  `gorm:"type:varchar(255)" json:"listing_building_name,omitempty"`

	IsActive bool `gorm:"not null;default:true;index" json:"is_active"`

	FirstSeenAt       time.Time  `gorm:"not null" json:"first_seen_at"`
	FirstPublishedAt  *time.Time `json:"first_published_at,omitempty"`
	PublishedAt       *time.Time `json:"published_at,omitempty"`
	LastConfirmedAt   time.Time  `gorm:"not null" json:"last_confirmed_at"`
	DetailFetchedAt   *time.Time `json:"detail_fetched_at,omitempty"`
	PriceUpdatedAt    *time.Time `json:"price_updated_at,omitempty"`
	DelistedAt        *time.Time `json:"delisted_at,omitempty"`

	PriceHistory []ListingPriceHistory `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PropertyListing) TableName() string { return "property_listings" }

// ListingPriceHistory is append-only: one row per observed price change plus
// one initial row. Rows for one listing are strictly monotonic in RecordedAt.
type ListingPriceHistory struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyListingID uint64    `gorm:"not null;index" json:"property_listing_id"`
	Price             int       `gorm:"not null" json:"price"`
	RecordedAt        time.Time `gorm:"not null" json:"recorded_at"`
}

func (ListingPriceHistory) TableName() string { return "listing_price_history" }
