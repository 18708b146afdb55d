package models

import "time"

// Building is an apartment building. NormalizedName is the current display
// name; CanonicalName is the derived, width-folded search key used to find
// an existing building across sites that spell the name differently.
type Building struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	NormalizedName  string `gorm:"type:varchar(255);not null" json:"normalized_name"`
	CanonicalName   string `gorm:"type:varchar(255);not null;index:idx_building_canonical,priority:1" json:"canonical_name"`
	Address         string `gorm:"type:varchar(255);index:idx_building_canonical,priority:2" json:"address,omitempty"`
	BuiltYear       *int   `gorm:"type:int" json:"built_year,omitempty"`
	BuiltMonth      *int   `gorm:"type:int" json:"built_month,omitempty"`
	TotalFloors     *int   `gorm:"type:int" json:"total_floors,omitempty"`
	BasementFloors  *int   `gorm:"type:int" json:"basement_floors,omitempty"`
	TotalUnits      *int   `gorm:"type:int" json:"total_units,omitempty"`
	Structure       string `gorm:"type:varchar(100)" json:"structure,omitempty"`
	IsValidName     bool   `gorm:"not null;default:true" json:"is_valid_name"`

	ExternalIDs      []BuildingExternalID `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	MasterProperties []MasterProperty     `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Building) TableName() string { return "buildings" }

// BuildingExternalID binds a (source_site, external_id) pair to a Building.
// Insert-only: a binding is never silently rewritten once created.
type BuildingExternalID struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	BuildingID uint64 `gorm:"not null;index" json:"building_id"`
	SourceSite string `gorm:"type:varchar(50);not null;uniqueIndex:idx_source_external,priority:1" json:"source_site"`
	ExternalID string `gorm:"type:varchar(100);not null;uniqueIndex:idx_source_external,priority:2" json:"external_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (BuildingExternalID) TableName() string { return "building_external_ids" }
