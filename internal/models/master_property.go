package models

import "time"

// MasterProperty is the physical dwelling (unit) that one or more listings,
// across one or more source sites, refer to. PropertyHash deterministically
// fingerprints the unit so independently scraped listings converge onto the
// same row (see internal/hasher).
type MasterProperty struct {
	ID            uint64   `gorm:"primaryKey;autoIncrement" json:"id"`
	BuildingID    uint64   `gorm:"not null;index" json:"building_id"`
	RoomNumber    string   `gorm:"type:varchar(50)" json:"room_number,omitempty"`
	Floor         *int     `gorm:"type:int" json:"floor,omitempty"`
	Area          *float64 `gorm:"type:decimal(6,2)" json:"area,omitempty"`
	Layout        string   `gorm:"type:varchar(20)" json:"layout,omitempty"`
	Direction     string   `gorm:"type:varchar(10)" json:"direction,omitempty"`
	BalconyArea   *float64 `gorm:"type:decimal(6,2)" json:"balcony_area,omitempty"`
	PropertyHash  string   `gorm:"type:char(64);not null;uniqueIndex" json:"property_hash"`

	Listings []PropertyListing `gorm:"constraint:OnDelete:RESTRICT" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MasterProperty) TableName() string { return "master_properties" }
