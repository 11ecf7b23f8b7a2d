package exchange

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxZonesPerSearch bounds how many geographic zones a search may declare.
const MaxZonesPerSearch = 5

// Search holds what a user accepts in exchange. Nil bounds are unbounded.
type Search struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`

	MinRent        *float64 `gorm:"column:min_rent" json:"min_rent,omitempty"`
	MaxRent        *float64 `gorm:"column:max_rent" json:"max_rent,omitempty"`
	MinRoomSurface *float64 `gorm:"column:min_room_surface" json:"min_room_surface,omitempty"`
	MaxRoomSurface *float64 `gorm:"column:max_room_surface" json:"max_room_surface,omitempty"`
	MinRoomNb      *int     `gorm:"column:min_room_nb" json:"min_room_nb,omitempty"`
	MaxRoomNb      *int     `gorm:"column:max_room_nb" json:"max_room_nb,omitempty"`

	// HomeTypes is the accepted set; empty accepts any type.
	HomeTypes datatypes.JSONSlice[string] `gorm:"column:home_types" json:"home_types"`

	SearchStartDate *time.Time `gorm:"column:search_start_date" json:"search_start_date,omitempty"`
	SearchEndDate   *time.Time `gorm:"column:search_end_date" json:"search_end_date,omitempty"`

	Zones []SearchZone `gorm:"foreignKey:SearchID" json:"zones"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Search) TableName() string { return "search" }

func (s *Search) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SearchZone is a circular area: centre point plus radius in kilometres.
type SearchZone struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SearchID uuid.UUID `gorm:"type:uuid;not null;index" json:"search_id"`
	Label    string    `gorm:"column:label" json:"label"`
	Lat      float64   `gorm:"column:lat;not null" json:"lat"`
	Lng      float64   `gorm:"column:lng;not null" json:"lng"`
	RadiusKm float64   `gorm:"column:radius_km;not null" json:"radius_km"`
}

func (SearchZone) TableName() string { return "search_zone" }

func (z *SearchZone) BeforeCreate(*gorm.DB) error {
	if z.ID == uuid.Nil {
		z.ID = uuid.New()
	}
	return nil
}
