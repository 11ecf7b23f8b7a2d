package exchange

import (
	"time"

	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"
	"gorm.io/gorm"
)

type HomeType string

const (
	HomeTypeApartment HomeType = "APARTMENT"
	HomeTypeHouse     HomeType = "HOUSE"
	HomeTypeStudio    HomeType = "STUDIO"
	HomeTypeRoom      HomeType = "ROOM"
)

// GeohashPrecision is the stored precision of Home.Geohash (~1.2km x 0.6km cells).
const GeohashPrecision = 6

// Home is the listing a user offers. One per user.
type Home struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Address     string    `gorm:"column:address;not null" json:"address"`
	Lat         float64   `gorm:"column:lat;not null" json:"lat"`
	Lng         float64   `gorm:"column:lng;not null" json:"lng"`
	Geohash     string    `gorm:"column:geohash;size:12;index" json:"geohash"`
	HomeType    HomeType  `gorm:"column:home_type;not null" json:"home_type"`
	NbRooms     int       `gorm:"column:nb_rooms;not null" json:"nb_rooms"`
	Surface     float64   `gorm:"column:surface;not null" json:"surface"`
	Rent        float64   `gorm:"column:rent;not null" json:"rent"`
	Description string    `gorm:"column:description;type:text" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Home) TableName() string { return "home" }

func (h *Home) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// BeforeSave keeps the geohash cell in sync with the coordinates so candidate
// selection can prefilter by prefix.
func (h *Home) BeforeSave(*gorm.DB) error {
	h.Geohash = geohash.EncodeWithPrecision(h.Lat, h.Lng, GeohashPrecision)
	return nil
}
