package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/homeswap-backend/internal/domain"
)

// HomeSpec describes the home a test party offers.
type HomeSpec struct {
	Lat, Lng float64
	Type     types.HomeType
	Rooms    int
	Surface  float64
	Rent     float64
	Address  string
}

type ZoneSpec struct {
	Lat, Lng float64
	RadiusKm float64
	Label    string
}

// SearchSpec describes what a test party accepts. Nil bounds are open.
type SearchSpec struct {
	MinRent, MaxRent       *float64
	MinSurface, MaxSurface *float64
	MinRooms, MaxRooms     *int
	Types                  []string
	Start, End             *time.Time
	Zones                  []ZoneSpec
}

type PartySpec struct {
	FirstName string
	Home      HomeSpec
	Search    SearchSpec
	Credits   int
	// Inactive leaves the intent out of the flow.
	Inactive  bool
	CreatedAt time.Time
}

// SeedParty inserts a user, home, search with zones and an intent with Credits purchased.
func SeedParty(tb testing.TB, tx *gorm.DB, spec PartySpec) *types.Intent {
	tb.Helper()
	first := spec.FirstName
	if first == "" {
		first = "party"
	}
	u := &types.User{Email: first + "-" + uuid.NewString() + "@example.test", FirstName: first, LastName: "Tester"}
	if err := tx.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}

	homeType := spec.Home.Type
	if homeType == "" {
		homeType = types.HomeType("APARTMENT")
	}
	addr := spec.Home.Address
	if addr == "" {
		addr = first + " street"
	}
	h := &types.Home{
		UserID:   u.ID,
		Address:  addr,
		Lat:      spec.Home.Lat,
		Lng:      spec.Home.Lng,
		HomeType: homeType,
		NbRooms:  spec.Home.Rooms,
		Surface:  spec.Home.Surface,
		Rent:     spec.Home.Rent,
	}
	if err := tx.Create(h).Error; err != nil {
		tb.Fatalf("seed home: %v", err)
	}

	s := &types.Search{
		UserID:          u.ID,
		MinRent:         spec.Search.MinRent,
		MaxRent:         spec.Search.MaxRent,
		MinRoomSurface:  spec.Search.MinSurface,
		MaxRoomSurface:  spec.Search.MaxSurface,
		MinRoomNb:       spec.Search.MinRooms,
		MaxRoomNb:       spec.Search.MaxRooms,
		HomeTypes:       datatypes.JSONSlice[string](append([]string{}, spec.Search.Types...)),
		SearchStartDate: spec.Search.Start,
		SearchEndDate:   spec.Search.End,
	}
	for _, z := range spec.Search.Zones {
		s.Zones = append(s.Zones, types.SearchZone{Label: z.Label, Lat: z.Lat, Lng: z.Lng, RadiusKm: z.RadiusKm})
	}
	if err := tx.Create(s).Error; err != nil {
		tb.Fatalf("seed search: %v", err)
	}

	created := spec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	in := &types.Intent{
		UserID:                u.ID,
		HomeID:                h.ID,
		SearchID:              s.ID,
		TotalMatchesPurchased: spec.Credits,
		TotalMatchesRemaining: spec.Credits,
		IsInFlow:              !spec.Inactive && spec.Credits > 0,
		IsActivelySearching:   !spec.Inactive,
		CreatedAt:             created,
		UpdatedAt:             created,
	}
	if err := tx.Create(in).Error; err != nil {
		tb.Fatalf("seed intent: %v", err)
	}
	return in
}

// ReloadIntent reads the intent's current counters.
func ReloadIntent(tb testing.TB, tx *gorm.DB, id uuid.UUID) *types.Intent {
	tb.Helper()
	var in types.Intent
	if err := tx.Where("id = ?", id).First(&in).Error; err != nil {
		tb.Fatalf("reload intent %s: %v", id, err)
	}
	return &in
}

func CountMatches(tb testing.TB, tx *gorm.DB) int64 {
	tb.Helper()
	var n int64
	if err := tx.Model(&types.Match{}).Count(&n).Error; err != nil {
		tb.Fatalf("count matches: %v", err)
	}
	return n
}

func F(v float64) *float64 { return &v }

func I(v int) *int { return &v }

func Day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}
