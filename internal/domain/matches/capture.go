package matches

import (
	"time"

	"github.com/yungbote/homeswap-backend/internal/domain/exchange"
)

func CaptureHome(h *exchange.Home) HomeSnapshot {
	if h == nil {
		return HomeSnapshot{}
	}
	return HomeSnapshot{
		HomeID:   h.ID,
		Address:  h.Address,
		Lat:      h.Lat,
		Lng:      h.Lng,
		HomeType: string(h.HomeType),
		NbRooms:  h.NbRooms,
		Surface:  h.Surface,
		Rent:     h.Rent,
	}
}

func CaptureSearch(s *exchange.Search) SearchSnapshot {
	if s == nil {
		return SearchSnapshot{}
	}
	out := SearchSnapshot{
		SearchID:        s.ID,
		MinRent:         s.MinRent,
		MaxRent:         s.MaxRent,
		MinRoomSurface:  s.MinRoomSurface,
		MaxRoomSurface:  s.MaxRoomSurface,
		MinRoomNb:       s.MinRoomNb,
		MaxRoomNb:       s.MaxRoomNb,
		HomeTypes:       append([]string{}, s.HomeTypes...),
		SearchStartDate: utcPtr(s.SearchStartDate),
		SearchEndDate:   utcPtr(s.SearchEndDate),
		Zones:           make([]ZoneSnapshot, 0, len(s.Zones)),
	}
	for _, z := range s.Zones {
		out.Zones = append(out.Zones, ZoneSnapshot{Label: z.Label, Lat: z.Lat, Lng: z.Lng, RadiusKm: z.RadiusKm})
	}
	return out
}

// CaptureParticipant builds the participant entry for an intent with its User and Home loaded.
func CaptureParticipant(in *exchange.Intent) Participant {
	if in == nil {
		return Participant{}
	}
	p := Participant{IntentID: in.ID, UserID: in.UserID}
	if in.User != nil {
		p.Name = in.User.DisplayName()
	}
	if in.Home != nil {
		p.HomeAddress = in.Home.Address
	}
	return p
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
