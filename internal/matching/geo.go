package matching

import (
	"math"
	"sort"

	"github.com/mmcloughlin/geohash"

	types "github.com/yungbote/homeswap-backend/internal/domain"
	"github.com/yungbote/homeswap-backend/internal/domain/exchange"
)

const earthRadiusKm = 6371.0088

// HaversineKm is the great-circle distance between two points.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	rlat1, rlat2 := radians(lat1), radians(lat2)
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// ZoneCells returns geohash prefixes whose union covers every zone of the
// search. For each zone it picks the finest precision whose cell is at least
// as large as the radius, then takes that cell and its eight neighbours.
// A nil result means no usable cover (no zones, or a zone too large for a
// precision-1 cell) and the caller must not prefilter.
func ZoneCells(zones []types.SearchZone) []string {
	if len(zones) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	for _, z := range zones {
		cell := coverCell(z)
		if cell == "" {
			return nil
		}
		seen[cell] = struct{}{}
		for _, n := range geohash.Neighbors(cell) {
			seen[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func coverCell(z types.SearchZone) string {
	if z.RadiusKm <= 0 {
		return geohash.EncodeWithPrecision(z.Lat, z.Lng, exchange.GeohashPrecision)
	}
	for p := uint(exchange.GeohashPrecision); p >= 1; p-- {
		cell := geohash.EncodeWithPrecision(z.Lat, z.Lng, p)
		box := geohash.BoundingBox(cell)
		h := radians(box.MaxLat-box.MinLat) * earthRadiusKm
		// Width at the box's worst latitude.
		worst := math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat))
		w := radians(box.MaxLng-box.MinLng) * earthRadiusKm * math.Cos(radians(worst))
		if math.Min(h, w) >= z.RadiusKm {
			return cell
		}
	}
	return ""
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
