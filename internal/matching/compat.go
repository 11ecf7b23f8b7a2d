package matching

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/homeswap-backend/internal/domain"
)

type Step string

const (
	StepZone     Step = "ZONE"
	StepBudget   Step = "BUDGET"
	StepSurface  Step = "SURFACE"
	StepRooms    Step = "ROOMS"
	StepHomeType Step = "HOME_TYPE"
	StepDates    Step = "DATES"
)

// StepOrder is the evaluation order, cheapest first.
var StepOrder = []Step{StepZone, StepBudget, StepSurface, StepRooms, StepHomeType, StepDates}

// CheckResult is the outcome of one compatibility check. Details carries the
// exact values compared.
type CheckResult struct {
	Step    Step           `json:"step"`
	Passed  bool           `json:"passed"`
	Reason  string         `json:"reason"`
	Details map[string]any `json:"details,omitempty"`
}

// EdgeEvaluation is the directed check of From's search against To's home.
// Steps stops at the first failure.
type EdgeEvaluation struct {
	FromIntentID uuid.UUID     `json:"fromIntentId"`
	ToIntentID   uuid.UUID     `json:"toIntentId"`
	Passed       bool          `json:"passed"`
	Steps        []CheckResult `json:"steps"`
}

// Failure returns the failing step, or nil when the edge passed.
func (e EdgeEvaluation) Failure() *CheckResult {
	if e.Passed || len(e.Steps) == 0 {
		return nil
	}
	last := e.Steps[len(e.Steps)-1]
	return &last
}

// PairEvaluation holds both directions of a seeker/candidate pair.
type PairEvaluation struct {
	Forward EdgeEvaluation `json:"forward"`
	Reverse EdgeEvaluation `json:"reverse"`
}

func (p PairEvaluation) Mutual() bool { return p.Forward.Passed && p.Reverse.Passed }

// Evaluator runs the compatibility checks. It is pure and safe for
// concurrent use.
type Evaluator struct {
	DateToleranceDays int
}

// EvaluateEdge checks whether from's search accepts to's home. Both intents
// need Home and Search (with Zones) loaded.
func (ev Evaluator) EvaluateEdge(from, to *types.Intent) EdgeEvaluation {
	out := EdgeEvaluation{FromIntentID: from.ID, ToIntentID: to.ID}
	if from.Search == nil || to.Home == nil {
		out.Steps = []CheckResult{{Step: StepZone, Reason: "incomplete intent: home or search not loaded"}}
		return out
	}
	s, h := from.Search, to.Home
	checks := []func() CheckResult{
		func() CheckResult { return checkZone(s, h) },
		func() CheckResult { return checkBudget(s, h) },
		func() CheckResult { return checkSurface(s, h) },
		func() CheckResult { return checkRooms(s, h) },
		func() CheckResult { return checkHomeType(s, h) },
		func() CheckResult { return checkDates(s, to.Search, ev.DateToleranceDays) },
	}
	for _, check := range checks {
		r := check()
		out.Steps = append(out.Steps, r)
		if !r.Passed {
			return out
		}
	}
	out.Passed = true
	return out
}

// EvaluatePair evaluates seeker→candidate, then candidate→seeker.
func (ev Evaluator) EvaluatePair(seeker, candidate *types.Intent) PairEvaluation {
	return PairEvaluation{
		Forward: ev.EvaluateEdge(seeker, candidate),
		Reverse: ev.EvaluateEdge(candidate, seeker),
	}
}

func checkZone(s *types.Search, h *types.Home) CheckResult {
	r := CheckResult{Step: StepZone, Details: map[string]any{"candidateLat": h.Lat, "candidateLng": h.Lng}}
	if len(s.Zones) == 0 {
		r.Reason = "no zones configured"
		r.Details["zones"] = []map[string]any{}
		return r
	}
	zones := make([]map[string]any, 0, len(s.Zones))
	best := math.Inf(1)
	hit := -1
	for i, z := range s.Zones {
		d := HaversineKm(z.Lat, z.Lng, h.Lat, h.Lng)
		zones = append(zones, map[string]any{"label": z.Label, "distanceKm": round3(d), "radiusKm": z.RadiusKm})
		if d <= z.RadiusKm && hit < 0 {
			hit = i
		}
		best = math.Min(best, d-z.RadiusKm)
	}
	r.Details["zones"] = zones
	if hit >= 0 {
		r.Passed = true
		r.Reason = fmt.Sprintf("home inside zone %q", s.Zones[hit].Label)
		return r
	}
	r.Reason = fmt.Sprintf("home outside every zone (closest %.2fkm beyond radius)", best)
	return r
}

func checkBudget(s *types.Search, h *types.Home) CheckResult {
	return rangeCheck(StepBudget, "rent", h.Rent, s.MinRent, s.MaxRent,
		map[string]any{"candidateRent": h.Rent, "minRent": floatOrNil(s.MinRent), "maxRent": floatOrNil(s.MaxRent)})
}

func checkSurface(s *types.Search, h *types.Home) CheckResult {
	return rangeCheck(StepSurface, "surface", h.Surface, s.MinRoomSurface, s.MaxRoomSurface,
		map[string]any{"candidateSurface": h.Surface, "minSurface": floatOrNil(s.MinRoomSurface), "maxSurface": floatOrNil(s.MaxRoomSurface)})
}

func checkRooms(s *types.Search, h *types.Home) CheckResult {
	minRooms, maxRooms := intToFloat(s.MinRoomNb), intToFloat(s.MaxRoomNb)
	return rangeCheck(StepRooms, "rooms", float64(h.NbRooms), minRooms, maxRooms,
		map[string]any{"candidateRooms": h.NbRooms, "minRooms": intOrNil(s.MinRoomNb), "maxRooms": intOrNil(s.MaxRoomNb)})
}

func rangeCheck(step Step, label string, v float64, lo, hi *float64, details map[string]any) CheckResult {
	r := CheckResult{Step: step, Details: details}
	switch {
	case lo != nil && v < *lo:
		r.Reason = fmt.Sprintf("%s %s below min %s", label, num(v), num(*lo))
	case hi != nil && v > *hi:
		r.Reason = fmt.Sprintf("%s %s above max %s", label, num(v), num(*hi))
	default:
		r.Passed = true
		r.Reason = fmt.Sprintf("%s %s within range", label, num(v))
	}
	return r
}

func checkHomeType(s *types.Search, h *types.Home) CheckResult {
	accepted := []string(s.HomeTypes)
	r := CheckResult{Step: StepHomeType, Details: map[string]any{"candidateType": string(h.HomeType), "acceptedTypes": accepted}}
	if len(accepted) == 0 {
		r.Passed = true
		r.Reason = "any home type accepted"
		return r
	}
	for _, t := range accepted {
		if strings.EqualFold(strings.TrimSpace(t), string(h.HomeType)) {
			r.Passed = true
			r.Reason = fmt.Sprintf("home type %s accepted", h.HomeType)
			return r
		}
	}
	r.Reason = fmt.Sprintf("home type %s not in %s", h.HomeType, strings.Join(accepted, ","))
	return r
}

// checkDates compares the two parties' windows as whole UTC days, each widened
// by toleranceDays on both sides. A missing start or end is unbounded.
func checkDates(seeker, candidate *types.Search, toleranceDays int) CheckResult {
	r := CheckResult{Step: StepDates, Details: map[string]any{"toleranceDays": toleranceDays}}
	var cs, ce *time.Time
	if candidate != nil {
		cs, ce = candidate.SearchStartDate, candidate.SearchEndDate
	}
	ss, se := seeker.SearchStartDate, seeker.SearchEndDate
	r.Details["seekerWindow"] = window(ss, se)
	r.Details["candidateWindow"] = window(cs, ce)
	if (ss == nil && se == nil) || (cs == nil && ce == nil) {
		r.Passed = true
		r.Reason = "open date window"
		return r
	}

	sLo, sHi := expand(ss, -toleranceDays), expand(se, toleranceDays)
	cLo, cHi := expand(cs, -toleranceDays), expand(ce, toleranceDays)
	r.Details["seekerExpanded"] = window(sLo, sHi)
	r.Details["candidateExpanded"] = window(cLo, cHi)

	if sLo != nil && sHi != nil && sLo.After(*sHi) {
		r.Reason = "seeker date window ends before it starts"
		return r
	}
	if cLo != nil && cHi != nil && cLo.After(*cHi) {
		r.Reason = "candidate date window ends before it starts"
		return r
	}
	// Inclusive overlap: each window must start no later than the other ends.
	if (sLo == nil || cHi == nil || !sLo.After(*cHi)) && (cLo == nil || sHi == nil || !cLo.After(*sHi)) {
		r.Passed = true
		r.Reason = "date windows overlap"
		return r
	}
	r.Reason = "date windows do not overlap"
	return r
}

func day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func expand(t *time.Time, days int) *time.Time {
	if t == nil {
		return nil
	}
	d := day(*t).AddDate(0, 0, days)
	return &d
}

func window(start, end *time.Time) map[string]any {
	w := map[string]any{"start": nil, "end": nil}
	if start != nil {
		w["start"] = day(*start).Format(time.DateOnly)
	}
	if end != nil {
		w["end"] = day(*end).Format(time.DateOnly)
	}
	return w
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intToFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func num(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
