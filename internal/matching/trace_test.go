package matching

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

func tracedPair(a, b uuid.UUID) PairEvaluation {
	return PairEvaluation{
		Forward: EdgeEvaluation{FromIntentID: a, ToIntentID: b, Passed: true, Steps: []CheckResult{
			{Step: StepZone, Passed: true, Reason: "within zone"},
			{Step: StepBudget, Passed: true, Reason: "within budget"},
		}},
		Reverse: EdgeEvaluation{FromIntentID: b, ToIntentID: a, Passed: false, Steps: []CheckResult{
			{Step: StepZone, Passed: false, Reason: "outside every zone"},
		}},
	}
}

func TestTracerSkipsUnselectedPairs(t *testing.T) {
	sink := &MemorySink{}
	tr := NewTracer(DefaultConfig(), logger.NewNop(), sink)
	a, b := uuid.New(), uuid.New()
	tr.Pair(uuid.New(), a, b, tracedPair(a, b))
	if n := len(sink.Logs()); n != 0 {
		t.Fatalf("logs: want 0 got %d", n)
	}
}

func TestTracerRecordsSelectedPairBothDirections(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	cfg := DefaultConfig()
	cfg.TracePairs = []TracePair{{b, a}}
	sink := &MemorySink{}
	tr := NewTracer(cfg, logger.NewNop(), sink)
	runID := uuid.New()
	tr.Pair(runID, a, b, tracedPair(a, b))

	logs := sink.Logs()
	if len(logs) != 3 {
		t.Fatalf("logs: want 3 got %d", len(logs))
	}
	for _, l := range logs {
		if l.RunID != runID || l.SeekerIntentID != a || l.TargetIntentID != b {
			t.Fatalf("unexpected log identity: %+v", l)
		}
	}
	zone := sink.Find(a, b, StepZone)
	if len(zone) != 2 {
		t.Fatalf("zone logs: want 2 got %d", len(zone))
	}
	if zone[0].Direction != DirectionForward || !zone[0].Passed {
		t.Fatalf("forward zone log: %+v", zone[0])
	}
	if zone[1].Direction != DirectionReverse || zone[1].Passed {
		t.Fatalf("reverse zone log: %+v", zone[1])
	}
}

func TestTracerDebugTracesEverything(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Debug = true
	sink := &MemorySink{}
	a, b := uuid.New(), uuid.New()
	NewTracer(cfg, nil, sink).Edge(uuid.New(), a, b, DirectionCycle, tracedPair(a, b).Forward)
	if n := len(sink.Find(a, b, StepBudget)); n != 1 {
		t.Fatalf("budget logs: want 1 got %d", n)
	}
}

func TestNilTracerIsSafe(t *testing.T) {
	var tr *Tracer
	a, b := uuid.New(), uuid.New()
	tr.Pair(uuid.New(), a, b, tracedPair(a, b))
}
