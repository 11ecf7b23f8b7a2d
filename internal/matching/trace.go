package matching

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

type Direction string

const (
	// DirectionForward is the seeker's search against the target's home.
	DirectionForward Direction = "seeker_to_target"
	// DirectionReverse is the target's search against the seeker's home.
	DirectionReverse Direction = "target_to_seeker"
	// DirectionCycle is one edge of a candidate triangle.
	DirectionCycle Direction = "cycle_edge"
)

// StepLog is one traced compatibility check.
type StepLog struct {
	RunID          uuid.UUID      `json:"runId"`
	SeekerIntentID uuid.UUID      `json:"seekerIntentId"`
	TargetIntentID uuid.UUID      `json:"targetIntentId"`
	Direction      Direction      `json:"direction"`
	Step           Step           `json:"step"`
	Passed         bool           `json:"passed"`
	Reason         string         `json:"reason"`
	Details        map[string]any `json:"details,omitempty"`
	At             time.Time      `json:"at"`
}

type StepSink interface {
	Record(StepLog)
}

// MemorySink keeps step logs in memory, for tests and previews.
type MemorySink struct {
	mu   sync.Mutex
	logs []StepLog
}

func (m *MemorySink) Record(l StepLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
}

func (m *MemorySink) Logs() []StepLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StepLog(nil), m.logs...)
}

// Find returns the logs for step between seeker and target, in order.
func (m *MemorySink) Find(seeker, target uuid.UUID, step Step) []StepLog {
	var out []StepLog
	for _, l := range m.Logs() {
		if l.SeekerIntentID == seeker && l.TargetIntentID == target && l.Step == step {
			out = append(out, l)
		}
	}
	return out
}

// Tracer writes step logs for the pairs the config selects.
type Tracer struct {
	cfg  Config
	log  *logger.Logger
	sink StepSink
	now  func() time.Time
}

func NewTracer(cfg Config, log *logger.Logger, sink StepSink) *Tracer {
	return &Tracer{cfg: cfg, log: log, sink: sink, now: func() time.Time { return time.Now().UTC() }}
}

// Edge records every step of ev if the pair is traced. The seeker and target
// name the pair being evaluated; ev may run in either direction between them.
func (t *Tracer) Edge(runID, seekerID, targetID uuid.UUID, dir Direction, ev EdgeEvaluation) {
	if t == nil || !t.cfg.Traces(seekerID, targetID) {
		return
	}
	at := t.now()
	for _, r := range ev.Steps {
		l := StepLog{
			RunID:          runID,
			SeekerIntentID: seekerID,
			TargetIntentID: targetID,
			Direction:      dir,
			Step:           r.Step,
			Passed:         r.Passed,
			Reason:         r.Reason,
			Details:        r.Details,
			At:             at,
		}
		if t.log != nil {
			t.log.Info("match step",
				"run_id", runID,
				"seeker_intent_id", seekerID,
				"target_intent_id", targetID,
				"direction", dir,
				"step", r.Step,
				"passed", r.Passed,
				"reason", r.Reason,
				"details", r.Details,
			)
		}
		if t.sink != nil {
			t.sink.Record(l)
		}
	}
}

// Pair records both directions of a seeker/candidate evaluation.
func (t *Tracer) Pair(runID, seekerID, targetID uuid.UUID, p PairEvaluation) {
	t.Edge(runID, seekerID, targetID, DirectionForward, p.Forward)
	t.Edge(runID, seekerID, targetID, DirectionReverse, p.Reverse)
}
