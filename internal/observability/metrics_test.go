package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncMatchesCreated("STANDARD", 2)
	m.IncSeekerOutcome("matched")
	m.ObserveFormation("TRIANGLE", "success", time.Millisecond)
	m.ObserveJob("succeeded", time.Millisecond)
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("nil write: %v", err)
	}
}

func TestWritePrometheusExposesSeries(t *testing.T) {
	m := New()
	m.IncMatchesCreated("STANDARD", 2)
	m.IncMatchesCreated("TRIANGLE", 3)
	m.IncSeekerOutcome("")
	m.ObserveSweep("full", "success", 120*time.Millisecond)
	m.IncAggregateConflict("match.form_standard")

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`hs_matches_created_total{type="STANDARD"} 2.000000`,
		`hs_matches_created_total{type="TRIANGLE"} 3.000000`,
		`hs_seekers_processed_total{outcome="unknown"} 1.000000`,
		`hs_sweep_duration_seconds_count{kind="full",status="success"} 1`,
		`hs_aggregate_conflicts_total{operation="match.form_standard"} 1.000000`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestCollectQueueDepth(t *testing.T) {
	m := New()
	count := func(context.Context) (map[string]int64, error) {
		return map[string]int64{"queued": 4, "dead": 1}, nil
	}
	m.collectQueueDepth(context.Background(), nil, count, []string{"queued", "running", "dead"})

	var buf bytes.Buffer
	_ = m.WritePrometheus(&buf)
	out := buf.String()
	for _, want := range []string{
		`hs_match_job_queue_depth{status="queued"} 4.000000`,
		`hs_match_job_queue_depth{status="running"} 0.000000`,
		`hs_match_job_queue_depth{status="dead"} 1.000000`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	failing := func(context.Context) (map[string]int64, error) { return nil, errors.New("down") }
	m.collectQueueDepth(context.Background(), nil, failing, []string{"queued"})
}
