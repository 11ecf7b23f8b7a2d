package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/homeswap-backend/internal/data/repos/testutil"
	"github.com/yungbote/homeswap-backend/internal/matching"
)

type fakeRunner struct {
	enqueues     atomic.Int32
	maintenances atomic.Int32
	enqueued     chan struct{}
	failEnqueue  bool
}

func (r *fakeRunner) EnqueueEligibleSeekers(context.Context) (matching.EnqueueResult, error) {
	r.enqueues.Add(1)
	select {
	case r.enqueued <- struct{}{}:
	default:
	}
	if r.failEnqueue {
		return matching.EnqueueResult{}, errors.New("db down")
	}
	return matching.EnqueueResult{Count: 1}, nil
}

func (r *fakeRunner) RunMaintenance(context.Context) (matching.MaintenanceResult, error) {
	r.maintenances.Add(1)
	return matching.MaintenanceResult{}, nil
}

func TestSchedulerRunsEnabledLoopsOnly(t *testing.T) {
	runner := &fakeRunner{enqueued: make(chan struct{}, 1), failEnqueue: true}
	s := NewScheduler(testutil.Logger(t), runner, Config{
		EnqueueInterval:     5 * time.Millisecond,
		MaintenanceInterval: 0,
	})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	// A failing run must not stop the loop.
	for i := 0; i < 3; i++ {
		select {
		case <-runner.enqueued:
		case <-time.After(5 * time.Second):
			t.Fatalf("enqueue loop stalled after %d runs", runner.enqueues.Load())
		}
	}
	cancel()
	s.Wait()

	if runner.maintenances.Load() != 0 {
		t.Fatalf("disabled maintenance loop ran %d times", runner.maintenances.Load())
	}
}

func TestSchedulerRunsImmediately(t *testing.T) {
	runner := &fakeRunner{enqueued: make(chan struct{}, 1)}
	s := NewScheduler(testutil.Logger(t), runner, Config{
		EnqueueInterval:     time.Hour,
		MaintenanceInterval: time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	select {
	case <-runner.enqueued:
	case <-time.After(5 * time.Second):
		t.Fatalf("first enqueue must not wait for the interval")
	}
	cancel()
	s.Wait()
	if runner.maintenances.Load() != 1 {
		t.Fatalf("want one maintenance run, got %d", runner.maintenances.Load())
	}
}
