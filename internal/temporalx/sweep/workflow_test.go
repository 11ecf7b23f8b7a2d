package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/homeswap-backend/internal/matching"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

type countingRunner struct {
	enqueues     atomic.Int32
	maintenances atomic.Int32
	enqueueErr   error
}

func (r *countingRunner) EnqueueEligibleSeekers(context.Context) (matching.EnqueueResult, error) {
	r.enqueues.Add(1)
	if r.enqueueErr != nil {
		return matching.EnqueueResult{}, r.enqueueErr
	}
	return matching.EnqueueResult{Count: 1}, nil
}

func (r *countingRunner) RunMaintenance(context.Context) (matching.MaintenanceResult, error) {
	r.maintenances.Add(1)
	return matching.MaintenanceResult{}, nil
}

func newEnv(t *testing.T, runner Runner) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	acts := &Activities{Log: logger.NewNop(), Runner: runner}
	env.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	env.RegisterActivityWithOptions(acts.Enqueue, activity.RegisterOptions{Name: ActivityEnqueue})
	env.RegisterActivityWithOptions(acts.Maintenance, activity.RegisterOptions{Name: ActivityMaintenance})
	return env
}

func TestOneShotRunsEnqueueAndMaintenance(t *testing.T) {
	runner := &countingRunner{}
	env := newEnv(t, runner)
	env.ExecuteWorkflow(Workflow, Params{MaintenanceEvery: 1})

	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	if runner.enqueues.Load() != 1 || runner.maintenances.Load() != 1 {
		t.Fatalf("want 1/1 runs, got enqueue=%d maintenance=%d", runner.enqueues.Load(), runner.maintenances.Load())
	}
}

func TestOneShotReportsActivityError(t *testing.T) {
	env := newEnv(t, &countingRunner{enqueueErr: errors.New("db down")})
	env.ExecuteWorkflow(Workflow, Params{})

	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	if env.GetWorkflowError() == nil {
		t.Fatalf("one-shot run must surface the enqueue failure")
	}
}

func TestLoopContinuesAsNewAfterMaxTicks(t *testing.T) {
	runner := &countingRunner{}
	env := newEnv(t, runner)
	env.ExecuteWorkflow(Workflow, Params{Interval: time.Minute, MaintenanceEvery: 2, MaxTicks: 4})

	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	var can *workflow.ContinueAsNewError
	if err := env.GetWorkflowError(); !errors.As(err, &can) {
		t.Fatalf("want continue-as-new, got %v", err)
	}
	if runner.enqueues.Load() != 4 {
		t.Fatalf("want 4 enqueue ticks, got %d", runner.enqueues.Load())
	}
	if runner.maintenances.Load() != 2 {
		t.Fatalf("want maintenance on ticks 2 and 4, got %d", runner.maintenances.Load())
	}
}

func TestLoopSurvivesFailingTicks(t *testing.T) {
	runner := &countingRunner{enqueueErr: errors.New("db down")}
	env := newEnv(t, runner)
	env.ExecuteWorkflow(Workflow, Params{Interval: time.Minute, MaxTicks: 2})

	var can *workflow.ContinueAsNewError
	if err := env.GetWorkflowError(); !errors.As(err, &can) {
		t.Fatalf("failed ticks must not end the loop, got %v", err)
	}
	if runner.enqueues.Load() < 2 {
		t.Fatalf("want an enqueue attempt per tick, got %d", runner.enqueues.Load())
	}
}

func TestActivitiesRequireRunner(t *testing.T) {
	var a *Activities
	if _, err := a.Enqueue(context.Background()); err == nil {
		t.Fatalf("nil activities must fail")
	}
	if _, err := (&Activities{}).Maintenance(context.Background()); err == nil {
		t.Fatalf("activities without a runner must fail")
	}
}
