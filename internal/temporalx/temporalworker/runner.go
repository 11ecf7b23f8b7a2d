package temporalworker

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/homeswap-backend/internal/platform/envutil"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
	"github.com/yungbote/homeswap-backend/internal/temporalx"
	"github.com/yungbote/homeswap-backend/internal/temporalx/sweep"
)

// Runner hosts the sweep workflow and its activities on the configured task
// queue and makes sure one sweep execution is running.
type Runner struct {
	log    *logger.Logger
	tc     temporalsdkclient.Client
	cfg    temporalx.Config
	runner sweep.Runner
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, runner sweep.Runner) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if runner == nil {
		return nil, fmt.Errorf("temporal worker missing sweep runner")
	}
	return &Runner{log: log.With("component", "TemporalSweepWorker"), tc: tc, cfg: cfg, runner: runner}, nil
}

// Start polls the task queue until ctx is done, retrying worker start while
// the frontend or namespace is not ready yet.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("Starting Temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)

	if r.cfg.AutoRegisterNamespace {
		if err := temporalx.EnsureNamespace(ctx, r.cfg, r.log); err != nil {
			r.log.Warn("Temporal namespace ensure failed; worker will retry on start", "namespace", r.cfg.Namespace, "error", err)
		}
	}

	err := temporalx.Retry(ctx, r.log, "worker_start", r.cfg.Retry, nil, func(int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			return nil
		}
		w.Stop()
		var notFound *serviceerror.NamespaceNotFound
		if errors.As(startErr, &notFound) {
			if r.cfg.AutoRegisterNamespace {
				_ = temporalx.EnsureNamespace(ctx, r.cfg, r.log)
			}
			return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
		}
		return startErr
	})
	if err != nil {
		return err
	}
	r.log.Info("Temporal worker started", "task_queue", r.cfg.TaskQueue)
	return nil
}

// EnsureSweep starts the sweep workflow under its fixed id. A running
// execution is left alone.
func (r *Runner) EnsureSweep(ctx context.Context) error {
	params := sweep.Params{
		Interval:         r.cfg.SweepInterval,
		MaintenanceEvery: r.cfg.MaintenanceEvery,
		MaxTicks:         r.cfg.MaxTicks,
	}
	run, err := r.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                       r.cfg.SweepWorkflowID,
		TaskQueue:                r.cfg.TaskQueue,
		WorkflowIDConflictPolicy: enums.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}, sweep.WorkflowName, params)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return nil
		}
		return fmt.Errorf("start sweep workflow: %w", err)
	}
	r.log.Info("sweep workflow running", "workflow_id", run.GetID(), "run_id", run.GetRunID(), "interval", params.Interval.String())
	return nil
}

func (r *Runner) newWorker() worker.Worker {
	concurrency := envutil.Int("TEMPORAL_WORKER_CONCURRENCY", 2)
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	acts := &sweep.Activities{Log: r.log, Runner: r.runner}
	w.RegisterWorkflowWithOptions(sweep.Workflow, workflow.RegisterOptions{Name: sweep.WorkflowName})
	w.RegisterActivityWithOptions(acts.Enqueue, activity.RegisterOptions{Name: sweep.ActivityEnqueue})
	w.RegisterActivityWithOptions(acts.Maintenance, activity.RegisterOptions{Name: sweep.ActivityMaintenance})
	return w
}
