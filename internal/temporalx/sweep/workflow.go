package sweep

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/homeswap-backend/internal/matching"
)

const continueHistoryLimit = 15000

// Workflow enqueues eligible seekers every Interval and runs maintenance on
// every MaintenanceEvery-th tick. A failed tick is logged and the loop goes
// on; only a one-shot run reports activity errors to the caller.
func Workflow(ctx workflow.Context, p Params) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})
	log := workflow.GetLogger(ctx)
	oneShot := p.Interval <= 0

	for ticks := 1; ; ticks++ {
		p.Tick++

		var enq matching.EnqueueResult
		if err := workflow.ExecuteActivity(ctx, ActivityEnqueue).Get(ctx, &enq); err != nil {
			if oneShot {
				return err
			}
			log.Warn("enqueue tick failed", "tick", p.Tick, "error", err)
		} else if enq.Count > 0 {
			log.Info("enqueue tick", "tick", p.Tick, "run_id", enq.SweepID.String(), "count", enq.Count)
		}

		if p.MaintenanceEvery > 0 && p.Tick%p.MaintenanceEvery == 0 {
			var mr matching.MaintenanceResult
			if err := workflow.ExecuteActivity(ctx, ActivityMaintenance).Get(ctx, &mr); err != nil {
				if oneShot {
					return err
				}
				log.Warn("maintenance tick failed", "tick", p.Tick, "error", err)
			}
		}

		if oneShot {
			return nil
		}
		if err := workflow.Sleep(ctx, p.Interval); err != nil {
			return err
		}
		if shouldContinueAsNew(ctx, ticks, p.MaxTicks) {
			return workflow.NewContinueAsNewError(ctx, Workflow, p)
		}
	}
}

func shouldContinueAsNew(ctx workflow.Context, ticks, maxTicks int) bool {
	if maxTicks > 0 && ticks >= maxTicks {
		return true
	}
	info := workflow.GetInfo(ctx)
	return info != nil && info.GetCurrentHistoryLength() >= continueHistoryLimit
}
