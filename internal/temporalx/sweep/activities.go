package sweep

import (
	"context"
	"fmt"

	"github.com/yungbote/homeswap-backend/internal/matching"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

// Runner is the part of the matching engine the scheduled sweep drives.
type Runner interface {
	EnqueueEligibleSeekers(ctx context.Context) (matching.EnqueueResult, error)
	RunMaintenance(ctx context.Context) (matching.MaintenanceResult, error)
}

type Activities struct {
	Log    *logger.Logger
	Runner Runner
}

func (a *Activities) Enqueue(ctx context.Context) (matching.EnqueueResult, error) {
	if a == nil || a.Runner == nil {
		return matching.EnqueueResult{}, fmt.Errorf("sweep activities not configured")
	}
	res, err := a.Runner.EnqueueEligibleSeekers(ctx)
	if err != nil && a.Log != nil {
		a.Log.Warn("enqueue activity failed", "error", err)
	}
	return res, err
}

func (a *Activities) Maintenance(ctx context.Context) (matching.MaintenanceResult, error) {
	if a == nil || a.Runner == nil {
		return matching.MaintenanceResult{}, fmt.Errorf("sweep activities not configured")
	}
	res, err := a.Runner.RunMaintenance(ctx)
	if err != nil && a.Log != nil {
		a.Log.Warn("maintenance activity failed", "error", err)
	}
	return res, err
}
