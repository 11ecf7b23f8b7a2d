package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/homeswap-backend/internal/matching"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

// SweepRunner is the periodic side of the engine.
type SweepRunner interface {
	EnqueueEligibleSeekers(ctx context.Context) (matching.EnqueueResult, error)
	RunMaintenance(ctx context.Context) (matching.MaintenanceResult, error)
}

// Scheduler drives the enqueue and maintenance loops in-process. It is the
// fallback when no Temporal frontend is configured.
type Scheduler struct {
	log    *logger.Logger
	runner SweepRunner
	cfg    Config
	wg     sync.WaitGroup
}

func NewScheduler(baseLog *logger.Logger, runner SweepRunner, cfg Config) *Scheduler {
	return &Scheduler{
		log:    baseLog.With("component", "SweepScheduler"),
		runner: runner,
		cfg:    cfg.normalized(),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.cfg.EnqueueInterval > 0 {
		s.every(ctx, "enqueue", s.cfg.EnqueueInterval, s.EnqueueOnce)
	} else {
		s.log.Info("enqueue loop disabled")
	}
	if s.cfg.MaintenanceInterval > 0 {
		s.every(ctx, "maintenance", s.cfg.MaintenanceInterval, s.MaintainOnce)
	} else {
		s.log.Info("maintenance loop disabled")
	}
}

func (s *Scheduler) Wait() { s.wg.Wait() }

// every runs fn immediately and then on each tick until ctx is done.
func (s *Scheduler) every(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("scheduled run failed", "loop", name, "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *Scheduler) EnqueueOnce(ctx context.Context) error {
	_, err := s.runner.EnqueueEligibleSeekers(ctx)
	return err
}

func (s *Scheduler) MaintainOnce(ctx context.Context) error {
	_, err := s.runner.RunMaintenance(ctx)
	return err
}
