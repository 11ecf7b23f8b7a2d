package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/homeswap-backend/internal/data/repos"
	types "github.com/yungbote/homeswap-backend/internal/domain"
	domainagg "github.com/yungbote/homeswap-backend/internal/domain/aggregates"
	"github.com/yungbote/homeswap-backend/internal/matching"
	"github.com/yungbote/homeswap-backend/internal/observability"
	"github.com/yungbote/homeswap-backend/internal/platform/dbctx"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

// SeekerProcessor evaluates one queued seeker. *matching.Engine implements it.
type SeekerProcessor interface {
	ProcessQueuedSeeker(ctx context.Context, sweepID, seekerIntentID uuid.UUID) (matching.WorkerResult, error)
}

// Final job statuses reported to metrics and logs.
const (
	statusSucceeded = "succeeded"
	statusSkipped   = "skipped"
	statusRetry     = "retry"
	statusDead      = "dead"
)

type Worker struct {
	log     *logger.Logger
	repo    repos.MatchJobRepo
	proc    SeekerProcessor
	cfg     Config
	metrics *observability.Metrics
	now     func() time.Time

	wg sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, repo repos.MatchJobRepo, proc SeekerProcessor, cfg Config, metrics *observability.Metrics) *Worker {
	return &Worker{
		log:     baseLog.With("component", "MatchJobWorker"),
		repo:    repo,
		proc:    proc,
		cfg:     cfg.normalized(),
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start launches Concurrency polling goroutines. They stop when ctx is done;
// Wait blocks until the last in-flight job has been finalized.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("match job worker starting", "worker_id", w.cfg.WorkerID, "concurrency", w.cfg.Concurrency)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := fmt.Sprintf("%s-%d", w.cfg.WorkerID, i)
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID string) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain the queue before waiting for the next tick.
			for ctx.Err() == nil {
				ran, err := w.RunOnce(ctx, workerID)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
					break
				}
				if !ran {
					break
				}
			}
		}
	}
}

// RunOnce claims and finalizes at most one job. It reports whether a job was
// claimed; the error is only set when claiming itself failed.
func (w *Worker) RunOnce(ctx context.Context, workerID string) (bool, error) {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, workerID, w.cfg.MaxAttempts, w.cfg.StaleRunning)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.handle(ctx, workerID, job)
	return true, nil
}

func (w *Worker) handle(ctx context.Context, workerID string, job *types.MatchJob) {
	start := time.Now()
	log := w.log.With("job_id", job.ID, "run_id", job.SweepID, "seeker_intent_id", job.IntentID, "attempt", job.Attempts)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		w.heartbeat(hbCtx, log, job.ID, workerID)
	}()

	res, err := w.process(ctx, log, job)
	stopHeartbeat()
	<-hbDone

	// Finalize even when shutdown cancelled ctx so the row does not sit in
	// running until the stale reclaim picks it up.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	status, ferr := w.finalize(dbctx.Context{Ctx: fctx}, job, res, err)
	if ferr != nil {
		log.Error("finalizing match job failed", "status", status, "error", ferr)
	}
	w.metrics.ObserveJob(status, time.Since(start))

	switch status {
	case statusSucceeded, statusSkipped:
		log.Debug("match job finished", "status", status, "outcome", res.Outcome)
	case statusRetry:
		log.Warn("match job failed, will retry", "outcome", res.Outcome, "error", err)
	default:
		log.Error("match job dead", "outcome", res.Outcome, "error", err)
	}
}

func (w *Worker) process(ctx context.Context, log *logger.Logger, job *types.MatchJob) (res matching.WorkerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("match job panic", "panic", r)
			res.Outcome = matching.OutcomeFailed
			err = errFromRecover(r)
		}
	}()
	return w.proc.ProcessQueuedSeeker(ctx, job.SweepID, job.IntentID)
}

func (w *Worker) heartbeat(ctx context.Context, log *logger.Logger, jobID uuid.UUID, workerID string) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.repo.Heartbeat(dbctx.Context{Ctx: ctx}, jobID, workerID); err != nil && ctx.Err() == nil {
				log.Warn("match job heartbeat failed", "error", err)
			}
		}
	}
}

func (w *Worker) finalize(dbc dbctx.Context, job *types.MatchJob, res matching.WorkerResult, err error) (string, error) {
	if err == nil {
		return statusSucceeded, w.repo.MarkSucceeded(dbc, job.ID, resultJSON(res))
	}
	switch domainagg.DispositionOf(err) {
	case domainagg.DispositionSkip:
		return statusSkipped, w.repo.MarkSucceeded(dbc, job.ID, resultJSON(res))
	case domainagg.DispositionDrop:
		return statusDead, w.repo.MarkDead(dbc, job.ID, err.Error())
	default:
		if job.Attempts >= w.cfg.MaxAttempts {
			return statusDead, w.repo.MarkDead(dbc, job.ID, err.Error())
		}
		next := w.now().Add(w.cfg.Backoff(job.Attempts))
		return statusRetry, w.repo.MarkFailed(dbc, job.ID, err.Error(), next)
	}
}

func resultJSON(res matching.WorkerResult) datatypes.JSON {
	b, err := json.Marshal(res)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
