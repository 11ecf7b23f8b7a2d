package matching

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/homeswap-backend/internal/data/repos"
	types "github.com/yungbote/homeswap-backend/internal/domain"
	"github.com/yungbote/homeswap-backend/internal/observability"
	"github.com/yungbote/homeswap-backend/internal/platform/dbctx"
)

type EnqueueResult struct {
	SweepID  uuid.UUID `json:"sweepId"`
	Eligible int       `json:"eligible"`
	Count    int       `json:"count"`
}

// EnqueueEligibleSeekers scans for seekers due for evaluation and writes one
// queued job per seeker, tagged with a new sweep id. It takes no locks.
func (e *Engine) EnqueueEligibleSeekers(ctx context.Context) (EnqueueResult, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "matching.enqueue")
	defer span.End()

	now := e.now()
	res := EnqueueResult{SweepID: uuid.New()}
	sweptBefore := now.Add(-e.cfg.ResweepInterval)
	dbc := dbctx.Context{Ctx: ctx}
	ids, err := e.repos.Intent.ListEligibleSeekers(dbc, repos.SeekerFilter{
		Now:         now,
		SweptBefore: &sweptBefore,
		SkipQueued:  true,
		Limit:       e.cfg.EnqueueBatch,
	})
	if err != nil {
		e.metrics.ObserveSweep("enqueue", "failure", time.Since(start))
		return res, err
	}
	res.Eligible = len(ids)
	n, err := e.repos.MatchJob.Enqueue(dbc, res.SweepID, ids)
	if err != nil {
		e.metrics.ObserveSweep("enqueue", "failure", time.Since(start))
		return res, err
	}
	res.Count = n
	span.SetAttributes(attribute.String("run_id", res.SweepID.String()), attribute.Int("count", n))
	e.metrics.ObserveSweep("enqueue", "success", time.Since(start))
	if n > 0 {
		e.log.Info("seekers enqueued", "run_id", res.SweepID, "eligible", res.Eligible, "count", n)
	}
	return res, nil
}

type SweepSummary struct {
	RunID                uuid.UUID     `json:"runId"`
	SeekersProcessed     int           `json:"seekersProcessed"`
	SeekersSkipped       int           `json:"seekersSkipped"`
	SeekersFailed        int           `json:"seekersFailed"`
	CandidatesConsidered int           `json:"candidatesConsidered"`
	StandardRows         int           `json:"standardRows"`
	StandardPairs        int           `json:"standardPairs"`
	TriangleRows         int           `json:"triangleRows"`
	Triangles            int           `json:"triangles"`
	RemovedFromFlow      int           `json:"removedFromFlow"`
	Duration             time.Duration `json:"durationNs"`

	removed map[uuid.UUID]struct{}
}

func (s *SweepSummary) add(r WorkerResult, err error) {
	switch {
	case err != nil && r.Outcome != OutcomeBusy:
		s.SeekersFailed++
	case r.Outcome == OutcomeSkipped, r.Outcome == OutcomeBusy:
		s.SeekersSkipped++
	default:
		s.SeekersProcessed++
	}
	s.CandidatesConsidered += r.CandidatesConsidered
	s.StandardRows += r.StandardRows
	s.StandardPairs += r.StandardPairs
	s.TriangleRows += r.TriangleRows
	if r.TriangleGroupID != nil {
		s.Triangles++
	}
	if s.removed == nil {
		s.removed = map[uuid.UUID]struct{}{}
	}
	for _, id := range r.RemovedFromFlow {
		s.removed[id] = struct{}{}
	}
	s.RemovedFromFlow = len(s.removed)
}

// RunMatchingSweep evaluates every eligible seeker in-process under one run
// id. STANDARD matches are formed for all seekers before any triangle is
// looked for, so a mutual pair is never split into a cycle. A failing seeker
// is counted and logged; it never stops the others.
func (e *Engine) RunMatchingSweep(ctx context.Context) (SweepSummary, error) {
	start := time.Now()
	summary := SweepSummary{RunID: uuid.New()}
	ctx, span := observability.StartSpan(ctx, "matching.sweep", attribute.String("run_id", summary.RunID.String()))
	defer span.End()

	ids, err := e.repos.Intent.ListEligibleSeekers(dbctx.Context{Ctx: ctx}, repos.SeekerFilter{Now: e.now()})
	if err != nil {
		e.metrics.ObserveSweep("sweep", "failure", time.Since(start))
		return summary, err
	}
	e.log.Info("matching sweep started", "run_id", summary.RunID, "seekers", len(ids))

	results := make([]WorkerResult, len(ids))
	errs := make([]error, len(ids))
	e.sweepPass(ctx, summary.RunID, ids, passStandard, func(i int, r WorkerResult, err error) {
		results[i], errs[i] = r, err
	})

	if e.cfg.TriangleEnabled && ctx.Err() == nil {
		var pending []uuid.UUID
		var at []int
		for i, r := range results {
			if errs[i] == nil && r.Outcome == OutcomeUnmatched && !r.halted {
				pending = append(pending, ids[i])
				at = append(at, i)
			}
		}
		e.sweepPass(ctx, summary.RunID, pending, passTriangle, func(i int, r WorkerResult, err error) {
			results[at[i]], errs[at[i]] = mergeTrianglePass(results[at[i]], r, err)
		})
	}

	for i, r := range results {
		if r.Outcome == "" && errs[i] == nil {
			// never started: the sweep was cancelled first
			continue
		}
		if errs[i] != nil {
			e.log.Warn("seeker failed", "run_id", summary.RunID, "seeker_intent_id", ids[i], "outcome", r.Outcome, "error", errs[i])
		}
		e.metrics.IncSeekerOutcome(string(r.Outcome))
		summary.add(r, errs[i])
	}

	summary.Duration = time.Since(start)
	status := "success"
	if ctx.Err() != nil {
		status = "cancelled"
	}
	e.metrics.ObserveSweep("sweep", status, summary.Duration)
	e.log.Info("matching sweep finished",
		"run_id", summary.RunID,
		"seekers_processed", summary.SeekersProcessed,
		"seekers_skipped", summary.SeekersSkipped,
		"seekers_failed", summary.SeekersFailed,
		"candidates_considered", summary.CandidatesConsidered,
		"standard_rows", summary.StandardRows,
		"standard_pairs", summary.StandardPairs,
		"triangle_rows", summary.TriangleRows,
		"triangles", summary.Triangles,
		"removed_from_flow", summary.RemovedFromFlow,
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary, ctx.Err()
}

// sweepPass runs pass for every id on a bounded errgroup. done is called
// with the id's index and may assume it is never called concurrently.
func (e *Engine) sweepPass(ctx context.Context, runID uuid.UUID, ids []uuid.UUID, pass seekerPass, done func(int, WorkerResult, error)) {
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.SweepConcurrency)
	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r, err := e.runSeeker(ctx, runID, id, pass)
			mu.Lock()
			done(i, r, err)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

// mergeTrianglePass folds a seeker's triangle pass into its STANDARD pass
// result. A seeker that became ineligible or busy in between keeps its
// first result.
func mergeTrianglePass(std, tri WorkerResult, err error) (WorkerResult, error) {
	out := std
	out.Duration += tri.Duration
	switch {
	case err != nil && tri.Outcome != OutcomeBusy:
		out.Outcome = OutcomeFailed
		return out, err
	case err != nil:
		return out, nil
	}
	if tri.TriangleGroupID == nil {
		return out, nil
	}
	out.Outcome = OutcomeMatched
	out.TriangleGroupID = tri.TriangleGroupID
	out.TriangleRows = tri.TriangleRows
	out.MatchIDs = append(out.MatchIDs, tri.MatchIDs...)
	out.RemovedFromFlow = appendUnique(out.RemovedFromFlow, tri.RemovedFromFlow...)
	return out, nil
}

type MaintenanceResult struct {
	Archived     int   `json:"archived"`
	ClaimsPurged int64 `json:"claimsPurged"`
	JobsPurged   int64 `json:"jobsPurged"`
}

type expiredPurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// RunMaintenance archives stale NEW and NOT_INTERESTED matches, drops
// expired claims and purges old finished jobs.
func (e *Engine) RunMaintenance(ctx context.Context) (MaintenanceResult, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "matching.maintenance")
	defer span.End()

	var res MaintenanceResult
	now := e.now()
	dbc := dbctx.Context{Ctx: ctx}

	archived, err := e.repos.Match.ArchiveStale(dbc, now.Add(-e.cfg.ArchiveAfter),
		[]types.MatchStatus{types.MatchStatusNew, types.MatchStatusNotInterested}, now)
	if err != nil {
		e.metrics.ObserveSweep("maintenance", "failure", time.Since(start))
		return res, err
	}
	res.Archived = len(archived)
	if len(archived) > 0 {
		e.notifier.OnMatchesArchived(ctx, archived)
	}

	if p, ok := e.claimer.(expiredPurger); ok {
		if res.ClaimsPurged, err = p.PurgeExpired(ctx, now); err != nil {
			e.metrics.ObserveSweep("maintenance", "failure", time.Since(start))
			return res, err
		}
	}
	if e.cfg.JobRetention > 0 {
		if res.JobsPurged, err = e.repos.MatchJob.PurgeFinished(dbc, now.Add(-e.cfg.JobRetention)); err != nil {
			e.metrics.ObserveSweep("maintenance", "failure", time.Since(start))
			return res, err
		}
	}
	e.metrics.ObserveSweep("maintenance", "success", time.Since(start))
	e.log.Info("maintenance finished", "archived", res.Archived, "claims_purged", res.ClaimsPurged, "jobs_purged", res.JobsPurged)
	return res, nil
}
