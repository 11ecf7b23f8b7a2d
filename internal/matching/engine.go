package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/homeswap-backend/internal/data/repos"
	types "github.com/yungbote/homeswap-backend/internal/domain"
	domainagg "github.com/yungbote/homeswap-backend/internal/domain/aggregates"
	"github.com/yungbote/homeswap-backend/internal/domain/matches"
	"github.com/yungbote/homeswap-backend/internal/lease"
	"github.com/yungbote/homeswap-backend/internal/observability"
	"github.com/yungbote/homeswap-backend/internal/platform/dbctx"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
	"github.com/yungbote/homeswap-backend/internal/services"
)

type Deps struct {
	Log       *logger.Logger
	Repos     repos.Repos
	Formation domainagg.MatchFormationAggregate
	Claimer   lease.Claimer
	// Notifier receives archival signals from maintenance. Creation signals
	// are sent by Formation.
	Notifier services.MatchNotifier
	Metrics  *observability.Metrics
	Sink     StepSink
	Now      func() time.Time
}

// Engine finds and forms STANDARD and TRIANGLE matches.
type Engine struct {
	cfg       Config
	log       *logger.Logger
	repos     repos.Repos
	formation domainagg.MatchFormationAggregate
	claimer   lease.Claimer
	notifier  services.MatchNotifier
	metrics   *observability.Metrics
	tracer    *Tracer
	eval      Evaluator
	now       func() time.Time
}

func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Repos.Intent == nil || deps.Repos.Match == nil || deps.Repos.MatchJob == nil {
		return nil, fmt.Errorf("intent, match and match job repos required")
	}
	if deps.Formation == nil {
		return nil, fmt.Errorf("match formation aggregate required")
	}
	contract := deps.Formation.Contract()
	if err := contract.Validate(); err != nil {
		return nil, err
	}
	// Seekers are processed outside any transaction, so formation must own its own.
	if !contract.RequiresAggregateOwnedTx() {
		return nil, fmt.Errorf("%s must own its write transaction", contract.Name)
	}
	if deps.Claimer == nil {
		return nil, fmt.Errorf("claimer required")
	}
	cfg = cfg.normalized()
	log := deps.Log.With("component", "MatchingEngine")
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = services.NewNoopMatchNotifier()
	}
	tracer := NewTracer(cfg, log, deps.Sink)
	tracer.now = now
	return &Engine{
		cfg:       cfg,
		log:       log,
		repos:     deps.Repos,
		formation: deps.Formation,
		claimer:   deps.Claimer,
		notifier:  notifier,
		metrics:   deps.Metrics,
		tracer:    tracer,
		eval:      Evaluator{DateToleranceDays: cfg.DateToleranceDays},
		now:       now,
	}, nil
}

func (e *Engine) Config() Config { return e.cfg }

type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeUnmatched Outcome = "unmatched"
	// OutcomeSkipped means the seeker was no longer eligible when processed.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeBusy means another worker held the seeker's claim.
	OutcomeBusy   Outcome = "busy"
	OutcomeFailed Outcome = "failed"
)

// Rejection is the first failing step for a candidate, kept so a seeker with
// zero matches can be diagnosed.
type Rejection struct {
	CandidateIntentID uuid.UUID `json:"candidateIntentId"`
	Direction         Direction `json:"direction"`
	Step              Step      `json:"step"`
	Reason            string    `json:"reason"`
}

type WorkerResult struct {
	RunID                uuid.UUID     `json:"runId"`
	SeekerIntentID       uuid.UUID     `json:"seekerIntentId"`
	Outcome              Outcome       `json:"outcome"`
	CandidatesConsidered int           `json:"candidatesConsidered"`
	StandardPairs        int           `json:"standardPairs"`
	StandardRows         int           `json:"standardRows"`
	MatchIDs             []uuid.UUID   `json:"matchIds,omitempty"`
	TriangleGroupID      *uuid.UUID    `json:"triangleGroupId,omitempty"`
	TriangleRows         int           `json:"triangleRows"`
	RemovedFromFlow      []uuid.UUID   `json:"removedFromFlow,omitempty"`
	Rejections           []Rejection   `json:"rejections,omitempty"`
	Duration             time.Duration `json:"durationNs"`

	// halted is set when a STANDARD formation broke an invariant; the
	// seeker is left alone for the rest of the run.
	halted bool
}

// CandidateEvaluation is one row of a read-only preview.
type CandidateEvaluation struct {
	CandidateIntentID uuid.UUID      `json:"candidateIntentId"`
	Candidate         *types.Intent  `json:"-"`
	Evaluation        PairEvaluation `json:"evaluation"`
	Mutual            bool           `json:"mutual"`
}

// FindCandidateMatches evaluates the seeker against its current candidates
// without claiming, locking or writing anything.
func (e *Engine) FindCandidateMatches(ctx context.Context, seekerIntentID uuid.UUID) ([]CandidateEvaluation, error) {
	seeker, err := e.loadSeeker(ctx, seekerIntentID)
	if err != nil {
		return nil, err
	}
	cands, err := e.candidatesFor(ctx, seeker, e.cfg.MaxCandidates)
	if err != nil {
		return nil, err
	}
	out := make([]CandidateEvaluation, 0, len(cands))
	for _, c := range cands {
		pe := e.eval.EvaluatePair(seeker, c)
		out = append(out, CandidateEvaluation{CandidateIntentID: c.ID, Candidate: c, Evaluation: pe, Mutual: pe.Mutual()})
	}
	return out, nil
}

// seekerPass selects which formations a seeker run may attempt.
type seekerPass int

const (
	// passAll forms STANDARD matches and, failing those, a triangle.
	passAll seekerPass = iota
	passStandard
	// passTriangle only looks for a triangle; pairs were settled by a
	// STANDARD pass over every seeker of the run.
	passTriangle
)

// ProcessQueuedSeeker runs one seeker under its leased claim. When another
// worker holds the claim it returns OutcomeBusy with a retryable error.
func (e *Engine) ProcessQueuedSeeker(ctx context.Context, sweepID, seekerIntentID uuid.UUID) (WorkerResult, error) {
	res, err := e.runSeeker(ctx, sweepID, seekerIntentID, passAll)
	e.metrics.IncSeekerOutcome(string(res.Outcome))
	return res, err
}

func (e *Engine) runSeeker(ctx context.Context, sweepID, seekerIntentID uuid.UUID, pass seekerPass) (WorkerResult, error) {
	start := time.Now()
	res := WorkerResult{RunID: sweepID, SeekerIntentID: seekerIntentID}
	ctx, span := observability.StartSpan(ctx, "matching.process_seeker",
		attribute.String("run_id", sweepID.String()),
		attribute.String("seeker_intent_id", seekerIntentID.String()),
	)
	defer span.End()

	err := lease.Hold(ctx, e.claimer, e.log, lease.SeekerKey(seekerIntentID.String()), e.cfg.ClaimLease,
		func(ctx context.Context) error {
			return e.processSeeker(ctx, sweepID, seekerIntentID, pass, &res)
		})
	switch {
	case errors.Is(err, lease.ErrBusy):
		res.Outcome = OutcomeBusy
		err = domainagg.NewError(domainagg.CodeRetryable, "matching.process_seeker", "seeker claimed by another worker", err)
	case errors.Is(err, lease.ErrLost):
		err = domainagg.NewError(domainagg.CodeRetryable, "matching.process_seeker", "seeker claim lost", err)
	}
	if err != nil && res.Outcome != OutcomeBusy {
		res.Outcome = OutcomeFailed
		span.RecordError(err)
	}
	res.Duration = time.Since(start)
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	return res, err
}

func (e *Engine) processSeeker(ctx context.Context, runID, seekerID uuid.UUID, pass seekerPass, res *WorkerResult) error {
	dbc := dbctx.Context{Ctx: ctx}
	seeker, err := e.loadSeeker(ctx, seekerID)
	if err != nil {
		return err
	}
	now := e.now()
	if !seeker.Eligible() || (seeker.RefundCooldownUntil != nil && seeker.RefundCooldownUntil.After(now)) {
		res.Outcome = OutcomeSkipped
		return nil
	}

	cands, err := e.candidatesFor(ctx, seeker, e.cfg.MaxCandidates)
	if err != nil {
		return err
	}
	res.CandidatesConsidered = len(cands)

	// outgoing holds one-way edges only. A mutual candidate belongs to a
	// STANDARD match and never enters a triangle.
	var outgoing []outEdge
	remaining := seeker.TotalMatchesRemaining
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return err
		}
		pe := e.eval.EvaluatePair(seeker, c)
		if pass == passTriangle {
			if !pe.Mutual() && pe.Forward.Passed {
				outgoing = append(outgoing, outEdge{target: c, eval: pe.Forward})
			}
			continue
		}
		e.tracer.Pair(runID, seeker.ID, c.ID, pe)
		if !pe.Mutual() {
			if pe.Forward.Passed {
				outgoing = append(outgoing, outEdge{target: c, eval: pe.Forward})
			}
			res.Rejections = append(res.Rejections, rejectionOf(c.ID, pe))
			continue
		}
		if remaining <= 0 || res.halted {
			continue
		}
		out, err := e.formStandard(ctx, runID, seeker, c, pe)
		switch {
		case err == nil:
			remaining--
			res.StandardPairs++
			res.StandardRows += len(out.Matches)
			res.MatchIDs = append(res.MatchIDs, matchIDs(out.Matches)...)
			res.RemovedFromFlow = appendUnique(res.RemovedFromFlow, out.RemovedFromFlow...)
		case domainagg.IsCode(err, domainagg.CodeConflict):
			e.log.Debug("standard formation lost a race", "run_id", runID, "seeker_intent_id", seeker.ID, "target_intent_id", c.ID, "error", err)
			res.Rejections = append(res.Rejections, Rejection{CandidateIntentID: c.ID, Step: stepFormation, Reason: err.Error()})
		case domainagg.IsCode(err, domainagg.CodeInvariantViolation):
			e.log.Warn("standard formation invariant violated; seeker left unmatched this sweep",
				"run_id", runID, "seeker_intent_id", seeker.ID, "target_intent_id", c.ID, "error", err)
			res.halted = true
		default:
			return err
		}
	}

	if pass != passStandard && res.StandardPairs == 0 && !res.halted && remaining > 0 && e.cfg.TriangleEnabled && len(outgoing) > 0 {
		already, err := e.repos.Match.IntentsWithTypeInSweep(dbc, []uuid.UUID{seeker.ID}, runID, types.MatchTypeStandard)
		if err != nil {
			return err
		}
		if len(already) == 0 {
			out, err := e.findTriangle(ctx, runID, seeker, outgoing)
			if err != nil {
				return err
			}
			if out != nil {
				res.TriangleGroupID = out.GroupID
				res.TriangleRows = len(out.Matches)
				res.MatchIDs = append(res.MatchIDs, matchIDs(out.Matches)...)
				res.RemovedFromFlow = appendUnique(res.RemovedFromFlow, out.RemovedFromFlow...)
			}
		}
	}

	// Stamped after formation: credit consumption bumps updated_at, which
	// the re-sweep filter compares against last_swept_at.
	if err := e.repos.Intent.MarkSwept(dbc, seeker.ID, e.now()); err != nil {
		return err
	}
	if res.StandardRows+res.TriangleRows > 0 {
		res.Outcome = OutcomeMatched
		return nil
	}
	res.Outcome = OutcomeUnmatched
	if len(res.Rejections) > 0 {
		step, n := mostCommonStep(res.Rejections)
		e.log.Info("no match for seeker",
			"run_id", runID,
			"seeker_intent_id", seeker.ID,
			"candidates", len(cands),
			"top_rejection_step", step,
			"top_rejection_count", n,
		)
	}
	return nil
}

func (e *Engine) formStandard(ctx context.Context, runID uuid.UUID, seeker, target *types.Intent, pe PairEvaluation) (domainagg.FormationResult, error) {
	start := time.Now()
	out, err := e.formation.FormStandard(ctx, domainagg.StandardInput{
		SweepID:        runID,
		SeekerIntentID: seeker.ID,
		TargetIntentID: target.ID,
		Edges:          []matches.EdgeSummary{edgeSummary(pe.Forward), edgeSummary(pe.Reverse)},
	})
	e.metrics.ObserveFormation(string(types.MatchTypeStandard), formationStatus(err), time.Since(start))
	if err == nil {
		e.metrics.IncMatchesCreated(string(types.MatchTypeStandard), len(out.Matches))
		e.log.Info("standard match formed", "run_id", runID, "seeker_intent_id", seeker.ID, "target_intent_id", target.ID)
	}
	return out, err
}

func (e *Engine) loadSeeker(ctx context.Context, id uuid.UUID) (*types.Intent, error) {
	in, err := e.repos.Intent.GetByID(dbctx.Context{Ctx: ctx}, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainagg.NewError(domainagg.CodeNotFound, "matching.load_seeker", fmt.Sprintf("intent %s not found", id), err)
	}
	if err != nil {
		return nil, err
	}
	if !in.Complete() {
		return nil, domainagg.NewError(domainagg.CodePreconditionFailed, "matching.load_seeker",
			fmt.Sprintf("intent %s references a missing home or search", id), nil)
	}
	return in, nil
}

func (e *Engine) candidatesFor(ctx context.Context, seeker *types.Intent, limit int) ([]*types.Intent, error) {
	f := repos.CandidateFilter{Limit: limit}
	if e.cfg.GeoPrefilter && !e.cfg.Debug && seeker.Search != nil {
		f.GeohashCells = ZoneCells(seeker.Search.Zones)
	}
	cands, err := e.repos.Intent.SelectCandidates(dbctx.Context{Ctx: ctx}, seeker, f)
	if err != nil {
		return nil, err
	}
	out := cands[:0]
	for _, c := range cands {
		if c.Complete() {
			out = append(out, c)
			continue
		}
		e.log.Warn("skipping incomplete candidate", "seeker_intent_id", seeker.ID, "target_intent_id", c.ID)
	}
	return out, nil
}

// MatchesForIntent lists the intent's matches, dropping rows whose persisted
// type is not a known match type.
func (e *Engine) MatchesForIntent(ctx context.Context, intentID uuid.UUID) ([]*types.Match, error) {
	rows, err := e.repos.Match.ListForIntent(dbctx.Context{Ctx: ctx}, intentID)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Match, 0, len(rows))
	for _, m := range rows {
		if _, err := matches.ParseMatchType(string(m.Type)); err != nil {
			e.log.Error("match has invalid type; excluded", "match_id", m.ID, "type", string(m.Type), "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

const stepFormation Step = "FORMATION"

func rejectionOf(candidateID uuid.UUID, pe PairEvaluation) Rejection {
	dir, ev := DirectionForward, pe.Forward
	if ev.Passed {
		dir, ev = DirectionReverse, pe.Reverse
	}
	r := Rejection{CandidateIntentID: candidateID, Direction: dir}
	if f := ev.Failure(); f != nil {
		r.Step, r.Reason = f.Step, f.Reason
	}
	return r
}

func mostCommonStep(rs []Rejection) (Step, int) {
	counts := map[Step]int{}
	var best Step
	for _, r := range rs {
		counts[r.Step]++
	}
	// Ties go to the earlier step in evaluation order.
	for _, s := range append(append([]Step{}, StepOrder...), stepFormation) {
		if counts[s] > counts[best] {
			best = s
		}
	}
	return best, counts[best]
}

func edgeSummary(ev EdgeEvaluation) matches.EdgeSummary {
	out := matches.EdgeSummary{FromIntentID: ev.FromIntentID, ToIntentID: ev.ToIntentID}
	for _, s := range ev.Steps {
		out.Steps = append(out.Steps, matches.StepSummary{Step: string(s.Step), Passed: s.Passed, Reason: s.Reason, Details: s.Details})
	}
	return out
}

func matchIDs(ms []types.Match) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func appendUnique(dst []uuid.UUID, ids ...uuid.UUID) []uuid.UUID {
	for _, id := range ids {
		dup := false
		for _, have := range dst {
			if have == id {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, id)
		}
	}
	return dst
}

func formationStatus(err error) string {
	if err == nil {
		return "success"
	}
	if code := domainagg.CodeOf(err); code != "" {
		return string(code)
	}
	return "failure"
}
