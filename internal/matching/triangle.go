package matching

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/homeswap-backend/internal/data/aggregates"
	types "github.com/yungbote/homeswap-backend/internal/domain"
	domainagg "github.com/yungbote/homeswap-backend/internal/domain/aggregates"
	"github.com/yungbote/homeswap-backend/internal/domain/matches"
	"github.com/yungbote/homeswap-backend/internal/lease"
)

var errTriangleBusy = errors.New("triangle claimed by another worker")

type outEdge struct {
	target *types.Intent
	eval   EdgeEvaluation
}

// findTriangle looks for S→X→Y→S where S→X is one of the seeker's one-way
// edges, X→Y comes from X's own candidates and Y→S closes the cycle. A cycle
// in which any two parties accept each other is skipped: that pair is a
// STANDARD match. It forms the first cycle it can and returns nil when none
// closes.
func (e *Engine) findTriangle(ctx context.Context, runID uuid.UUID, seeker *types.Intent, outgoing []outEdge) (*domainagg.FormationResult, error) {
	fanout := e.cfg.TriangleFanout
	for i, sx := range outgoing {
		if i >= fanout {
			break
		}
		x := sx.target
		ys, err := e.candidatesFor(ctx, x, fanout)
		if err != nil {
			return nil, err
		}
		for _, y := range ys {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if y.ID == seeker.ID || y.UserID == seeker.UserID || y.UserID == x.UserID {
				continue
			}
			xy := e.eval.EvaluateEdge(x, y)
			e.tracer.Edge(runID, x.ID, y.ID, DirectionCycle, xy)
			if !xy.Passed {
				continue
			}
			if e.mutualEdge(runID, y, x) {
				continue
			}
			closing := e.eval.EvaluateEdge(y, seeker)
			e.tracer.Edge(runID, y.ID, seeker.ID, DirectionCycle, closing)
			if !closing.Passed {
				continue
			}
			if e.mutualEdge(runID, seeker, y) {
				continue
			}

			out, err := e.formTriangle(ctx, runID, [3]*types.Intent{seeker, x, y}, []EdgeEvaluation{sx.eval, xy, closing})
			switch {
			case err == nil:
				return &out, nil
			case errors.Is(err, errTriangleBusy), domainagg.IsCode(err, domainagg.CodeConflict):
				e.log.Debug("triangle unavailable; trying next", "run_id", runID, "seeker_intent_id", seeker.ID, "error", err)
			case domainagg.IsCode(err, domainagg.CodeInvariantViolation), domainagg.IsCode(err, domainagg.CodeValidation):
				e.log.Warn("triangle rejected; seeker left unmatched this sweep", "run_id", runID, "seeker_intent_id", seeker.ID, "error", err)
				return nil, nil
			default:
				return nil, err
			}
		}
	}
	return nil, nil
}

// mutualEdge reports whether from accepts to's home, given that to already
// accepts from's. The check is traced as the reverse direction of the cycle
// edge to→from.
func (e *Engine) mutualEdge(runID uuid.UUID, from, to *types.Intent) bool {
	ev := e.eval.EvaluateEdge(from, to)
	e.tracer.Edge(runID, to.ID, from.ID, DirectionReverse, ev)
	return ev.Passed
}

// formTriangle forms A→B→C→A under a leased claim on the cycle's canonical
// key, so two workers never expand the same cycle at once.
func (e *Engine) formTriangle(ctx context.Context, runID uuid.UUID, parties [3]*types.Intent, edges []EdgeEvaluation) (domainagg.FormationResult, error) {
	ids := [3]uuid.UUID{parties[0].ID, parties[1].ID, parties[2].ID}
	key := lease.TriangleKey(aggregates.CanonicalKey(ids[:]...))
	ok, err := e.claimer.TryClaim(ctx, key, e.cfg.ClaimLease)
	if err != nil {
		return domainagg.FormationResult{}, err
	}
	if !ok {
		return domainagg.FormationResult{}, errTriangleBusy
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.claimer.Release(rctx, key); err != nil {
			e.log.Warn("triangle claim release failed", "key", key, "error", err)
		}
	}()

	summaries := make([]matches.EdgeSummary, 0, len(edges))
	for _, ev := range edges {
		summaries = append(summaries, edgeSummary(ev))
	}
	start := time.Now()
	out, err := e.formation.FormTriangle(ctx, domainagg.TriangleInput{SweepID: runID, IntentIDs: ids, Edges: summaries})
	e.metrics.ObserveFormation(string(types.MatchTypeTriangle), formationStatus(err), time.Since(start))
	if err != nil {
		return out, err
	}
	e.metrics.IncMatchesCreated(string(types.MatchTypeTriangle), len(out.Matches))
	e.log.Info("triangle match formed",
		"run_id", runID,
		"group_id", out.GroupID,
		"a_intent_id", ids[0],
		"b_intent_id", ids[1],
		"c_intent_id", ids[2],
	)
	return out, nil
}
