package aggregates

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/homeswap-backend/internal/data/repos"
	types "github.com/yungbote/homeswap-backend/internal/domain"
	domainagg "github.com/yungbote/homeswap-backend/internal/domain/aggregates"
	"github.com/yungbote/homeswap-backend/internal/domain/matches"
	"github.com/yungbote/homeswap-backend/internal/platform/dbctx"
)

const (
	opFormStandard = "match_formation.form_standard"
	opFormTriangle = "match_formation.form_triangle"

	triangleLockNamespace = "triangle"
)

// CreditConsumer is the slice of the credit ledger formation needs.
type CreditConsumer interface {
	Consume(dbc dbctx.Context, intentID uuid.UUID, n int) error
}

// CreatedNotifier receives one signal per committed match row.
type CreatedNotifier interface {
	OnMatchCreated(ctx context.Context, matchID uuid.UUID)
}

type MatchFormationDeps struct {
	Base     BaseDeps
	Intents  repos.IntentRepo
	Matches  repos.MatchRepo
	Credits  CreditConsumer
	Notifier CreatedNotifier
	// LockTimeout bounds row-lock waits inside the transaction (Postgres).
	LockTimeout time.Duration
	Now         func() time.Time
}

type matchFormationAggregate struct {
	deps MatchFormationDeps
}

func NewMatchFormationAggregate(deps MatchFormationDeps) domainagg.MatchFormationAggregate {
	deps.Base = deps.Base.withDefaults()
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &matchFormationAggregate{deps: deps}
}

func (a *matchFormationAggregate) Contract() domainagg.Contract {
	return domainagg.Contract{
		Name:              "match_formation",
		WriteTxOwnership:  domainagg.WriteTxOwnedByAggregate,
		LockOrder:         domainagg.LockOrderIntentIDAsc,
		NotifyAfterCommit: true,
		Notes:             "re-checks eligibility under lock and consumes one credit per row",
	}
}

func (a *matchFormationAggregate) FormStandard(ctx context.Context, in domainagg.StandardInput) (domainagg.FormationResult, error) {
	ids := []uuid.UUID{in.SeekerIntentID, in.TargetIntentID}
	if err := requireDistinct(ids); err != nil {
		return domainagg.FormationResult{}, MapError(opFormStandard, err)
	}
	if in.SweepID == uuid.Nil {
		return domainagg.FormationResult{}, MapError(opFormStandard, ValidationError("sweep id is required"))
	}

	var out domainagg.FormationResult
	err := executeWrite(ctx, a.deps.Base, opFormStandard, func(dbc dbctx.Context) error {
		out = domainagg.FormationResult{}
		locked, err := a.lockEligible(dbc, ids)
		if err != nil {
			return err
		}
		graph, removed, err := a.loadAndConsume(dbc, ids, locked)
		if err != nil {
			return err
		}
		seeker, target := graph[in.SeekerIntentID], graph[in.TargetIntentID]
		now := a.deps.Now()

		rows := make([]*types.Match, 0, 2)
		for _, pair := range [][2]*types.Intent{{seeker, target}, {target, seeker}} {
			snap, err := matches.EncodeSnapshot(matches.StandardSnapshot{
				CapturedAt:     now,
				SeekerIntentID: pair[0].ID,
				TargetIntentID: pair[1].ID,
				SeekerSearch:   matches.CaptureSearch(pair[0].Search),
				SeekerHome:     matches.CaptureHome(pair[0].Home),
				TargetSearch:   matches.CaptureSearch(pair[1].Search),
				TargetHome:     matches.CaptureHome(pair[1].Home),
				Edges:          in.Edges,
			})
			if err != nil {
				return err
			}
			rows = append(rows, &types.Match{
				ID:             uuid.New(),
				Status:         types.MatchStatusNew,
				Type:           types.MatchTypeStandard,
				SeekerIntentID: pair[0].ID,
				TargetIntentID: pair[1].ID,
				TargetHomeID:   pair[1].HomeID,
				SweepID:        in.SweepID,
				Snapshot:       snap,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		}
		if _, err := a.deps.Matches.Create(dbc, rows); err != nil {
			return err
		}
		out.Matches = derefMatches(rows)
		out.RemovedFromFlow = removed
		return nil
	})
	if err != nil {
		return domainagg.FormationResult{}, err
	}
	a.notify(ctx, out)
	return out, nil
}

func (a *matchFormationAggregate) FormTriangle(ctx context.Context, in domainagg.TriangleInput) (domainagg.FormationResult, error) {
	ids := in.IntentIDs[:]
	if err := requireDistinct(ids); err != nil {
		return domainagg.FormationResult{}, MapError(opFormTriangle, err)
	}
	if in.SweepID == uuid.Nil {
		return domainagg.FormationResult{}, MapError(opFormTriangle, ValidationError("sweep id is required"))
	}

	var out domainagg.FormationResult
	err := executeWrite(ctx, a.deps.Base, opFormTriangle, func(dbc dbctx.Context) error {
		out = domainagg.FormationResult{}
		if err := AdvisoryXactLock(dbc, triangleLockNamespace, CanonicalKey(ids...)); err != nil {
			return err
		}
		locked, err := a.lockEligible(dbc, ids)
		if err != nil {
			return err
		}
		already, err := a.deps.Matches.IntentsWithTypeInSweep(dbc, ids, in.SweepID, types.MatchTypeStandard)
		if err != nil {
			return err
		}
		if len(already) > 0 {
			return InvariantError(fmt.Sprintf("intent %s already has a STANDARD match in sweep %s", already[0], in.SweepID))
		}
		graph, removed, err := a.loadAndConsume(dbc, ids, locked)
		if err != nil {
			return err
		}
		users := map[uuid.UUID]struct{}{}
		for _, id := range ids {
			users[graph[id].UserID] = struct{}{}
		}
		if len(users) != 3 {
			return ValidationError("triangle parties must belong to three distinct users")
		}

		now := a.deps.Now()
		groupID := uuid.New()
		snap := matches.TriangleSnapshot{
			CapturedAt:   now,
			GroupID:      groupID,
			Participants: map[string]matches.Participant{},
			Searches:     map[string]matches.SearchSnapshot{},
			Homes:        map[string]matches.HomeSnapshot{},
			Edges:        in.Edges,
		}
		for i, label := range []string{"A", "B", "C"} {
			party := graph[ids[i]]
			snap.Participants[label] = matches.CaptureParticipant(party)
			snap.Searches[party.ID.String()] = matches.CaptureSearch(party.Search)
			snap.Homes[party.ID.String()] = matches.CaptureHome(party.Home)
		}
		raw, err := matches.EncodeSnapshot(snap)
		if err != nil {
			return err
		}

		rows := make([]*types.Match, 0, 3)
		for i := range ids {
			from, to := graph[ids[i]], graph[ids[(i+1)%3]]
			gid := groupID
			rows = append(rows, &types.Match{
				ID:             uuid.New(),
				Status:         types.MatchStatusNew,
				Type:           types.MatchTypeTriangle,
				SeekerIntentID: from.ID,
				TargetIntentID: to.ID,
				TargetHomeID:   to.HomeID,
				GroupID:        &gid,
				SweepID:        in.SweepID,
				Snapshot:       raw,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		}
		if _, err := a.deps.Matches.Create(dbc, rows); err != nil {
			return err
		}
		out.GroupID = &groupID
		out.Matches = derefMatches(rows)
		out.RemovedFromFlow = removed
		return nil
	})
	if err != nil {
		return domainagg.FormationResult{}, err
	}
	a.notify(ctx, out)
	return out, nil
}

// lockEligible locks the parties and re-checks what candidate selection saw
// outside the transaction.
func (a *matchFormationAggregate) lockEligible(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Intent, error) {
	if err := setLocalLockTimeout(dbc, a.deps.LockTimeout); err != nil {
		return nil, err
	}
	locked, err := a.deps.Intents.LockByIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	lockedByID, err := requireAllEligible(ids, locked)
	if err != nil {
		return nil, err
	}
	active, err := a.deps.Matches.ExistsActiveAmong(dbc, ids)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, fmt.Errorf("%w: %w", ErrConflict, ErrAlreadyMatched)
	}
	return lockedByID, nil
}

// loadAndConsume loads the snapshot graph and spends one credit per party.
// It returns the ids whose balance reached zero.
func (a *matchFormationAggregate) loadAndConsume(dbc dbctx.Context, ids []uuid.UUID, lockedByID map[uuid.UUID]*types.Intent) (map[uuid.UUID]*types.Intent, []uuid.UUID, error) {
	loaded, err := a.deps.Intents.LoadGraph(dbc, ids)
	if err != nil {
		return nil, nil, err
	}
	graph := make(map[uuid.UUID]*types.Intent, len(loaded))
	for _, in := range loaded {
		if !in.Complete() {
			return nil, nil, domainagg.NewError(domainagg.CodePreconditionFailed, "match_formation.load",
				fmt.Sprintf("intent %s references a missing home or search", in.ID), nil)
		}
		graph[in.ID] = in
	}

	var removed []uuid.UUID
	for _, id := range ids {
		if err := a.deps.Credits.Consume(dbc, id, 1); err != nil {
			return nil, nil, err
		}
		if lockedByID[id].TotalMatchesRemaining == 1 {
			removed = append(removed, id)
		}
	}
	return graph, removed, nil
}

func (a *matchFormationAggregate) notify(ctx context.Context, out domainagg.FormationResult) {
	if a.deps.Notifier == nil {
		return
	}
	for _, m := range out.Matches {
		a.deps.Notifier.OnMatchCreated(ctx, m.ID)
	}
}

func derefMatches(rows []*types.Match) []types.Match {
	out := make([]types.Match, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out
}
