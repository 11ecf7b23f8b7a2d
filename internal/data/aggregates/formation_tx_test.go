package aggregates_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/homeswap-backend/internal/data/aggregates"
	aggtest "github.com/yungbote/homeswap-backend/internal/data/aggregates/testutil"
	"github.com/yungbote/homeswap-backend/internal/data/repos"
	"github.com/yungbote/homeswap-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/homeswap-backend/internal/domain/aggregates"
	"github.com/yungbote/homeswap-backend/internal/platform/dbctx"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

type ledger struct{ intents repos.IntentRepo }

func (l ledger) Consume(dbc dbctx.Context, id uuid.UUID, n int) error {
	ok, err := l.intents.ConsumeCredits(dbc, id, n, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return aggregates.InvariantError("overdraw")
	}
	return nil
}

type countingNotifier struct {
	mu sync.Mutex
	n  int
}

func (c *countingNotifier) OnMatchCreated(context.Context, uuid.UUID) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func formationWith(t *testing.T, runner *aggtest.InjectedTxRunner) (domainagg.MatchFormationAggregate, *aggtest.HooksRecorder, *countingNotifier, [2]uuid.UUID, repos.Repos) {
	t.Helper()
	db := testutil.SQLite(t)
	rs := repos.New(db, logger.NewNop())
	var ids [2]uuid.UUID
	for i, name := range []string{"seeker", "target"} {
		in := testutil.SeedParty(t, db, testutil.PartySpec{
			FirstName: name,
			Home:      testutil.HomeSpec{Lat: 48.85, Lng: 2.35, Rooms: 2, Surface: 40, Rent: 800, Address: name + " home"},
			Search:    testutil.SearchSpec{Zones: []testutil.ZoneSpec{{Lat: 48.85, Lng: 2.35, RadiusKm: 5}}},
			Credits:   1,
		})
		ids[i] = in.ID
	}
	runner.DB = db
	hooks := &aggtest.HooksRecorder{}
	notifier := &countingNotifier{}
	agg := aggregates.NewMatchFormationAggregate(aggregates.MatchFormationDeps{
		Base:     aggregates.BaseDeps{DB: db, Runner: runner, Hooks: hooks},
		Intents:  rs.Intent,
		Matches:  rs.Match,
		Credits:  ledger{intents: rs.Intent},
		Notifier: notifier,
	})
	return agg, hooks, notifier, ids, rs
}

func TestFormationBeginFailureIsRetryableAndSpendsNothing(t *testing.T) {
	runner := &aggtest.InjectedTxRunner{FailBegin: aggregates.RetryableError("connection refused")}
	agg, hooks, notifier, ids, rs := formationWith(t, runner)

	_, err := agg.FormStandard(context.Background(), domainagg.StandardInput{
		SweepID: uuid.New(), SeekerIntentID: ids[0], TargetIntentID: ids[1],
	})
	if domainagg.DispositionOf(err) != domainagg.DispositionRetry {
		t.Fatalf("begin failure must be retried, got %v", err)
	}
	if runner.CommitCalls != 0 || notifier.n != 0 {
		t.Fatalf("nothing may commit or notify: commits=%d notified=%d", runner.CommitCalls, notifier.n)
	}
	if len(hooks.Retries) != 1 || len(hooks.Operations) != 1 || hooks.Operations[0].Name != "match_formation.form_standard" {
		t.Fatalf("unexpected hook signals: %+v", hooks)
	}
	seeker, err := rs.Intent.GetByID(dbctx.Context{Ctx: context.Background()}, ids[0])
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if seeker.TotalMatchesUsed != 0 || seeker.TotalMatchesRemaining != 1 {
		t.Fatalf("credits spent without a transaction: %+v", seeker)
	}
}

func TestFormationNotifiesOnlyAfterCommit(t *testing.T) {
	commitErr := errors.New("commit lost")
	runner := &aggtest.InjectedTxRunner{FailCommit: commitErr}
	agg, hooks, notifier, ids, rs := formationWith(t, runner)

	_, err := agg.FormStandard(context.Background(), domainagg.StandardInput{
		SweepID: uuid.New(), SeekerIntentID: ids[0], TargetIntentID: ids[1],
	})
	if !errors.Is(err, commitErr) {
		t.Fatalf("want commit error, got %v", err)
	}
	if runner.RollbackCalls != 1 || runner.CommitCalls != 0 {
		t.Fatalf("counters: commit=%d rollback=%d", runner.CommitCalls, runner.RollbackCalls)
	}
	if notifier.n != 0 {
		t.Fatalf("match signals must not leave before commit, got %d", notifier.n)
	}
	if len(hooks.Operations) != 1 || hooks.Operations[0].Status == "success" {
		t.Fatalf("failed commit must not be observed as success: %+v", hooks.Operations)
	}
	dbc := dbctx.Context{Ctx: context.Background()}
	for _, id := range ids {
		in, err := rs.Intent.GetByID(dbc, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if in.TotalMatchesUsed != 0 || in.TotalMatchesRemaining != 1 || !in.IsInFlow {
			t.Fatalf("rolled back formation left credits spent: %+v", in)
		}
	}
	if active, err := rs.Match.ExistsActiveAmong(dbc, ids[:]); err != nil || active {
		t.Fatalf("rolled back formation left match rows: active=%v err=%v", active, err)
	}
}

func TestFormationCommitsThroughInjectedRunner(t *testing.T) {
	runner := &aggtest.InjectedTxRunner{}
	agg, _, notifier, ids, rs := formationWith(t, runner)

	out, err := agg.FormStandard(context.Background(), domainagg.StandardInput{
		SweepID: uuid.New(), SeekerIntentID: ids[0], TargetIntentID: ids[1],
	})
	if err != nil {
		t.Fatalf("FormStandard: %v", err)
	}
	if runner.CommitCalls != 1 || runner.RollbackCalls != 0 {
		t.Fatalf("counters: commit=%d rollback=%d", runner.CommitCalls, runner.RollbackCalls)
	}
	if len(out.Matches) != 2 || notifier.n != 2 {
		t.Fatalf("want 2 rows and 2 signals, got rows=%d signals=%d", len(out.Matches), notifier.n)
	}
	if active, err := rs.Match.ExistsActiveAmong(dbctx.Context{Ctx: context.Background()}, ids[:]); err != nil || !active {
		t.Fatalf("committed pair must be visible: active=%v err=%v", active, err)
	}
}

func TestFormationContract(t *testing.T) {
	agg, _, _, _, _ := formationWith(t, &aggtest.InjectedTxRunner{})
	c := agg.Contract()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !c.RequiresAggregateOwnedTx() || !c.NotifyAfterCommit || c.LockOrder != domainagg.LockOrderIntentIDAsc {
		t.Fatalf("unexpected contract: %+v", c)
	}
	if err := (domainagg.Contract{Name: "x", WriteTxOwnership: "maybe", LockOrder: domainagg.LockOrderNone}).Validate(); err == nil {
		t.Fatalf("unknown ownership must not validate")
	}
}
