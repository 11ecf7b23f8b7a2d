package matching

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/homeswap-backend/internal/data/repos/testutil"
	types "github.com/yungbote/homeswap-backend/internal/domain"
	"github.com/yungbote/homeswap-backend/internal/lease"
	"github.com/yungbote/homeswap-backend/internal/platform/dbctx"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

func TestEnqueueThenProcessQueuedJobs(t *testing.T) {
	fx := newEngineFixture(t, nil)
	a := fx.seedParty(t, "alice", 1, nil)
	b := fx.seedParty(t, "bob", 1, nil)
	fx.seedParty(t, "idle", 1, func(s *testutil.PartySpec) { s.Inactive = true })

	ctx := context.Background()
	res, err := fx.engine.EnqueueEligibleSeekers(ctx)
	if err != nil {
		t.Fatalf("EnqueueEligibleSeekers: %v", err)
	}
	if res.Eligible != 2 || res.Count != 2 || res.SweepID == uuid.Nil {
		t.Fatalf("enqueue: %+v", res)
	}
	again, err := fx.engine.EnqueueEligibleSeekers(ctx)
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if again.Count != 0 {
		t.Fatalf("seekers with open jobs must not be enqueued twice: %+v", again)
	}

	dbc := dbctx.Context{Ctx: ctx}
	var processed []uuid.UUID
	for {
		job, err := fx.repos.MatchJob.ClaimNextRunnable(dbc, "worker-test", 3, time.Minute)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if job == nil {
			break
		}
		if job.SweepID != res.SweepID {
			t.Fatalf("job sweep id: want=%s got=%s", res.SweepID, job.SweepID)
		}
		if _, err := fx.engine.ProcessQueuedSeeker(ctx, job.SweepID, job.IntentID); err != nil {
			t.Fatalf("process %s: %v", job.IntentID, err)
		}
		if err := fx.repos.MatchJob.MarkSucceeded(dbc, job.ID, nil); err != nil {
			t.Fatalf("mark succeeded: %v", err)
		}
		processed = append(processed, job.IntentID)
	}
	if len(processed) != 2 || !containsID(processed, a.ID) || !containsID(processed, b.ID) {
		t.Fatalf("want one job per eligible seeker, got %v", processed)
	}

	rows := fx.matches(t)
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
	for _, m := range rows {
		if m.SweepID != res.SweepID {
			t.Fatalf("match must carry the enqueue sweep id: %+v", m)
		}
	}
}

func TestEnqueueHonoursResweepInterval(t *testing.T) {
	fx := newEngineFixture(t, func(c *Config) { c.ResweepInterval = time.Hour })
	a := fx.seedParty(t, "alice", 1, nil)

	if _, err := fx.engine.ProcessQueuedSeeker(context.Background(), uuid.New(), a.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	res, err := fx.engine.EnqueueEligibleSeekers(context.Background())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if res.Count != 0 {
		t.Fatalf("a seeker swept a moment ago is not due: %+v", res)
	}

	fx.offset = 2 * time.Hour
	res, err = fx.engine.EnqueueEligibleSeekers(context.Background())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if res.Count != 1 {
		t.Fatalf("seeker is due again after the interval: %+v", res)
	}
}

func TestMatchedSeekerWithCreditsLeftWaitsForResweep(t *testing.T) {
	fx := newEngineFixture(t, func(c *Config) { c.ResweepInterval = time.Hour })
	a := fx.seedParty(t, "alice", 2, nil)
	fx.seedParty(t, "bob", 1, nil)

	res, err := fx.engine.ProcessQueuedSeeker(context.Background(), uuid.New(), a.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.StandardPairs != 1 {
		t.Fatalf("alice and bob should pair: %+v", res)
	}
	in := fx.reload(t, a.ID)
	if !in.IsInFlow || in.TotalMatchesRemaining != 1 {
		t.Fatalf("alice keeps one credit in flow: %+v", in)
	}
	if in.LastSweptAt == nil || in.UpdatedAt.After(*in.LastSweptAt) {
		t.Fatalf("sweep stamp must not precede the credit update: updated=%v swept=%v", in.UpdatedAt, in.LastSweptAt)
	}

	enq, err := fx.engine.EnqueueEligibleSeekers(context.Background())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enq.Count != 0 {
		t.Fatalf("a seeker matched a moment ago is not due: %+v", enq)
	}
}

func TestRunMaintenance(t *testing.T) {
	fx := newEngineFixture(t, nil)
	a := fx.seedParty(t, "alice", 2, nil)
	b := fx.seedParty(t, "bob", 2, nil)
	ctx := context.Background()

	if _, err := fx.engine.RunMatchingSweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	rows := fx.matches(t)
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
	if err := fx.db.Model(&types.Match{}).Where("id = ?", rows[1].ID).
		Update("status", types.MatchStatusInProgress).Error; err != nil {
		t.Fatalf("advance match: %v", err)
	}

	crashed := lease.NewDBClaimer(fx.db, logger.NewNop(), "worker-crashed")
	if ok, err := crashed.TryClaim(ctx, lease.SeekerKey("gone"), time.Minute); err != nil || !ok {
		t.Fatalf("stray claim: ok=%v err=%v", ok, err)
	}
	dbc := dbctx.Context{Ctx: ctx}
	enqueued, err := fx.repos.MatchJob.Enqueue(dbc, uuid.New(), []uuid.UUID{a.ID, b.ID})
	if err != nil || enqueued != 2 {
		t.Fatalf("enqueue: n=%d err=%v", enqueued, err)
	}
	for i := 0; i < enqueued; i++ {
		job, err := fx.repos.MatchJob.ClaimNextRunnable(dbc, "w", 3, time.Minute)
		if err != nil || job == nil {
			t.Fatalf("claim: job=%v err=%v", job, err)
		}
		if err := fx.repos.MatchJob.MarkSucceeded(dbc, job.ID, nil); err != nil {
			t.Fatalf("mark: %v", err)
		}
	}

	// Nothing is old enough yet.
	res, err := fx.engine.RunMaintenance(ctx)
	if err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if res.Archived != 0 || res.JobsPurged != 0 {
		t.Fatalf("fresh rows must stay: %+v", res)
	}

	fx.offset = 31 * 24 * time.Hour
	res, err = fx.engine.RunMaintenance(ctx)
	if err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if res.Archived != 1 {
		t.Fatalf("only the NEW row is archived, got %+v", res)
	}
	if res.ClaimsPurged != 1 {
		t.Fatalf("expired stray claim must be purged: %+v", res)
	}
	if res.JobsPurged != 2 {
		t.Fatalf("finished jobs older than retention must be purged: %+v", res)
	}

	var archived types.Match
	if err := fx.db.Where("id = ?", rows[0].ID).First(&archived).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if archived.Status != types.MatchStatusArchived || archived.ArchivedAt == nil {
		t.Fatalf("row not archived: %+v", archived)
	}
	var kept types.Match
	if err := fx.db.Where("id = ?", rows[1].ID).First(&kept).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if kept.Status != types.MatchStatusInProgress {
		t.Fatalf("IN_PROGRESS rows are never archived: %+v", kept)
	}
	if got := fx.notifier.ArchivedIDs(); len(got) != 1 || got[0] != rows[0].ID {
		t.Fatalf("archive signal: %v", got)
	}
}

func TestSweepSummaryCountsOutcomes(t *testing.T) {
	var s SweepSummary
	id := uuid.New()
	s.add(WorkerResult{Outcome: OutcomeMatched, StandardRows: 2, StandardPairs: 1, RemovedFromFlow: []uuid.UUID{id}}, nil)
	s.add(WorkerResult{Outcome: OutcomeMatched, TriangleRows: 3, TriangleGroupID: &id, RemovedFromFlow: []uuid.UUID{id}}, nil)
	s.add(WorkerResult{Outcome: OutcomeBusy}, context.DeadlineExceeded)
	s.add(WorkerResult{Outcome: OutcomeFailed}, context.Canceled)
	s.add(WorkerResult{Outcome: OutcomeSkipped}, nil)

	if s.SeekersProcessed != 2 || s.SeekersSkipped != 2 || s.SeekersFailed != 1 {
		t.Fatalf("outcome counts: %+v", s)
	}
	if s.StandardRows != 2 || s.TriangleRows != 3 || s.Triangles != 1 || s.RemovedFromFlow != 1 {
		t.Fatalf("row counts: %+v", s)
	}
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, have := range ids {
		if have == id {
			return true
		}
	}
	return false
}
