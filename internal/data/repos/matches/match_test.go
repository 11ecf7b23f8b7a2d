package matches

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/homeswap-backend/internal/data/repos/testutil"
	types "github.com/yungbote/homeswap-backend/internal/domain"
	"github.com/yungbote/homeswap-backend/internal/platform/dbctx"
)

func row(seeker, target uuid.UUID, typ types.MatchType, sweep uuid.UUID, created time.Time) *types.Match {
	return &types.Match{
		Status:         types.MatchStatusNew,
		Type:           typ,
		SeekerIntentID: seeker,
		TargetIntentID: target,
		TargetHomeID:   uuid.New(),
		SweepID:        sweep,
		Snapshot:       []byte(`{"version":1}`),
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func TestMatchRepoQueries(t *testing.T) {
	db := testutil.SQLite(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewMatchRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	sweep := uuid.New()
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	if _, err := repo.Create(dbc, []*types.Match{
		row(a, b, types.MatchTypeStandard, sweep, now.Add(-40*24*time.Hour)),
		row(b, a, types.MatchTypeStandard, sweep, now.Add(-40*24*time.Hour)),
		row(c, d, types.MatchTypeTriangle, sweep, now),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if ok, err := repo.ExistsActiveAmong(dbc, []uuid.UUID{b, a}); err != nil || !ok {
		t.Fatalf("ExistsActiveAmong(a,b): ok=%v err=%v", ok, err)
	}
	if ok, err := repo.ExistsActiveAmong(dbc, []uuid.UUID{a, c}); err != nil || ok {
		t.Fatalf("ExistsActiveAmong(a,c): ok=%v err=%v", ok, err)
	}

	got, err := repo.IntentsWithTypeInSweep(dbc, []uuid.UUID{a, c, d}, sweep, types.MatchTypeStandard)
	if err != nil || len(got) != 1 || got[0] != a {
		t.Fatalf("IntentsWithTypeInSweep: got=%v err=%v", got, err)
	}
	if got, err := repo.IntentsWithTypeInSweep(dbc, []uuid.UUID{a}, uuid.New(), types.MatchTypeStandard); err != nil || len(got) != 0 {
		t.Fatalf("other sweep should be empty: got=%v err=%v", got, err)
	}

	archived, err := repo.ArchiveStale(dbc, now.Add(-30*24*time.Hour), []types.MatchStatus{types.MatchStatusNew, types.MatchStatusNotInterested}, now)
	if err != nil || len(archived) != 2 {
		t.Fatalf("ArchiveStale: archived=%v err=%v", archived, err)
	}
	if ok, err := repo.ExistsActiveAmong(dbc, []uuid.UUID{a, b}); err != nil || ok {
		t.Fatalf("archived pair must not count as active: ok=%v err=%v", ok, err)
	}
	rows, err := repo.ListForIntent(dbc, a)
	if err != nil || len(rows) != 1 || rows[0].Status != types.MatchStatusArchived || rows[0].ArchivedAt == nil {
		t.Fatalf("ListForIntent: rows=%v err=%v", rows, err)
	}
	if bySweep, err := repo.ListBySweep(dbc, sweep); err != nil || len(bySweep) != 3 {
		t.Fatalf("ListBySweep: n=%d err=%v", len(bySweep), err)
	}
}
