package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/homeswap-backend/internal/data/repos/testutil"
	types "github.com/yungbote/homeswap-backend/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestDBClaimerExclusiveUntilExpiry(t *testing.T) {
	db := testutil.SQLite(t)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	a := NewDBClaimer(db, testutil.Logger(t), "worker-a").WithClock(clock.Now)
	b := NewDBClaimer(db, testutil.Logger(t), "worker-b").WithClock(clock.Now)
	ctx := context.Background()
	key := SeekerKey("intent-1")

	if ok, err := a.TryClaim(ctx, key, time.Minute); err != nil || !ok {
		t.Fatalf("a claim: ok=%v err=%v", ok, err)
	}
	if ok, err := b.TryClaim(ctx, key, time.Minute); err != nil || ok {
		t.Fatalf("b must not claim a held key: ok=%v err=%v", ok, err)
	}
	if ok, err := a.TryClaim(ctx, key, time.Minute); err != nil || !ok {
		t.Fatalf("owner re-claim should extend: ok=%v err=%v", ok, err)
	}
	if ok, err := b.Renew(ctx, key, time.Minute); err != nil || ok {
		t.Fatalf("non-owner renew must fail: ok=%v err=%v", ok, err)
	}

	clock.Advance(2 * time.Minute)
	if ok, err := b.TryClaim(ctx, key, time.Minute); err != nil || !ok {
		t.Fatalf("b should take an expired claim: ok=%v err=%v", ok, err)
	}
	if ok, err := a.Renew(ctx, key, time.Minute); err != nil || ok {
		t.Fatalf("a lost the claim and must not renew: ok=%v err=%v", ok, err)
	}

	var row types.MatchClaim
	if err := db.Where("claim_key = ?", key).First(&row).Error; err != nil {
		t.Fatalf("load claim: %v", err)
	}
	if row.Owner != "worker-b" {
		t.Fatalf("expected worker-b to own the claim, got %s", row.Owner)
	}
}

func TestDBClaimerReleaseIsOwnerScoped(t *testing.T) {
	db := testutil.SQLite(t)
	a := NewDBClaimer(db, testutil.Logger(t), "worker-a")
	b := NewDBClaimer(db, testutil.Logger(t), "worker-b")
	ctx := context.Background()
	key := SeekerKey("intent-2")

	if ok, _ := a.TryClaim(ctx, key, time.Minute); !ok {
		t.Fatalf("a claim failed")
	}
	if err := b.Release(ctx, key); err != nil {
		t.Fatalf("b release: %v", err)
	}
	if ok, _ := b.TryClaim(ctx, key, time.Minute); ok {
		t.Fatalf("b release must not free a's claim")
	}
	if err := a.Release(ctx, key); err != nil {
		t.Fatalf("a release: %v", err)
	}
	if ok, _ := b.TryClaim(ctx, key, time.Minute); !ok {
		t.Fatalf("b should claim after a released")
	}
}

func TestDBClaimerPurgeExpired(t *testing.T) {
	db := testutil.SQLite(t)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewDBClaimer(db, testutil.Logger(t), "worker-a").WithClock(clock.Now)
	ctx := context.Background()

	_, _ = c.TryClaim(ctx, "short", time.Second)
	_, _ = c.TryClaim(ctx, "long", time.Hour)
	n, err := c.PurgeExpired(ctx, clock.Now().Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("purge: n=%d err=%v", n, err)
	}
}

func TestClaimerValidation(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	if _, err := NewDBClaimer(db, testutil.Logger(t), "").TryClaim(ctx, "k", time.Second); !errors.Is(err, ErrEmptyOwner) {
		t.Fatalf("expected ErrEmptyOwner, got %v", err)
	}
	c := NewDBClaimer(db, testutil.Logger(t), "w")
	if _, err := c.TryClaim(ctx, "", time.Second); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := c.TryClaim(ctx, "k", 0); !errors.Is(err, ErrBadLease) {
		t.Fatalf("expected ErrBadLease, got %v", err)
	}
}

func TestHoldRunsExclusivelyAndReleases(t *testing.T) {
	db := testutil.SQLite(t)
	a := NewDBClaimer(db, testutil.Logger(t), "worker-a")
	b := NewDBClaimer(db, testutil.Logger(t), "worker-b")
	ctx := context.Background()
	key := SeekerKey("intent-3")

	ran := false
	err := Hold(ctx, a, testutil.Logger(t), key, time.Minute, func(ctx context.Context) error {
		ran = true
		if err := Hold(ctx, b, nil, key, time.Minute, func(context.Context) error { return nil }); !errors.Is(err, ErrBusy) {
			t.Fatalf("nested hold by another owner: expected ErrBusy, got %v", err)
		}
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("hold: ran=%v err=%v", ran, err)
	}
	if ok, _ := b.TryClaim(ctx, key, time.Minute); !ok {
		t.Fatalf("key should be free after Hold returns")
	}
}

func TestHoldCancelsWorkWhenClaimIsLost(t *testing.T) {
	db := testutil.SQLite(t)
	a := NewDBClaimer(db, testutil.Logger(t), "worker-a")
	key := SeekerKey("intent-4")

	err := Hold(context.Background(), a, testutil.Logger(t), key, 60*time.Millisecond, func(ctx context.Context) error {
		if err := db.Where("claim_key = ?", key).Delete(&types.MatchClaim{}).Error; err != nil {
			t.Fatalf("drop claim: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
			t.Fatalf("work context was not cancelled after the claim vanished")
		}
		return nil
	})
	if !errors.Is(err, ErrLost) {
		t.Fatalf("expected ErrLost, got %v", err)
	}
}
