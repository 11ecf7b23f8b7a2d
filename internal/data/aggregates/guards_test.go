package aggregates

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	types "github.com/yungbote/homeswap-backend/internal/domain"
)

func TestCanonicalKeyIgnoresRotation(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	k := CanonicalKey(a, b, c)
	if CanonicalKey(b, c, a) != k || CanonicalKey(c, a, b) != k {
		t.Fatalf("rotations of a cycle must share a key")
	}
	if AdvisoryKey64("triangle", k) != AdvisoryKey64("triangle", CanonicalKey(c, b, a)) {
		t.Fatalf("advisory key must be stable")
	}
	if AdvisoryKey64("triangle", k) == AdvisoryKey64("seeker", k) {
		t.Fatalf("namespaces must not collide")
	}
}

func TestRequireAllEligible(t *testing.T) {
	ok := &types.Intent{ID: uuid.New(), IsInFlow: true, TotalMatchesPurchased: 1, TotalMatchesRemaining: 1}
	spent := &types.Intent{ID: uuid.New(), IsInFlow: true, TotalMatchesPurchased: 1, TotalMatchesUsed: 1}
	out := &types.Intent{ID: uuid.New(), IsInFlow: false, TotalMatchesPurchased: 1, TotalMatchesRemaining: 1}
	broken := &types.Intent{ID: uuid.New(), IsInFlow: true, TotalMatchesPurchased: 1, TotalMatchesRemaining: 3}

	if _, err := requireAllEligible([]uuid.UUID{ok.ID}, []*types.Intent{ok}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for _, in := range []*types.Intent{spent, out} {
		_, err := requireAllEligible([]uuid.UUID{ok.ID, in.ID}, []*types.Intent{ok, in})
		if !errors.Is(err, ErrIntentIneligible) || !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ineligible conflict for %+v, got %v", in, err)
		}
	}
	if _, err := requireAllEligible([]uuid.UUID{uuid.New()}, nil); !errors.Is(err, ErrIntentIneligible) {
		t.Fatalf("missing row should be ineligible, got %v", err)
	}
	if _, err := requireAllEligible([]uuid.UUID{broken.ID}, []*types.Intent{broken}); !errors.Is(err, ErrInvariant) {
		t.Fatalf("inconsistent counters should be an invariant error, got %v", err)
	}
}

func TestRequireDistinct(t *testing.T) {
	a := uuid.New()
	if err := requireDistinct([]uuid.UUID{a, uuid.New()}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := requireDistinct([]uuid.UUID{a, a}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := requireDistinct([]uuid.UUID{uuid.Nil}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for nil id, got %v", err)
	}
}
