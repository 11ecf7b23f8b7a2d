package aggregates

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/homeswap-backend/internal/domain/aggregates"
)

func TestMapErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domainagg.ErrorCode
	}{
		{"validation", ValidationError("bad input"), domainagg.CodeValidation},
		{"conflict", ConflictError("stale"), domainagg.CodeConflict},
		{"invariant", InvariantError("negative credits"), domainagg.CodeInvariantViolation},
		{"not found", gorm.ErrRecordNotFound, domainagg.CodeNotFound},
		{"ineligible", ineligibleError(uuid.New(), "out of flow"), domainagg.CodeConflict},
		{"pg unique", &pgconn.PgError{Code: "23505"}, domainagg.CodeConflict},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, domainagg.CodeRetryable},
		{"pg lock timeout", &pgconn.PgError{Code: "55P03"}, domainagg.CodeRetryable},
		{"pg fk", &pgconn.PgError{Code: "23503"}, domainagg.CodePreconditionFailed},
		{"sqlite busy", errors.New("database is locked"), domainagg.CodeRetryable},
		{"sqlite unique", errors.New("UNIQUE constraint failed: match_job.intent_id"), domainagg.CodeConflict},
		{"other", errors.New("boom"), domainagg.CodeInternal},
	}
	for _, tc := range cases {
		got := MapError("op", tc.err)
		if !domainagg.IsCode(got, tc.want) {
			t.Fatalf("%s: expected %s, got %q (%v)", tc.name, tc.want, domainagg.CodeOf(got), got)
		}
	}
}

func TestMapErrorKeepsIneligibleSentinel(t *testing.T) {
	err := MapError("op", ineligibleError(uuid.New(), "no credits"))
	if !errors.Is(err, ErrIntentIneligible) {
		t.Fatalf("expected ErrIntentIneligible in chain, got %v", err)
	}
}

func TestMapErrorPassthroughAggregateError(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeRetryable, "op", "retry", errors.New("boom"))
	out := MapError("other", in)
	if out != in {
		t.Fatalf("expected passthrough aggregate error")
	}
}
