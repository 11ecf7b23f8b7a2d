package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/homeswap-backend/internal/data/aggregates"
	"github.com/yungbote/homeswap-backend/internal/data/repos"
	"github.com/yungbote/homeswap-backend/internal/platform/dbctx"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

// CreditLedger moves match credits on an Intent. Every method keeps
// remaining = purchased - used - refunded; callers that need the change to be
// atomic with other writes pass a transaction in dbc.
type CreditLedger interface {
	Purchase(dbc dbctx.Context, intentID uuid.UUID, n int) error
	Consume(dbc dbctx.Context, intentID uuid.UUID, n int) error
	Refund(dbc dbctx.Context, intentID uuid.UUID, n int) error
}

type creditLedger struct {
	intents        repos.IntentRepo
	log            *logger.Logger
	refundCooldown time.Duration
	now            func() time.Time
}

func NewCreditLedger(intents repos.IntentRepo, log *logger.Logger, refundCooldown time.Duration) CreditLedger {
	return &creditLedger{
		intents:        intents,
		log:            log.With("service", "CreditLedger"),
		refundCooldown: refundCooldown,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (l *creditLedger) Purchase(dbc dbctx.Context, intentID uuid.UUID, n int) error {
	if n <= 0 {
		return aggregates.ValidationError("purchase amount must be positive")
	}
	ok, err := l.intents.AddCredits(dbc, intentID, n, l.now())
	if err != nil {
		return err
	}
	if !ok {
		return aggregates.ValidationError(fmt.Sprintf("intent %s not found", intentID))
	}
	l.log.Info("credits purchased", "intent_id", intentID, "amount", n)
	return nil
}

// Consume fails with an invariant error instead of letting the balance go negative.
func (l *creditLedger) Consume(dbc dbctx.Context, intentID uuid.UUID, n int) error {
	if n <= 0 {
		return aggregates.ValidationError("consume amount must be positive")
	}
	ok, err := l.intents.ConsumeCredits(dbc, intentID, n, l.now())
	if err != nil {
		return err
	}
	if !ok {
		return aggregates.InvariantError(fmt.Sprintf("consuming %d credit(s) would overdraw intent %s", n, intentID))
	}
	return nil
}

// Refund returns unused credits and starts the refund cooldown, during which
// the intent is not enqueued for matching.
func (l *creditLedger) Refund(dbc dbctx.Context, intentID uuid.UUID, n int) error {
	if n <= 0 {
		return aggregates.ValidationError("refund amount must be positive")
	}
	now := l.now()
	ok, err := l.intents.RefundCredits(dbc, intentID, n, now.Add(l.refundCooldown), now)
	if err != nil {
		return err
	}
	if !ok {
		return aggregates.InvariantError(fmt.Sprintf("refunding %d credit(s) would overdraw intent %s", n, intentID))
	}
	l.log.Info("credits refunded", "intent_id", intentID, "amount", n)
	return nil
}
