package testutil

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/yungbote/homeswap-backend/internal/data/aggregates"
	"github.com/yungbote/homeswap-backend/internal/platform/dbctx"
)

// InjectedTxRunner runs aggregate writes with injectable begin, body and
// commit failures. With DB set the body runs inside a real transaction that
// is rolled back whenever a failure is injected; without it the body gets a
// context with no transaction.
type InjectedTxRunner struct {
	DB *gorm.DB

	mu sync.Mutex

	FailBegin      error
	FailBeforeBody error
	FailCommit     error

	BeginCalls    int
	CommitCalls   int
	RollbackCalls int
}

var _ aggregates.TxRunner = (*InjectedTxRunner)(nil)

func (r *InjectedTxRunner) count(n *int) {
	r.mu.Lock()
	*n++
	r.mu.Unlock()
}

func (r *InjectedTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.BeginCalls++
	failBegin, failBeforeBody, failCommit := r.FailBegin, r.FailBeforeBody, r.FailCommit
	r.mu.Unlock()

	if failBegin != nil {
		return failBegin
	}
	var tx *gorm.DB
	if r.DB != nil {
		tx = r.DB.WithContext(ctx).Begin()
		if tx.Error != nil {
			return tx.Error
		}
	}
	rollback := func(cause error) error {
		r.count(&r.RollbackCalls)
		if tx != nil {
			if err := tx.Rollback().Error; err != nil {
				return err
			}
		}
		return cause
	}

	if failBeforeBody != nil {
		return rollback(failBeforeBody)
	}
	if fn != nil {
		if err := fn(dbctx.Context{Ctx: ctx, Tx: tx}); err != nil {
			return rollback(err)
		}
	}
	if failCommit != nil {
		return rollback(failCommit)
	}
	if tx != nil {
		if err := tx.Commit().Error; err != nil {
			return err
		}
	}
	r.count(&r.CommitCalls)
	return nil
}
