package lease

import (
	"context"
	"errors"
	"time"

	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

// ErrBusy is returned by Hold when another owner holds the key.
var ErrBusy = errors.New("lease: key held by another owner")

// ErrLost is returned by Hold when a renewal found the claim gone.
var ErrLost = errors.New("lease: claim lost during work")

// Hold claims key, runs fn while renewing the claim every lease/3, and
// releases the claim when fn returns. fn's context is cancelled if a renewal
// reports the claim lost.
func Hold(ctx context.Context, c Claimer, log *logger.Logger, key string, lease time.Duration, fn func(ctx context.Context) error) error {
	ok, err := c.TryClaim(ctx, key, lease)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBusy
	}
	defer func() {
		// Release on a fresh context so a cancelled caller still frees the key.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := c.Release(rctx, key); err != nil && log != nil {
			log.Warn("lease release failed", "key", key, "error", err)
		}
	}()

	workCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	done := make(chan struct{})
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		every := lease / 3
		if every <= 0 {
			every = lease
		}
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-workCtx.Done():
				return
			case <-ticker.C:
				ok, err := c.Renew(workCtx, key, lease)
				if err != nil {
					if log != nil {
						log.Warn("lease renew failed", "key", key, "error", err)
					}
					continue
				}
				if !ok {
					cancel(ErrLost)
					return
				}
			}
		}
	}()

	err = fn(workCtx)
	close(done)
	<-renewed
	if cause := context.Cause(workCtx); errors.Is(cause, ErrLost) {
		if err == nil {
			return ErrLost
		}
		return errors.Join(ErrLost, err)
	}
	return err
}
