package aggregates

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/homeswap-backend/internal/domain"
	"github.com/yungbote/homeswap-backend/internal/platform/dbctx"
)

const dialectPostgres = "postgres"

// AdvisoryXactLock takes a transaction-scoped Postgres advisory lock on
// namespace:key. Other dialects have no advisory locks and return immediately.
func AdvisoryXactLock(dbc dbctx.Context, namespace, key string) error {
	tx := dbc.Tx
	if tx == nil || namespace == "" || key == "" {
		return nil
	}
	if tx.Dialector.Name() != dialectPostgres {
		return nil
	}
	return tx.WithContext(dbc.Ctx).Exec("SELECT pg_advisory_xact_lock(?)", AdvisoryKey64(namespace, key)).Error
}

func AdvisoryKey64(namespace, key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(namespace))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// CanonicalKey joins ids in sorted order so every rotation of a cycle maps to one key.
func CanonicalKey(ids ...uuid.UUID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// setLocalLockTimeout makes row-lock waits fail fast instead of holding the
// transaction open. Postgres only.
func setLocalLockTimeout(dbc dbctx.Context, d time.Duration) error {
	tx := dbc.Tx
	if tx == nil || d <= 0 || tx.Dialector.Name() != dialectPostgres {
		return nil
	}
	return tx.WithContext(dbc.Ctx).Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())).Error
}

// requireAllEligible checks the freshly locked rows: every id present, in flow,
// with at least one credit left.
func requireAllEligible(ids []uuid.UUID, locked []*types.Intent) (map[uuid.UUID]*types.Intent, error) {
	byID := make(map[uuid.UUID]*types.Intent, len(locked))
	for _, in := range locked {
		if in != nil {
			byID[in.ID] = in
		}
	}
	for _, id := range ids {
		in, ok := byID[id]
		switch {
		case !ok:
			return nil, ineligibleError(id, "intent not found")
		case !in.IsInFlow:
			return nil, ineligibleError(id, "not in flow")
		case in.TotalMatchesRemaining <= 0:
			return nil, ineligibleError(id, "no credits remaining")
		}
		if err := in.CheckCredits(); err != nil {
			return nil, InvariantError(err.Error())
		}
	}
	return byID, nil
}

func requireDistinct(ids []uuid.UUID) error {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			return ValidationError("intent id is required")
		}
		if _, dup := seen[id]; dup {
			return ValidationError(fmt.Sprintf("intent %s appears twice", id))
		}
		seen[id] = struct{}{}
	}
	return nil
}
