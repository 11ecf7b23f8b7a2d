package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/homeswap-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(types.AllModels()...)
}

// EnsureMatchIndexes adds the Postgres-only partial indexes the candidate and
// queue queries lean on. It is a no-op for other dialects.
func EnsureMatchIndexes(db *gorm.DB) error {
	if db.Dialector.Name() != DriverPostgres {
		return nil
	}
	stmts := []struct {
		name string
		sql  string
	}{
		{"idx_intent_in_flow_candidates", `
			CREATE INDEX IF NOT EXISTS idx_intent_in_flow_candidates
			ON intent(created_at, id)
			WHERE is_in_flow = true AND total_matches_remaining > 0;`},
		{"idx_match_active_pair", `
			CREATE INDEX IF NOT EXISTS idx_match_active_pair
			ON exchange_match(seeker_intent_id, target_intent_id)
			WHERE status <> 'ARCHIVED';`},
		{"idx_match_job_runnable", `
			CREATE INDEX IF NOT EXISTS idx_match_job_runnable
			ON match_job(created_at)
			WHERE status IN ('queued', 'failed', 'running');`},
		{"idx_match_job_one_open_per_intent", `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_match_job_one_open_per_intent
			ON match_job(intent_id)
			WHERE status IN ('queued', 'running', 'failed');`},
	}
	for _, s := range stmts {
		if err := db.Exec(s.sql).Error; err != nil {
			return fmt.Errorf("create %s: %w", s.name, err)
		}
	}
	return nil
}
