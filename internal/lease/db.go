package lease

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/homeswap-backend/internal/domain"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

// DBClaimer stores claims as match_claim rows. It works on any gorm dialect
// that supports INSERT ... ON CONFLICT DO UPDATE ... WHERE (Postgres, SQLite).
type DBClaimer struct {
	db    *gorm.DB
	log   *logger.Logger
	owner string
	now   func() time.Time
}

func NewDBClaimer(db *gorm.DB, baseLog *logger.Logger, owner string) *DBClaimer {
	return &DBClaimer{
		db:    db,
		log:   baseLog.With("component", "DBClaimer", "owner", owner),
		owner: owner,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the claimer's clock.
func (c *DBClaimer) WithClock(now func() time.Time) *DBClaimer {
	cp := *c
	cp.now = now
	return &cp
}

func (c *DBClaimer) Owner() string { return c.owner }

func (c *DBClaimer) TryClaim(ctx context.Context, key string, lease time.Duration) (bool, error) {
	if err := validate(c.owner, key, lease); err != nil {
		return false, err
	}
	now := c.now()
	row := types.MatchClaim{Key: key, Owner: c.owner, ExpiresAt: now.Add(lease), CreatedAt: now, UpdatedAt: now}
	res := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "claim_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"owner":      c.owner,
			"expires_at": row.ExpiresAt,
			"updated_at": now,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "match_claim.expires_at <= ? OR match_claim.owner = ?", Vars: []interface{}{now, c.owner}},
		}},
	}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (c *DBClaimer) Renew(ctx context.Context, key string, lease time.Duration) (bool, error) {
	if err := validate(c.owner, key, lease); err != nil {
		return false, err
	}
	now := c.now()
	res := c.db.WithContext(ctx).
		Model(&types.MatchClaim{}).
		Where("claim_key = ? AND owner = ? AND expires_at > ?", key, c.owner, now).
		Updates(map[string]interface{}{"expires_at": now.Add(lease), "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (c *DBClaimer) Release(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return c.db.WithContext(ctx).
		Where("claim_key = ? AND owner = ?", key, c.owner).
		Delete(&types.MatchClaim{}).Error
}

// PurgeExpired deletes claims whose lease ended before the given instant.
func (c *DBClaimer) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res := c.db.WithContext(ctx).
		Where("expires_at <= ?", before).
		Delete(&types.MatchClaim{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		c.log.Info("purged expired claims", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
