package matches

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/homeswap-backend/internal/domain"
	"github.com/yungbote/homeswap-backend/internal/platform/dbctx"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

type MatchRepo interface {
	Create(dbc dbctx.Context, rows []*types.Match) ([]*types.Match, error)
	ExistsActiveAmong(dbc dbctx.Context, intentIDs []uuid.UUID) (bool, error)
	IntentsWithTypeInSweep(dbc dbctx.Context, intentIDs []uuid.UUID, sweepID uuid.UUID, matchType types.MatchType) ([]uuid.UUID, error)
	ListForIntent(dbc dbctx.Context, intentID uuid.UUID) ([]*types.Match, error)
	ListByGroup(dbc dbctx.Context, groupID uuid.UUID) ([]*types.Match, error)
	ListBySweep(dbc dbctx.Context, sweepID uuid.UUID) ([]*types.Match, error)
	ArchiveStale(dbc dbctx.Context, createdBefore time.Time, statuses []types.MatchStatus, at time.Time) ([]uuid.UUID, error)
}

type matchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMatchRepo(db *gorm.DB, baseLog *logger.Logger) MatchRepo {
	return &matchRepo{db: db, log: baseLog.With("repo", "MatchRepo")}
}

func (r *matchRepo) Create(dbc dbctx.Context, rows []*types.Match) ([]*types.Match, error) {
	if len(rows) == 0 {
		return []*types.Match{}, nil
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ExistsActiveAmong reports whether any two of the given intents already share
// a non-archived match, in either direction.
func (r *matchRepo) ExistsActiveAmong(dbc dbctx.Context, intentIDs []uuid.UUID) (bool, error) {
	if len(intentIDs) < 2 {
		return false, nil
	}
	var count int64
	err := dbc.DB(r.db).Model(&types.Match{}).
		Where("status <> ?", types.MatchStatusArchived).
		Where("seeker_intent_id IN ? AND target_intent_id IN ?", intentIDs, intentIDs).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IntentsWithTypeInSweep returns the subset of intentIDs that are the seeker
// side of a matchType row created by sweepID.
func (r *matchRepo) IntentsWithTypeInSweep(dbc dbctx.Context, intentIDs []uuid.UUID, sweepID uuid.UUID, matchType types.MatchType) ([]uuid.UUID, error) {
	var out []uuid.UUID
	if len(intentIDs) == 0 || sweepID == uuid.Nil {
		return out, nil
	}
	err := dbc.DB(r.db).Model(&types.Match{}).
		Distinct("seeker_intent_id").
		Where("sweep_id = ? AND type = ? AND seeker_intent_id IN ?", sweepID, matchType, intentIDs).
		Pluck("seeker_intent_id", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListForIntent returns the matches offered to intentID, newest first.
func (r *matchRepo) ListForIntent(dbc dbctx.Context, intentID uuid.UUID) ([]*types.Match, error) {
	var out []*types.Match
	if intentID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("seeker_intent_id = ?", intentID).
		Order("created_at DESC").Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *matchRepo) ListByGroup(dbc dbctx.Context, groupID uuid.UUID) ([]*types.Match, error) {
	var out []*types.Match
	if groupID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("group_id = ?", groupID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *matchRepo) ListBySweep(dbc dbctx.Context, sweepID uuid.UUID) ([]*types.Match, error) {
	var out []*types.Match
	if sweepID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("sweep_id = ?", sweepID).Order("created_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ArchiveStale archives matches in one of statuses created before createdBefore
// and returns the archived ids.
func (r *matchRepo) ArchiveStale(dbc dbctx.Context, createdBefore time.Time, statuses []types.MatchStatus, at time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if len(statuses) == 0 {
		return ids, nil
	}
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		if err := txx.Model(&types.Match{}).
			Where("created_at < ? AND status IN ?", createdBefore, statuses).
			Order("id ASC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return txx.Model(&types.Match{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":      types.MatchStatusArchived,
				"archived_at": at,
				"updated_at":  at,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
