package exchange

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/homeswap-backend/internal/domain"
	"github.com/yungbote/homeswap-backend/internal/platform/dbctx"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

// CandidateFilter narrows SelectCandidates.
type CandidateFilter struct {
	// GeohashCells restricts candidates to homes whose geohash starts with one of
	// the cells. Empty disables the prefilter.
	GeohashCells []string
	Limit        int
}

// SeekerFilter narrows ListEligibleSeekers.
type SeekerFilter struct {
	Now time.Time
	// SweptBefore, when set, keeps only intents never swept, swept before this
	// instant, or updated since their last sweep.
	SweptBefore *time.Time
	// SkipQueued drops intents that already have an open match job.
	SkipQueued bool
	Limit      int
}

type IntentRepo interface {
	Create(dbc dbctx.Context, intents []*types.Intent) ([]*types.Intent, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Intent, error)
	LoadGraph(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Intent, error)
	LockByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Intent, error)
	SelectCandidates(dbc dbctx.Context, seeker *types.Intent, f CandidateFilter) ([]*types.Intent, error)
	ListEligibleSeekers(dbc dbctx.Context, f SeekerFilter) ([]uuid.UUID, error)
	MarkSwept(dbc dbctx.Context, id uuid.UUID, at time.Time) error
	ConsumeCredits(dbc dbctx.Context, id uuid.UUID, n int, at time.Time) (bool, error)
	AddCredits(dbc dbctx.Context, id uuid.UUID, n int, at time.Time) (bool, error)
	RefundCredits(dbc dbctx.Context, id uuid.UUID, n int, cooldownUntil time.Time, at time.Time) (bool, error)
	SetActivelySearching(dbc dbctx.Context, id uuid.UUID, active bool, at time.Time) error
}

type intentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIntentRepo(db *gorm.DB, baseLog *logger.Logger) IntentRepo {
	return &intentRepo{db: db, log: baseLog.With("repo", "IntentRepo")}
}

func (r *intentRepo) Create(dbc dbctx.Context, intents []*types.Intent) ([]*types.Intent, error) {
	if len(intents) == 0 {
		return []*types.Intent{}, nil
	}
	if err := dbc.DB(r.db).Omit(clause.Associations).Create(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

func withGraph(q *gorm.DB) *gorm.DB {
	return q.Preload("User").Preload("Home").Preload("Search").Preload("Search.Zones")
}

func (r *intentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Intent, error) {
	if id == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	var in types.Intent
	if err := withGraph(dbc.DB(r.db)).Where("id = ?", id).First(&in).Error; err != nil {
		return nil, err
	}
	return &in, nil
}

// LoadGraph returns the intents with User, Home and Search.Zones preloaded, ordered by id.
func (r *intentRepo) LoadGraph(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Intent, error) {
	var out []*types.Intent
	if len(ids) == 0 {
		return out, nil
	}
	if err := withGraph(dbc.DB(r.db)).Where("id IN ?", ids).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// LockByIDs takes row locks in id order so concurrent formations touching
// overlapping intents cannot deadlock. Must run inside a transaction.
func (r *intentRepo) LockByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Intent, error) {
	if dbc.Tx == nil {
		return nil, errors.New("intent lock requires a transaction")
	}
	var out []*types.Intent
	if len(ids) == 0 {
		return out, nil
	}
	err := dbc.DB(r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *intentRepo) SelectCandidates(dbc dbctx.Context, seeker *types.Intent, f CandidateFilter) ([]*types.Intent, error) {
	var out []*types.Intent
	if seeker == nil || seeker.ID == uuid.Nil {
		return out, nil
	}
	q := withGraph(dbc.DB(r.db)).
		Where("is_in_flow = ? AND total_matches_remaining > 0", true).
		Where("id <> ? AND user_id <> ?", seeker.ID, seeker.UserID).
		Where(`NOT EXISTS (
			SELECT 1 FROM exchange_match m
			WHERE m.status <> ?
			AND (
				(m.seeker_intent_id = ? AND m.target_intent_id = intent.id)
				OR (m.seeker_intent_id = intent.id AND m.target_intent_id = ?)
			)
		)`, string(types.MatchStatusArchived), seeker.ID, seeker.ID)

	if len(f.GeohashCells) > 0 {
		conds := make([]string, 0, len(f.GeohashCells))
		args := make([]interface{}, 0, len(f.GeohashCells))
		for _, cell := range f.GeohashCells {
			conds = append(conds, "geohash LIKE ?")
			args = append(args, cell+"%")
		}
		q = q.Where("home_id IN (SELECT id FROM home WHERE "+strings.Join(conds, " OR ")+")", args...)
	}
	q = q.Order("created_at ASC").Order("id ASC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *intentRepo) ListEligibleSeekers(dbc dbctx.Context, f SeekerFilter) ([]uuid.UUID, error) {
	now := f.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	q := dbc.DB(r.db).Model(&types.Intent{}).
		Where("is_in_flow = ? AND is_actively_searching = ? AND total_matches_remaining > 0", true, true).
		Where("refund_cooldown_until IS NULL OR refund_cooldown_until < ?", now)
	if f.SweptBefore != nil {
		q = q.Where("last_swept_at IS NULL OR last_swept_at < ? OR updated_at > last_swept_at", *f.SweptBefore)
	}
	if f.SkipQueued {
		q = q.Where(`NOT EXISTS (
			SELECT 1 FROM match_job j
			WHERE j.intent_id = intent.id AND j.status IN ?
		)`, []string{types.MatchJobQueued, types.MatchJobRunning, types.MatchJobFailed})
	}
	q = q.Order("created_at ASC").Order("id ASC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var ids []uuid.UUID
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// MarkSwept stamps last_swept_at without touching updated_at, which the
// re-sweep filter compares against.
func (r *intentRepo) MarkSwept(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).Model(&types.Intent{}).
		Where("id = ?", id).
		UpdateColumn("last_swept_at", at).Error
}

// ConsumeCredits spends n credits if at least n remain, leaving the flow when
// the balance reaches zero. It reports false when the guard rejected the update.
func (r *intentRepo) ConsumeCredits(dbc dbctx.Context, id uuid.UUID, n int, at time.Time) (bool, error) {
	res := dbc.DB(r.db).Model(&types.Intent{}).
		Where("id = ? AND total_matches_remaining >= ?", id, n).
		Updates(map[string]interface{}{
			"total_matches_used":      gorm.Expr("total_matches_used + ?", n),
			"total_matches_remaining": gorm.Expr("total_matches_remaining - ?", n),
			"is_in_flow":              gorm.Expr("CASE WHEN total_matches_remaining - ? <= 0 THEN ? ELSE is_in_flow END", n, false),
			"updated_at":              at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AddCredits records a purchase; the intent re-enters the flow if its owner is still searching.
func (r *intentRepo) AddCredits(dbc dbctx.Context, id uuid.UUID, n int, at time.Time) (bool, error) {
	res := dbc.DB(r.db).Model(&types.Intent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_matches_purchased": gorm.Expr("total_matches_purchased + ?", n),
			"total_matches_remaining": gorm.Expr("total_matches_remaining + ?", n),
			"is_in_flow":              gorm.Expr("is_actively_searching"),
			"updated_at":              at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *intentRepo) RefundCredits(dbc dbctx.Context, id uuid.UUID, n int, cooldownUntil time.Time, at time.Time) (bool, error) {
	res := dbc.DB(r.db).Model(&types.Intent{}).
		Where("id = ? AND total_matches_remaining >= ?", id, n).
		Updates(map[string]interface{}{
			"total_matches_refunded":  gorm.Expr("total_matches_refunded + ?", n),
			"total_matches_remaining": gorm.Expr("total_matches_remaining - ?", n),
			"is_in_flow":              gorm.Expr("CASE WHEN total_matches_remaining - ? <= 0 THEN ? ELSE is_in_flow END", n, false),
			"refund_cooldown_until":   cooldownUntil,
			"updated_at":              at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetActivelySearching toggles the user's searching flag; stopping also leaves the flow.
func (r *intentRepo) SetActivelySearching(dbc dbctx.Context, id uuid.UUID, active bool, at time.Time) error {
	updates := map[string]interface{}{
		"is_actively_searching": active,
		"updated_at":            at,
	}
	if active {
		updates["is_in_flow"] = gorm.Expr("total_matches_remaining > 0")
	} else {
		updates["is_in_flow"] = false
	}
	return dbc.DB(r.db).Model(&types.Intent{}).Where("id = ?", id).Updates(updates).Error
}
