package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/homeswap-backend/internal/domain"
	"github.com/yungbote/homeswap-backend/internal/platform/dbctx"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

type MatchJobRepo interface {
	Enqueue(dbc dbctx.Context, sweepID uuid.UUID, intentIDs []uuid.UUID) (int, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.MatchJob, error)
	ClaimNextRunnable(dbc dbctx.Context, workerID string, maxAttempts int, staleRunning time.Duration) (*types.MatchJob, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID, workerID string) error
	MarkSucceeded(dbc dbctx.Context, id uuid.UUID, result datatypes.JSON) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID, errMsg string, nextRunAt time.Time) error
	MarkDead(dbc dbctx.Context, id uuid.UUID, errMsg string) error
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
	PurgeFinished(dbc dbctx.Context, olderThan time.Time) (int64, error)
}

const errAbandoned = "worker stopped heartbeating on the last attempt"

type matchJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func NewMatchJobRepo(db *gorm.DB, baseLog *logger.Logger) MatchJobRepo {
	return &matchJobRepo{
		db:  db,
		log: baseLog.With("repo", "MatchJobRepo"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue writes one queued job per intent. Intents that already have an open
// job are skipped by the partial unique index on Postgres; the caller's
// eligibility query does the same job on other dialects.
func (r *matchJobRepo) Enqueue(dbc dbctx.Context, sweepID uuid.UUID, intentIDs []uuid.UUID) (int, error) {
	if len(intentIDs) == 0 {
		return 0, nil
	}
	now := r.now()
	rows := make([]*types.MatchJob, 0, len(intentIDs))
	for _, id := range intentIDs {
		rows = append(rows, &types.MatchJob{
			IntentID:  id,
			SweepID:   sweepID,
			Status:    types.MatchJobQueued,
			NextRunAt: &now,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	res := dbc.DB(r.db).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 500)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (r *matchJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.MatchJob, error) {
	var job types.MatchJob
	if err := dbc.DB(r.db).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimNextRunnable picks the oldest queued job, a failed job whose backoff has
// elapsed, or a running job whose worker stopped heartbeating. A stale running
// job that already used maxAttempts is marked dead instead of reclaimed.
// Concurrent claimers skip each other's locked rows.
func (r *matchJobRepo) ClaimNextRunnable(dbc dbctx.Context, workerID string, maxAttempts int, staleRunning time.Duration) (*types.MatchJob, error) {
	now := r.now()
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.MatchJob
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		abandoned := txx.Model(&types.MatchJob{}).
			Where("status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ? AND attempts >= ?",
				types.MatchJobRunning, staleCutoff, maxAttempts).
			Updates(map[string]interface{}{
				"status":        types.MatchJobDead,
				"error":         errAbandoned,
				"last_error_at": now,
				"updated_at":    now,
			})
		if abandoned.Error != nil {
			return abandoned.Error
		}
		if abandoned.RowsAffected > 0 {
			r.log.Warn("abandoned match jobs marked dead", "count", abandoned.RowsAffected, "max_attempts", maxAttempts)
		}

		var job types.MatchJob
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (
          status = ?
          OR (
            status = ?
            AND attempts < ?
            AND (next_run_at IS NULL OR next_run_at <= ?)
          )
          OR (
            status = ?
            AND attempts < ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, types.MatchJobQueued, types.MatchJobFailed, maxAttempts, now, types.MatchJobRunning, maxAttempts, staleCutoff).
			Order("created_at ASC").
			Order("id ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.MatchJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       types.MatchJobRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"worker_id":    workerID,
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.Status = types.MatchJobRunning
		job.Attempts++
		job.WorkerID = workerID
		job.LockedAt = &now
		job.HeartbeatAt = &now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Heartbeat only touches the job while workerID still owns it.
func (r *matchJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID, workerID string) error {
	if id == uuid.Nil {
		return nil
	}
	now := r.now()
	return dbc.DB(r.db).
		Model(&types.MatchJob{}).
		Where("id = ? AND status = ? AND worker_id = ?", id, types.MatchJobRunning, workerID).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *matchJobRepo) MarkSucceeded(dbc dbctx.Context, id uuid.UUID, result datatypes.JSON) error {
	now := r.now()
	updates := map[string]interface{}{
		"status":     types.MatchJobSucceeded,
		"error":      "",
		"updated_at": now,
	}
	if len(result) > 0 {
		updates["result"] = result
	}
	return dbc.DB(r.db).Model(&types.MatchJob{}).Where("id = ?", id).Updates(updates).Error
}

func (r *matchJobRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, errMsg string, nextRunAt time.Time) error {
	now := r.now()
	return dbc.DB(r.db).Model(&types.MatchJob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        types.MatchJobFailed,
		"error":         errMsg,
		"last_error_at": now,
		"next_run_at":   nextRunAt,
		"updated_at":    now,
	}).Error
}

func (r *matchJobRepo) MarkDead(dbc dbctx.Context, id uuid.UUID, errMsg string) error {
	now := r.now()
	return dbc.DB(r.db).Model(&types.MatchJob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        types.MatchJobDead,
		"error":         errMsg,
		"last_error_at": now,
		"updated_at":    now,
	}).Error
}

func (r *matchJobRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := dbc.DB(r.db).Model(&types.MatchJob{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// PurgeFinished deletes succeeded and dead jobs last updated before olderThan.
func (r *matchJobRepo) PurgeFinished(dbc dbctx.Context, olderThan time.Time) (int64, error) {
	res := dbc.DB(r.db).
		Where("status IN ? AND updated_at < ?", []string{types.MatchJobSucceeded, types.MatchJobDead}, olderThan).
		Delete(&types.MatchJob{})
	return res.RowsAffected, res.Error
}
