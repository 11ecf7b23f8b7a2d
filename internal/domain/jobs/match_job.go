package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MatchJobQueued    = "queued"
	MatchJobRunning   = "running"
	MatchJobSucceeded = "succeeded"
	MatchJobFailed    = "failed"
	MatchJobDead      = "dead"
)

// MatchJob is one queued seeker evaluation, written by the enqueue phase and
// claimed by workers.
type MatchJob struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	IntentID    uuid.UUID      `gorm:"type:uuid;column:intent_id;not null;index" json:"intent_id"`
	SweepID     uuid.UUID      `gorm:"type:uuid;column:sweep_id;not null;index" json:"sweep_id"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Attempts    int            `gorm:"column:attempts;not null" json:"attempts"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	WorkerID    string         `gorm:"column:worker_id" json:"worker_id,omitempty"`
	LockedAt    *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt *time.Time     `gorm:"column:last_error_at;index" json:"last_error_at,omitempty"`
	NextRunAt   *time.Time     `gorm:"column:next_run_at;index" json:"next_run_at,omitempty"`
	Result      datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;index" json:"updated_at"`
}

func (MatchJob) TableName() string { return "match_job" }

func (j *MatchJob) BeforeCreate(*gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// MatchClaim is a leased, owner-tagged claim on an arbitrary key.
type MatchClaim struct {
	Key       string    `gorm:"column:claim_key;primaryKey;size:191" json:"key"`
	Owner     string    `gorm:"column:owner;not null" json:"owner"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (MatchClaim) TableName() string { return "match_claim" }
