package matches

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type MatchStatus string

const (
	StatusNew           MatchStatus = "NEW"
	StatusInProgress    MatchStatus = "IN_PROGRESS"
	StatusNotInterested MatchStatus = "NOT_INTERESTED"
	StatusArchived      MatchStatus = "ARCHIVED"
)

type MatchType string

const (
	TypeStandard MatchType = "STANDARD"
	TypeTriangle MatchType = "TRIANGLE"
)

// ErrInvalidMatchType is returned by ParseMatchType for anything other than
// STANDARD or TRIANGLE, including an empty value.
var ErrInvalidMatchType = fmt.Errorf("invalid match type")

// ParseMatchType never falls back to a default: a missing type is a data
// integrity problem the caller must surface.
func ParseMatchType(raw string) (MatchType, error) {
	switch MatchType(strings.TrimSpace(raw)) {
	case TypeStandard:
		return TypeStandard, nil
	case TypeTriangle:
		return TypeTriangle, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMatchType, raw)
	}
}

// Match is one directed edge of a proposed exchange: the seeker gets the target's home.
// STANDARD matches come as a mirrored pair; TRIANGLE matches as three rows sharing GroupID.
type Match struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Status         MatchStatus    `gorm:"column:status;not null;index" json:"status"`
	Type           MatchType      `gorm:"column:type;index" json:"type"`
	SeekerIntentID uuid.UUID      `gorm:"type:uuid;column:seeker_intent_id;not null;index:idx_match_pair,priority:1" json:"seeker_intent_id"`
	TargetIntentID uuid.UUID      `gorm:"type:uuid;column:target_intent_id;not null;index:idx_match_pair,priority:2;index" json:"target_intent_id"`
	TargetHomeID   uuid.UUID      `gorm:"type:uuid;column:target_home_id;not null" json:"target_home_id"`
	GroupID        *uuid.UUID     `gorm:"type:uuid;column:group_id;index" json:"group_id,omitempty"`
	SweepID        uuid.UUID      `gorm:"type:uuid;column:sweep_id;not null;index" json:"sweep_id"`
	Snapshot       datatypes.JSON `gorm:"column:snapshot;not null" json:"snapshot"`
	ArchivedAt     *time.Time     `gorm:"column:archived_at" json:"archived_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (Match) TableName() string { return "exchange_match" }

func (m *Match) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Active reports whether the match still blocks the pair from being re-matched.
func (m *Match) Active() bool { return m != nil && m.Status != StatusArchived }

// DecodedSnapshot parses the snapshot column into its versioned variant.
func (m *Match) DecodedSnapshot() (Snapshot, error) {
	if m == nil {
		return nil, fmt.Errorf("nil match")
	}
	return DecodeSnapshot(m.Snapshot)
}
