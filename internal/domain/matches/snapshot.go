package matches

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SnapshotVersionStandard = 1
	SnapshotVersionTriangle = 2
)

var ErrUnknownSnapshotVersion = errors.New("unknown snapshot version")

// Snapshot is the immutable capture stored on a Match row. The concrete type is
// selected by the version discriminant, never by probing for fields.
type Snapshot interface {
	SnapshotVersion() int
}

type HomeSnapshot struct {
	HomeID   uuid.UUID `json:"homeId"`
	Address  string    `json:"address"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	HomeType string    `json:"homeType"`
	NbRooms  int       `json:"nbRooms"`
	Surface  float64   `json:"surface"`
	Rent     float64   `json:"rent"`
}

type ZoneSnapshot struct {
	Label    string  `json:"label"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	RadiusKm float64 `json:"radiusKm"`
}

type SearchSnapshot struct {
	SearchID        uuid.UUID      `json:"searchId"`
	MinRent         *float64       `json:"minRent,omitempty"`
	MaxRent         *float64       `json:"maxRent,omitempty"`
	MinRoomSurface  *float64       `json:"minRoomSurface,omitempty"`
	MaxRoomSurface  *float64       `json:"maxRoomSurface,omitempty"`
	MinRoomNb       *int           `json:"minRoomNb,omitempty"`
	MaxRoomNb       *int           `json:"maxRoomNb,omitempty"`
	HomeTypes       []string       `json:"homeTypes"`
	SearchStartDate *time.Time     `json:"searchStartDate,omitempty"`
	SearchEndDate   *time.Time     `json:"searchEndDate,omitempty"`
	Zones           []ZoneSnapshot `json:"zones"`
}

// StepSummary is the persisted form of a single compatibility check.
type StepSummary struct {
	Step    string         `json:"step"`
	Passed  bool           `json:"passed"`
	Reason  string         `json:"reason"`
	Details map[string]any `json:"details,omitempty"`
}

// EdgeSummary explains why From's search accepts To's home.
type EdgeSummary struct {
	FromIntentID uuid.UUID     `json:"fromIntentId"`
	ToIntentID   uuid.UUID     `json:"toIntentId"`
	Steps        []StepSummary `json:"steps"`
}

// StandardSnapshot (version 1) captures both parties of a reciprocal match.
type StandardSnapshot struct {
	Version        int            `json:"version"`
	CapturedAt     time.Time      `json:"capturedAt"`
	SeekerIntentID uuid.UUID      `json:"seekerIntentId"`
	TargetIntentID uuid.UUID      `json:"targetIntentId"`
	SeekerSearch   SearchSnapshot `json:"seekerSearch"`
	SeekerHome     HomeSnapshot   `json:"seekerHome"`
	TargetSearch   SearchSnapshot `json:"targetSearch"`
	TargetHome     HomeSnapshot   `json:"targetHome"`
	Edges          []EdgeSummary  `json:"edges,omitempty"`
}

func (StandardSnapshot) SnapshotVersion() int { return SnapshotVersionStandard }

type Participant struct {
	IntentID    uuid.UUID `json:"intentId"`
	UserID      uuid.UUID `json:"userId"`
	Name        string    `json:"name"`
	HomeAddress string    `json:"homeAddress"`
}

// TriangleSnapshot (version 2) is shared by the three rows of a cycle.
// Participants are keyed "A", "B", "C" following the cycle A->B->C->A;
// Searches and Homes are keyed by intent id.
type TriangleSnapshot struct {
	Version      int                       `json:"version"`
	CapturedAt   time.Time                 `json:"capturedAt"`
	GroupID      uuid.UUID                 `json:"groupId"`
	Participants map[string]Participant    `json:"participants"`
	Searches     map[string]SearchSnapshot `json:"searches"`
	Homes        map[string]HomeSnapshot   `json:"homes"`
	Edges        []EdgeSummary             `json:"edges"`
}

func (TriangleSnapshot) SnapshotVersion() int { return SnapshotVersionTriangle }

// EncodeSnapshot stamps the version discriminant and serializes the variant.
func EncodeSnapshot(s Snapshot) (datatypes.JSON, error) {
	switch v := s.(type) {
	case StandardSnapshot:
		v.Version = SnapshotVersionStandard
		return marshalSnapshot(v)
	case *StandardSnapshot:
		cp := *v
		cp.Version = SnapshotVersionStandard
		return marshalSnapshot(cp)
	case TriangleSnapshot:
		v.Version = SnapshotVersionTriangle
		return marshalSnapshot(v)
	case *TriangleSnapshot:
		cp := *v
		cp.Version = SnapshotVersionTriangle
		return marshalSnapshot(cp)
	case nil:
		return nil, fmt.Errorf("encode snapshot: nil snapshot")
	default:
		return nil, fmt.Errorf("encode snapshot: unsupported type %T", s)
	}
}

func marshalSnapshot(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return datatypes.JSON(b), nil
}

// DecodeSnapshot returns *StandardSnapshot or *TriangleSnapshot.
func DecodeSnapshot(raw []byte) (Snapshot, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("decode snapshot: empty payload")
	}
	var head struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	switch head.Version {
	case SnapshotVersionStandard:
		var s StandardSnapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode standard snapshot: %w", err)
		}
		return &s, nil
	case SnapshotVersionTriangle:
		var s TriangleSnapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode triangle snapshot: %w", err)
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownSnapshotVersion, head.Version)
	}
}
