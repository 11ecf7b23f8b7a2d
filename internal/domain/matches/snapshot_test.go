package matches

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseMatchTypeRejectsMissingAndUnknown(t *testing.T) {
	if got, err := ParseMatchType("TRIANGLE"); err != nil || got != TypeTriangle {
		t.Fatalf("ParseMatchType(TRIANGLE) = %q, %v", got, err)
	}
	for _, raw := range []string{"", "standard", "PAIR"} {
		if _, err := ParseMatchType(raw); !errors.Is(err, ErrInvalidMatchType) {
			t.Fatalf("ParseMatchType(%q): expected ErrInvalidMatchType, got %v", raw, err)
		}
	}
}

func TestDecodeSnapshotSelectsVariantByVersion(t *testing.T) {
	seeker, target := uuid.New(), uuid.New()
	raw, err := EncodeSnapshot(StandardSnapshot{
		CapturedAt:     time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		SeekerIntentID: seeker,
		TargetIntentID: target,
		TargetHome:     HomeSnapshot{Rent: 800},
	})
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	decoded, err := DecodeSnapshot(raw)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	std, ok := decoded.(*StandardSnapshot)
	if !ok {
		t.Fatalf("expected *StandardSnapshot, got %T", decoded)
	}
	if std.Version != SnapshotVersionStandard || std.SeekerIntentID != seeker || std.TargetHome.Rent != 800 {
		t.Fatalf("unexpected standard snapshot: %+v", std)
	}

	group := uuid.New()
	raw, err = EncodeSnapshot(&TriangleSnapshot{
		GroupID:      group,
		Participants: map[string]Participant{"A": {IntentID: seeker}, "B": {IntentID: target}, "C": {IntentID: uuid.New()}},
	})
	if err != nil {
		t.Fatalf("EncodeSnapshot triangle: %v", err)
	}
	decoded, err = DecodeSnapshot(raw)
	if err != nil {
		t.Fatalf("DecodeSnapshot triangle: %v", err)
	}
	tri, ok := decoded.(*TriangleSnapshot)
	if !ok {
		t.Fatalf("expected *TriangleSnapshot, got %T", decoded)
	}
	if tri.GroupID != group || len(tri.Participants) != 3 || tri.Participants["A"].IntentID != seeker {
		t.Fatalf("unexpected triangle snapshot: %+v", tri)
	}
}

func TestDecodeSnapshotRejectsUnknownVersion(t *testing.T) {
	for _, raw := range []string{`{"seekerSearch":{}}`, `{"version":7}`} {
		if _, err := DecodeSnapshot([]byte(raw)); !errors.Is(err, ErrUnknownSnapshotVersion) {
			t.Fatalf("DecodeSnapshot(%s): expected ErrUnknownSnapshotVersion, got %v", raw, err)
		}
	}
	if _, err := DecodeSnapshot(nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}
