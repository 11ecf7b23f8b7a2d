package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// RecordingMatchNotifier keeps every signal in memory. Used by tests and by
// the dry-run mode of cmd/matcher.
type RecordingMatchNotifier struct {
	mu       sync.Mutex
	Created  []uuid.UUID
	Archived []uuid.UUID
}

func (r *RecordingMatchNotifier) OnMatchCreated(_ context.Context, matchID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Created = append(r.Created, matchID)
}

func (r *RecordingMatchNotifier) OnMatchesArchived(_ context.Context, matchIDs []uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Archived = append(r.Archived, matchIDs...)
}

func (r *RecordingMatchNotifier) CreatedIDs() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.Created...)
}

func (r *RecordingMatchNotifier) ArchivedIDs() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.Archived...)
}
