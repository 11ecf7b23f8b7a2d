package aggregates

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/homeswap-backend/internal/domain/matches"
)

// StandardInput asks for a reciprocal match between seeker and target.
type StandardInput struct {
	SweepID        uuid.UUID
	SeekerIntentID uuid.UUID
	TargetIntentID uuid.UUID
	// Edges are the passing evaluations in both directions, kept in the snapshot.
	Edges []matches.EdgeSummary
}

// TriangleInput asks for a cycle A->B->C->A where each party gets the next party's home.
type TriangleInput struct {
	SweepID   uuid.UUID
	IntentIDs [3]uuid.UUID
	Edges     []matches.EdgeSummary
}

type FormationResult struct {
	GroupID *uuid.UUID
	Matches []matches.Match
	// RemovedFromFlow lists intents whose last credit was spent by this formation.
	RemovedFromFlow []uuid.UUID
}

// MatchFormationAggregate owns the credit-consuming write boundary of the matching engine.
type MatchFormationAggregate interface {
	Aggregate
	FormStandard(ctx context.Context, in StandardInput) (FormationResult, error)
	FormTriangle(ctx context.Context, in TriangleInput) (FormationResult, error)
}
