package domain

import (
	"github.com/yungbote/homeswap-backend/internal/domain/exchange"
	"github.com/yungbote/homeswap-backend/internal/domain/jobs"
	"github.com/yungbote/homeswap-backend/internal/domain/matches"
)

const (
	MaxZonesPerSearch = exchange.MaxZonesPerSearch
	GeohashPrecision  = exchange.GeohashPrecision

	MatchStatusNew           = matches.StatusNew
	MatchStatusInProgress    = matches.StatusInProgress
	MatchStatusNotInterested = matches.StatusNotInterested
	MatchStatusArchived      = matches.StatusArchived

	MatchTypeStandard = matches.TypeStandard
	MatchTypeTriangle = matches.TypeTriangle

	MatchJobQueued    = jobs.MatchJobQueued
	MatchJobRunning   = jobs.MatchJobRunning
	MatchJobSucceeded = jobs.MatchJobSucceeded
	MatchJobFailed    = jobs.MatchJobFailed
	MatchJobDead      = jobs.MatchJobDead
)

type User = exchange.User
type Home = exchange.Home
type HomeType = exchange.HomeType
type Search = exchange.Search
type SearchZone = exchange.SearchZone
type Intent = exchange.Intent

type Match = matches.Match
type MatchStatus = matches.MatchStatus
type MatchType = matches.MatchType
type Snapshot = matches.Snapshot
type StandardSnapshot = matches.StandardSnapshot
type TriangleSnapshot = matches.TriangleSnapshot
type EdgeSummary = matches.EdgeSummary
type StepSummary = matches.StepSummary
type Participant = matches.Participant

type MatchJob = jobs.MatchJob
type MatchClaim = jobs.MatchClaim

// AllModels lists every persisted model in migration order.
func AllModels() []any {
	return []any{
		&User{},
		&Home{},
		&Search{},
		&SearchZone{},
		&Intent{},
		&Match{},
		&MatchJob{},
		&MatchClaim{},
	}
}
