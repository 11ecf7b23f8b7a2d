package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/homeswap-backend/internal/data/repos/exchange"
	"github.com/yungbote/homeswap-backend/internal/data/repos/jobs"
	"github.com/yungbote/homeswap-backend/internal/data/repos/matches"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

type IntentRepo = exchange.IntentRepo
type ListingRepo = exchange.ListingRepo
type CandidateFilter = exchange.CandidateFilter
type SeekerFilter = exchange.SeekerFilter

type MatchRepo = matches.MatchRepo
type MatchJobRepo = jobs.MatchJobRepo

type Repos struct {
	Intent   IntentRepo
	Listing  ListingRepo
	Match    MatchRepo
	MatchJob MatchJobRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Intent:   exchange.NewIntentRepo(db, log),
		Listing:  exchange.NewListingRepo(db, log),
		Match:    matches.NewMatchRepo(db, log),
		MatchJob: jobs.NewMatchJobRepo(db, log),
	}
}
