package exchange

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/homeswap-backend/internal/domain"
	"github.com/yungbote/homeswap-backend/internal/platform/dbctx"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

// ListingRepo writes the user-owned inputs of matching: accounts, homes and searches.
// The matching engine itself only reads them.
type ListingRepo interface {
	CreateUser(dbc dbctx.Context, u *types.User) error
	CreateHome(dbc dbctx.Context, h *types.Home) error
	CreateSearch(dbc dbctx.Context, s *types.Search) error
	GetHome(dbc dbctx.Context, id uuid.UUID) (*types.Home, error)
}

type listingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewListingRepo(db *gorm.DB, baseLog *logger.Logger) ListingRepo {
	return &listingRepo{db: db, log: baseLog.With("repo", "ListingRepo")}
}

func (r *listingRepo) CreateUser(dbc dbctx.Context, u *types.User) error {
	return dbc.DB(r.db).Create(u).Error
}

func (r *listingRepo) CreateHome(dbc dbctx.Context, h *types.Home) error {
	return dbc.DB(r.db).Create(h).Error
}

// CreateSearch inserts the search and its zones.
func (r *listingRepo) CreateSearch(dbc dbctx.Context, s *types.Search) error {
	if len(s.Zones) > types.MaxZonesPerSearch {
		return ErrTooManyZones
	}
	return dbc.DB(r.db).Create(s).Error
}

func (r *listingRepo) GetHome(dbc dbctx.Context, id uuid.UUID) (*types.Home, error) {
	var h types.Home
	if err := dbc.DB(r.db).Where("id = ?", id).First(&h).Error; err != nil {
		return nil, err
	}
	return &h, nil
}
