package exchange

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Intent is a user's standing exchange declaration: the home offered, the search
// criteria, and the purchased match credits.
type Intent struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	HomeID   uuid.UUID `gorm:"type:uuid;not null;index" json:"home_id"`
	SearchID uuid.UUID `gorm:"type:uuid;not null;index" json:"search_id"`

	TotalMatchesPurchased int `gorm:"column:total_matches_purchased;not null" json:"total_matches_purchased"`
	TotalMatchesUsed      int `gorm:"column:total_matches_used;not null" json:"total_matches_used"`
	TotalMatchesRefunded  int `gorm:"column:total_matches_refunded;not null" json:"total_matches_refunded"`
	TotalMatchesRemaining int `gorm:"column:total_matches_remaining;not null;index" json:"total_matches_remaining"`

	IsInFlow            bool       `gorm:"column:is_in_flow;not null;index" json:"is_in_flow"`
	IsActivelySearching bool       `gorm:"column:is_actively_searching;not null" json:"is_actively_searching"`
	RefundCooldownUntil *time.Time `gorm:"column:refund_cooldown_until" json:"refund_cooldown_until,omitempty"`
	LastSweptAt         *time.Time `gorm:"column:last_swept_at;index" json:"last_swept_at,omitempty"`

	User   *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Home   *Home   `gorm:"foreignKey:HomeID" json:"home,omitempty"`
	Search *Search `gorm:"foreignKey:SearchID" json:"search,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (Intent) TableName() string { return "intent" }

func (i *Intent) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// CheckCredits verifies remaining = purchased - used - refunded and remaining >= 0.
func (i *Intent) CheckCredits() error {
	if i == nil {
		return fmt.Errorf("nil intent")
	}
	want := i.TotalMatchesPurchased - i.TotalMatchesUsed - i.TotalMatchesRefunded
	if i.TotalMatchesRemaining != want {
		return fmt.Errorf("intent %s: remaining=%d want %d (purchased=%d used=%d refunded=%d)",
			i.ID, i.TotalMatchesRemaining, want, i.TotalMatchesPurchased, i.TotalMatchesUsed, i.TotalMatchesRefunded)
	}
	if i.TotalMatchesRemaining < 0 {
		return fmt.Errorf("intent %s: negative remaining credits", i.ID)
	}
	return nil
}

// Eligible reports whether the intent may take part in a new match right now.
func (i *Intent) Eligible() bool {
	return i != nil && i.IsInFlow && i.TotalMatchesRemaining > 0
}

// Complete reports whether the home and search (with zones) are loaded.
func (i *Intent) Complete() bool {
	return i != nil && i.Home != nil && i.Search != nil && i.Home.ID != uuid.Nil && i.Search.ID != uuid.Nil
}
