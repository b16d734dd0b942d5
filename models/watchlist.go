package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WatchlistItem represents a symbol a user tracks on the dashboard.
// Watchlisted symbols drive the scheduler's background candle sync.
type WatchlistItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index:idx_user_symbol,unique" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Symbol    string    `gorm:"index:idx_user_symbol,unique;not null" json:"symbol"`
	Provider  string    `gorm:"default:'binance'" json:"provider"`
	Interval  string    `gorm:"default:'1h'" json:"interval"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceAlert represents a threshold alert on a symbol's close price
type PriceAlert struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UserID      uint            `gorm:"index" json:"user_id"`
	User        User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Symbol      string          `gorm:"index;not null" json:"symbol"`
	Provider    string          `gorm:"default:'binance'" json:"provider"`
	Threshold   decimal.Decimal `gorm:"type:decimal(20,8)" json:"threshold"`
	Direction   string          `json:"direction"` // above, below
	IsActive    bool            `gorm:"default:true" json:"is_active"`
	TriggeredAt *time.Time      `json:"triggered_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ShouldTrigger reports whether the alert fires for the given close price
func (a *PriceAlert) ShouldTrigger(price decimal.Decimal) bool {
	if !a.IsActive || a.TriggeredAt != nil {
		return false
	}
	switch a.Direction {
	case "above":
		return price.GreaterThanOrEqual(a.Threshold)
	case "below":
		return price.LessThanOrEqual(a.Threshold)
	}
	return false
}

// MigrateWatchlistModels runs database migrations for watchlist-related models
func MigrateWatchlistModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&WatchlistItem{},
		&PriceAlert{},
	)
}
