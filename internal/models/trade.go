package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideLong  = "LONG"
	SideShort = "SHORT"

	// Contract kinds. Delivery contracts pay a fixed percentage and expire
	// after a set duration; perpetual contracts are leveraged and carry a
	// liquidation price instead of an expiry.
	KindDelivery  = "delivery"
	KindPerpetual = "perpetual"

	StatusActive = "active"
	StatusClosed = "closed"

	ResultWin  = "win"
	ResultLoss = "loss"
)

// Trade represents a single position. A trade is created by Open with
// status "active" and transitions exactly once to "closed"; it is never
// reopened or mutated afterwards.
type Trade struct {
	ID     string `gorm:"primaryKey" json:"id"`
	UserID string `gorm:"index;not null" json:"user_id"`
	Symbol string `gorm:"not null" json:"symbol"`
	Side   string `gorm:"not null" json:"side"`
	Kind   string `gorm:"not null" json:"kind"`

	Amount     decimal.Decimal `gorm:"type:decimal(32,16)" json:"amount"`
	EntryPrice decimal.Decimal `gorm:"type:decimal(32,16)" json:"entry_price"`
	ExitPrice  decimal.Decimal `gorm:"type:decimal(32,16)" json:"exit_price"`

	// Delivery contracts only.
	ProfitPercent   decimal.Decimal `gorm:"type:decimal(32,16)" json:"profit_percent"`
	DurationSeconds int64           `json:"duration_seconds"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`

	// Perpetual contracts only.
	Leverage         decimal.Decimal `gorm:"type:decimal(32,16)" json:"leverage"`
	LiquidationPrice decimal.Decimal `gorm:"type:decimal(32,16)" json:"liquidation_price"`

	Status string          `gorm:"index;not null" json:"status"`
	Result string          `json:"result,omitempty"`
	Pnl    decimal.Decimal `gorm:"type:decimal(32,16)" json:"pnl"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}
