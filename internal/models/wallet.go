package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sub-balance names within a wallet. Only the trading balance
// participates in trade open/close.
const (
	BalanceFunding    = "funding"
	BalanceTrading    = "trading"
	BalanceCommission = "commission"
)

// Wallet is the per-user balance ledger, subdivided into named
// sub-balances. No sub-balance may ever go negative.
type Wallet struct {
	UserID     string          `gorm:"primaryKey" json:"user_id"`
	Funding    decimal.Decimal `gorm:"type:decimal(32,16)" json:"funding"`
	Trading    decimal.Decimal `gorm:"type:decimal(32,16)" json:"trading"`
	Commission decimal.Decimal `gorm:"type:decimal(32,16)" json:"commission"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Balance returns the named sub-balance, or false if the name is unknown.
func (w *Wallet) Balance(name string) (decimal.Decimal, bool) {
	switch name {
	case BalanceFunding:
		return w.Funding, true
	case BalanceTrading:
		return w.Trading, true
	case BalanceCommission:
		return w.Commission, true
	}
	return decimal.Zero, false
}

// SetBalance overwrites the named sub-balance, returning false if the
// name is unknown.
func (w *Wallet) SetBalance(name string, v decimal.Decimal) bool {
	switch name {
	case BalanceFunding:
		w.Funding = v
	case BalanceTrading:
		w.Trading = v
	case BalanceCommission:
		w.Commission = v
	default:
		return false
	}
	return true
}
