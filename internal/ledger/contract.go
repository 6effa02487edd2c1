package ledger

import (
	"fmt"
	"time"

	"trade-settlement-go/internal/models"

	"github.com/shopspring/decimal"
)

// ContractKind is the tagged variant describing how a position settles.
// Exactly two kinds exist: Delivery (fixed duration, fixed payout
// percentage) and Perpetual (leveraged, liquidation price).
type ContractKind interface {
	kindName() string
	validate() error
}

// Delivery is a fixed-duration contract paying ProfitPercent of the
// committed amount on a win.
type Delivery struct {
	ProfitPercent decimal.Decimal
	Duration      time.Duration
}

func (Delivery) kindName() string { return models.KindDelivery }

func (d Delivery) validate() error {
	if !d.ProfitPercent.IsPositive() {
		return fmt.Errorf("%w: profit percent must be positive", ErrInvalidRequest)
	}
	if d.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	return nil
}

// Perpetual is a leveraged contract with no expiry; it is closed
// manually or liquidated when the mark price crosses the liquidation
// price computed at open.
type Perpetual struct {
	Leverage decimal.Decimal
}

func (Perpetual) kindName() string { return models.KindPerpetual }

func (p Perpetual) validate() error {
	if p.Leverage.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: leverage must be at least 1", ErrInvalidRequest)
	}
	return nil
}

// liquidationPrice computes the price at which a position's margin is
// exhausted: a full adverse move of 1/leverage from the entry price.
func (p Perpetual) liquidationPrice(side string, entry decimal.Decimal) decimal.Decimal {
	step := entry.Div(p.Leverage)
	if side == models.SideLong {
		return entry.Sub(step)
	}
	return entry.Add(step)
}
