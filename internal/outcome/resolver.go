package outcome

import (
	"context"

	"trade-settlement-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ModeReader supplies the configured settlement modes. It is an
// explicit dependency so tests can substitute their own.
type ModeReader interface {
	GetGlobalMode(ctx context.Context) (string, error)
	GetUserMode(ctx context.Context, userID string) (string, error)
}

// Resolver decides whether a closing trade is a win or a loss.
type Resolver struct {
	modes  ModeReader
	logger *zap.Logger
}

// NewResolver creates a new outcome resolver.
func NewResolver(modes ModeReader, logger *zap.Logger) *Resolver {
	return &Resolver{modes: modes, logger: logger.Named("outcome")}
}

// Resolve determines the outcome for a trade, in strict priority order:
// the user's forced mode, then the global forced mode, then price
// movement. Equal entry and exit prices resolve to a loss; the movement
// must be strictly favorable to win.
//
// A failed mode lookup is logged and falls back to the price rule, so a
// settings outage never blocks settlement.
func (r *Resolver) Resolve(ctx context.Context, userID, side string, entryPrice, exitPrice decimal.Decimal) string {
	userMode, err := r.modes.GetUserMode(ctx, userID)
	if err != nil {
		r.logger.Warn("Could not read user settlement mode, falling back to price rule",
			zap.String("user_id", userID), zap.Error(err))
		return resolveByPrice(side, entryPrice, exitPrice)
	}
	switch userMode {
	case models.ModeForceWin:
		return models.ResultWin
	case models.ModeForceLoss:
		return models.ResultLoss
	}

	globalMode, err := r.modes.GetGlobalMode(ctx)
	if err != nil {
		r.logger.Warn("Could not read global settlement mode, falling back to price rule",
			zap.Error(err))
		return resolveByPrice(side, entryPrice, exitPrice)
	}
	switch globalMode {
	case models.ModeForceWin:
		return models.ResultWin
	case models.ModeForceLoss:
		return models.ResultLoss
	}

	return resolveByPrice(side, entryPrice, exitPrice)
}

func resolveByPrice(side string, entryPrice, exitPrice decimal.Decimal) string {
	var won bool
	switch side {
	case models.SideLong:
		won = exitPrice.GreaterThan(entryPrice)
	case models.SideShort:
		won = exitPrice.LessThan(entryPrice)
	}
	if won {
		return models.ResultWin
	}
	return models.ResultLoss
}
