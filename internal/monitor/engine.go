package monitor

import (
	"context"
	"errors"
	"time"

	"trade-settlement-go/internal/ledger"
	"trade-settlement-go/internal/models"
	"trade-settlement-go/internal/pricefeed"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TradeLedger is the slice of the ledger the monitor drives.
type TradeLedger interface {
	ActiveTrades(ctx context.Context) ([]models.Trade, error)
	Close(ctx context.Context, tradeID, userID string, exitPrice decimal.Decimal) (*ledger.CloseResult, error)
	Liquidate(ctx context.Context, tradeID string, markPrice decimal.Decimal) (*ledger.CloseResult, error)
}

// Engine periodically sweeps open positions, settling delivery
// contracts that have expired and liquidating perpetual contracts whose
// mark price crossed the liquidation price.
//
// The sweep is best effort: the ledger's conditional close keeps a
// racing manual close from settling the same trade twice, and one
// trade's failure never aborts the rest of the sweep.
type Engine struct {
	logger   *zap.Logger
	ledger   TradeLedger
	prices   pricefeed.Source
	interval time.Duration
}

// NewEngine creates a monitor engine sweeping at the given interval.
func NewEngine(logger *zap.Logger, l TradeLedger, prices pricefeed.Source, interval time.Duration) *Engine {
	return &Engine{
		logger:   logger.Named("monitor"),
		ledger:   l,
		prices:   prices,
		interval: interval,
	}
}

// Run starts the sweep loop and blocks until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("Starting settlement sweep loop", zap.Duration("interval", e.interval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping settlement monitor...")
			return
		case <-ticker.C:
			if err := e.Sweep(ctx); err != nil {
				e.logger.Error("Sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one pass over all open positions.
func (e *Engine) Sweep(ctx context.Context) error {
	trades, err := e.ledger.ActiveTrades(ctx)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		return nil
	}

	// One quote per distinct symbol per sweep. A failed fetch skips that
	// symbol's trades until the next tick.
	quotes := make(map[string]decimal.Decimal)
	failed := make(map[string]bool)

	for _, trade := range trades {
		if failed[trade.Symbol] {
			continue
		}
		price, ok := quotes[trade.Symbol]
		if !ok {
			price, err = e.prices.GetPrice(ctx, trade.Symbol)
			if err != nil {
				e.logger.Warn("Skipping symbol this sweep, price unavailable",
					zap.String("symbol", trade.Symbol), zap.Error(err))
				failed[trade.Symbol] = true
				continue
			}
			quotes[trade.Symbol] = price
		}

		e.check(ctx, &trade, price)
	}

	return nil
}

// check settles a single trade if its closing condition is met.
func (e *Engine) check(ctx context.Context, trade *models.Trade, price decimal.Decimal) {
	switch trade.Kind {
	case models.KindDelivery:
		if trade.ExpiresAt == nil || time.Now().Before(*trade.ExpiresAt) {
			return
		}
		res, err := e.ledger.Close(ctx, trade.ID, trade.UserID, price)
		if err != nil {
			e.logSettleError(trade, "expiry close", err)
			return
		}
		e.logger.Info("Expired trade settled",
			zap.String("trade_id", trade.ID),
			zap.String("outcome", res.Outcome),
			zap.String("pnl", res.Pnl.String()))

	case models.KindPerpetual:
		if !liquidated(trade, price) {
			return
		}
		res, err := e.ledger.Liquidate(ctx, trade.ID, price)
		if err != nil {
			e.logSettleError(trade, "liquidation", err)
			return
		}
		e.logger.Info("Position liquidated",
			zap.String("trade_id", trade.ID),
			zap.String("mark_price", price.String()),
			zap.String("pnl", res.Pnl.String()))
	}
}

// liquidated reports whether the mark price has crossed the liquidation
// price on the adverse side of the position.
func liquidated(trade *models.Trade, price decimal.Decimal) bool {
	if trade.Side == models.SideLong {
		return price.LessThanOrEqual(trade.LiquidationPrice)
	}
	return price.GreaterThanOrEqual(trade.LiquidationPrice)
}

// logSettleError demotes the expected race with a manual close to debug;
// everything else is worth a real error entry.
func (e *Engine) logSettleError(trade *models.Trade, action string, err error) {
	if errors.Is(err, ledger.ErrAlreadyClosed) || errors.Is(err, ledger.ErrTradeNotFound) {
		e.logger.Debug("Trade settled elsewhere before sweep",
			zap.String("trade_id", trade.ID), zap.String("action", action))
		return
	}
	e.logger.Error("Failed to settle trade",
		zap.String("trade_id", trade.ID),
		zap.String("action", action),
		zap.Error(err))
}
