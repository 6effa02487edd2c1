package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trade-settlement-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultMaxRetries = 3

var hundred = decimal.NewFromInt(100)

// OutcomeResolver decides win or loss for a closing trade.
type OutcomeResolver interface {
	Resolve(ctx context.Context, userID, side string, entryPrice, exitPrice decimal.Decimal) string
}

// Options tune the ledger's settlement policy.
type Options struct {
	// LiquidationResidualPercent is the share of the committed margin
	// returned to the trader when a perpetual position is liquidated.
	// Zero forfeits the whole margin.
	LiquidationResidualPercent decimal.Decimal

	// MaxRetries bounds the retry loop around each storage transaction.
	MaxRetries int
}

// Ledger owns every balance-affecting operation. Open and Close each run
// as a single storage transaction so concurrent invocations cannot lose
// updates; the wallet is never mutated outside this package.
type Ledger struct {
	db       *gorm.DB
	resolver OutcomeResolver
	logger   *zap.Logger
	opts     Options
}

// NewLedger creates a trade ledger.
func NewLedger(db *gorm.DB, resolver OutcomeResolver, logger *zap.Logger, opts Options) *Ledger {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &Ledger{
		db:       db,
		resolver: resolver,
		logger:   logger.Named("ledger"),
		opts:     opts,
	}
}

// OpenRequest carries the caller-supplied parameters for a new position.
type OpenRequest struct {
	UserID     string
	Symbol     string
	Side       string
	Amount     decimal.Decimal
	EntryPrice decimal.Decimal
	Contract   ContractKind
}

func (r *OpenRequest) validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidRequest)
	}
	if r.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidRequest)
	}
	if r.Side != models.SideLong && r.Side != models.SideShort {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidRequest, r.Side)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if !r.EntryPrice.IsPositive() {
		return fmt.Errorf("%w: entry price must be positive", ErrInvalidRequest)
	}
	if r.Contract == nil {
		return fmt.Errorf("%w: missing contract kind", ErrInvalidRequest)
	}
	return r.Contract.validate()
}

// CloseResult reports the settlement of a single trade.
type CloseResult struct {
	Trade      *models.Trade
	Outcome    string
	Pnl        decimal.Decimal
	NewBalance decimal.Decimal
}

// Open reserves the committed amount from the user's trading balance and
// creates an active trade. The balance check and the debit happen inside
// one transaction, so two concurrent opens cannot both spend the same
// funds.
func (l *Ledger) Open(ctx context.Context, req OpenRequest) (*models.Trade, decimal.Decimal, error) {
	if err := req.validate(); err != nil {
		return nil, decimal.Zero, err
	}

	now := time.Now()
	trade := models.Trade{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Kind:       req.Contract.kindName(),
		Amount:     req.Amount,
		EntryPrice: req.EntryPrice,
		Status:     models.StatusActive,
	}

	switch c := req.Contract.(type) {
	case Delivery:
		expiry := now.Add(c.Duration)
		trade.ProfitPercent = c.ProfitPercent
		trade.DurationSeconds = int64(c.Duration / time.Second)
		trade.ExpiresAt = &expiry
	case Perpetual:
		trade.Leverage = c.Leverage
		trade.LiquidationPrice = c.liquidationPrice(req.Side, req.EntryPrice)
	default:
		return nil, decimal.Zero, fmt.Errorf("%w: unknown contract kind", ErrInvalidRequest)
	}

	var newBalance decimal.Decimal
	err := l.withRetry(ctx, func() error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			wallet, err := walletForUpdate(tx, req.UserID)
			if err != nil {
				return err
			}
			if wallet.Trading.LessThan(req.Amount) {
				return fmt.Errorf("%w: trading balance %s, need %s",
					ErrInsufficientFunds, wallet.Trading, req.Amount)
			}
			wallet.Trading = wallet.Trading.Sub(req.Amount)
			if err := tx.Save(wallet).Error; err != nil {
				return err
			}
			newBalance = wallet.Trading
			return tx.Create(&trade).Error
		})
	})
	if err != nil {
		return nil, decimal.Zero, err
	}

	l.logger.Info("Trade opened",
		zap.String("trade_id", trade.ID),
		zap.String("user_id", trade.UserID),
		zap.String("symbol", trade.Symbol),
		zap.String("side", trade.Side),
		zap.String("kind", trade.Kind),
		zap.String("amount", trade.Amount.String()))
	return &trade, newBalance, nil
}

// Close settles an active trade at the given exit price. The side, entry
// price, committed amount and payout rate all come from the trade row;
// callers supply only the exit price, so no caller can re-derive
// settlement arithmetic on its own.
//
// The active -> closed transition is a status-guarded conditional
// update: exactly one concurrent close wins, the rest get
// ErrAlreadyClosed and leave the wallet untouched.
func (l *Ledger) Close(ctx context.Context, tradeID, userID string, exitPrice decimal.Decimal) (*CloseResult, error) {
	if !exitPrice.IsPositive() {
		return nil, fmt.Errorf("%w: exit price must be positive", ErrInvalidRequest)
	}

	trade, err := l.loadActive(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.UserID != userID {
		return nil, fmt.Errorf("%w: trade %s", ErrNotOwner, tradeID)
	}

	// Resolved outside the settlement transaction: the mode lookup is a
	// plain read and must not hold the write transaction open.
	outcome := l.resolver.Resolve(ctx, trade.UserID, trade.Side, trade.EntryPrice, exitPrice)

	pnl := l.computePnl(trade, exitPrice, outcome)
	credit := decimal.Zero
	if outcome == models.ResultWin {
		// Principal back plus profit. On a loss the principal was
		// already forfeited at open time; crediting nothing here is
		// what keeps losses from double-deducting.
		credit = trade.Amount.Add(pnl)
	}

	return l.settle(ctx, trade, exitPrice, outcome, pnl, credit)
}

// Liquidate force-closes a perpetual position as a loss at the given
// mark price. Depending on policy a residual share of the margin is
// returned; by default liquidation forfeits everything.
func (l *Ledger) Liquidate(ctx context.Context, tradeID string, markPrice decimal.Decimal) (*CloseResult, error) {
	trade, err := l.loadActive(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.Kind != models.KindPerpetual {
		return nil, fmt.Errorf("%w: trade %s is not a perpetual contract", ErrInvalidRequest, tradeID)
	}

	pnl := trade.Amount.Neg()
	credit := decimal.Zero
	if l.opts.LiquidationResidualPercent.IsPositive() {
		credit = trade.Amount.Mul(l.opts.LiquidationResidualPercent).Div(hundred)
	}

	return l.settle(ctx, trade, markPrice, models.ResultLoss, pnl, credit)
}

// settle performs the single closing transaction: status CAS plus the
// optional wallet credit.
func (l *Ledger) settle(ctx context.Context, trade *models.Trade, exitPrice decimal.Decimal, outcome string, pnl, credit decimal.Decimal) (*CloseResult, error) {
	now := time.Now()
	var newBalance decimal.Decimal

	err := l.withRetry(ctx, func() error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.Trade{}).
				Where("id = ? AND status = ?", trade.ID, models.StatusActive).
				Updates(map[string]interface{}{
					"status":     models.StatusClosed,
					"result":     outcome,
					"pnl":        pnl,
					"exit_price": exitPrice,
					"closed_at":  now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: trade %s", ErrAlreadyClosed, trade.ID)
			}

			wallet, err := walletForUpdate(tx, trade.UserID)
			if err != nil {
				return err
			}
			if credit.IsPositive() {
				wallet.Trading = wallet.Trading.Add(credit)
				if err := tx.Save(wallet).Error; err != nil {
					return err
				}
			}
			newBalance = wallet.Trading
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	trade.Status = models.StatusClosed
	trade.Result = outcome
	trade.Pnl = pnl
	trade.ExitPrice = exitPrice
	trade.ClosedAt = &now

	l.logger.Info("Trade settled",
		zap.String("trade_id", trade.ID),
		zap.String("user_id", trade.UserID),
		zap.String("outcome", outcome),
		zap.String("pnl", pnl.String()),
		zap.String("new_balance", newBalance.String()))

	return &CloseResult{
		Trade:      trade,
		Outcome:    outcome,
		Pnl:        pnl,
		NewBalance: newBalance,
	}, nil
}

// computePnl applies the payout rules. Losses always forfeit exactly the
// committed amount. Delivery wins pay the fixed percentage; perpetual
// wins pay the leveraged price move, floored at zero so a forced win
// never produces a negative payout.
func (l *Ledger) computePnl(trade *models.Trade, exitPrice decimal.Decimal, outcome string) decimal.Decimal {
	if outcome != models.ResultWin {
		return trade.Amount.Neg()
	}

	switch trade.Kind {
	case models.KindPerpetual:
		move := exitPrice.Sub(trade.EntryPrice).Div(trade.EntryPrice)
		if trade.Side == models.SideShort {
			move = move.Neg()
		}
		gain := trade.Amount.Mul(trade.Leverage).Mul(move)
		if gain.IsNegative() {
			return decimal.Zero
		}
		return gain
	default:
		return trade.Amount.Mul(trade.ProfitPercent).Div(hundred)
	}
}

// Transfer moves funds between two named sub-balances of one wallet.
func (l *Ledger) Transfer(ctx context.Context, userID, from, to string, amount decimal.Decimal) (*models.Wallet, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if from == to {
		return nil, fmt.Errorf("%w: cannot transfer a balance to itself", ErrInvalidRequest)
	}

	var wallet *models.Wallet
	err := l.withRetry(ctx, func() error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			w, err := walletForUpdate(tx, userID)
			if err != nil {
				return err
			}
			src, ok := w.Balance(from)
			if !ok {
				return fmt.Errorf("%w: unknown balance %q", ErrInvalidRequest, from)
			}
			dst, ok := w.Balance(to)
			if !ok {
				return fmt.Errorf("%w: unknown balance %q", ErrInvalidRequest, to)
			}
			if src.LessThan(amount) {
				return fmt.Errorf("%w: %s balance %s, need %s", ErrInsufficientFunds, from, src, amount)
			}
			w.SetBalance(from, src.Sub(amount))
			w.SetBalance(to, dst.Add(amount))
			if err := tx.Save(w).Error; err != nil {
				return err
			}
			wallet = w
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Balance transfer",
		zap.String("user_id", userID),
		zap.String("from", from),
		zap.String("to", to),
		zap.String("amount", amount.String()))
	return wallet, nil
}

// Deposit credits a named sub-balance, creating the wallet on first use.
func (l *Ledger) Deposit(ctx context.Context, userID, balance string, amount decimal.Decimal) (*models.Wallet, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	var wallet *models.Wallet
	err := l.withRetry(ctx, func() error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			w, err := walletForUpdate(tx, userID)
			if err != nil {
				return err
			}
			cur, ok := w.Balance(balance)
			if !ok {
				return fmt.Errorf("%w: unknown balance %q", ErrInvalidRequest, balance)
			}
			w.SetBalance(balance, cur.Add(amount))
			if err := tx.Save(w).Error; err != nil {
				return err
			}
			wallet = w
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Deposit credited",
		zap.String("user_id", userID),
		zap.String("balance", balance),
		zap.String("amount", amount.String()))
	return wallet, nil
}

// Wallet returns the user's wallet, zero-valued when none exists yet.
func (l *Ledger) Wallet(ctx context.Context, userID string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Wallet{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientStorage, err)
	}
	return &wallet, nil
}

// Trade returns a single trade by id.
func (l *Ledger) Trade(ctx context.Context, tradeID string) (*models.Trade, error) {
	var trade models.Trade
	err := l.db.WithContext(ctx).Where("id = ?", tradeID).First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientStorage, err)
	}
	return &trade, nil
}

// ActiveTrades returns every open position, oldest first. The monitor
// sweeps this list.
func (l *Ledger) ActiveTrades(ctx context.Context) ([]models.Trade, error) {
	var trades []models.Trade
	err := l.db.WithContext(ctx).
		Where("status = ?", models.StatusActive).
		Order("created_at asc").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientStorage, err)
	}
	return trades, nil
}

// UserTrades returns a user's trade history, newest first.
func (l *Ledger) UserTrades(ctx context.Context, userID string) ([]models.Trade, error) {
	var trades []models.Trade
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientStorage, err)
	}
	return trades, nil
}

// loadActive fetches a trade and fast-fails closes on terminal rows
// before any transaction is opened. The authoritative exclusivity check
// is still the conditional update in settle.
func (l *Ledger) loadActive(ctx context.Context, tradeID string) (*models.Trade, error) {
	trade, err := l.Trade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: trade %s", ErrAlreadyClosed, tradeID)
	}
	return trade, nil
}

// walletForUpdate loads a wallet inside a transaction, creating an empty
// one for first-time users.
func walletForUpdate(tx *gorm.DB, userID string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := tx.Where("user_id = ?", userID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		wallet = models.Wallet{UserID: userID}
		if err := tx.Create(&wallet).Error; err != nil {
			return nil, err
		}
		return &wallet, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// withRetry re-runs op on transient storage failures with exponential
// backoff. Domain errors and context cancellation are returned as-is;
// anything still failing after the last attempt is surfaced as
// ErrTransientStorage.
func (l *Ledger) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < l.opts.MaxRetries; attempt++ {
		err = op()
		if err == nil || domainError(err) {
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		backoff := 50 * time.Millisecond << attempt
		l.logger.Warn("Storage operation failed, retrying...",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %v", ErrTransientStorage, err)
}
