package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"trade-settlement-go/internal/ledger"
	"trade-settlement-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockLedger is a mock implementation of the TradeLedger interface.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) ActiveTrades(ctx context.Context) ([]models.Trade, error) {
	args := m.Called()
	return args.Get(0).([]models.Trade), args.Error(1)
}

func (m *MockLedger) Close(ctx context.Context, tradeID, userID string, exitPrice decimal.Decimal) (*ledger.CloseResult, error) {
	args := m.Called(tradeID, userID, exitPrice.String())
	res, _ := args.Get(0).(*ledger.CloseResult)
	return res, args.Error(1)
}

func (m *MockLedger) Liquidate(ctx context.Context, tradeID string, markPrice decimal.Decimal) (*ledger.CloseResult, error) {
	args := m.Called(tradeID, markPrice.String())
	res, _ := args.Get(0).(*ledger.CloseResult)
	return res, args.Error(1)
}

// MockPriceSource is a mock implementation of the pricefeed.Source interface.
type MockPriceSource struct {
	mock.Mock
}

func (m *MockPriceSource) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	args := m.Called(symbol)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestEngine(l TradeLedger, p *MockPriceSource) *Engine {
	return NewEngine(zap.NewNop(), l, p, time.Second)
}

func expiredDelivery(id string) models.Trade {
	expiry := time.Now().Add(-time.Minute)
	return models.Trade{
		ID:        id,
		UserID:    "user-1",
		Symbol:    "BTCUSDT",
		Side:      models.SideLong,
		Kind:      models.KindDelivery,
		Status:    models.StatusActive,
		ExpiresAt: &expiry,
	}
}

func perpetualLong(id, liquidation string) models.Trade {
	return models.Trade{
		ID:               id,
		UserID:           "user-1",
		Symbol:           "ETHUSDT",
		Side:             models.SideLong,
		Kind:             models.KindPerpetual,
		Status:           models.StatusActive,
		LiquidationPrice: d(liquidation),
	}
}

func TestSweep_ClosesExpiredDelivery(t *testing.T) {
	// Arrange
	mockLedger := new(MockLedger)
	prices := new(MockPriceSource)

	mockLedger.On("ActiveTrades").Return([]models.Trade{expiredDelivery("t-1")}, nil)
	prices.On("GetPrice", "BTCUSDT").Return(d("65000"), nil)
	mockLedger.On("Close", "t-1", "user-1", "65000").
		Return(&ledger.CloseResult{Outcome: models.ResultWin, Pnl: d("8")}, nil)

	// Act
	err := newTestEngine(mockLedger, prices).Sweep(context.Background())

	// Assert
	assert.NoError(t, err)
	mockLedger.AssertExpectations(t)
	prices.AssertExpectations(t)
}

func TestSweep_LeavesUnexpiredDeliveryAlone(t *testing.T) {
	mockLedger := new(MockLedger)
	prices := new(MockPriceSource)

	trade := expiredDelivery("t-1")
	future := time.Now().Add(time.Hour)
	trade.ExpiresAt = &future

	mockLedger.On("ActiveTrades").Return([]models.Trade{trade}, nil)
	prices.On("GetPrice", "BTCUSDT").Return(d("65000"), nil)

	err := newTestEngine(mockLedger, prices).Sweep(context.Background())

	assert.NoError(t, err)
	mockLedger.AssertNotCalled(t, "Close", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_LiquidatesCrossedPerpetual(t *testing.T) {
	mockLedger := new(MockLedger)
	prices := new(MockPriceSource)

	mockLedger.On("ActiveTrades").Return([]models.Trade{perpetualLong("t-2", "1800")}, nil)
	prices.On("GetPrice", "ETHUSDT").Return(d("1750"), nil)
	mockLedger.On("Liquidate", "t-2", "1750").
		Return(&ledger.CloseResult{Outcome: models.ResultLoss, Pnl: d("-50")}, nil)

	err := newTestEngine(mockLedger, prices).Sweep(context.Background())

	assert.NoError(t, err)
	mockLedger.AssertExpectations(t)
}

func TestSweep_LeavesHealthyPerpetualAlone(t *testing.T) {
	mockLedger := new(MockLedger)
	prices := new(MockPriceSource)

	mockLedger.On("ActiveTrades").Return([]models.Trade{perpetualLong("t-2", "1800")}, nil)
	prices.On("GetPrice", "ETHUSDT").Return(d("1900"), nil)

	err := newTestEngine(mockLedger, prices).Sweep(context.Background())

	assert.NoError(t, err)
	mockLedger.AssertNotCalled(t, "Liquidate", mock.Anything, mock.Anything)
}

func TestSweep_SkipsSymbolWhenPriceUnavailable(t *testing.T) {
	mockLedger := new(MockLedger)
	prices := new(MockPriceSource)

	// Two trades on the failing symbol, one on a healthy symbol. The
	// failing symbol is fetched once and skipped; the healthy trade is
	// still settled.
	mockLedger.On("ActiveTrades").Return([]models.Trade{
		expiredDelivery("t-1"),
		expiredDelivery("t-2"),
		perpetualLong("t-3", "1800"),
	}, nil)
	prices.On("GetPrice", "BTCUSDT").Return(decimal.Zero, errors.New("feed down")).Once()
	prices.On("GetPrice", "ETHUSDT").Return(d("1700"), nil)
	mockLedger.On("Liquidate", "t-3", "1700").
		Return(&ledger.CloseResult{Outcome: models.ResultLoss}, nil)

	err := newTestEngine(mockLedger, prices).Sweep(context.Background())

	assert.NoError(t, err)
	mockLedger.AssertExpectations(t)
	prices.AssertExpectations(t)
	mockLedger.AssertNotCalled(t, "Close", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_ContinuesAfterOneTradeFails(t *testing.T) {
	mockLedger := new(MockLedger)
	prices := new(MockPriceSource)

	mockLedger.On("ActiveTrades").Return([]models.Trade{
		expiredDelivery("t-1"),
		expiredDelivery("t-2"),
	}, nil)
	prices.On("GetPrice", "BTCUSDT").Return(d("65000"), nil)
	mockLedger.On("Close", "t-1", "user-1", "65000").
		Return(nil, errors.New("storage hiccup"))
	mockLedger.On("Close", "t-2", "user-1", "65000").
		Return(&ledger.CloseResult{Outcome: models.ResultLoss}, nil)

	err := newTestEngine(mockLedger, prices).Sweep(context.Background())

	assert.NoError(t, err)
	mockLedger.AssertExpectations(t)
}

// A manual close racing the sweep surfaces as ErrAlreadyClosed; the
// sweep treats it as settled elsewhere, not as a failure.
func TestSweep_ToleratesAlreadyClosed(t *testing.T) {
	mockLedger := new(MockLedger)
	prices := new(MockPriceSource)

	mockLedger.On("ActiveTrades").Return([]models.Trade{expiredDelivery("t-1")}, nil)
	prices.On("GetPrice", "BTCUSDT").Return(d("65000"), nil)
	mockLedger.On("Close", "t-1", "user-1", "65000").
		Return(nil, ledger.ErrAlreadyClosed)

	err := newTestEngine(mockLedger, prices).Sweep(context.Background())

	assert.NoError(t, err)
	mockLedger.AssertExpectations(t)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	mockLedger := new(MockLedger)
	prices := new(MockPriceSource)
	mockLedger.On("ActiveTrades").Return([]models.Trade{}, nil).Maybe()

	engine := NewEngine(zap.NewNop(), mockLedger, prices, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not stop after context cancellation")
	}
}
