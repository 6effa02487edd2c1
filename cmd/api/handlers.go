package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"trade-settlement-go/internal/ledger"
	"trade-settlement-go/internal/models"
	"trade-settlement-go/internal/pricefeed"
	"trade-settlement-go/internal/settings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// userIDHeader carries the authenticated user id, set by the identity
// proxy in front of this service. The core trusts it as-is.
const userIDHeader = "X-User-ID"

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log      *zap.Logger
	ledger   *ledger.Ledger
	settings *settings.Store
	prices   pricefeed.Source
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, l *ledger.Ledger, s *settings.Store, p pricefeed.Source) *APIHandler {
	return &APIHandler{log: log.Named("api"), ledger: l, settings: s, prices: p}
}

type openRequest struct {
	Symbol          string          `json:"symbol"`
	Side            string          `json:"side"`
	Kind            string          `json:"kind"`
	Amount          decimal.Decimal `json:"amount"`
	ProfitPercent   decimal.Decimal `json:"profit_percent"`
	DurationSeconds int64           `json:"duration_seconds"`
	Leverage        decimal.Decimal `json:"leverage"`
}

type openResponse struct {
	Trade      *models.Trade   `json:"trade"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// OpenHandler opens a new position at the current market price.
func (h *APIHandler) OpenHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var contract ledger.ContractKind
	switch req.Kind {
	case models.KindDelivery:
		contract = ledger.Delivery{
			ProfitPercent: req.ProfitPercent,
			Duration:      time.Duration(req.DurationSeconds) * time.Second,
		}
	case models.KindPerpetual:
		contract = ledger.Perpetual{Leverage: req.Leverage}
	default:
		http.Error(w, "unknown contract kind", http.StatusBadRequest)
		return
	}

	// Entry price is always the fresh server-side quote, never whatever
	// the client last rendered.
	entry, err := h.prices.GetPrice(r.Context(), req.Symbol)
	if err != nil {
		h.writeError(w, err)
		return
	}

	trade, newBalance, err := h.ledger.Open(r.Context(), ledger.OpenRequest{
		UserID:     userID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Amount:     req.Amount,
		EntryPrice: entry,
		Contract:   contract,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, openResponse{Trade: trade, NewBalance: newBalance})
}

type closeRequest struct {
	TradeID string `json:"trade_id"`
}

// CloseHandler settles an active position at the current market price.
func (h *APIHandler) CloseHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TradeID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	trade, err := h.ledger.Trade(r.Context(), req.TradeID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	exit, err := h.prices.GetPrice(r.Context(), trade.Symbol)
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.ledger.Close(r.Context(), req.TradeID, userID, exit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, res)
}

// TradesHandler returns the caller's trade history, newest first.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	trades, err := h.ledger.UserTrades(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, trades)
}

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalTrades   int             `json:"total_trades"`
	WinningTrades int             `json:"winning_trades"`
	WinRate       float64         `json:"win_rate"`
	TotalPnl      decimal.Decimal `json:"total_pnl"`
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
}

// StatisticsHandler calculates win rate and realized pnl for the caller.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	trades, err := h.ledger.UserTrades(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	var resp StatisticsResponse
	for _, t := range trades {
		if t.Status != models.StatusClosed {
			continue
		}
		accumulate(&resp.AllTime, &t)
		if t.ClosedAt != nil && t.ClosedAt.After(cutoff) {
			accumulate(&resp.Since24h, &t)
		}
	}
	finalize(&resp.AllTime)
	finalize(&resp.Since24h)

	h.writeJSON(w, resp)
}

func accumulate(s *StatsDetail, t *models.Trade) {
	s.TotalTrades++
	if t.Result == models.ResultWin {
		s.WinningTrades++
	}
	s.TotalPnl = s.TotalPnl.Add(t.Pnl)
}

func finalize(s *StatsDetail) {
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	}
}

// WalletHandler returns the caller's wallet balances.
func (h *APIHandler) WalletHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	wallet, err := h.ledger.Wallet(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, wallet)
}

type transferRequest struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// TransferHandler moves funds between the caller's sub-balances.
func (h *APIHandler) TransferHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	wallet, err := h.ledger.Transfer(r.Context(), userID, req.From, req.To, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, wallet)
}

type depositRequest struct {
	UserID  string          `json:"user_id"`
	Balance string          `json:"balance"`
	Amount  decimal.Decimal `json:"amount"`
}

// DepositHandler credits a user's sub-balance. Admin endpoint; the
// identity proxy restricts who reaches it.
func (h *APIHandler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	wallet, err := h.ledger.Deposit(r.Context(), req.UserID, req.Balance, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, wallet)
}

// GetGlobalModeHandler returns the global settlement mode.
func (h *APIHandler) GetGlobalModeHandler(w http.ResponseWriter, r *http.Request) {
	mode, err := h.settings.GetGlobalMode(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"mode": mode})
}

type modeRequest struct {
	UserID string `json:"user_id,omitempty"`
	Mode   string `json:"mode"`
}

// SetGlobalModeHandler updates the global settlement mode.
func (h *APIHandler) SetGlobalModeHandler(w http.ResponseWriter, r *http.Request) {
	actorID := r.Header.Get(userIDHeader)

	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.settings.SetGlobalMode(r.Context(), req.Mode, actorID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"mode": req.Mode})
}

// SetUserModeHandler sets a per-user settlement mode override.
func (h *APIHandler) SetUserModeHandler(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.settings.SetUserMode(r.Context(), req.UserID, req.Mode); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"user_id": req.UserID, "mode": req.Mode})
}

// HealthHandler reports liveness.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK\n"))
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError maps the ledger's error taxonomy onto HTTP statuses.
func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ledger.ErrInvalidRequest), errors.Is(err, settings.ErrInvalidMode):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrTradeNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrNotOwner):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ledger.ErrAlreadyClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, pricefeed.ErrPriceUnavailable), errors.Is(err, ledger.ErrTransientStorage):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.log.Error("Unhandled error", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
