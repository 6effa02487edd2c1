package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"trade-settlement-go/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrPriceUnavailable is returned when the feed cannot produce a quote
// for a symbol, whether because of connectivity, rate limiting that
// exhausted retries, or an unknown symbol.
var ErrPriceUnavailable = errors.New("price feed unavailable")

// Source supplies the current market price for an asset symbol.
// Quotes are best effort: they may be slow, stale, or fail entirely.
type Source interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Client is a REST client for a ticker-price endpoint.
// It implements the Source interface.
type Client struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure Client implements the interface
var _ Source = (*Client)(nil)

// NewClient creates a new price feed client.
func NewClient(cfg *config.PriceFeed, logger *zap.Logger) *Client {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:  client,
		logger:  logger,
		limiter: limiter,
	}
}

// tickerPrice represents the response for a single ticker price.
type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && resp.StatusCode() != 0 {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// GetPrice fetches the latest quote for a single symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var ticker tickerPrice

	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&ticker).
		SetHeader("Content-Type", "application/json")

	if _, err := c.doRequest(ctx, "GET", "/ticker/price", req); err != nil {
		c.logger.Warn("Failed to fetch price", zap.String("symbol", symbol), zap.Error(err))
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, symbol, err)
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad quote %q for %s", ErrPriceUnavailable, ticker.Price, symbol)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive quote for %s", ErrPriceUnavailable, symbol)
	}

	return price, nil
}
