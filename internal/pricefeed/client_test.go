package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a Client configured to use it.
func setupTestServer(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	client := resty.New().SetBaseURL(server.URL)
	logger := zap.NewNop() // Use a no-op logger for tests

	c := &Client{
		client:  client,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return c, server
}

func TestGetPrice(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ticker/price", r.URL.Path)
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"symbol": "BTCUSDT", "price": "65000.50"}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		// Act
		price, err := c.GetPrice(context.Background(), "BTCUSDT")

		// Assert
		assert.NoError(t, err)
		assert.Equal(t, "65000.5", price.String())
	})

	t.Run("APIError", func(t *testing.T) {
		// Arrange: a 400 is terminal, no retries.
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code": -1121, "msg": "Invalid symbol."}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		// Act
		_, err := c.GetPrice(context.Background(), "NOPEUSDT")

		// Assert
		assert.ErrorIs(t, err, ErrPriceUnavailable)
	})

	t.Run("MalformedQuote", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"symbol": "BTCUSDT", "price": "not-a-number"}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		_, err := c.GetPrice(context.Background(), "BTCUSDT")

		assert.ErrorIs(t, err, ErrPriceUnavailable)
	})

	t.Run("NonPositiveQuote", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"symbol": "BTCUSDT", "price": "0"}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		_, err := c.GetPrice(context.Background(), "BTCUSDT")

		assert.ErrorIs(t, err, ErrPriceUnavailable)
	})
}

func TestGetPrice_RetriesServerErrors(t *testing.T) {
	// First attempt fails with a 500, second succeeds.
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"symbol": "BTCUSDT", "price": "100"}`))
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	price, err := c.GetPrice(context.Background(), "BTCUSDT")

	assert.NoError(t, err)
	assert.Equal(t, "100", price.String())
	assert.Equal(t, 2, calls)
}
