package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	rc := &RestClient{
		client:  resty.New().SetBaseURL(server.URL),
		logger:  zap.NewNop(),
		limiter: rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return rc, server
}

func TestGetTickerPrice(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ticker/price", r.URL.Path)
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"50123.45000000"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		price, err := rc.GetTickerPrice(context.Background(), "BTCUSDT")
		require.NoError(t, err)
		assert.Equal(t, "50123.45", price.String())
	})

	t.Run("APIError", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetTickerPrice(context.Background(), "NOPE")
		assert.Error(t, err)
	})

	t.Run("UnparseablePrice", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"not-a-number"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetTickerPrice(context.Background(), "BTCUSDT")
		assert.Error(t, err)
	})
}

func TestGetAllTickerPrices(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ticker/price", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[
				{"symbol":"BTCUSDT","price":"50000.00"},
				{"symbol":"ETHUSDT","price":"3800.50"},
				{"symbol":"BROKEN","price":"xx"}
			]`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		prices, err := rc.GetAllTickerPrices(context.Background())
		require.NoError(t, err)
		// The broken row is skipped, not fatal.
		assert.Len(t, prices, 2)
		assert.Equal(t, "50000", prices["BTCUSDT"].String())
		assert.Equal(t, "3800.5", prices["ETHUSDT"].String())
	})

	t.Run("RetriesOnServerError", func(t *testing.T) {
		calls := 0
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","price":"50000.00"}]`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		prices, err := rc.GetAllTickerPrices(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Len(t, prices, 1)
	})
}
