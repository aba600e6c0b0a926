package pricefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"metachrome-options-go/internal/config"
)

// quote is one cached ticker price with its fetch time.
type quote struct {
	price decimal.Decimal
	at    time.Time
}

// Feed is the production Oracle: it polls the ticker endpoint on a
// fixed interval and serves quotes from an in-memory cache. A quote
// older than maxQuoteAge is treated as unavailable, so a dead feed
// degrades into ErrPriceUnavailable instead of stale settlements.
type Feed struct {
	logger       *zap.Logger
	client       RestClientInterface
	pollInterval time.Duration
	maxQuoteAge  time.Duration

	mu     sync.RWMutex
	quotes map[string]quote
}

var _ Oracle = (*Feed)(nil)

// NewFeed creates a polling price feed backed by the given REST client.
func NewFeed(cfg *config.Feed, client RestClientInterface, logger *zap.Logger) *Feed {
	return &Feed{
		logger:       logger,
		client:       client,
		pollInterval: time.Duration(cfg.PollInterval) * time.Second,
		maxQuoteAge:  time.Duration(cfg.MaxQuoteAge) * time.Second,
		quotes:       make(map[string]quote),
	}
}

// Run polls until the context is cancelled. The first refresh happens
// immediately so quotes are available before the first trade opens.
func (f *Feed) Run(ctx context.Context) {
	f.logger.Info("Starting price feed", zap.Duration("poll_interval", f.pollInterval))

	if err := f.refresh(ctx); err != nil {
		f.logger.Warn("Initial price refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Stopping price feed...")
			return
		case <-ticker.C:
			if err := f.refresh(ctx); err != nil {
				f.logger.Warn("Price refresh failed", zap.Error(err))
			}
		}
	}
}

func (f *Feed) refresh(ctx context.Context) error {
	prices, err := f.client.GetAllTickerPrices(ctx)
	if err != nil {
		return fmt.Errorf("could not refresh ticker prices: %w", err)
	}

	now := time.Now()
	f.mu.Lock()
	for symbol, price := range prices {
		f.quotes[symbol] = quote{price: price, at: now}
	}
	f.mu.Unlock()

	f.logger.Debug("Refreshed ticker prices", zap.Int("count", len(prices)))
	return nil
}

// CurrentPrice returns the cached quote for symbol, or
// ErrPriceUnavailable when no fresh quote exists.
func (f *Feed) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.RLock()
	q, ok := f.quotes[symbol]
	f.mu.RUnlock()

	if !ok {
		return decimal.Zero, fmt.Errorf("no quote for %s: %w", symbol, ErrPriceUnavailable)
	}
	if time.Since(q.at) > f.maxQuoteAge {
		return decimal.Zero, fmt.Errorf("quote for %s is stale: %w", symbol, ErrPriceUnavailable)
	}

	return q.price, nil
}
