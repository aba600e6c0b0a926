package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"metachrome-options-go/internal/models"
)

// settleTimeout bounds a single settlement attempt from the timer and
// sweep paths. On timeout the trade remains active and the next sweep
// retries.
const settleTimeout = 15 * time.Second

// Scheduler drives settlement from its two automatic trigger paths:
// a one-shot timer armed per trade at creation, and a periodic sweep
// over all expired active trades. Both funnel into Engine.Settle,
// whose guards make the race between them (and any manual trigger)
// harmless.
type Scheduler struct {
	logger     *zap.Logger
	engine     *Engine
	cron       *cron.Cron
	sweepEvery time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewScheduler creates a scheduler bound to the engine.
func NewScheduler(logger *zap.Logger, engine *Engine, sweepEvery time.Duration) *Scheduler {
	return &Scheduler{
		logger:     logger,
		engine:     engine,
		cron:       cron.New(cron.WithSeconds()),
		sweepEvery: sweepEvery,
		timers:     make(map[string]*time.Timer),
	}
}

// Start registers the sweep job and starts the cron runner.
func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.sweepEvery)
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
		defer cancel()
		s.engine.SweepExpired(ctx)
	})
	if err != nil {
		return fmt.Errorf("could not register sweep job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Trade scheduler started", zap.Duration("sweep_every", s.sweepEvery))
	return nil
}

// Stop halts the sweep and cancels all armed timers. In-flight
// settlements run to completion; anything still pending is picked up
// by the sweep after the next start.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()

	s.mu.Lock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.logger.Info("Trade scheduler stopped")
}

// Arm schedules the one-shot settlement timer for a trade. Arming an
// already-armed trade resets its timer. The delay is measured against
// the engine's clock so expiry and firing agree on one time source.
func (s *Scheduler) Arm(trade *models.Trade) {
	delay := trade.ExpiresAt.Sub(s.engine.clock.Now())
	if delay < 0 {
		delay = 0
	}

	tradeID := trade.ID
	s.mu.Lock()
	if old, ok := s.timers[tradeID]; ok {
		old.Stop()
	}
	s.timers[tradeID] = time.AfterFunc(delay, func() { s.fire(tradeID) })
	s.mu.Unlock()

	s.logger.Debug("Armed settlement timer",
		zap.String("trade_id", tradeID), zap.Duration("delay", delay))
}

// Disarm cancels the timer for a trade, if one is armed.
func (s *Scheduler) Disarm(tradeID string) {
	s.mu.Lock()
	if timer, ok := s.timers[tradeID]; ok {
		timer.Stop()
		delete(s.timers, tradeID)
	}
	s.mu.Unlock()
}

func (s *Scheduler) fire(tradeID string) {
	s.mu.Lock()
	delete(s.timers, tradeID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	if err := s.engine.Settle(ctx, tradeID); err != nil {
		// Transient: the sweep retries on its next cycle.
		s.logger.Warn("Timer settlement deferred",
			zap.String("trade_id", tradeID), zap.Error(err))
	}
}
