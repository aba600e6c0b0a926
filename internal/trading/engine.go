package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"metachrome-options-go/internal/config"
	"metachrome-options-go/internal/ledger"
	"metachrome-options-go/internal/locks"
	"metachrome-options-go/internal/models"
	"metachrome-options-go/internal/outcome"
	"metachrome-options-go/internal/pricefeed"
)

// Engine is the trade settlement core: it opens trades (locking the
// wager), settles or cancels them exactly once, and exposes the read
// accessors and administrative operations.
//
// Settlement and cancellation of one trade are mutually exclusive via
// a per-trade keyed mutex; balance mutations are additionally
// serialized per user by the ledger's user lock. Lock order is always
// trade lock first, user lock second.
type Engine struct {
	logger *zap.Logger
	cfg    *config.Config
	db     *gorm.DB
	oracle pricefeed.Oracle
	ledger *ledger.Ledger
	policy outcome.Policy
	clock  Clock
	trades *locks.KeyedMutex
	sched  *Scheduler
}

// NewEngine creates a new settlement engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, db *gorm.DB, oracle pricefeed.Oracle, ldgr *ledger.Ledger) *Engine {
	e := &Engine{
		logger: logger,
		cfg:    cfg,
		db:     db,
		oracle: oracle,
		ledger: ldgr,
		policy: outcome.NewPolicy(cfg.Trading.ForcedMovePercent),
		clock:  systemClock{},
		trades: locks.NewKeyedMutex(),
	}
	e.sched = NewScheduler(logger.Named("scheduler"), e, time.Duration(cfg.Trading.SweepInterval)*time.Second)
	return e
}

// Run starts the scheduler, re-arms timers for trades that were
// active when the process last stopped, and blocks until the context
// is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("Initializing settlement engine...")

	if err := e.rearmActiveTrades(); err != nil {
		// The sweep converges on these trades anyway.
		e.logger.Error("Failed to re-arm timers for active trades", zap.Error(err))
	}

	if err := e.sched.Start(); err != nil {
		e.logger.Fatal("Failed to start trade scheduler", zap.Error(err))
	}
	e.logger.Info("Settlement engine running",
		zap.Int("sweep_interval_seconds", e.cfg.Trading.SweepInterval))

	<-ctx.Done()
	e.logger.Info("Stopping settlement engine...")
	e.sched.Stop()
}

func (e *Engine) rearmActiveTrades() error {
	var trades []models.Trade
	if err := e.db.Where("status = ?", models.TradeStatusActive).Find(&trades).Error; err != nil {
		return fmt.Errorf("could not load active trades: %w", err)
	}
	for i := range trades {
		e.sched.Arm(&trades[i])
	}
	if len(trades) > 0 {
		e.logger.Info("Re-armed timers for active trades", zap.Int("count", len(trades)))
	}
	return nil
}

func (e *Engine) currency() string {
	return e.cfg.Trading.Currency
}

// OpenTradeRequest carries a validated-on-entry request to open a trade.
type OpenTradeRequest struct {
	UserID          string
	Symbol          string
	Direction       models.TradeDirection
	Amount          decimal.Decimal
	DurationSeconds int
}

// OpenTrade validates the request, locks the wager and creates the
// trade, then arms its expiry timer. Validation is strictly before
// any mutation: a rejected request leaves no trace.
func (e *Engine) OpenTrade(ctx context.Context, req OpenTradeRequest) (*models.Trade, error) {
	if req.Direction != models.DirectionUp && req.Direction != models.DirectionDown {
		return nil, ErrInvalidDirection
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	setting, err := e.activeSetting(req.DurationSeconds)
	if err != nil {
		return nil, err
	}
	if req.Amount.LessThan(setting.MinAmount) {
		return nil, fmt.Errorf("minimum for %ds is %s: %w",
			req.DurationSeconds, setting.MinAmount.String(), ErrAmountBelowMinimum)
	}

	entryPrice, err := e.oracle.CurrentPrice(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("cannot open trade on %s: %w", req.Symbol, err)
	}

	now := e.clock.Now()
	trade := &models.Trade{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		Symbol:          req.Symbol,
		Direction:       req.Direction,
		Amount:          req.Amount,
		EntryPrice:      entryPrice,
		DurationSeconds: req.DurationSeconds,
		Status:          models.TradeStatusActive,
		ExpiresAt:       now.Add(time.Duration(req.DurationSeconds) * time.Second),
		CreatedAt:       now,
	}

	unlockUser := e.ledger.LockUser(req.UserID)
	defer unlockUser()

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := e.ledger.LockFunds(tx, req.UserID, e.currency(), req.Amount); err != nil {
			return err
		}
		return tx.Create(trade).Error
	})
	if err != nil {
		return nil, err
	}

	e.sched.Arm(trade)

	e.logger.Info("Trade opened",
		zap.String("trade_id", trade.ID),
		zap.String("user_id", trade.UserID),
		zap.String("symbol", trade.Symbol),
		zap.String("direction", string(trade.Direction)),
		zap.String("amount", trade.Amount.String()),
		zap.String("entry_price", trade.EntryPrice.String()),
		zap.Time("expires_at", trade.ExpiresAt))
	return trade, nil
}

// Cancel voids an active trade owned by userID: the locked wager is
// fully refunded, no transaction record is written, and the expiry
// timer is disarmed. A cancel racing a settlement loses cleanly: the
// same per-trade mutex guards both, and whoever runs second sees a
// terminal trade.
func (e *Engine) Cancel(ctx context.Context, tradeID, userID string) error {
	unlockTrade := e.trades.Lock(tradeID)
	defer unlockTrade()

	var trade models.Trade
	if err := e.db.First(&trade, "id = ?", tradeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTradeNotFound
		}
		return fmt.Errorf("could not load trade %s: %w", tradeID, err)
	}
	if trade.UserID != userID {
		return ErrNotTradeOwner
	}
	if trade.IsTerminal() {
		return ErrAlreadyTerminal
	}

	unlockUser := e.ledger.LockUser(trade.UserID)
	defer unlockUser()

	err := e.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Trade{}).
			Where("id = ? AND status = ?", trade.ID, models.TradeStatusActive).
			Update("status", models.TradeStatusCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyTerminal
		}
		return e.ledger.ReleaseLocked(tx, trade.UserID, e.currency(), trade.Amount, decimal.Zero)
	})
	if err != nil {
		return err
	}

	e.sched.Disarm(trade.ID)

	e.logger.Info("Trade cancelled",
		zap.String("trade_id", trade.ID),
		zap.String("user_id", trade.UserID),
		zap.String("refunded", trade.Amount.String()))
	return nil
}

// SweepExpired settles every active trade past its expiry. This is
// the durability backstop: in-memory timers do not survive a restart,
// the sweep does. Settlement failures are logged and retried on the
// next cycle, never propagated.
func (e *Engine) SweepExpired(ctx context.Context) {
	var trades []models.Trade
	err := e.db.
		Where("status = ? AND expires_at <= ?", models.TradeStatusActive, e.clock.Now()).
		Find(&trades).Error
	if err != nil {
		e.logger.Error("Sweep query failed", zap.Error(err))
		return
	}
	if len(trades) == 0 {
		return
	}

	e.logger.Debug("Sweeping expired trades", zap.Int("count", len(trades)))
	for _, trade := range trades {
		if err := e.Settle(ctx, trade.ID); err != nil {
			e.logger.Warn("Sweep settlement deferred",
				zap.String("trade_id", trade.ID), zap.Error(err))
		}
	}
}

// SetOutcomeControl forces future settlements for the user to the
// given outcome. The prior control, if any, is deactivated rather
// than deleted so the override history stays auditable.
func (e *Engine) SetOutcomeControl(userID string, control models.ControlType) (*models.OutcomeControl, error) {
	switch control {
	case models.ControlNormal, models.ControlWin, models.ControlLose:
	default:
		return nil, ErrInvalidControlType
	}

	created := &models.OutcomeControl{
		UserID:      userID,
		ControlType: control,
		IsActive:    true,
	}
	err := e.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.OutcomeControl{}).
			Where("user_id = ? AND is_active = ?", userID, true).
			Update("is_active", false).Error
		if err != nil {
			return err
		}
		return tx.Create(created).Error
	})
	if err != nil {
		return nil, fmt.Errorf("could not set outcome control for user %s: %w", userID, err)
	}

	e.logger.Info("Outcome control set",
		zap.String("user_id", userID),
		zap.String("control_type", string(control)))
	return created, nil
}

// activeControlType returns the user's active control, or normal when
// none exists.
func (e *Engine) activeControlType(userID string) models.ControlType {
	var control models.OutcomeControl
	err := e.db.
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at DESC").
		First(&control).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			e.logger.Warn("Outcome control lookup failed, treating as normal",
				zap.String("user_id", userID), zap.Error(err))
		}
		return models.ControlNormal
	}
	return control.ControlType
}

func (e *Engine) activeSetting(duration int) (*models.OptionsSetting, error) {
	var setting models.OptionsSetting
	err := e.db.Where("duration = ? AND is_active = ?", duration, true).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("duration %ds: %w", duration, ErrInvalidDuration)
	}
	if err != nil {
		return nil, fmt.Errorf("could not load options setting for %ds: %w", duration, err)
	}
	return &setting, nil
}

// GetTrade returns a trade by id.
func (e *Engine) GetTrade(tradeID string) (*models.Trade, error) {
	var trade models.Trade
	if err := e.db.First(&trade, "id = ?", tradeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}
	return &trade, nil
}

// GetUserTrades returns the user's trades, newest first.
func (e *Engine) GetUserTrades(userID string, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	q := e.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return trades, q.Find(&trades).Error
}

// GetActiveTrades returns every trade still awaiting settlement.
func (e *Engine) GetActiveTrades() ([]models.Trade, error) {
	var trades []models.Trade
	return trades, e.db.Where("status = ?", models.TradeStatusActive).Find(&trades).Error
}

// GetUserBalance returns the user's balance in the wager currency,
// creating a zero balance on first reference.
func (e *Engine) GetUserBalance(userID string) (*models.Balance, error) {
	return e.ledger.Get(userID, e.currency())
}

// Deposit credits the user's available balance in the wager currency.
func (e *Engine) Deposit(userID string, amount decimal.Decimal) (*models.Balance, error) {
	return e.ledger.Deposit(userID, e.currency(), amount)
}

// Withdraw debits the user's available balance in the wager currency.
func (e *Engine) Withdraw(userID string, amount decimal.Decimal) (*models.Balance, error) {
	return e.ledger.Withdraw(userID, e.currency(), amount)
}
