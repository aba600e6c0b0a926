package trading

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"metachrome-options-go/internal/models"
)

// Settle performs the single idempotent transition of a trade from
// active to completed. It is safe to call any number of times, from
// any of the trigger paths (expiry timer, periodic sweep, manual
// re-trigger), concurrently or not: exactly one call performs the
// effects, every other call observes a terminal trade and returns nil.
//
// The per-trade mutex serializes callers in-process. The balance
// release, the trade completion and the transaction record commit as
// one database transaction, so a crash can only leave the trade
// active (retried by the sweep), never completed without its ledger
// adjustment. Across restarts the unique index on
// Transaction.ReferenceID is the durable double-settlement guard.
func (e *Engine) Settle(ctx context.Context, tradeID string) error {
	unlockTrade := e.trades.Lock(tradeID)
	defer unlockTrade()

	var trade models.Trade
	if err := e.db.First(&trade, "id = ?", tradeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTradeNotFound
		}
		return fmt.Errorf("could not load trade %s: %w", tradeID, err)
	}
	if trade.IsTerminal() {
		// Already settled or cancelled — idempotent exit.
		return nil
	}

	control := e.activeControlType(trade.UserID)

	// Forced outcomes synthesize the exit price from the entry price,
	// so they do not need the oracle and settle even when the feed is
	// down. A failed lookup on a normal trade leaves it active for
	// the next sweep cycle.
	currentPrice := decimal.Zero
	if control == models.ControlNormal {
		price, err := e.oracle.CurrentPrice(ctx, trade.Symbol)
		if err != nil {
			return fmt.Errorf("cannot settle trade %s yet: %w", trade.ID, err)
		}
		currentPrice = price
	}

	decision := e.policy.Decide(trade.Direction, trade.EntryPrice, currentPrice, control)

	setting, err := e.activeSetting(trade.DurationSeconds)
	if err != nil {
		return fmt.Errorf("cannot settle trade %s: %w", trade.ID, err)
	}

	profitAmount := trade.Amount.Mul(setting.ProfitPercentage).Div(decimal.NewFromInt(100))
	profit := profitAmount
	result := models.ResultWin
	txType := models.TransactionTypeTradeWin
	if !decision.Win {
		profit = profitAmount.Neg()
		result = models.ResultLose
		txType = models.TransactionTypeTradeLoss
	}

	now := e.clock.Now()

	unlockUser := e.ledger.LockUser(trade.UserID)
	defer unlockUser()

	err = e.db.Transaction(func(tx *gorm.DB) error {
		// Durable idempotency witness: at most one settlement entry
		// may ever exist for this trade. Backstops the status check
		// above against lost in-memory locks after a restart.
		var witnesses int64
		err := tx.Model(&models.Transaction{}).
			Where("reference_id = ?", trade.ID).
			Count(&witnesses).Error
		if err != nil {
			return err
		}
		if witnesses > 0 {
			return errAlreadySettled
		}

		if err := e.ledger.ReleaseLocked(tx, trade.UserID, e.currency(), trade.Amount, profit); err != nil {
			return err
		}

		res := tx.Model(&models.Trade{}).
			Where("id = ? AND status = ?", trade.ID, models.TradeStatusActive).
			Updates(map[string]interface{}{
				"status":       models.TradeStatusCompleted,
				"result":       result,
				"exit_price":   decision.ExitPrice,
				"profit":       profit,
				"completed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errAlreadySettled
		}

		referenceID := trade.ID
		record := models.Transaction{
			ID:          uuid.NewString(),
			UserID:      trade.UserID,
			Type:        txType,
			Amount:      profitAmount,
			ReferenceID: &referenceID,
			Status:      models.TransactionStatusCompleted,
			CreatedAt:   now,
		}
		return tx.Create(&record).Error
	})
	if errors.Is(err, errAlreadySettled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("settlement of trade %s failed: %w", trade.ID, err)
	}

	e.sched.Disarm(trade.ID)

	e.logger.Info("Trade settled",
		zap.String("trade_id", trade.ID),
		zap.String("user_id", trade.UserID),
		zap.String("result", string(result)),
		zap.String("control", string(control)),
		zap.String("exit_price", decision.ExitPrice.String()),
		zap.String("profit", profit.String()))
	return nil
}
