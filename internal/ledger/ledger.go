package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"metachrome-options-go/internal/locks"
	"metachrome-options-go/internal/models"
)

// ErrInsufficientBalance is returned when a debit or lock would
// exceed the user's available funds. Nothing is mutated.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Ledger owns per-user balances. Mutations are serialized per user:
// the self-contained operations (Deposit, Withdraw) take the user
// lock themselves, while the transactional primitives (LockFunds,
// ReleaseLocked) run on a caller-supplied *gorm.DB and require the
// caller to hold the user lock (via LockUser) for the lifetime of the
// enclosing database transaction. Releasing the lock before the
// transaction commits would let a concurrent settlement read a
// not-yet-committed balance and lose the update.
type Ledger struct {
	db     *gorm.DB
	logger *zap.Logger
	users  *locks.KeyedMutex
}

// NewLedger creates a Ledger on top of db.
func NewLedger(db *gorm.DB, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger,
		users:  locks.NewKeyedMutex(),
	}
}

// LockUser serializes balance mutations for one user. The returned
// function releases the lock.
func (l *Ledger) LockUser(userID string) (unlock func()) {
	return l.users.Lock(userID)
}

// Get returns the user's balance in the given currency, creating a
// zero balance on first reference.
func (l *Ledger) Get(userID, currency string) (*models.Balance, error) {
	return l.get(l.db, userID, currency)
}

func (l *Ledger) get(db *gorm.DB, userID, currency string) (*models.Balance, error) {
	var balance models.Balance
	err := db.Where("user_id = ? AND currency = ?", userID, currency).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		balance = models.Balance{
			UserID:    userID,
			Currency:  currency,
			Available: decimal.Zero,
			Locked:    decimal.Zero,
		}
		if err := db.Create(&balance).Error; err != nil {
			return nil, fmt.Errorf("failed to create balance for user %s: %w", userID, err)
		}
		return &balance, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load balance for user %s: %w", userID, err)
	}
	return &balance, nil
}

// LockFunds moves amount from available to locked. Caller must hold
// the user lock and run this inside its own database transaction.
// Returns ErrInsufficientBalance without mutating anything when
// available funds do not cover the amount.
func (l *Ledger) LockFunds(db *gorm.DB, userID, currency string, amount decimal.Decimal) error {
	balance, err := l.get(db, userID, currency)
	if err != nil {
		return err
	}

	if balance.Available.LessThan(amount) {
		return fmt.Errorf("available %s < %s: %w",
			balance.Available.String(), amount.String(), ErrInsufficientBalance)
	}

	balance.Available = balance.Available.Sub(amount)
	balance.Locked = balance.Locked.Add(amount)

	if err := db.Save(balance).Error; err != nil {
		return fmt.Errorf("failed to lock funds for user %s: %w", userID, err)
	}
	return nil
}

// ReleaseLocked unwinds a trade's locked principal back toward
// available, adjusted by the signed profit: on a win profit is
// positive, on a loss negative, and zero for a cancellation refund.
// Both fields are clamped at zero as a defensive floor. Caller must
// hold the user lock and run this inside its own database transaction.
func (l *Ledger) ReleaseLocked(db *gorm.DB, userID, currency string, amount, profit decimal.Decimal) error {
	balance, err := l.get(db, userID, currency)
	if err != nil {
		return err
	}

	locked := balance.Locked.Sub(amount)
	if locked.IsNegative() {
		l.logger.Warn("Locked balance underflow clamped to zero",
			zap.String("user_id", userID),
			zap.String("locked", balance.Locked.String()),
			zap.String("amount", amount.String()))
		locked = decimal.Zero
	}

	available := balance.Available.Add(amount).Add(profit)
	if available.IsNegative() {
		l.logger.Warn("Available balance underflow clamped to zero",
			zap.String("user_id", userID),
			zap.String("available", balance.Available.String()),
			zap.String("profit", profit.String()))
		available = decimal.Zero
	}

	balance.Locked = locked
	balance.Available = available

	if err := db.Save(balance).Error; err != nil {
		return fmt.Errorf("failed to release locked funds for user %s: %w", userID, err)
	}
	return nil
}

// Deposit credits amount to the user's available balance and records
// a deposit transaction.
func (l *Ledger) Deposit(userID, currency string, amount decimal.Decimal) (*models.Balance, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("deposit amount must be positive, got %s", amount.String())
	}

	unlock := l.LockUser(userID)
	defer unlock()

	var balance *models.Balance
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = l.get(tx, userID, currency)
		if err != nil {
			return err
		}

		balance.Available = balance.Available.Add(amount)
		if err := tx.Save(balance).Error; err != nil {
			return fmt.Errorf("failed to credit deposit for user %s: %w", userID, err)
		}

		record := models.Transaction{
			ID:        uuid.NewString(),
			UserID:    userID,
			Type:      models.TransactionTypeDeposit,
			Amount:    amount,
			Status:    models.TransactionStatusCompleted,
			CreatedAt: time.Now(),
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Deposit credited",
		zap.String("user_id", userID),
		zap.String("amount", amount.String()),
		zap.String("available", balance.Available.String()))
	return balance, nil
}

// Withdraw debits amount from the user's available balance and
// records a withdraw transaction. Locked funds cannot be withdrawn.
func (l *Ledger) Withdraw(userID, currency string, amount decimal.Decimal) (*models.Balance, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("withdraw amount must be positive, got %s", amount.String())
	}

	unlock := l.LockUser(userID)
	defer unlock()

	var balance *models.Balance
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = l.get(tx, userID, currency)
		if err != nil {
			return err
		}

		if balance.Available.LessThan(amount) {
			return fmt.Errorf("available %s < %s: %w",
				balance.Available.String(), amount.String(), ErrInsufficientBalance)
		}

		balance.Available = balance.Available.Sub(amount)
		if err := tx.Save(balance).Error; err != nil {
			return fmt.Errorf("failed to debit withdrawal for user %s: %w", userID, err)
		}

		record := models.Transaction{
			ID:        uuid.NewString(),
			UserID:    userID,
			Type:      models.TransactionTypeWithdraw,
			Amount:    amount,
			Status:    models.TransactionStatusCompleted,
			CreatedAt: time.Now(),
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Withdrawal debited",
		zap.String("user_id", userID),
		zap.String("amount", amount.String()),
		zap.String("available", balance.Available.String()))
	return balance, nil
}
