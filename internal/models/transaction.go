package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionTypeTradeWin  TransactionType = "trade_win"
	TransactionTypeTradeLoss TransactionType = "trade_loss"
	TransactionTypeDeposit   TransactionType = "deposit"
	TransactionTypeWithdraw  TransactionType = "withdraw"
)

// TransactionStatus — every entry recorded by this engine is final.
type TransactionStatus string

const TransactionStatusCompleted TransactionStatus = "completed"

// Transaction is an immutable ledger entry. For settlement entries
// (trade_win / trade_loss) ReferenceID carries the settled trade's id
// under a unique index: at most one settlement entry may ever exist
// per trade, which is what makes settlement idempotent across process
// restarts. Deposits and withdrawals leave ReferenceID nil.
type Transaction struct {
	ID          string            `gorm:"primaryKey" json:"id"`
	UserID      string            `gorm:"index;not null" json:"user_id"`
	Type        TransactionType   `gorm:"not null" json:"type"`
	Amount      decimal.Decimal   `gorm:"type:decimal(20,8);not null" json:"amount"`
	ReferenceID *string           `gorm:"uniqueIndex" json:"reference_id,omitempty"`
	Status      TransactionStatus `gorm:"not null" json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}
