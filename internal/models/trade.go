package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus is the lifecycle state of a trade. Transitions are
// active -> completed or active -> cancelled; both are terminal.
type TradeStatus string

const (
	TradeStatusActive    TradeStatus = "active"
	TradeStatusCompleted TradeStatus = "completed"
	TradeStatusCancelled TradeStatus = "cancelled"
)

// TradeDirection is the side of the wager: the price goes up or down.
type TradeDirection string

const (
	DirectionUp   TradeDirection = "up"
	DirectionDown TradeDirection = "down"
)

// TradeResult is set only when a trade completes.
type TradeResult string

const (
	ResultWin  TradeResult = "win"
	ResultLose TradeResult = "lose"
)

// Trade represents a single binary-options wager.
type Trade struct {
	ID              string              `gorm:"primaryKey" json:"id"`
	UserID          string              `gorm:"index;not null" json:"user_id"`
	Symbol          string              `gorm:"not null" json:"symbol"`
	Direction       TradeDirection      `gorm:"not null" json:"direction"`
	Amount          decimal.Decimal     `gorm:"type:decimal(20,8);not null" json:"amount"`
	EntryPrice      decimal.Decimal     `gorm:"type:decimal(20,8);not null" json:"entry_price"`
	ExitPrice       decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"exit_price"`
	DurationSeconds int                 `gorm:"not null" json:"duration_seconds"`
	Status          TradeStatus         `gorm:"index;not null" json:"status"`
	Result          TradeResult         `json:"result,omitempty"`
	Profit          decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"profit"`
	ExpiresAt       time.Time           `gorm:"index;not null" json:"expires_at"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// IsTerminal reports whether the trade has reached a final state.
func (t *Trade) IsTerminal() bool {
	return t.Status != TradeStatusActive
}
