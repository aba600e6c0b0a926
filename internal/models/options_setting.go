package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OptionsSetting configures one duration tier: the minimum wager and
// the payout percentage applied at settlement. Read-only from the
// engine's perspective; rows are seeded from config at migration.
type OptionsSetting struct {
	gorm.Model
	Duration         int             `gorm:"uniqueIndex;not null" json:"duration"`
	MinAmount        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"min_amount"`
	ProfitPercentage decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"profit_percentage"`
	IsActive         bool            `gorm:"default:true" json:"is_active"`
}
