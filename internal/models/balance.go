package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Balance holds a user's funds in one currency, split into the amount
// freely available and the amount locked against open trades. Both
// fields are invariantly non-negative. Rows are created lazily on
// first reference.
type Balance struct {
	gorm.Model
	UserID    string          `gorm:"uniqueIndex:idx_user_currency;not null" json:"user_id"`
	Currency  string          `gorm:"uniqueIndex:idx_user_currency;not null" json:"currency"`
	Available decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"available"`
	Locked    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"locked"`
}
