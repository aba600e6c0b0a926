package models

import "gorm.io/gorm"

// ControlType is an administrator override on trade outcomes.
type ControlType string

const (
	ControlNormal ControlType = "normal"
	ControlWin    ControlType = "win"
	ControlLose   ControlType = "lose"
)

// OutcomeControl forces a user's trades to win or lose regardless of
// market movement. At most one control is active per user; setting a
// new one deactivates the prior row rather than deleting it, so the
// history remains auditable.
type OutcomeControl struct {
	gorm.Model
	UserID      string      `gorm:"index;not null" json:"user_id"`
	ControlType ControlType `gorm:"not null" json:"control_type"`
	IsActive    bool        `gorm:"index;not null" json:"is_active"`
}
