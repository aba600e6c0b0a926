package outcome

import (
	"github.com/shopspring/decimal"

	"metachrome-options-go/internal/models"
)

// DefaultForcedMovePercent is the price nudge applied to the entry
// price when an outcome is forced, expressed as a percentage. Forced
// settlements synthesize an exit price consistent with the recorded
// result instead of using the raw market price.
const DefaultForcedMovePercent = 1

// Decision is the result of resolving a trade's outcome.
type Decision struct {
	Win       bool
	ExitPrice decimal.Decimal
}

// Policy decides win/lose for an expired trade. It is a pure value:
// no I/O, no clock, fully determined by its inputs.
type Policy struct {
	forcedMove decimal.Decimal // fraction, e.g. 0.01 for a 1% nudge
}

// NewPolicy creates a Policy with the given forced-move percentage.
// A non-positive percentage falls back to the default.
func NewPolicy(forcedMovePercent float64) Policy {
	if forcedMovePercent <= 0 {
		forcedMovePercent = DefaultForcedMovePercent
	}
	return Policy{
		forcedMove: decimal.NewFromFloat(forcedMovePercent).Div(decimal.NewFromInt(100)),
	}
}

// Decide resolves the outcome of a trade.
//
// Under ControlWin or ControlLose the market price is ignored: the
// result is forced and the exit price is the entry price nudged by
// the forced-move fraction in the direction that matches the result.
// Under ControlNormal the trade wins exactly when its direction call
// matches whether the market ended above the entry: an up trade wins
// iff current > entry, a down trade wins iff current <= entry. A tie
// counts as not-above, so it loses for up and wins for down.
func (p Policy) Decide(direction models.TradeDirection, entry, current decimal.Decimal, control models.ControlType) Decision {
	switch control {
	case models.ControlWin:
		return Decision{Win: true, ExitPrice: p.nudge(entry, direction == models.DirectionUp)}
	case models.ControlLose:
		return Decision{Win: false, ExitPrice: p.nudge(entry, direction == models.DirectionDown)}
	}

	win := (direction == models.DirectionUp) == current.GreaterThan(entry)
	return Decision{Win: win, ExitPrice: current}
}

// nudge moves entry up or down by the forced-move fraction.
func (p Policy) nudge(entry decimal.Decimal, up bool) decimal.Decimal {
	move := entry.Mul(p.forcedMove)
	if up {
		return entry.Add(move)
	}
	return entry.Sub(move)
}
