package trading

import "errors"

// Validation errors are surfaced to the caller synchronously and are
// always rejected before any mutation.
var (
	ErrTradeNotFound      = errors.New("trade not found")
	ErrNotTradeOwner      = errors.New("trade does not belong to user")
	ErrAlreadyTerminal    = errors.New("trade is already terminal")
	ErrInvalidDirection   = errors.New("direction must be up or down")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidDuration    = errors.New("no active options setting for duration")
	ErrAmountBelowMinimum = errors.New("amount below minimum for duration")
	ErrInvalidControlType = errors.New("control type must be normal, win or lose")
)

// errAlreadySettled aborts the settlement transaction when another
// caller won the race after our status check. Swallowed as a no-op.
var errAlreadySettled = errors.New("trade settled by a concurrent caller")
