package pricefeed

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable signals that no usable quote exists for a
// symbol. It is transient: callers retry at open time, and settlement
// leaves the trade active for the next sweep.
var ErrPriceUnavailable = errors.New("price unavailable")

// Oracle supplies the current quoted price for a symbol. The trading
// engine depends only on this interface; the production implementation
// is the polling Feed, tests inject a mock.
type Oracle interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
