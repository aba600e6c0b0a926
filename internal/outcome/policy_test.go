package outcome

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"metachrome-options-go/internal/models"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestDecide_Normal(t *testing.T) {
	policy := NewPolicy(1)

	tests := []struct {
		name      string
		direction models.TradeDirection
		entry     string
		current   string
		wantWin   bool
	}{
		{"UpWinsWhenPriceRises", models.DirectionUp, "50000", "50100", true},
		{"UpLosesWhenPriceFalls", models.DirectionUp, "50000", "49900", false},
		{"UpLosesOnTie", models.DirectionUp, "50000", "50000", false},
		{"DownWinsWhenPriceFalls", models.DirectionDown, "50000", "49900", true},
		{"DownLosesWhenPriceRises", models.DirectionDown, "50000", "50100", false},
		{"DownWinsOnTie", models.DirectionDown, "50000", "50000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Decide(tt.direction, d(tt.entry), d(tt.current), models.ControlNormal)
			assert.Equal(t, tt.wantWin, got.Win)
			// Under normal control the exit price is the market price.
			assert.True(t, got.ExitPrice.Equal(d(tt.current)),
				"exit price %s != current %s", got.ExitPrice, tt.current)
		})
	}
}

func TestDecide_ForcedOutcomes(t *testing.T) {
	policy := NewPolicy(1)

	tests := []struct {
		name      string
		direction models.TradeDirection
		control   models.ControlType
		wantWin   bool
		wantExit  string // entry 50000 nudged by 1%
	}{
		{"ForcedWinUp", models.DirectionUp, models.ControlWin, true, "50500"},
		{"ForcedWinDown", models.DirectionDown, models.ControlWin, true, "49500"},
		{"ForcedLoseUp", models.DirectionUp, models.ControlLose, false, "49500"},
		{"ForcedLoseDown", models.DirectionDown, models.ControlLose, false, "50500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The market price contradicts the forced result on purpose.
			current := d("1")
			got := policy.Decide(tt.direction, d("50000"), current, tt.control)
			assert.Equal(t, tt.wantWin, got.Win)
			assert.True(t, got.ExitPrice.Equal(d(tt.wantExit)),
				"exit price %s != %s", got.ExitPrice, tt.wantExit)
		})
	}
}

func TestDecide_ForcedMoveIsConfigurable(t *testing.T) {
	policy := NewPolicy(5)

	got := policy.Decide(models.DirectionUp, d("200"), decimal.Zero, models.ControlWin)
	assert.True(t, got.Win)
	assert.True(t, got.ExitPrice.Equal(d("210")), "exit price %s != 210", got.ExitPrice)
}

func TestNewPolicy_DefaultsOnInvalidPercent(t *testing.T) {
	policy := NewPolicy(0)

	got := policy.Decide(models.DirectionUp, d("100"), decimal.Zero, models.ControlWin)
	assert.True(t, got.ExitPrice.Equal(d("101")), "exit price %s != 101", got.ExitPrice)
}
