package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPosition_MarketValue_MultipliesPriceByQuantity(t *testing.T) {
	p := Position{Quantity: 10, CurrentPrice: decimal.NewFromInt(150)}
	assert.True(t, p.MarketValue().Equal(decimal.NewFromInt(1500)))
}

func TestStrategyContext_PositionFor_FindsMatchingSymbol(t *testing.T) {
	ctx := StrategyContext{Positions: []Position{
		{Symbol: "INFY", Quantity: 10},
		{Symbol: "TCS", Quantity: 5},
	}}

	pos, ok := ctx.PositionFor("TCS")
	assert.True(t, ok)
	assert.Equal(t, int64(5), pos.Quantity)
}

func TestStrategyContext_PositionFor_ReturnsFalseWhenAbsent(t *testing.T) {
	ctx := StrategyContext{Positions: []Position{{Symbol: "INFY", Quantity: 10}}}

	_, ok := ctx.PositionFor("WIPRO")
	assert.False(t, ok)
}
