package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
)

func newTestMACrossover() *MovingAverageCrossover {
	return NewMovingAverageCrossover(map[string]interface{}{
		"fast_period": 2, "slow_period": 3,
	}).(*MovingAverageCrossover)
}

func TestMovingAverageCrossover_EntersOnceAndExitsOnReversal(t *testing.T) {
	strat := newTestMACrossover()
	ctx := domain.StrategyContext{Capital: decimal.NewFromInt(100000)}

	var orders []*domain.Order
	for _, c := range []int64{10, 9, 11, 13, 15, 12, 9, 7} {
		order := strat.OnMarketData(ctx, domain.MarketData{Symbol: "INFY", Close: decimal.NewFromInt(c)})
		if order == nil {
			continue
		}
		orders = append(orders, order)
		switch order.Signal {
		case domain.SignalBuy:
			ctx.Positions = []domain.Position{{Symbol: "INFY", Quantity: order.Quantity, AvgPrice: order.MarketPrice}}
		case domain.SignalExitLong:
			ctx.Positions = nil
		}
	}

	require.GreaterOrEqual(t, len(orders), 2, "a rise then a fall must produce at least one BUY and one EXIT")
	assert.Equal(t, domain.SignalBuy, orders[0].Signal)
}

func TestMovingAverageCrossover_StateRoundTripIsAFixedPoint(t *testing.T) {
	strat := newTestMACrossover()
	ctx := domain.StrategyContext{Capital: decimal.NewFromInt(100000)}
	for _, c := range []int64{10, 9, 11, 13, 15} {
		strat.OnMarketData(ctx, domain.MarketData{Symbol: "INFY", Close: decimal.NewFromInt(c)})
	}

	snapshot := strat.GetState()
	restored := newTestMACrossover()
	restored.SetState(snapshot)

	assert.Equal(t, snapshot, restored.GetState())
}

func TestMovingAverageCrossover_ApplyConfigOverridesOnlyPresentKeys(t *testing.T) {
	strat := NewMovingAverageCrossover(nil).(*MovingAverageCrossover)
	assert.Equal(t, 5, strat.fastPeriod)
	assert.Equal(t, 20, strat.slowPeriod)

	strat.ApplyConfig(map[string]interface{}{"fast_period": 8})

	assert.Equal(t, 8, strat.fastPeriod, "fast_period must be overridden")
	assert.Equal(t, 20, strat.slowPeriod, "slow_period was absent from config and must keep its prior value")
}

func TestMovingAverageCrossover_GetConfigurableParamsCoversEveryApplyConfigKey(t *testing.T) {
	strat := NewMovingAverageCrossover(nil).(*MovingAverageCrossover)
	params := strat.GetConfigurableParams()
	require.Len(t, params, 2)

	names := make(map[string]bool, len(params))
	for _, p := range params {
		names[p.Name] = true
	}
	assert.True(t, names["fast_period"])
	assert.True(t, names["slow_period"])
}
