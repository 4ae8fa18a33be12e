package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
)

// closes is a hand-traced price path for fast=2/slow=3/rsi=2: a bullish SMA
// crossover with RSI 66.67 (< 70) fires a BUY at index 3, a bearish
// crossover fires an EXIT at index 4, and the partial re-crossover at
// index 5 (RSI 75, >= 70) is correctly blocked from re-entering.
var closes = []int64{10, 9, 11, 10, 9, 12, 13, 14}

func runSeries(t *testing.T, strat *SMARSICrossover, prices []int64) []*domain.Order {
	t.Helper()
	ctx := domain.StrategyContext{Capital: decimal.NewFromInt(100000)}
	strat.OnStart(ctx)

	var orders []*domain.Order
	for _, c := range prices {
		order := strat.OnMarketData(ctx, domain.MarketData{Symbol: "INFY", Close: decimal.NewFromInt(c)})
		if order == nil {
			continue
		}
		orders = append(orders, order)
		switch order.Signal {
		case domain.SignalBuy:
			ctx.Positions = []domain.Position{{Symbol: "INFY", Quantity: order.Quantity, AvgPrice: order.MarketPrice}}
		case domain.SignalExitLong, domain.SignalSell:
			ctx.Positions = nil
		}
	}
	return orders
}

func newTestSMARSI() *SMARSICrossover {
	return NewSMARSICrossover(map[string]interface{}{
		"fast_period": 2, "slow_period": 3, "rsi_period": 2, "rsi_overbought": 70.0,
	}).(*SMARSICrossover)
}

func TestSMARSICrossover_EntersOnceAndExitsOnReversal(t *testing.T) {
	orders := runSeries(t, newTestSMARSI(), closes)

	require.Len(t, orders, 2, "exactly one BUY and one EXIT across the series")
	assert.Equal(t, domain.SignalBuy, orders[0].Signal)
	assert.True(t, orders[0].Quantity > 0, "position size must be computed, not left at zero")
	assert.False(t, orders[0].StopLoss.IsZero(), "a BUY order leaving the strategy must carry a stop-loss")
	assert.Equal(t, domain.SignalExitLong, orders[1].Signal)
}

func TestSMARSICrossover_RSIGateBlocksReentryAboveOverbought(t *testing.T) {
	// The partial recovery at index 5 reproduces a bullish SMA crossover
	// with RSI 75 (>= 70): confirms the RSI filter, not just the SMA
	// crossover, gates entry.
	orders := runSeries(t, newTestSMARSI(), closes[:6])
	require.Len(t, orders, 2, "BUY at index 3, EXIT at index 4; the index-5 crossover must not re-enter")
}

func TestSMARSICrossover_StateRoundTripIsAFixedPoint(t *testing.T) {
	strat := newTestSMARSI()
	ctx := domain.StrategyContext{Capital: decimal.NewFromInt(100000)}
	for _, c := range closes {
		strat.OnMarketData(ctx, domain.MarketData{Symbol: "INFY", Close: decimal.NewFromInt(c)})
	}

	snapshot := strat.GetState()
	restored := newTestSMARSI()
	restored.SetState(snapshot)

	assert.Equal(t, snapshot, restored.GetState())
}

func TestSMA_RequiresFullWindow(t *testing.T) {
	_, ok := sma([]decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(2)}, 3)
	assert.False(t, ok)

	avg, ok := sma([]decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(2), decimal.NewFromInt(3)}, 3)
	require.True(t, ok)
	assert.True(t, avg.Equal(decimal.NewFromInt(2)))
}

func TestRSI_Returns100WhenNoLosses(t *testing.T) {
	prices := []decimal.Decimal{decimal.NewFromInt(10), decimal.NewFromInt(11), decimal.NewFromInt(12)}
	r, ok := rsi(prices, 2)
	require.True(t, ok)
	assert.True(t, r.Equal(decimal.NewFromInt(100)))
}

func TestSMARSICrossover_GetConfigurableParamsListsTheSevenTunableKeys(t *testing.T) {
	strat := NewSMARSICrossover(nil).(*SMARSICrossover)
	params := strat.GetConfigurableParams()
	require.Len(t, params, 7)

	names := make(map[string]bool, len(params))
	for _, p := range params {
		names[p.Name] = true
	}
	for _, key := range []string{"fast_period", "slow_period", "rsi_period", "rsi_overbought", "rsi_oversold", "stop_loss_percent", "target_percent"} {
		assert.True(t, names[key], "GetConfigurableParams is missing %q", key)
	}
}

func TestSMARSICrossover_ApplyConfigOverridesOnlyPresentKeys(t *testing.T) {
	strat := NewSMARSICrossover(nil).(*SMARSICrossover)
	assert.Equal(t, 10, strat.fastPeriod)
	assert.True(t, strat.stopLossPercent.Equal(decimal.NewFromInt(2)))

	strat.ApplyConfig(map[string]interface{}{"fast_period": 7, "target_percent": 5.5})

	assert.Equal(t, 7, strat.fastPeriod, "fast_period must be overridden")
	assert.Equal(t, 30, strat.slowPeriod, "slow_period was absent from config and must keep its prior value")
	assert.True(t, strat.targetPercent.Equal(decimal.NewFromFloat(5.5)))
}
