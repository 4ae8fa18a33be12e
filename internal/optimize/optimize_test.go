package optimize

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/backtest"
	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/strategy"
)

// thresholdStrategy buys once close reaches its "threshold" config
// parameter and never sells, so each sample makes at most one trade
// (exactly one when the threshold is at or below the highest close)
// without depending on any real indicator.
type thresholdStrategy struct {
	threshold decimal.Decimal
	bought    bool
}

func newThresholdStrategy(config map[string]interface{}) strategy.Strategy {
	s := &thresholdStrategy{threshold: decimal.NewFromInt(100)}
	if v, ok := config["threshold"].(float64); ok {
		s.threshold = decimal.NewFromFloat(v)
	}
	return s
}

func (s *thresholdStrategy) OnStart(ctx domain.StrategyContext)  {}
func (s *thresholdStrategy) OnStop(ctx domain.StrategyContext)   {}
func (s *thresholdStrategy) OnPause(ctx domain.StrategyContext)  {}
func (s *thresholdStrategy) OnResume(ctx domain.StrategyContext) {}
func (s *thresholdStrategy) OnOrderFilled(order domain.Order, fillData domain.MarketData, fillQuantity int64) {
}

func (s *thresholdStrategy) OnMarketData(ctx domain.StrategyContext, data domain.MarketData) *domain.Order {
	if s.bought || data.Close.LessThan(s.threshold) {
		return nil
	}
	s.bought = true
	return &domain.Order{
		Symbol:      data.Symbol,
		Signal:      domain.SignalBuy,
		OrderType:   domain.OrderTypeMarket,
		Quantity:    1,
		StopLoss:    data.Close.Mul(decimal.NewFromFloat(0.9)),
		MarketPrice: data.Close,
		Reason:      "threshold crossed",
	}
}

func (s *thresholdStrategy) GetState() map[string]interface{}     { return nil }
func (s *thresholdStrategy) SetState(state map[string]interface{}) {}
func (s *thresholdStrategy) GetConfigurableParams() []strategy.ConfigurableParam { return nil }
func (s *thresholdStrategy) ApplyConfig(config map[string]interface{})             {}

func sampleCandles() []domain.Candle {
	base := time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC)
	out := make([]domain.Candle, 10)
	for i := 0; i < 10; i++ {
		price := int64(95 + i)
		out[i] = domain.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      decimal.NewFromInt(price),
			High:      decimal.NewFromInt(price + 1),
			Low:       decimal.NewFromInt(price - 1),
			Close:     decimal.NewFromInt(price),
			Volume:    1000,
		}
	}
	return out
}

func newTestOptimizer() *Optimizer {
	registry := strategy.NewRegistry()
	registry.Register("threshold", newThresholdStrategy)
	engine := backtest.New(decimal.Zero, decimal.Zero)
	return New(engine, registry, rand.New(rand.NewSource(42)))
}

func TestOptimizer_Run_SortsDescendingAndBestHasOneTrade(t *testing.T) {
	o := newTestOptimizer()
	config := Config{
		BacktestConfig: backtest.Config{
			StrategyName:   "threshold",
			Symbol:         "INFY",
			Exchange:       "NSE",
			InitialCapital: decimal.NewFromInt(100000),
			StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:        time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		ParameterRanges: []ParameterRange{
			{Name: "threshold", Min: 95, Max: 104, Step: 1, ParamType: "float"},
		},
		NumSamples:      20,
		ObjectiveMetric: "total_trades",
	}

	results := o.Run(context.Background(), config, sampleCandles(), nil)
	require.NotEmpty(t, results)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].ObjectiveValue, results[i].ObjectiveValue, "results must be sorted descending by objective value")
	}

	best := GetBestResult(results)
	require.NotNil(t, best)
	assert.Equal(t, 1.0, best.ObjectiveValue, "every threshold in 95..104 is reached by the closes, so each sample makes one trade")
}

func TestOptimizer_Run_UnknownStrategyProducesErroredSample(t *testing.T) {
	o := newTestOptimizer()
	config := Config{
		BacktestConfig: backtest.Config{
			StrategyName:   "does_not_exist",
			InitialCapital: decimal.NewFromInt(100000),
		},
		ParameterRanges: []ParameterRange{{Name: "x", Min: 1, Max: 1, Step: 1, ParamType: "int"}},
		NumSamples:      5,
		ObjectiveMetric: "total_trades",
	}

	results := o.Run(context.Background(), config, sampleCandles(), nil)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Error)
}

func TestGetHeatmapData_AveragesCellsAndTracksBest(t *testing.T) {
	results := []SampleResult{
		{Parameters: map[string]float64{"x": 1, "y": 1}, Metrics: map[string]float64{"m": 10}},
		{Parameters: map[string]float64{"x": 1, "y": 1}, Metrics: map[string]float64{"m": 20}},
		{Parameters: map[string]float64{"x": 2, "y": 1}, Metrics: map[string]float64{"m": 5}},
		{Parameters: map[string]float64{"x": 1, "y": 1}, Error: "failed", Metrics: map[string]float64{"m": 1000}},
	}

	h := GetHeatmapData(results, "x", "y", "m")
	require.True(t, h.HasBest)
	assert.Equal(t, 1.0, h.BestX)
	assert.Equal(t, 1.0, h.BestY)
	assert.Equal(t, 15.0, h.BestValue, "errored samples must be excluded from the average")
}
