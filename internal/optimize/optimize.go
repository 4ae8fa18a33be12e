// Package optimize implements the Monte Carlo parameter optimizer: given a
// base backtest configuration and a set of parameter ranges, it samples
// combinations (corner cases first, then random fill, falling back to an
// exhaustive sweep when the search space is small), runs a backtest per
// sample through internal/backtest.Engine, and ranks the results by a
// chosen objective metric. Ported from
// original_source/backend/backtest/optimizer.py's MonteCarloOptimizer.
package optimize

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aristath/sentinel/internal/backtest"
	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/strategy"
)

// ParameterRange defines the sweep range and step for one strategy
// parameter, mirroring optimizer.py's ParameterRange dataclass.
type ParameterRange struct {
	Name      string
	Min       float64
	Max       float64
	Step      float64
	ParamType string // "int" or "float"
}

// PossibleValues enumerates every value in [Min, Max] at Step increments,
// rounding "int" parameters to whole numbers and "float" parameters to 4
// decimal places, matching get_possible_values's epsilon-tolerant loop.
func (p ParameterRange) PossibleValues() []float64 {
	var values []float64
	for current := p.Min; current <= p.Max+0.0001; current += p.Step {
		if p.ParamType == "int" {
			values = append(values, math.Round(current))
		} else {
			values = append(values, roundTo(current, 4))
		}
	}
	return values
}

func (p ParameterRange) sampleValue(rng *rand.Rand) float64 {
	values := p.PossibleValues()
	return values[rng.Intn(len(values))]
}

func roundTo(v float64, places int) float64 {
	mul := math.Pow(10, float64(places))
	return math.Round(v*mul) / mul
}

// Config configures one optimization run.
type Config struct {
	BacktestConfig  backtest.Config
	ParameterRanges []ParameterRange
	NumSamples      int
	ObjectiveMetric string
}

// SampleResult is the outcome of backtesting one sampled parameter set.
type SampleResult struct {
	Parameters     map[string]float64
	Metrics        map[string]float64
	ObjectiveValue float64
	TradesCount    int
	Error          string
}

// ProgressCallback reports completed/total samples with a status message.
type ProgressCallback func(completed, total int, message string)

// Optimizer runs Monte Carlo parameter sweeps against a backtest.Engine.
type Optimizer struct {
	engine   *backtest.Engine
	registry *strategy.Registry
	rng      *rand.Rand
}

// New builds an Optimizer that resolves strategy names via registry and
// runs backtests through engine. rng controls sample selection; pass a
// seeded *rand.Rand for deterministic tests, or rand.New(rand.NewSource(t))
// in production.
func New(engine *backtest.Engine, registry *strategy.Registry, rng *rand.Rand) *Optimizer {
	return &Optimizer{engine: engine, registry: registry, rng: rng}
}

// Run samples parameter combinations and backtests each one against
// candles, returning results sorted by objective value descending (the
// best result is always results[0], absent a completely empty sample set).
func (o *Optimizer) Run(ctx context.Context, config Config, candles []domain.Candle, onProgress ProgressCallback) []SampleResult {
	samples := o.generateSamples(config.ParameterRanges, config.NumSamples)
	total := len(samples)
	results := make([]SampleResult, 0, total)

	for i, params := range samples {
		result := o.runSample(ctx, config, params, candles)
		results = append(results, result)

		if onProgress != nil {
			onProgress(i+1, total, fmt.Sprintf("completed sample %d/%d", i+1, total))
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ObjectiveValue > results[j].ObjectiveValue
	})

	return results
}

func (o *Optimizer) runSample(ctx context.Context, config Config, params map[string]float64, candles []domain.Candle) SampleResult {
	strategyConfig := make(map[string]interface{}, len(params))
	for k, v := range params {
		strategyConfig[k] = v
	}

	strat, ok := o.registry.Create(config.BacktestConfig.StrategyName, strategyConfig)
	if !ok {
		return SampleResult{Parameters: params, ObjectiveValue: math.Inf(-1), Error: fmt.Sprintf("unknown strategy %q", config.BacktestConfig.StrategyName)}
	}

	btConfig := config.BacktestConfig
	btConfig.StrategyConfig = strategyConfig

	btResult := o.engine.Run(ctx, btConfig, strat, candles, nil)
	if btResult.Cancelled {
		return SampleResult{Parameters: params, ObjectiveValue: math.Inf(-1), Error: "cancelled"}
	}
	if btResult.Error != "" {
		return SampleResult{Parameters: params, ObjectiveValue: math.Inf(-1), Error: btResult.Error}
	}

	metrics := extractMetrics(btResult.Metrics)
	objective := metrics[config.ObjectiveMetric]
	if config.ObjectiveMetric == "max_drawdown" {
		objective = -objective
	}

	return SampleResult{
		Parameters:     params,
		Metrics:        metrics,
		ObjectiveValue: objective,
		TradesCount:    btResult.Metrics.TotalTrades,
	}
}

func extractMetrics(m backtest.PerformanceMetrics) map[string]float64 {
	f := func(d decimal.Decimal) float64 {
		v, _ := d.Float64()
		return v
	}
	return map[string]float64{
		"total_return":         f(m.TotalReturn),
		"total_return_percent": f(m.TotalReturnPercent),
		"cagr":                 f(m.CAGR),
		"sharpe_ratio":         f(m.SharpeRatio),
		"sortino_ratio":        f(m.SortinoRatio),
		"calmar_ratio":         f(m.CalmarRatio),
		"max_drawdown":         f(m.MaxDrawdown),
		"avg_drawdown":         f(m.AvgDrawdown),
		"win_rate":             f(m.WinRate),
		"profit_factor":        f(m.ProfitFactor),
		"total_trades":         float64(m.TotalTrades),
		"winning_trades":       float64(m.WinningTrades),
		"losing_trades":        float64(m.LosingTrades),
		"final_capital":        f(m.FinalCapital),
		"max_capital":          f(m.MaxCapital),
	}
}

// GetBestResult returns the first error-free result, or nil if every
// sample errored. Assumes results is already sorted by Run.
func GetBestResult(results []SampleResult) *SampleResult {
	for i := range results {
		if results[i].Error == "" {
			return &results[i]
		}
	}
	return nil
}
