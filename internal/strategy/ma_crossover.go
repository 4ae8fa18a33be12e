package strategy

import (
	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/risk"
)

// MovingAverageCrossover is ported from
// original_source/backend/strategies/implementations/ma_crossover.py: a
// plain dual-SMA crossover with no RSI filter. Unlike SMARSICrossover this
// strategy doesn't need to match the Python original bit-for-bit (the
// distilled spec.md doesn't name it), so it uses go-talib's Sma directly
// instead of hand-rolling the average.
type MovingAverageCrossover struct {
	fastPeriod      int
	slowPeriod      int
	riskPerTrade    decimal.Decimal
	stopLossPercent decimal.Decimal
	history         map[string][]float64
	prevFast        map[string]float64
	prevSlow        map[string]float64
	hasPrev         map[string]bool
}

// NewMovingAverageCrossover builds the strategy from config.
func NewMovingAverageCrossover(config map[string]interface{}) Strategy {
	s := &MovingAverageCrossover{
		fastPeriod:      5,
		slowPeriod:      20,
		riskPerTrade:    decimal.NewFromInt(2),
		stopLossPercent: decimal.NewFromInt(2),
		history:         make(map[string][]float64),
		prevFast:        make(map[string]float64),
		prevSlow:        make(map[string]float64),
		hasPrev:         make(map[string]bool),
	}
	s.ApplyConfig(config)
	return s
}

// GetConfigurableParams returns the two parameters this simpler crossover
// exposes, following SMARSICrossover's descriptor shape.
func (s *MovingAverageCrossover) GetConfigurableParams() []ConfigurableParam {
	return []ConfigurableParam{
		{Name: "fast_period", DisplayName: "Fast MA Period", ParamType: "int", DefaultValue: 5, MinValue: 2, MaxValue: 50, Description: "Period for fast moving average"},
		{Name: "slow_period", DisplayName: "Slow MA Period", ParamType: "int", DefaultValue: 20, MinValue: 5, MaxValue: 200, Description: "Period for slow moving average"},
	}
}

// ApplyConfig updates whichever of the two parameters are present in config.
func (s *MovingAverageCrossover) ApplyConfig(config map[string]interface{}) {
	if v, ok := config["fast_period"].(int); ok {
		s.fastPeriod = v
	}
	if v, ok := config["slow_period"].(int); ok {
		s.slowPeriod = v
	}
}

func (s *MovingAverageCrossover) OnStart(ctx domain.StrategyContext)  {}
func (s *MovingAverageCrossover) OnStop(ctx domain.StrategyContext)   {}
func (s *MovingAverageCrossover) OnPause(ctx domain.StrategyContext)  {}
func (s *MovingAverageCrossover) OnResume(ctx domain.StrategyContext) {}
func (s *MovingAverageCrossover) OnOrderFilled(order domain.Order, fillData domain.MarketData, fillQuantity int64) {
}

func (s *MovingAverageCrossover) OnMarketData(ctx domain.StrategyContext, data domain.MarketData) *domain.Order {
	closePrice, _ := data.Close.Float64()
	s.history[data.Symbol] = append(s.history[data.Symbol], closePrice)
	prices := s.history[data.Symbol]

	if len(prices) < s.slowPeriod {
		return nil
	}

	fastSeries := talib.Sma(prices, s.fastPeriod)
	slowSeries := talib.Sma(prices, s.slowPeriod)
	fast := fastSeries[len(fastSeries)-1]
	slow := slowSeries[len(slowSeries)-1]

	var bullish, bearish bool
	if s.hasPrev[data.Symbol] {
		prevFast := s.prevFast[data.Symbol]
		prevSlow := s.prevSlow[data.Symbol]
		bullish = prevFast <= prevSlow && fast > slow
		bearish = prevFast >= prevSlow && fast < slow
	}
	s.prevFast[data.Symbol] = fast
	s.prevSlow[data.Symbol] = slow
	s.hasPrev[data.Symbol] = true

	_, hasPosition := ctx.PositionFor(data.Symbol)

	if bullish && !hasPosition {
		stopLoss := data.Close.Mul(decimal.NewFromInt(1).Sub(s.stopLossPercent.Div(decimal.NewFromInt(100))))
		riskPercent := s.riskPerTrade
		if ctx.Limits.RiskPerTradePercent.IsPositive() {
			riskPercent = ctx.Limits.RiskPerTradePercent
		}
		quantity := risk.PositionSize(ctx.Capital, riskPercent, data.Close, stopLoss)
		if quantity <= 0 {
			return nil
		}
		return &domain.Order{
			Symbol:      data.Symbol,
			Exchange:    "NSE",
			Signal:      domain.SignalBuy,
			OrderType:   domain.OrderTypeMarket,
			Quantity:    quantity,
			StopLoss:    stopLoss,
			MarketPrice: data.Close,
			Reason:      "bullish moving average crossover",
		}
	}

	if bearish && hasPosition {
		pos, _ := ctx.PositionFor(data.Symbol)
		return &domain.Order{
			Symbol:      data.Symbol,
			Signal:      domain.SignalExitLong,
			OrderType:   domain.OrderTypeMarket,
			Quantity:    pos.Quantity,
			MarketPrice: data.Close,
			Reason:      "bearish moving average crossover",
		}
	}

	return nil
}

func (s *MovingAverageCrossover) GetState() map[string]interface{} {
	out := make(map[string]interface{}, len(s.history))
	for symbol, prices := range s.history {
		out[symbol] = map[string]interface{}{
			"price_history": prices,
			"prev_fast":     s.prevFast[symbol],
			"prev_slow":     s.prevSlow[symbol],
			"has_prev":      s.hasPrev[symbol],
		}
	}
	return out
}

func (s *MovingAverageCrossover) SetState(state map[string]interface{}) {
	s.history = make(map[string][]float64, len(state))
	s.prevFast = make(map[string]float64, len(state))
	s.prevSlow = make(map[string]float64, len(state))
	s.hasPrev = make(map[string]bool, len(state))
	for symbol, raw := range state {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if hist, ok := entry["price_history"].([]float64); ok {
			s.history[symbol] = hist
		}
		if v, ok := entry["prev_fast"].(float64); ok {
			s.prevFast[symbol] = v
		}
		if v, ok := entry["prev_slow"].(float64); ok {
			s.prevSlow[symbol] = v
		}
		if v, ok := entry["has_prev"].(bool); ok {
			s.hasPrev[symbol] = v
		}
	}
}
