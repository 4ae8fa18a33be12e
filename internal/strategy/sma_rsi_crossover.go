package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/risk"
)

// symbolState holds the per-symbol rolling history SMARSICrossover needs
// to detect a crossover and compute RSI, mirroring sma_rsi_crossover.py's
// per-symbol dictionaries.
type symbolState struct {
	priceHistory []decimal.Decimal
	prevFastMA   *decimal.Decimal
	prevSlowMA   *decimal.Decimal
}

// SMARSICrossover is a bit-exact port of
// original_source/backend/strategies/implementations/sma_rsi_crossover.py:
// a simple-moving-average crossover gated by a simple (non-Wilder-smoothed)
// RSI filter. Every arithmetic step matches the Python original, including
// its use of a plain arithmetic mean for both the moving averages and the
// RSI's average gain/loss — go-talib's Rsi uses Wilder smoothing and would
// not reproduce this, so this strategy hand-rolls the math instead of
// calling into the library (see DESIGN.md).
type SMARSICrossover struct {
	fastPeriod      int
	slowPeriod      int
	rsiPeriod       int
	rsiOverbought   decimal.Decimal
	rsiOversold     decimal.Decimal
	riskPerTrade    decimal.Decimal // percent of capital risked per trade
	stopLossPercent decimal.Decimal // percent below entry for the stop
	targetPercent   decimal.Decimal // percent above entry for the profit target

	state map[string]*symbolState
}

// NewSMARSICrossover builds the strategy from config, defaulting to a
// 10/30 SMA crossover gated by RSI-14 overbought at 70 — the same
// defaults the Python original ships with.
func NewSMARSICrossover(config map[string]interface{}) Strategy {
	s := &SMARSICrossover{
		fastPeriod:      10,
		slowPeriod:      30,
		rsiPeriod:       14,
		rsiOverbought:   decimal.NewFromInt(70),
		rsiOversold:     decimal.NewFromInt(30),
		riskPerTrade:    decimal.NewFromInt(2),
		stopLossPercent: decimal.NewFromInt(2),
		targetPercent:   decimal.NewFromInt(4),
		state:           make(map[string]*symbolState),
	}
	s.ApplyConfig(config)
	return s
}

// GetConfigurableParams returns the seven tunable parameters, ported
// verbatim (name, bounds, description) from sma_rsi_crossover.py's
// get_configurable_params.
func (s *SMARSICrossover) GetConfigurableParams() []ConfigurableParam {
	return []ConfigurableParam{
		{Name: "fast_period", DisplayName: "Fast MA Period", ParamType: "int", DefaultValue: 10, MinValue: 2, MaxValue: 50, Description: "Period for fast moving average"},
		{Name: "slow_period", DisplayName: "Slow MA Period", ParamType: "int", DefaultValue: 30, MinValue: 5, MaxValue: 200, Description: "Period for slow moving average"},
		{Name: "rsi_period", DisplayName: "RSI Period", ParamType: "int", DefaultValue: 14, MinValue: 5, MaxValue: 50, Description: "Period for RSI calculation"},
		{Name: "rsi_overbought", DisplayName: "RSI Overbought", ParamType: "int", DefaultValue: 70, MinValue: 50, MaxValue: 90, Description: "RSI level considered overbought"},
		{Name: "rsi_oversold", DisplayName: "RSI Oversold", ParamType: "int", DefaultValue: 30, MinValue: 10, MaxValue: 50, Description: "RSI level considered oversold"},
		{Name: "stop_loss_percent", DisplayName: "Stop Loss %", ParamType: "float", DefaultValue: 2.0, MinValue: 0.5, MaxValue: 10.0, Description: "Stop loss percentage per trade"},
		{Name: "target_percent", DisplayName: "Target %", ParamType: "float", DefaultValue: 4.0, MinValue: 1.0, MaxValue: 20.0, Description: "Target profit percentage per trade"},
	}
}

// ApplyConfig updates whichever of the seven configurable parameters, or
// risk_per_trade (which GetConfigurableParams does not list), are present
// in config, leaving the rest at their current values. Ported from
// sma_rsi_crossover.py's apply_config.
func (s *SMARSICrossover) ApplyConfig(config map[string]interface{}) {
	if v, ok := config["fast_period"].(int); ok {
		s.fastPeriod = v
	}
	if v, ok := config["slow_period"].(int); ok {
		s.slowPeriod = v
	}
	if v, ok := config["rsi_period"].(int); ok {
		s.rsiPeriod = v
	}
	if v, ok := config["rsi_overbought"].(float64); ok {
		s.rsiOverbought = decimal.NewFromFloat(v)
	}
	if v, ok := config["rsi_oversold"].(float64); ok {
		s.rsiOversold = decimal.NewFromFloat(v)
	}
	if v, ok := config["risk_per_trade"].(float64); ok {
		s.riskPerTrade = decimal.NewFromFloat(v)
	}
	if v, ok := config["stop_loss_percent"].(float64); ok {
		s.stopLossPercent = decimal.NewFromFloat(v)
	}
	if v, ok := config["target_percent"].(float64); ok {
		s.targetPercent = decimal.NewFromFloat(v)
	}
}

func (s *SMARSICrossover) OnStart(ctx domain.StrategyContext)  {}
func (s *SMARSICrossover) OnStop(ctx domain.StrategyContext)   {}
func (s *SMARSICrossover) OnPause(ctx domain.StrategyContext)  {}
func (s *SMARSICrossover) OnResume(ctx domain.StrategyContext) {}
func (s *SMARSICrossover) OnOrderFilled(order domain.Order, fillData domain.MarketData, fillQuantity int64) {
}

func (s *SMARSICrossover) symbol(sym string) *symbolState {
	st, ok := s.state[sym]
	if !ok {
		st = &symbolState{}
		s.state[sym] = st
	}
	return st
}

// sma returns the simple arithmetic mean of the last period prices.
func sma(history []decimal.Decimal, period int) (decimal.Decimal, bool) {
	if len(history) < period {
		return decimal.Zero, false
	}
	window := history[len(history)-period:]
	sum := decimal.Zero
	for _, p := range window {
		sum = sum.Add(p)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), true
}

// rsi computes the simple (non-Wilder) relative strength index over the
// last period+1 prices: average of gains and average of losses across
// period consecutive differences, then rs = avgGain/avgLoss,
// rsi = 100 - 100/(1+rs); returns 100 if avgLoss is zero.
func rsi(history []decimal.Decimal, period int) (decimal.Decimal, bool) {
	if len(history) < period+1 {
		return decimal.Zero, false
	}
	window := history[len(history)-(period+1):]
	gainSum := decimal.Zero
	lossSum := decimal.Zero
	for i := 1; i < len(window); i++ {
		diff := window[i].Sub(window[i-1])
		if diff.IsPositive() {
			gainSum = gainSum.Add(diff)
		} else {
			lossSum = lossSum.Add(diff.Neg())
		}
	}
	n := decimal.NewFromInt(int64(period))
	avgGain := gainSum.Div(n)
	avgLoss := lossSum.Div(n)
	if avgLoss.IsZero() {
		return decimal.NewFromInt(100), true
	}
	rs := avgGain.Div(avgLoss)
	hundred := decimal.NewFromInt(100)
	result := hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
	return result, true
}

func (s *SMARSICrossover) OnMarketData(ctx domain.StrategyContext, data domain.MarketData) *domain.Order {
	st := s.symbol(data.Symbol)
	st.priceHistory = append(st.priceHistory, data.Close)

	fastMA, haveFast := sma(st.priceHistory, s.fastPeriod)
	slowMA, haveSlow := sma(st.priceHistory, s.slowPeriod)
	currentRSI, haveRSI := rsi(st.priceHistory, s.rsiPeriod)

	if !haveFast || !haveSlow || !haveRSI {
		return nil
	}

	var bullish, bearish bool
	if st.prevFastMA != nil && st.prevSlowMA != nil {
		wasBelowOrEqual := st.prevFastMA.LessThanOrEqual(*st.prevSlowMA)
		wasAboveOrEqual := st.prevFastMA.GreaterThanOrEqual(*st.prevSlowMA)
		bullish = wasBelowOrEqual && fastMA.GreaterThan(slowMA)
		bearish = wasAboveOrEqual && fastMA.LessThan(slowMA)
	}

	// Update previous MAs for the next tick's comparison, after using them.
	st.prevFastMA = &fastMA
	st.prevSlowMA = &slowMA

	_, hasPosition := ctx.PositionFor(data.Symbol)

	if bullish && currentRSI.LessThan(s.rsiOverbought) && !hasPosition {
		stopLoss := data.Close.Mul(decimal.NewFromInt(1).Sub(s.stopLossPercent.Div(decimal.NewFromInt(100))))
		target := data.Close.Mul(decimal.NewFromInt(1).Add(s.targetPercent.Div(decimal.NewFromInt(100))))
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
			Reason:      fmt.Sprintf("bullish SMA crossover (fast=%s slow=%s) with RSI %s below overbought, target %s", fastMA.Round(2), slowMA.Round(2), currentRSI.Round(1), target.Round(2)),
		}
	}

	if hasPosition && (bearish || currentRSI.GreaterThan(s.rsiOverbought)) {
		pos, _ := ctx.PositionFor(data.Symbol)
		reason := "bearish SMA crossover"
		if currentRSI.GreaterThan(s.rsiOverbought) {
			reason = "RSI overbought"
		}
		return &domain.Order{
			Symbol:      data.Symbol,
			Signal:      domain.SignalExitLong,
			OrderType:   domain.OrderTypeMarket,
			Quantity:    pos.Quantity,
			MarketPrice: data.Close,
			Reason:      reason,
		}
	}

	return nil
}

func (s *SMARSICrossover) GetState() map[string]interface{} {
	out := make(map[string]interface{}, len(s.state))
	for symbol, st := range s.state {
		entry := map[string]interface{}{
			"price_history": decimalsToFloats(st.priceHistory),
		}
		if st.prevFastMA != nil {
			f, _ := st.prevFastMA.Float64()
			entry["prev_fast_ma"] = f
		}
		if st.prevSlowMA != nil {
			f, _ := st.prevSlowMA.Float64()
			entry["prev_slow_ma"] = f
		}
		out[symbol] = entry
	}
	return out
}

func (s *SMARSICrossover) SetState(state map[string]interface{}) {
	s.state = make(map[string]*symbolState, len(state))
	for symbol, raw := range state {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		st := &symbolState{}
		if hist, ok := entry["price_history"].([]float64); ok {
			st.priceHistory = floatsToDecimals(hist)
		}
		if v, ok := entry["prev_fast_ma"].(float64); ok {
			d := decimal.NewFromFloat(v)
			st.prevFastMA = &d
		}
		if v, ok := entry["prev_slow_ma"].(float64); ok {
			d := decimal.NewFromFloat(v)
			st.prevSlowMA = &d
		}
		s.state[symbol] = st
	}
}

func decimalsToFloats(ds []decimal.Decimal) []float64 {
	out := make([]float64, len(ds))
	for i, d := range ds {
		out[i], _ = d.Float64()
	}
	return out
}

func floatsToDecimals(fs []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(fs))
	for i, f := range fs {
		out[i] = decimal.NewFromFloat(f)
	}
	return out
}
