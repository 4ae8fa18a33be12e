package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/strategy"
)

// FillTiming selects which candle's open a MARKET order fills against.
// Left as an explicit choice because original_source/backend/backtest's
// engine constructs a tick from an already-closed candle and fills a
// MARKET order at that same candle's open — implicitly reusing a price
// that, in live trading, would already be in the past.
type FillTiming int

const (
	// FillTimingSameBarOpen reproduces the original's behavior: a MARKET
	// order generated while processing candle i fills at candle i's own
	// open.
	FillTimingSameBarOpen FillTiming = iota
	// FillTimingNextBarOpen fills a MARKET order generated on candle i at
	// candle i+1's open instead, avoiding the look-back. Falls back to
	// FillTimingSameBarOpen on the final candle, where no next bar exists.
	FillTimingNextBarOpen
)

// Config is a single backtest run's parameters. The caller is responsible
// for resolving strategy_module_path/class into a strategy.Strategy (via
// the static registry) and for loading historical_data before calling Run.
type Config struct {
	StrategyName    string
	Symbol          string
	Exchange        string
	Interval        string
	StartDate       time.Time
	EndDate         time.Time
	InitialCapital  decimal.Decimal
	StrategyConfig  map[string]interface{}
	SlippagePercent decimal.Decimal
	Commission      decimal.Decimal
	FillTiming      FillTiming
}

// Result is the complete outcome of a backtest run.
type Result struct {
	Config      Config
	Metrics     PerformanceMetrics
	Trades      []TradeResult
	EquityCurve []EquityPoint
	Cancelled   bool
	Error       string
}

// ProgressCallback reports 0-100 progress with a short status message.
type ProgressCallback func(progress int, message string)

// Engine is the backtest execution engine: it replays candles against a
// strategy through a Simulator and reduces the result to
// PerformanceMetrics. Ported from backtest/engine.py's BacktestEngine.
type Engine struct {
	simulator *Simulator
}

// New creates an Engine applying slippagePercent and commission to every
// simulated fill.
func New(slippagePercent, commission decimal.Decimal) *Engine {
	return &Engine{simulator: NewSimulator(slippagePercent, commission)}
}

type openTrade struct {
	entryPrice decimal.Decimal
	quantity   int64
	entryTime  time.Time
	reason     string
}

// Run replays candles (ascending, already validated by the caller's data
// loader) through strat and returns the resulting trades, equity curve,
// and metrics. It polls ctx between candles and returns a Cancelled
// result — with no partial trades or equity curve — if ctx is done
// before completion, matching the documented "transitions to cancelled
// without writing partial results" contract.
func (e *Engine) Run(ctx context.Context, config Config, strat strategy.Strategy, candles []domain.Candle, onProgress ProgressCallback) Result {
	simContext := NewSimulatedContext(config.InitialCapital)

	fullSymbol := config.Symbol
	if config.Exchange != "" {
		fullSymbol = fmt.Sprintf("%s:%s", config.Exchange, config.Symbol)
	}

	stratCtx := domain.StrategyContext{
		StrategyID:     "backtest",
		UserID:         "backtest",
		SubscriptionID: "backtest",
		Capital:        config.InitialCapital,
		IsPaperTrading: true,
		Limits: domain.RiskLimits{
			MaxPositions:         10,
			MaxDrawdownPercent:   decimal.NewFromInt(20),
			DailyLossLimit:       config.InitialCapital.Mul(decimal.NewFromFloat(0.05)),
			PerTradeSLPercent:    decimal.NewFromInt(2),
			MaxOrderValuePercent: decimal.NewFromInt(100),
		},
	}

	strat.OnStart(stratCtx)

	var completedTrades []TradeResult
	var equityCurve []EquityPoint
	equityValues := make([]decimal.Decimal, 0, len(candles))
	openTrades := make(map[string]openTrade)

	total := len(candles)
	for i, candle := range candles {
		select {
		case <-ctx.Done():
			return Result{Config: config, Cancelled: true}
		default:
		}

		if onProgress != nil {
			onProgress(int(float64(i+1)/float64(total)*100), fmt.Sprintf("processing %s", candle.Timestamp))
		}

		tick := candleToMarketData(candle, fullSymbol)

		simContext.UpdateUnrealizedPnL(map[string]decimal.Decimal{fullSymbol: tick.Close})
		equityCurve = append(equityCurve, EquityPoint{Timestamp: tick.Timestamp, Equity: simContext.TotalEquity()})
		equityValues = append(equityValues, simContext.TotalEquity())

		syncContext(&stratCtx, simContext, tick)

		order := strat.OnMarketData(stratCtx, tick)
		if order == nil {
			continue
		}

		fillCandle := e.fillCandleFor(config.FillTiming, candles, i)
		fill, err := e.simulator.ExecuteOrder(order, fillCandle, simContext)
		if err != nil || fill == nil {
			continue
		}

		_, realizedPnL := e.simulator.ProcessFill(fill, simContext)
		strat.OnOrderFilled(fill.Order, tick, fill.FillQuantity)

		switch order.Signal {
		case domain.SignalBuy:
			openTrades[order.Symbol] = openTrade{
				entryPrice: fill.FillPrice,
				quantity:   fill.FillQuantity,
				entryTime:  fill.FillTime,
				reason:     order.Reason,
			}
		case domain.SignalSell, domain.SignalExitLong:
			if realizedPnL != nil {
				if trade, ok := openTrades[order.Symbol]; ok {
					delete(openTrades, order.Symbol)
					completedTrades = append(completedTrades, buildTradeResult(trade, fill.FillPrice, fill.FillTime, *realizedPnL))
				}
			}
		}
	}

	if len(candles) > 0 {
		final := candles[len(candles)-1]
		for symbol, trade := range openTrades {
			pos, ok := simContext.Positions[symbol]
			if !ok {
				continue
			}
			pnl := e.simulator.ClosePosition(pos, final.Close, simContext)
			completedTrades = append(completedTrades, buildTradeResult(trade, final.Close, final.Timestamp, pnl))
		}
	}

	strat.OnStop(stratCtx)

	calc := NewMetricsCalculator(config.InitialCapital)
	metrics := calc.CalculateAll(completedTrades, equityValues, config.StartDate, config.EndDate)

	if onProgress != nil {
		onProgress(100, "backtest completed")
	}

	return Result{
		Config:      config,
		Metrics:     metrics,
		Trades:      completedTrades,
		EquityCurve: equityCurve,
	}
}

// fillCandleFor resolves which candle a MARKET order generated while
// processing candles[i] should fill against, per config's FillTiming.
func (e *Engine) fillCandleFor(timing FillTiming, candles []domain.Candle, i int) domain.Candle {
	if timing == FillTimingNextBarOpen && i+1 < len(candles) {
		return candles[i+1]
	}
	return candles[i]
}

func buildTradeResult(trade openTrade, exitPrice decimal.Decimal, exitTime time.Time, pnl decimal.Decimal) TradeResult {
	pnlPercent := decimal.Zero
	if !trade.entryPrice.IsZero() {
		pnlPercent = exitPrice.Sub(trade.entryPrice).Div(trade.entryPrice).Mul(decimal.NewFromInt(100)).Round(4)
	}
	return TradeResult{
		EntryPrice: trade.entryPrice,
		ExitPrice:  exitPrice,
		Quantity:   trade.quantity,
		EntryTime:  trade.entryTime,
		ExitTime:   exitTime,
		PnL:        pnl,
		PnLPercent: pnlPercent,
		IsWinner:   pnl.GreaterThan(decimal.Zero),
		Reason:     trade.reason,
	}
}

func candleToMarketData(c domain.Candle, symbol string) domain.MarketData {
	return domain.MarketData{
		Symbol:    symbol,
		LTP:       c.Close,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
		Timestamp: c.Timestamp,
		Bid:       c.Close,
		Ask:       c.Close,
	}
}

// syncContext refreshes stratCtx's positions and P&L totals from the
// simulator's authoritative state, mirroring engine.py's _sync_context.
func syncContext(stratCtx *domain.StrategyContext, simContext *SimulatedContext, tick domain.MarketData) {
	positions := make([]domain.Position, 0, len(simContext.Positions))
	for _, pos := range simContext.Positions {
		positions = append(positions, domain.Position{
			Symbol:       pos.Symbol,
			Exchange:     pos.Exchange,
			Quantity:     pos.Quantity,
			AvgPrice:     pos.AvgPrice,
			CurrentPrice: tick.Close,
			PnL:          pos.UnrealizedPnL(tick.Close),
		})
	}
	stratCtx.Positions = positions
	stratCtx.RealizedPnL = simContext.RealizedPnL
	stratCtx.UnrealizedPnL = simContext.UnrealizedPnL
	stratCtx.TotalPnL = simContext.RealizedPnL.Add(simContext.UnrealizedPnL)
	stratCtx.Capital = simContext.Capital
}
