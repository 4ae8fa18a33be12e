// Package domain defines the broker-agnostic types shared across the
// execution engine: orders, positions, risk limits, market data, and the
// strategy execution context. All money, price, and quantity fields use
// decimal.Decimal — float64 is never used for anything that represents
// currency, per the platform's no-floating-point-money rule.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the transaction direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Signal is the action a strategy requests in response to market data.
type Signal string

const (
	SignalNone      Signal = "NONE"
	SignalBuy       Signal = "BUY"
	SignalSell      Signal = "SELL"
	SignalExitLong  Signal = "EXIT_LONG"
	SignalExitShort Signal = "EXIT_SHORT"
)

// OrderType is the order style submitted to a broker.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStopLoss  OrderType = "SL"
	OrderTypeStopLimit OrderType = "SL_LIMIT"
)

// Order is a strategy's request to buy or sell a quantity of a symbol.
type Order struct {
	ID            string
	StrategyID    string
	SubscriptionID string
	Symbol        string
	Exchange      string
	Signal        Signal
	OrderType     OrderType
	Quantity      int64
	Price         decimal.Decimal // limit/trigger reference price, zero for MARKET
	StopLoss      decimal.Decimal
	Reason        string
	MarketPrice   decimal.Decimal // price at the moment the order was generated
	IsDryRun      bool
	IsTestOrder   bool
	CreatedAt     time.Time
}

// Position is a strategy's current holding in a single symbol.
type Position struct {
	Symbol       string
	Exchange     string
	Quantity     int64
	AvgPrice     decimal.Decimal
	CurrentPrice decimal.Decimal
	PnL          decimal.Decimal
}

// MarketValue returns the position's value at its current price.
func (p Position) MarketValue() decimal.Decimal {
	return p.CurrentPrice.Mul(decimal.NewFromInt(p.Quantity))
}

// RiskLimits bounds what a strategy is permitted to do.
type RiskLimits struct {
	MaxPositions       int
	MaxDrawdownPercent decimal.Decimal
	DailyLossLimit     decimal.Decimal
	PerTradeSLPercent  decimal.Decimal
	MaxOrderValuePercent decimal.Decimal // of capital, per order
	RiskPerTradePercent  decimal.Decimal // of capital, used for position sizing
	MaxDailyTrades       int             // 0 means unset; risk.Evaluate treats 0 as "no limit"
}

// StrategyContext is the live state handed to a strategy on every tick: its
// capital, open positions, accumulated P&L, and the limits it must respect.
type StrategyContext struct {
	StrategyID      string
	UserID          string
	SubscriptionID  string
	Capital         decimal.Decimal
	Positions       []Position
	RealizedPnL     decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	TotalPnL        decimal.Decimal
	Limits          RiskLimits
	IsPaperTrading  bool
}

// PositionFor returns the open position for symbol, if any.
func (c StrategyContext) PositionFor(symbol string) (Position, bool) {
	for _, p := range c.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// MarketData is one tick or candle delivered to a strategy.
type MarketData struct {
	Symbol    string
	LTP       decimal.Decimal
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
	Timestamp time.Time
	Bid       decimal.Decimal
	Ask       decimal.Decimal
}

// Candle is one bar of historical OHLCV data used by the backtest engine.
type Candle struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}
