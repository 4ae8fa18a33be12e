// Package backtest replays a strategy against historical candles with a
// simulated broker, then derives performance metrics from the resulting
// trades and equity curve. Ported from
// original_source/backend/backtest/{engine,simulator,metrics}.py.
package backtest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/sentinel/internal/domain"
)

// Fill is the result of a simulated order execution.
type Fill struct {
	Order        domain.Order
	FillPrice    decimal.Decimal
	FillQuantity int64
	FillTime     time.Time
	Commission   decimal.Decimal
}

// SimulatedPosition is a position tracked by the simulator, distinct from
// domain.Position because it also carries the entry order and entry time
// needed to build a completed-trade record on close.
type SimulatedPosition struct {
	Symbol     string
	Exchange   string
	Quantity   int64
	AvgPrice   decimal.Decimal
	EntryTime  time.Time
	EntryOrder domain.Order
}

// UnrealizedPnL returns the position's paper profit at currentPrice.
func (p *SimulatedPosition) UnrealizedPnL(currentPrice decimal.Decimal) decimal.Decimal {
	if p.Quantity == 0 {
		return decimal.Zero
	}
	return currentPrice.Sub(p.AvgPrice).Mul(decimal.NewFromInt(p.Quantity))
}

// MarketValue returns the position's notional value at its average price.
func (p *SimulatedPosition) MarketValue() decimal.Decimal {
	return decimal.NewFromInt(p.Quantity).Abs().Mul(p.AvgPrice)
}

// SimulatedContext tracks capital, positions, and realized/unrealized P&L
// across a backtest run. Ported from simulator.py's SimulatedContext.
type SimulatedContext struct {
	InitialCapital decimal.Decimal
	Capital        decimal.Decimal
	Positions      map[string]*SimulatedPosition
	RealizedPnL    decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	PeakCapital    decimal.Decimal
	TradesCount    int
}

// NewSimulatedContext creates a context with initialCapital as both the
// starting and peak capital, and no open positions.
func NewSimulatedContext(initialCapital decimal.Decimal) *SimulatedContext {
	return &SimulatedContext{
		InitialCapital: initialCapital,
		Capital:        initialCapital,
		Positions:      make(map[string]*SimulatedPosition),
		PeakCapital:    initialCapital,
	}
}

// TotalEquity is capital plus unrealized P&L.
func (c *SimulatedContext) TotalEquity() decimal.Decimal {
	return c.Capital.Add(c.UnrealizedPnL)
}

// AvailableCapital is capital not already committed to open positions.
func (c *SimulatedContext) AvailableCapital() decimal.Decimal {
	used := decimal.Zero
	for _, p := range c.Positions {
		used = used.Add(p.MarketValue())
	}
	return c.Capital.Sub(used)
}

// UpdateUnrealizedPnL recomputes UnrealizedPnL from currentPrices and, if
// total equity made a new high, advances PeakCapital.
func (c *SimulatedContext) UpdateUnrealizedPnL(currentPrices map[string]decimal.Decimal) {
	total := decimal.Zero
	for symbol, pos := range c.Positions {
		if price, ok := currentPrices[symbol]; ok {
			total = total.Add(pos.UnrealizedPnL(price))
		}
	}
	c.UnrealizedPnL = total
	if c.TotalEquity().GreaterThan(c.PeakCapital) {
		c.PeakCapital = c.TotalEquity()
	}
}

// Simulator fills orders against OHLC candles with configurable adverse
// slippage and a flat per-trade commission. Ported from
// simulator.py's OrderSimulator.
type Simulator struct {
	SlippagePercent     decimal.Decimal // e.g. 0.05 == 0.05%
	CommissionPerTrade  decimal.Decimal
}

// NewSimulator returns a Simulator with the given slippage (percent) and
// flat commission.
func NewSimulator(slippagePercent, commissionPerTrade decimal.Decimal) *Simulator {
	return &Simulator{SlippagePercent: slippagePercent, CommissionPerTrade: commissionPerTrade}
}

// ValidateCandle enforces the OHLC ordering invariant: low <= min(open,
// close) <= max(open, close) <= high.
func ValidateCandle(c domain.Candle) error {
	lo := decimal.Min(c.Open, c.Close)
	hi := decimal.Max(c.Open, c.Close)
	if c.Low.GreaterThan(lo) || lo.GreaterThan(hi) || hi.GreaterThan(c.High) {
		return fmt.Errorf("backtest: invalid candle at %s: low=%s open=%s close=%s high=%s",
			c.Timestamp, c.Low, c.Open, c.Close, c.High)
	}
	return nil
}

// ExecuteOrder attempts to fill order against fillCandle. It returns nil
// (no error) if the order's conditions were not met (e.g. a limit price
// never touched). Mutates order.Quantity downward if capital is
// insufficient for the full requested size.
func (s *Simulator) ExecuteOrder(order *domain.Order, fillCandle domain.Candle, ctx *SimulatedContext) (*Fill, error) {
	if err := ValidateCandle(fillCandle); err != nil {
		return nil, err
	}

	fillPrice := s.determineFillPrice(order, fillCandle)
	if fillPrice == nil {
		return nil, nil
	}

	price := s.applySlippage(*fillPrice, order.Signal)

	if order.Quantity <= 0 {
		return nil, nil
	}

	if order.Signal == domain.SignalBuy {
		required := price.Mul(decimal.NewFromInt(order.Quantity))
		if required.GreaterThan(ctx.AvailableCapital()) {
			affordable := ctx.AvailableCapital().Div(price).IntPart()
			if affordable <= 0 {
				return nil, nil
			}
			order.Quantity = affordable
		}
	}

	return &Fill{
		Order:        *order,
		FillPrice:    price,
		FillQuantity: order.Quantity,
		FillTime:     fillCandle.Timestamp,
		Commission:   s.CommissionPerTrade,
	}, nil
}

// determineFillPrice returns the reference price (before slippage) at
// which order would fill against candle, or nil if it would not fill.
func (s *Simulator) determineFillPrice(order *domain.Order, candle domain.Candle) *decimal.Decimal {
	switch order.OrderType {
	case domain.OrderTypeMarket:
		return &candle.Open

	case domain.OrderTypeLimit:
		if order.Price.IsZero() {
			return nil
		}
		if order.Signal == domain.SignalBuy && candle.Low.LessThanOrEqual(order.Price) {
			return &order.Price
		}
		if order.Signal == domain.SignalSell && candle.High.GreaterThanOrEqual(order.Price) {
			return &order.Price
		}
		return nil

	case domain.OrderTypeStopLoss, domain.OrderTypeStopLimit:
		if order.Price.IsZero() {
			return &candle.Open
		}
		switch order.Signal {
		case domain.SignalSell, domain.SignalExitLong:
			if candle.Low.LessThanOrEqual(order.Price) {
				return &order.Price
			}
		case domain.SignalBuy, domain.SignalExitShort:
			if candle.High.GreaterThanOrEqual(order.Price) {
				return &order.Price
			}
		}
		return nil
	}
	return nil
}

// applySlippage nudges price against the trader: buys (and short-covering
// buys) fill higher, sells fill lower.
func (s *Simulator) applySlippage(price decimal.Decimal, signal domain.Signal) decimal.Decimal {
	multiplier := decimal.NewFromInt(1).Add(s.SlippagePercent.Div(decimal.NewFromInt(100)))
	if signal == domain.SignalBuy || signal == domain.SignalExitShort {
		return price.Mul(multiplier)
	}
	return price.Div(multiplier)
}

// ProcessFill applies fill to ctx: opens/averages a BUY, or realizes P&L
// and shrinks/removes the position on a SELL/EXIT_LONG. EXIT_SHORT is a
// no-op (this simulator never opens a short position). Returns the
// resulting position (nil if just closed) and the realized P&L (nil
// unless a closing fill).
func (s *Simulator) ProcessFill(fill *Fill, ctx *SimulatedContext) (*SimulatedPosition, *decimal.Decimal) {
	order := fill.Order
	symbol := order.Symbol

	switch order.Signal {
	case domain.SignalBuy:
		if pos, ok := ctx.Positions[symbol]; ok {
			totalCost := pos.AvgPrice.Mul(decimal.NewFromInt(pos.Quantity)).
				Add(fill.FillPrice.Mul(decimal.NewFromInt(fill.FillQuantity)))
			newQty := pos.Quantity + fill.FillQuantity
			if newQty > 0 {
				pos.AvgPrice = totalCost.Div(decimal.NewFromInt(newQty))
			} else {
				pos.AvgPrice = decimal.Zero
			}
			pos.Quantity = newQty
		} else {
			ctx.Positions[symbol] = &SimulatedPosition{
				Symbol:     symbol,
				Exchange:   order.Exchange,
				Quantity:   fill.FillQuantity,
				AvgPrice:   fill.FillPrice,
				EntryTime:  fill.FillTime,
				EntryOrder: order,
			}
			ctx.TradesCount++
		}
		ctx.Capital = ctx.Capital.Sub(fill.FillPrice.Mul(decimal.NewFromInt(fill.FillQuantity))).Sub(fill.Commission)

	case domain.SignalSell, domain.SignalExitLong:
		pos, ok := ctx.Positions[symbol]
		if !ok {
			return nil, nil
		}
		closeQty := fill.FillQuantity
		if pos.Quantity < closeQty {
			closeQty = pos.Quantity
		}
		pnl := fill.FillPrice.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(closeQty)).Sub(fill.Commission)

		pos.Quantity -= closeQty
		ctx.Capital = ctx.Capital.Add(fill.FillPrice.Mul(decimal.NewFromInt(closeQty))).Sub(fill.Commission)
		ctx.RealizedPnL = ctx.RealizedPnL.Add(pnl)

		if pos.Quantity <= 0 {
			delete(ctx.Positions, symbol)
			return nil, &pnl
		}
		return pos, &pnl

	case domain.SignalExitShort:
		// Short positions are never opened in this simulator (no
		// SELL-to-open path), so there is never a short to cover here.
		// Kept as an explicit no-op case rather than falling through to
		// the default lookup below.
		return nil, nil
	}

	if pos, ok := ctx.Positions[symbol]; ok {
		return pos, nil
	}
	return nil, nil
}

// ClosePosition force-closes pos at closePrice (used at the end of a
// backtest run) and returns the realized P&L.
func (s *Simulator) ClosePosition(pos *SimulatedPosition, closePrice decimal.Decimal, ctx *SimulatedContext) decimal.Decimal {
	pnl := closePrice.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(pos.Quantity))
	ctx.Capital = ctx.Capital.Add(closePrice.Mul(decimal.NewFromInt(pos.Quantity)))
	ctx.RealizedPnL = ctx.RealizedPnL.Add(pnl)
	delete(ctx.Positions, pos.Symbol)
	return pnl
}
