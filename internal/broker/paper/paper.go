// Package paper implements the built-in paper-trading broker: orders fill
// immediately at the last known quote, no real order routing. Registered
// unconditionally (not as a plugin), per registry.py's register_broker
// comment "for non-plugin brokers like PaperTrading".
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aristath/sentinel/internal/broker"
	"github.com/aristath/sentinel/internal/domain"
)

// Broker is the paper-trading implementation of broker.Broker.
type Broker struct {
	mu        sync.RWMutex
	connected bool
	lastQuote map[string]broker.Quote
	positions map[string]domain.Position
}

// New creates an unconnected paper Broker.
func New() broker.Broker {
	return &Broker{
		lastQuote: make(map[string]broker.Quote),
		positions: make(map[string]domain.Position),
	}
}

func (b *Broker) Name() string { return "paper" }

func (b *Broker) Connect(ctx context.Context, creds broker.Credentials) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}

func (b *Broker) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	return nil
}

func (b *Broker) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// PlaceOrder fills immediately at the last known quote for the symbol (or
// the order's own MarketPrice if no quote has been observed yet), updating
// the in-memory simulated position.
func (b *Broker) PlaceOrder(ctx context.Context, order domain.Order) (broker.OrderResult, error) {
	if !b.IsConnected() {
		return broker.OrderResult{}, broker.ErrNotConnected
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	fillPrice := order.MarketPrice
	if q, ok := b.lastQuote[order.Symbol]; ok {
		fillPrice = q.LTP
	}

	pos := b.positions[order.Symbol]
	switch order.Signal {
	case domain.SignalBuy:
		totalQty := pos.Quantity + order.Quantity
		if totalQty > 0 {
			pos.AvgPrice = pos.AvgPrice.Mul(decimal.NewFromInt(pos.Quantity)).
				Add(fillPrice.Mul(decimal.NewFromInt(order.Quantity))).
				Div(decimal.NewFromInt(totalQty))
		}
		pos.Quantity = totalQty
		pos.Symbol = order.Symbol
	case domain.SignalSell, domain.SignalExitLong:
		pos.Quantity -= order.Quantity
		if pos.Quantity <= 0 {
			delete(b.positions, order.Symbol)
			return broker.OrderResult{
				BrokerOrderID: uuid.NewString(),
				Status:        "FILLED",
			}, nil
		}
	}
	b.positions[order.Symbol] = pos

	return broker.OrderResult{
		BrokerOrderID: uuid.NewString(),
		Status:        "FILLED",
	}, nil
}

func (b *Broker) ModifyOrder(ctx context.Context, brokerOrderID string, newPrice decimal.Decimal, newQuantity int64) error {
	return nil // market fills happen instantly; nothing to modify
}

func (b *Broker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	return nil // nothing is ever pending
}

func (b *Broker) GetOrderStatus(ctx context.Context, brokerOrderID string) (string, error) {
	return "FILLED", nil
}

func (b *Broker) GetPositions(ctx context.Context) ([]domain.Position, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out, nil
}

func (b *Broker) GetQuote(ctx context.Context, symbol string) (broker.Quote, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.lastQuote[symbol]
	if !ok {
		return broker.Quote{}, fmt.Errorf("paper: no quote observed yet for %s", symbol)
	}
	return q, nil
}

// Feed injects a simulated quote to keep the paper broker's view of the
// market current; PlaceOrder fills at the last quote fed for a symbol.
func (b *Broker) Feed(q broker.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastQuote[q.Symbol] = q
}

func (b *Broker) SubscribeMarketData(ctx context.Context, symbols []string, handler broker.QuoteHandler) error {
	return nil // paper broker has no real-time feed of its own; Feed() drives it
}

func (b *Broker) UnsubscribeMarketData(ctx context.Context, symbols []string) error {
	return nil
}

func (b *Broker) GetHistoricalData(ctx context.Context, symbol, exchange, interval string, from, to time.Time) ([]domain.Candle, error) {
	return nil, broker.ErrNotImplemented
}
