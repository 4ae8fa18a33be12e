// Package broker defines the broker-agnostic trading contract and a
// manifest-driven plugin registry, ported from
// original_source/backend/brokers/base.py and registry.py.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/sentinel/internal/domain"
)

// ErrNotConnected is returned by any trading operation attempted before
// Connect has succeeded.
var ErrNotConnected = errors.New("broker: not connected")

// Credentials authenticates a broker connection.
type Credentials struct {
	APIKey      string
	APISecret   string
	AccessToken string
	ClientID    string
}

// OrderResult is what a broker returns after accepting an order.
type OrderResult struct {
	BrokerOrderID string
	Status        string
	Raw           map[string]interface{}
}

// Quote is a single real-time price update.
type Quote struct {
	Symbol    string
	LTP       decimal.Decimal
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
	Bid       decimal.Decimal
	Ask       decimal.Decimal
}

// QuoteHandler receives streamed quotes.
type QuoteHandler func(Quote)

// Broker is the contract every broker implementation (plugin or built-in)
// satisfies. Ported from brokers/base.py's BaseBroker abstract methods;
// GetHistoricalData is optional there (default NotImplementedError) and is
// modeled here as returning ErrNotImplemented instead. This interface has
// no margin query.
type Broker interface {
	Connect(ctx context.Context, creds Credentials) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	PlaceOrder(ctx context.Context, order domain.Order) (OrderResult, error)
	ModifyOrder(ctx context.Context, brokerOrderID string, newPrice decimal.Decimal, newQuantity int64) error
	CancelOrder(ctx context.Context, brokerOrderID string) error
	GetOrderStatus(ctx context.Context, brokerOrderID string) (string, error)
	GetPositions(ctx context.Context) ([]domain.Position, error)
	GetQuote(ctx context.Context, symbol string) (Quote, error)

	SubscribeMarketData(ctx context.Context, symbols []string, handler QuoteHandler) error
	UnsubscribeMarketData(ctx context.Context, symbols []string) error

	// GetHistoricalData fetches OHLC candles for symbol on exchange between
	// from and to, at the given interval. Implementations are expected to
	// serve whatever range their upstream API allows in a single call;
	// FetchHistoricalDataChunked (historical.go) is the caller-side helper
	// that splits a longer range into this broker's per-request day limit.
	GetHistoricalData(ctx context.Context, symbol, exchange, interval string, from, to time.Time) ([]domain.Candle, error)

	Name() string
}

// ErrNotImplemented is returned by a broker's optional capabilities
// (historical data) when it doesn't support them.
var ErrNotImplemented = errors.New("broker: capability not implemented")
