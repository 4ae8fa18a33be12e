package paper

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/broker"
	"github.com/aristath/sentinel/internal/domain"
)

func connected(t *testing.T) *Broker {
	t.Helper()
	b := New().(*Broker)
	require.NoError(t, b.Connect(context.Background(), broker.Credentials{}))
	return b
}

func TestPlaceOrder_RejectsWhenNotConnected(t *testing.T) {
	b := New().(*Broker)
	_, err := b.PlaceOrder(context.Background(), domain.Order{Symbol: "INFY", Signal: domain.SignalBuy, Quantity: 10})
	assert.ErrorIs(t, err, broker.ErrNotConnected)
}

func TestPlaceOrder_BuyFillsAtLastQuoteAndOpensPosition(t *testing.T) {
	b := connected(t)
	b.Feed(broker.Quote{Symbol: "INFY", LTP: decimal.NewFromInt(100)})

	result, err := b.PlaceOrder(context.Background(), domain.Order{Symbol: "INFY", Signal: domain.SignalBuy, Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, "FILLED", result.Status)
	assert.NotEmpty(t, result.BrokerOrderID)

	positions, err := b.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(10), positions[0].Quantity)
	assert.True(t, positions[0].AvgPrice.Equal(decimal.NewFromInt(100)))
}

func TestPlaceOrder_SecondBuyAveragesEntryPrice(t *testing.T) {
	b := connected(t)
	b.Feed(broker.Quote{Symbol: "INFY", LTP: decimal.NewFromInt(100)})
	_, err := b.PlaceOrder(context.Background(), domain.Order{Symbol: "INFY", Signal: domain.SignalBuy, Quantity: 10})
	require.NoError(t, err)

	b.Feed(broker.Quote{Symbol: "INFY", LTP: decimal.NewFromInt(200)})
	_, err = b.PlaceOrder(context.Background(), domain.Order{Symbol: "INFY", Signal: domain.SignalBuy, Quantity: 10})
	require.NoError(t, err)

	positions, err := b.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(20), positions[0].Quantity)
	assert.True(t, positions[0].AvgPrice.Equal(decimal.NewFromInt(150)))
}

func TestPlaceOrder_SellClosingFullQuantityRemovesPosition(t *testing.T) {
	b := connected(t)
	b.Feed(broker.Quote{Symbol: "INFY", LTP: decimal.NewFromInt(100)})
	_, err := b.PlaceOrder(context.Background(), domain.Order{Symbol: "INFY", Signal: domain.SignalBuy, Quantity: 10})
	require.NoError(t, err)

	_, err = b.PlaceOrder(context.Background(), domain.Order{Symbol: "INFY", Signal: domain.SignalSell, Quantity: 10})
	require.NoError(t, err)

	positions, err := b.GetPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestPlaceOrder_PartialSellReducesQuantity(t *testing.T) {
	b := connected(t)
	b.Feed(broker.Quote{Symbol: "INFY", LTP: decimal.NewFromInt(100)})
	_, err := b.PlaceOrder(context.Background(), domain.Order{Symbol: "INFY", Signal: domain.SignalBuy, Quantity: 10})
	require.NoError(t, err)

	_, err = b.PlaceOrder(context.Background(), domain.Order{Symbol: "INFY", Signal: domain.SignalSell, Quantity: 4})
	require.NoError(t, err)

	positions, err := b.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(6), positions[0].Quantity)
}

func TestGetQuote_ErrorsWhenNoQuoteObserved(t *testing.T) {
	b := connected(t)
	_, err := b.GetQuote(context.Background(), "INFY")
	assert.Error(t, err)
}

func TestGetHistoricalData_NotImplemented(t *testing.T) {
	b := connected(t)
	_, err := b.GetHistoricalData(context.Background(), "INFY", "NSE", "5m", time.Now().AddDate(0, 0, -10), time.Now())
	assert.ErrorIs(t, err, broker.ErrNotImplemented)
}

func TestConnectDisconnect_TogglesIsConnected(t *testing.T) {
	b := New().(*Broker)
	assert.False(t, b.IsConnected())
	require.NoError(t, b.Connect(context.Background(), broker.Credentials{}))
	assert.True(t, b.IsConnected())
	require.NoError(t, b.Disconnect(context.Background()))
	assert.False(t, b.IsConnected())
}
