package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
)

// fakeHistoricalBroker records each GetHistoricalData call's range and
// returns one candle per call, so tests can assert how FetchHistoricalDataChunked
// split a request into chunks.
type fakeHistoricalBroker struct {
	calls   [][2]time.Time
	failOn  int // 0-indexed call number to fail, or -1 for never
	candles func(from, to time.Time) []domain.Candle
}

func (f *fakeHistoricalBroker) Connect(ctx context.Context, creds Credentials) error    { return nil }
func (f *fakeHistoricalBroker) Disconnect(ctx context.Context) error                    { return nil }
func (f *fakeHistoricalBroker) IsConnected() bool                                       { return true }
func (f *fakeHistoricalBroker) PlaceOrder(ctx context.Context, order domain.Order) (OrderResult, error) {
	return OrderResult{}, nil
}
func (f *fakeHistoricalBroker) ModifyOrder(ctx context.Context, id string, price decimal.Decimal, qty int64) error {
	return nil
}
func (f *fakeHistoricalBroker) CancelOrder(ctx context.Context, id string) error { return nil }
func (f *fakeHistoricalBroker) GetOrderStatus(ctx context.Context, id string) (string, error) {
	return "", nil
}
func (f *fakeHistoricalBroker) GetPositions(ctx context.Context) ([]domain.Position, error) {
	return nil, nil
}
func (f *fakeHistoricalBroker) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	return Quote{}, nil
}
func (f *fakeHistoricalBroker) SubscribeMarketData(ctx context.Context, symbols []string, handler QuoteHandler) error {
	return nil
}
func (f *fakeHistoricalBroker) UnsubscribeMarketData(ctx context.Context, symbols []string) error {
	return nil
}
func (f *fakeHistoricalBroker) Name() string { return "fake" }

func (f *fakeHistoricalBroker) GetHistoricalData(ctx context.Context, symbol, exchange, interval string, from, to time.Time) ([]domain.Candle, error) {
	callNum := len(f.calls)
	f.calls = append(f.calls, [2]time.Time{from, to})
	if callNum == f.failOn {
		return nil, errors.New("upstream error")
	}
	return f.candles(from, to), nil
}

func TestFetchHistoricalDataChunked_SingleRequestWithinLimit(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 30)
	b := &fakeHistoricalBroker{
		failOn: -1,
		candles: func(from, to time.Time) []domain.Candle {
			return []domain.Candle{{Timestamp: from}}
		},
	}

	candles, err := FetchHistoricalDataChunked(context.Background(), b, "INFY", "NSE", "1day", from, to)
	require.NoError(t, err)
	assert.Len(t, b.calls, 1)
	assert.Len(t, candles, 1)
}

func TestFetchHistoricalDataChunked_SplitsIntoMultipleChunksBeyondLimit(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 250) // 250 days of 15min candles, limit is 100
	b := &fakeHistoricalBroker{
		failOn: -1,
		candles: func(from, to time.Time) []domain.Candle {
			return []domain.Candle{{Timestamp: from}, {Timestamp: to}}
		},
	}

	candles, err := FetchHistoricalDataChunked(context.Background(), b, "INFY", "NSE", "15min", from, to)
	require.NoError(t, err)
	assert.Len(t, b.calls, 3) // 100 + 100 + 50 days
	assert.Equal(t, from, b.calls[0][0])
	assert.Equal(t, to, b.calls[len(b.calls)-1][1])
	assert.NotEmpty(t, candles)
}

func TestFetchHistoricalDataChunked_DedupesOverlappingBoundaryCandle(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 200)
	b := &fakeHistoricalBroker{
		failOn: -1,
		candles: func(from, to time.Time) []domain.Candle {
			// Every chunk returns its own boundary candle again at "to",
			// the way consecutive upstream requests overlap at the seam.
			return []domain.Candle{{Timestamp: from}, {Timestamp: to}}
		},
	}

	candles, err := FetchHistoricalDataChunked(context.Background(), b, "INFY", "NSE", "15min", from, to)
	require.NoError(t, err)

	seen := map[time.Time]int{}
	for _, c := range candles {
		seen[c.Timestamp]++
	}
	for ts, count := range seen {
		assert.Equal(t, 1, count, "timestamp %s appeared more than once", ts)
	}
}

func TestFetchHistoricalDataChunked_PropagatesChunkError(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 250)
	b := &fakeHistoricalBroker{
		failOn: 1,
		candles: func(from, to time.Time) []domain.Candle {
			return []domain.Candle{{Timestamp: from}}
		},
	}

	_, err := FetchHistoricalDataChunked(context.Background(), b, "INFY", "NSE", "15min", from, to)
	assert.Error(t, err)
}
