package backtest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCalculator_ProfitFactorSentinelWhenNoLosses(t *testing.T) {
	calc := NewMetricsCalculator(d(100000))
	trades := []TradeResult{
		{PnL: d(500), IsWinner: true, EntryTime: time.Now(), ExitTime: time.Now().Add(time.Hour)},
	}
	m := calc.CalculateAll(trades, []decimal.Decimal{d(100000), d(100500)}, time.Now(), time.Now().AddDate(0, 0, 1))
	assert.True(t, m.ProfitFactor.Equal(SentinelRatio))
}

func TestMetricsCalculator_ProfitFactorZeroWithNoTrades(t *testing.T) {
	calc := NewMetricsCalculator(d(100000))
	m := calc.CalculateAll(nil, []decimal.Decimal{d(100000)}, time.Now(), time.Now())
	assert.True(t, m.ProfitFactor.IsZero())
	assert.True(t, m.WinRate.IsZero())
}

func TestMetricsCalculator_DrawdownTracksRunningPeak(t *testing.T) {
	calc := NewMetricsCalculator(d(100000))
	curve := []decimal.Decimal{d(100000), d(110000), d(90000), d(105000)}
	m := calc.CalculateAll(nil, curve, time.Now(), time.Now())

	expectedMaxDD := d(110000).Sub(d(90000)).Div(d(110000)).Mul(d(100))
	assert.True(t, m.MaxDrawdown.Equal(expectedMaxDD.Round(4)), "got %s want %s", m.MaxDrawdown, expectedMaxDD)
}

func TestMetricsCalculator_SharpeZeroWithFewerThanTwoReturns(t *testing.T) {
	calc := NewMetricsCalculator(d(100000))
	m := calc.CalculateAll(nil, []decimal.Decimal{d(100000)}, time.Now(), time.Now())
	assert.True(t, m.SharpeRatio.IsZero())
	assert.True(t, m.SortinoRatio.IsZero())
}

func TestDownsample_KeepsFirstAndLastAndBoundsCount(t *testing.T) {
	points := make([]EquityPoint, 10000)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range points {
		points[i] = EquityPoint{Timestamp: base.Add(time.Duration(i) * time.Minute), Equity: d(int64(100000 + i))}
	}

	out := Downsample(points, 500)
	assert.LessOrEqual(t, len(out), 501)
	assert.Equal(t, points[0].Timestamp, out[0].Timestamp)
	assert.Equal(t, points[len(points)-1].Timestamp, out[len(out)-1].Timestamp)
}
