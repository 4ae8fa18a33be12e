package backtest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// SentinelRatio is returned for profit factor and Sortino ratio when the
// denominator is zero but the numerator is strictly favorable — preserved
// from metrics.py's literal 999 sentinel rather than an unbounded Inf.
var SentinelRatio = decimal.NewFromInt(999)

const (
	riskFreeRateAnnual  = 0.05
	tradingDaysPerYear  = 252
)

// TradeResult is one completed round-trip trade.
type TradeResult struct {
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	Quantity    int64
	EntryTime   time.Time
	ExitTime    time.Time
	PnL         decimal.Decimal
	PnLPercent  decimal.Decimal
	IsWinner    bool
	Reason      string
}

// PerformanceMetrics is the complete metric set computed from a backtest's
// trades and equity curve. Ported from metrics.py's PerformanceMetrics.
type PerformanceMetrics struct {
	TotalReturn        decimal.Decimal
	TotalReturnPercent decimal.Decimal
	CAGR               decimal.Decimal

	SharpeRatio  decimal.Decimal
	SortinoRatio decimal.Decimal
	CalmarRatio  decimal.Decimal

	MaxDrawdown decimal.Decimal
	AvgDrawdown decimal.Decimal

	WinRate            decimal.Decimal
	ProfitFactor       decimal.Decimal
	TotalTrades        int
	WinningTrades      int
	LosingTrades       int
	AvgTradeDurationS  int64

	FinalCapital decimal.Decimal
	MaxCapital   decimal.Decimal
}

// MetricsCalculator derives PerformanceMetrics relative to an initial
// capital baseline. Ported from metrics.py's MetricsCalculator.
type MetricsCalculator struct {
	InitialCapital decimal.Decimal
}

// NewMetricsCalculator returns a calculator baselined on initialCapital.
func NewMetricsCalculator(initialCapital decimal.Decimal) *MetricsCalculator {
	return &MetricsCalculator{InitialCapital: initialCapital}
}

// CalculateAll computes every metric from completed trades and the equity
// curve recorded between startDate and endDate.
func (m *MetricsCalculator) CalculateAll(trades []TradeResult, equityCurve []decimal.Decimal, startDate, endDate time.Time) PerformanceMetrics {
	finalCapital := m.InitialCapital
	maxCapital := m.InitialCapital
	if len(equityCurve) > 0 {
		finalCapital = equityCurve[len(equityCurve)-1]
		maxCapital = equityCurve[0]
		for _, eq := range equityCurve {
			if eq.GreaterThan(maxCapital) {
				maxCapital = eq
			}
		}
	}

	totalReturn := finalCapital.Sub(m.InitialCapital)
	totalReturnPercent := returnPercent(m.InitialCapital, finalCapital)

	years := yearsBetween(startDate, endDate)
	cagr := m.cagr(finalCapital, years)

	dailyReturns := dailyReturns(equityCurve)
	sharpe := sharpeRatio(dailyReturns)
	sortino := sortinoRatio(dailyReturns)

	maxDD, avgDD := drawdowns(equityCurve)
	calmar := calmarRatio(cagr, maxDD)

	var winners, losers []TradeResult
	for _, t := range trades {
		if t.IsWinner {
			winners = append(winners, t)
		} else {
			losers = append(losers, t)
		}
	}

	return PerformanceMetrics{
		TotalReturn:        totalReturn,
		TotalReturnPercent: totalReturnPercent,
		CAGR:               cagr,
		SharpeRatio:        sharpe,
		SortinoRatio:       sortino,
		CalmarRatio:        calmar,
		MaxDrawdown:        maxDD,
		AvgDrawdown:        avgDD,
		WinRate:            winRate(trades),
		ProfitFactor:       profitFactor(winners, losers),
		TotalTrades:        len(trades),
		WinningTrades:      len(winners),
		LosingTrades:       len(losers),
		AvgTradeDurationS:  avgTradeDuration(trades),
		FinalCapital:       finalCapital,
		MaxCapital:         maxCapital,
	}
}

func returnPercent(start, end decimal.Decimal) decimal.Decimal {
	if start.IsZero() {
		return decimal.Zero
	}
	return end.Sub(start).Div(start).Mul(decimal.NewFromInt(100))
}

func yearsBetween(start, end time.Time) float64 {
	days := end.Sub(start).Hours() / 24
	years := days / 365.25
	if years < 0.01 {
		return 0.01
	}
	return years
}

// cagr computes the compound annual growth rate. Preserved from
// metrics.py's behavior of returning -100% when the ratio is non-positive.
func (m *MetricsCalculator) cagr(finalCapital decimal.Decimal, years float64) decimal.Decimal {
	if m.InitialCapital.LessThanOrEqual(decimal.Zero) || years <= 0 {
		return decimal.Zero
	}
	ratio, _ := finalCapital.Div(m.InitialCapital).Float64()
	if ratio <= 0 {
		return decimal.NewFromInt(-100)
	}
	cagr := (math.Pow(ratio, 1/years) - 1) * 100
	return round4(cagr)
}

func dailyReturns(equityCurve []decimal.Decimal) []float64 {
	if len(equityCurve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equityCurve)-1)
	for i := 1; i < len(equityCurve); i++ {
		prev := equityCurve[i-1]
		if prev.IsZero() {
			continue
		}
		r, _ := equityCurve[i].Sub(prev).Div(prev).Float64()
		returns = append(returns, r)
	}
	return returns
}

// sharpeRatio annualizes the daily-return Sharpe ratio by sqrt(252),
// using gonum for the sample mean/variance. Zero if fewer than two
// samples or stdev is zero.
func sharpeRatio(dailyRet []float64) decimal.Decimal {
	if len(dailyRet) < 2 {
		return decimal.Zero
	}
	mean, std := stat.MeanStdDev(dailyRet, nil)
	dailyRF := riskFreeRateAnnual / tradingDaysPerYear
	if std == 0 {
		return decimal.Zero
	}
	sharpe := ((mean - dailyRF) / std) * math.Sqrt(tradingDaysPerYear)
	return round4(sharpe)
}

// sortinoRatio is Sharpe restricted to downside (negative) returns in the
// denominator. Mirrors metrics.py's sentinel behavior when there is no
// downside: 0 if the mean doesn't beat the risk-free rate, else
// SentinelRatio.
func sortinoRatio(dailyRet []float64) decimal.Decimal {
	if len(dailyRet) < 2 {
		return decimal.Zero
	}
	mean := stat.Mean(dailyRet, nil)
	dailyRF := riskFreeRateAnnual / tradingDaysPerYear

	var negative []float64
	for _, r := range dailyRet {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	if len(negative) == 0 {
		if mean <= dailyRF {
			return decimal.Zero
		}
		return SentinelRatio
	}

	sumSq := 0.0
	for _, r := range negative {
		sumSq += r * r
	}
	downsideDev := math.Sqrt(sumSq / float64(len(negative)))
	if downsideDev == 0 {
		return decimal.Zero
	}

	sortino := ((mean - dailyRF) / downsideDev) * math.Sqrt(tradingDaysPerYear)
	return round4(sortino)
}

// drawdowns returns the max and mean drawdown (percent) across a
// running-peak walk of the equity curve.
func drawdowns(equityCurve []decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if len(equityCurve) == 0 {
		return decimal.Zero, decimal.Zero
	}

	peak := equityCurve[0]
	var values []float64
	for _, eq := range equityCurve {
		if eq.GreaterThan(peak) {
			peak = eq
		}
		if peak.GreaterThan(decimal.Zero) {
			dd, _ := peak.Sub(eq).Div(peak).Mul(decimal.NewFromInt(100)).Float64()
			values = append(values, dd)
		}
	}
	if len(values) == 0 {
		return decimal.Zero, decimal.Zero
	}

	max, sum := values[0], 0.0
	for _, v := range values {
		if v > max {
			max = v
		}
		sum += v
	}
	return round4(max), round4(sum / float64(len(values)))
}

func calmarRatio(cagr, maxDrawdown decimal.Decimal) decimal.Decimal {
	if maxDrawdown.IsZero() {
		return decimal.Zero
	}
	ratio, _ := cagr.Div(maxDrawdown).Float64()
	return round4(ratio)
}

func winRate(trades []TradeResult) decimal.Decimal {
	if len(trades) == 0 {
		return decimal.Zero
	}
	winners := 0
	for _, t := range trades {
		if t.IsWinner {
			winners++
		}
	}
	rate := float64(winners) / float64(len(trades)) * 100
	return round4(rate)
}

// profitFactor is gross profit over gross loss, with metrics.py's
// sentinel: 999 when there's profit and no losses, 0 if there's neither.
func profitFactor(winners, losers []TradeResult) decimal.Decimal {
	grossProfit := 0.0
	for _, t := range winners {
		f, _ := t.PnL.Float64()
		grossProfit += f
	}
	grossLoss := 0.0
	for _, t := range losers {
		f, _ := t.PnL.Float64()
		grossLoss += f
	}
	grossLoss = math.Abs(grossLoss)

	if grossLoss == 0 {
		if grossProfit > 0 {
			return SentinelRatio
		}
		return decimal.Zero
	}
	return round4(grossProfit / grossLoss)
}

func avgTradeDuration(trades []TradeResult) int64 {
	if len(trades) == 0 {
		return 0
	}
	var total time.Duration
	for _, t := range trades {
		total += t.ExitTime.Sub(t.EntryTime)
	}
	return int64(total.Seconds()) / int64(len(trades))
}

func round4(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(4)
}

// EquityPoint is one (timestamp, equity) sample on the curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    decimal.Decimal
}

// Downsample keeps every step-th point, step = max(1, len/maxPoints) with
// integer division, always keeping the first and last sample. Inputs of at
// most maxPoints are returned unchanged. Because the step rounds down, the
// result is maxPoints (+1 for the last sample) only when len is a multiple
// of maxPoints; otherwise it can hold up to nearly twice maxPoints.
func Downsample(points []EquityPoint, maxPoints int) []EquityPoint {
	if len(points) <= maxPoints || maxPoints <= 0 {
		return points
	}
	step := len(points) / maxPoints
	if step < 1 {
		step = 1
	}
	out := make([]EquityPoint, 0, maxPoints+1)
	for i := 0; i < len(points); i += step {
		out = append(out, points[i])
	}
	last := points[len(points)-1]
	if out[len(out)-1].Timestamp != last.Timestamp {
		out = append(out, last)
	}
	return out
}
