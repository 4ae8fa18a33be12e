package broker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/sentinel/internal/domain"
)

// maxDaysPerRequest bounds how much history a single GetHistoricalData call
// is expected to cover, per interval. Ported from the fyers broker plugin's
// _fetch_historical_data comment ("Intraday: max 100 days per request,
// Daily: max 366 days per request") — 365 here, matching spec.md §4.2's
// stated ceiling rather than the plugin's off-by-one 366.
var maxDaysPerRequest = map[string]int{
	"1min":  100,
	"5min":  100,
	"15min": 100,
	"30min": 100,
	"1hour": 100,
	"1day":  365,
}

func maxDaysFor(interval string) int {
	if d, ok := maxDaysPerRequest[interval]; ok {
		return d
	}
	return 100
}

// FetchHistoricalDataChunked calls b.GetHistoricalData once if the
// requested range fits within the interval's per-request day limit, or
// splits it into consecutive chunks otherwise. A chunk that fails aborts
// the whole fetch: its error is returned wrapped with the chunk's bounds
// and no candles are returned (the original plugin swallows per-chunk
// errors and keeps going — this port surfaces them instead, since silently
// returning partial history is a correctness trap a backtest shouldn't
// inherit). Chunked results are concatenated, sorted by timestamp, and
// deduplicated by timestamp, mirroring the original's sort-then-dedupe
// pass; a single-request fetch is returned as the broker gave it.
func FetchHistoricalDataChunked(ctx context.Context, b Broker, symbol, exchange, interval string, from, to time.Time) ([]domain.Candle, error) {
	maxDays := maxDaysFor(interval)
	totalDays := int(to.Sub(from).Hours() / 24)

	if totalDays <= maxDays {
		return b.GetHistoricalData(ctx, symbol, exchange, interval, from, to)
	}

	var all []domain.Candle
	chunkStart := from
	step := time.Duration(maxDays) * 24 * time.Hour

	for chunkStart.Before(to) {
		chunkEnd := chunkStart.Add(step)
		if chunkEnd.After(to) {
			chunkEnd = to
		}

		candles, err := b.GetHistoricalData(ctx, symbol, exchange, interval, chunkStart, chunkEnd)
		if err != nil {
			return nil, fmt.Errorf("broker: historical data chunk %s to %s: %w", chunkStart, chunkEnd, err)
		}
		all = append(all, candles...)
		chunkStart = chunkEnd
	}

	return dedupeByTimestamp(all), nil
}

// dedupeByTimestamp sorts candles by timestamp and drops any candle whose
// timestamp repeats one already kept, matching the original's
// seen_timestamps pass over concatenated chunks (consecutive chunks touch
// at chunkEnd, which is fetched twice as both a chunk's "to" and the next
// chunk's "from" boundary candle).
func dedupeByTimestamp(candles []domain.Candle) []domain.Candle {
	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })

	out := make([]domain.Candle, 0, len(candles))
	var last time.Time
	for i, c := range candles {
		if i > 0 && c.Timestamp.Equal(last) {
			continue
		}
		out = append(out, c)
		last = c.Timestamp
	}
	return out
}
