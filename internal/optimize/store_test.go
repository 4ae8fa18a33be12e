package optimize

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/backtest"
	"github.com/aristath/sentinel/internal/database"
)

func newOptimizationDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file::memory:?cache=shared&_name=optimize_store_" + t.Name(),
		Profile: database.ProfileStandard,
		Name:    "optimization",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func testOptimizeConfig() Config {
	return Config{
		BacktestConfig: backtest.Config{
			StrategyName:   "sma_rsi_crossover",
			Symbol:         "INFY",
			Exchange:       "NSE",
			Interval:       "5m",
			StartDate:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:        time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
			InitialCapital: decimal.NewFromInt(100000),
		},
		ParameterRanges: []ParameterRange{{Name: "fast_period", Min: 5, Max: 15, Step: 5, ParamType: "int"}},
		NumSamples:      10,
		ObjectiveMetric: "sharpe_ratio",
	}
}

func TestStore_CreateRun_InsertsPendingRow(t *testing.T) {
	store := NewStore(newOptimizationDB(t))
	id, err := store.CreateRun(context.Background(), "user-1", testOptimizeConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestStore_SaveResults_PersistsSamplesAndMarksCompleted(t *testing.T) {
	db := newOptimizationDB(t)
	store := NewStore(db)
	ctx := context.Background()

	id, err := store.CreateRun(ctx, "user-1", testOptimizeConfig())
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, id))

	results := []SampleResult{
		{Parameters: map[string]float64{"fast_period": 5}, Metrics: map[string]float64{"sharpe_ratio": 1.5}, ObjectiveValue: 1.5, TradesCount: 3},
		{Parameters: map[string]float64{"fast_period": 10}, Metrics: map[string]float64{}, Error: "strategy rejected config"},
	}

	require.NoError(t, store.SaveResults(ctx, id, results))

	var status string
	var completed int
	require.NoError(t, db.QueryRow("SELECT status, samples_completed FROM optimization_runs WHERE id = ?", id).Scan(&status, &completed))
	assert.Equal(t, "completed", status)
	assert.Equal(t, 2, completed)

	var sampleCount int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM optimization_samples WHERE run_id = ?", id).Scan(&sampleCount))
	assert.Equal(t, 2, sampleCount)

	var errMsg *string
	require.NoError(t, db.QueryRow("SELECT error_message FROM optimization_samples WHERE run_id = ? AND objective_value = 0", id).Scan(&errMsg))
	require.NotNil(t, errMsg)
	assert.Equal(t, "strategy rejected config", *errMsg)
}

func TestStore_MarkFailed_RecordsErrorMessage(t *testing.T) {
	db := newOptimizationDB(t)
	store := NewStore(db)
	ctx := context.Background()

	id, err := store.CreateRun(ctx, "user-1", testOptimizeConfig())
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(ctx, id, "no candles available"))

	var status, errMsg string
	require.NoError(t, db.QueryRow("SELECT status, error_message FROM optimization_runs WHERE id = ?", id).Scan(&status, &errMsg))
	assert.Equal(t, "failed", status)
	assert.Equal(t, "no candles available", errMsg)
}
