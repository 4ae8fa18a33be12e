package optimize

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/aristath/sentinel/internal/database"
)

// Store persists optimization runs and their per-sample results to the
// optimization database's tables.
type Store struct {
	db *database.DB
}

// NewStore wraps db for optimization persistence.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// CreateRun inserts a pending optimization run and returns its generated id.
func (s *Store) CreateRun(ctx context.Context, userID string, config Config) (string, error) {
	id := uuid.NewString()
	rangesJSON, err := json.Marshal(config.ParameterRanges)
	if err != nil {
		return "", fmt.Errorf("optimize: marshal parameter ranges: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO optimization_runs (
			id, user_id, strategy_name, symbol, exchange, interval, start_date, end_date,
			initial_capital, parameter_ranges, num_samples, objective_metric, status, samples_total
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?)`,
		id, userID, config.BacktestConfig.StrategyName, config.BacktestConfig.Symbol,
		config.BacktestConfig.Exchange, config.BacktestConfig.Interval,
		config.BacktestConfig.StartDate.Format("2006-01-02"), config.BacktestConfig.EndDate.Format("2006-01-02"),
		config.BacktestConfig.InitialCapital.String(), string(rangesJSON), config.NumSamples,
		config.ObjectiveMetric, config.NumSamples,
	)
	if err != nil {
		return "", fmt.Errorf("optimize: create run: %w", err)
	}
	return id, nil
}

// MarkRunning transitions a run to running and records its started_at.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE optimization_runs SET status = 'running', started_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`, id)
	return err
}

// UpdateProgress records how many samples have completed so far.
func (s *Store) UpdateProgress(ctx context.Context, id string, completed int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE optimization_runs SET samples_completed = ? WHERE id = ?`, completed, id)
	return err
}

// MarkFailed transitions a run to failed with errMsg recorded.
func (s *Store) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE optimization_runs SET status = 'failed', error_message = ?, completed_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`,
		errMsg, id)
	return err
}

// SaveResults persists every sample result inside one transaction and
// marks the run completed.
func (s *Store) SaveResults(ctx context.Context, id string, results []SampleResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("optimize: begin save: %w", err)
	}
	defer tx.Rollback()

	for _, r := range results {
		paramsJSON, err := json.Marshal(r.Parameters)
		if err != nil {
			return fmt.Errorf("optimize: marshal sample parameters: %w", err)
		}
		metricsJSON, err := json.Marshal(r.Metrics)
		if err != nil {
			return fmt.Errorf("optimize: marshal sample metrics: %w", err)
		}

		var errMsg interface{}
		if r.Error != "" {
			errMsg = r.Error
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO optimization_samples (run_id, parameters, metrics, objective_value, trades_count, error_message)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, string(paramsJSON), string(metricsJSON), r.ObjectiveValue, r.TradesCount, errMsg,
		); err != nil {
			return fmt.Errorf("optimize: save sample: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE optimization_runs SET status = 'completed', samples_completed = ?, completed_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`,
		len(results), id,
	); err != nil {
		return fmt.Errorf("optimize: mark completed: %w", err)
	}

	return tx.Commit()
}
