package backtest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aristath/sentinel/internal/database"
)

// maxEquityCurvePoints is the stride target for persisted equity-curve
// rows: the curve is downsampled by Downsample's striding rather than
// truncated, so the first and last points are always kept (see Downsample
// for how far the row count can exceed this value).
const maxEquityCurvePoints = 500

// Store persists backtest jobs, their metrics, trades, and equity curve
// to the ledger's backtest tables.
type Store struct {
	db *database.DB
}

// NewStore wraps db for backtest persistence.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

func fillTimingLabel(t FillTiming) string {
	if t == FillTimingNextBarOpen {
		return "next_bar_open"
	}
	return "same_bar_open"
}

// CreateJob inserts a pending backtest row and returns its generated id.
func (s *Store) CreateJob(ctx context.Context, userID string, config Config) (string, error) {
	id := uuid.NewString()
	configJSON, err := json.Marshal(config.StrategyConfig)
	if err != nil {
		return "", fmt.Errorf("backtest: marshal strategy config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtests (id, user_id, strategy_name, status, symbol, exchange, interval, start_date, end_date, initial_capital, fill_timing, config)
		VALUES (?, ?, ?, 'pending', ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, config.StrategyName, config.Symbol, config.Exchange, config.Interval,
		config.StartDate.Format("2006-01-02"), config.EndDate.Format("2006-01-02"),
		config.InitialCapital.String(), fillTimingLabel(config.FillTiming), string(configJSON),
	)
	if err != nil {
		return "", fmt.Errorf("backtest: create job: %w", err)
	}
	return id, nil
}

// MarkRunning transitions a job to running and records its started_at.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE backtests SET status = 'running', started_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`, id)
	return err
}

// UpdateProgress records a 0-100 progress value.
func (s *Store) UpdateProgress(ctx context.Context, id string, progress int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE backtests SET progress = ? WHERE id = ?`, progress, id)
	return err
}

// MarkCancelled transitions a job to cancelled without writing any
// metrics, trades, or equity-curve rows — partial artifacts are never
// persisted for a cancelled run.
func (s *Store) MarkCancelled(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE backtests SET status = 'cancelled', completed_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`, id)
	return err
}

// MarkFailed transitions a job to failed with errMsg recorded.
func (s *Store) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE backtests SET status = 'failed', error_message = ?, completed_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`,
		errMsg, id)
	return err
}

// SaveResult persists a completed result's metrics, trades, and
// downsampled equity curve, then marks the job completed. All writes
// happen inside one transaction so a crash mid-write never leaves a
// "completed" job with partial rows.
func (s *Store) SaveResult(ctx context.Context, id string, result Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("backtest: begin save: %w", err)
	}
	defer tx.Rollback()

	m := result.Metrics
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO backtest_results (
			backtest_id, total_return, total_return_percent, cagr, sharpe_ratio, sortino_ratio,
			calmar_ratio, max_drawdown, avg_drawdown, win_rate, profit_factor, total_trades,
			winning_trades, losing_trades, avg_trade_duration_s, final_capital, max_capital
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, m.TotalReturn.String(), m.TotalReturnPercent.String(), m.CAGR.String(),
		m.SharpeRatio.String(), m.SortinoRatio.String(), m.CalmarRatio.String(),
		m.MaxDrawdown.String(), m.AvgDrawdown.String(), m.WinRate.String(), m.ProfitFactor.String(),
		m.TotalTrades, m.WinningTrades, m.LosingTrades, m.AvgTradeDurationS,
		m.FinalCapital.String(), m.MaxCapital.String(),
	); err != nil {
		return fmt.Errorf("backtest: save metrics: %w", err)
	}

	for _, t := range result.Trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_trades (backtest_id, signal, entry_price, exit_price, quantity, entry_time, exit_time, pnl, pnl_percent, reason, is_open)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
			id, "LONG", t.EntryPrice.String(), t.ExitPrice.String(), t.Quantity,
			t.EntryTime.Format("2006-01-02T15:04:05Z07:00"), t.ExitTime.Format("2006-01-02T15:04:05Z07:00"),
			t.PnL.String(), t.PnLPercent.String(), t.Reason,
		); err != nil {
			return fmt.Errorf("backtest: save trade: %w", err)
		}
	}

	for _, pt := range Downsample(result.EquityCurve, maxEquityCurvePoints) {
		drawdown := "0"
		if !m.MaxCapital.IsZero() {
			drawdown = m.MaxCapital.Sub(pt.Equity).Div(m.MaxCapital).Mul(decimal.NewFromInt(100)).String()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_equity_curve (backtest_id, timestamp, equity, drawdown) VALUES (?, ?, ?, ?)`,
			id, pt.Timestamp.Format("2006-01-02T15:04:05Z07:00"), pt.Equity.String(), drawdown,
		); err != nil {
			return fmt.Errorf("backtest: save equity point: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE backtests SET status = 'completed', progress = 100, completed_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("backtest: mark completed: %w", err)
	}

	return tx.Commit()
}
