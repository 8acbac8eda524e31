package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/omxlab/equityrun/internal/domain/market"
	"github.com/omxlab/equityrun/internal/persistence"
)

type backtestRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewBacktestRepo creates the backtest results repository.
func NewBacktestRepo(db *sqlx.DB, timeout time.Duration) persistence.BacktestRepo {
	return &backtestRepo{db: db, timeout: timeout}
}

// Append inserts one result row. There is deliberately no update path:
// repeated runs of the same strategy accumulate for comparison.
func (r *backtestRepo) Append(ctx context.Context, result market.BacktestResult) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO backtest_results
			(strategy, period_start, period_end, trades_count, win_rate,
			 total_return_pct, avg_trade_pct, max_drawdown_pct, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query,
		result.Strategy, result.PeriodStart, result.PeriodEnd, result.TradesCount,
		result.WinRate, result.TotalReturnPct, result.AvgTradePct, result.MaxDrawdownPct,
		result.CreatedAt); err != nil {
		return fmt.Errorf("failed to append backtest result for %s: %w", result.Strategy, err)
	}
	return nil
}

func (r *backtestRepo) ListByStrategy(ctx context.Context, strategy string, limit int) ([]market.BacktestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var results []market.BacktestResult
	query := `
		SELECT strategy, period_start, period_end, trades_count, win_rate,
		       total_return_pct, avg_trade_pct, max_drawdown_pct, created_at
		FROM backtest_results
		WHERE strategy = $1
		ORDER BY created_at DESC
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &results, query, strategy, limit); err != nil {
		return nil, fmt.Errorf("failed to list backtest results for %s: %w", strategy, err)
	}
	return results, nil
}
