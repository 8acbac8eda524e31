package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/omxlab/equityrun/internal/domain/market"
	"github.com/omxlab/equityrun/internal/persistence"
)

// ErrDuplicateTrade signals a trade id already present in the log;
// retrying a committed cycle step is expected to hit it.
var ErrDuplicateTrade = errors.New("duplicate trade")

type portfolioRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPortfolioRepo creates the account/positions/trade-log repository.
func NewPortfolioRepo(db *sqlx.DB, timeout time.Duration) persistence.PortfolioRepo {
	return &portfolioRepo{db: db, timeout: timeout}
}

// ApplyTrade commits the trade row, the position row and the cash
// balance in one transaction. The position row is the serialization
// point for average-price recomputation; a position whose share count
// reached zero is deleted rather than stored empty.
func (r *portfolioRepo) ApplyTrade(ctx context.Context, trade market.Trade, pos market.Position, cash float64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trades
			(id, instrument, action, shares, price, total_value, reasoning,
			 confidence, hypothesis, target_price, stop_loss, executed_at, closed_at, pnl)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		trade.ID, trade.Instrument, trade.Action, trade.Shares, trade.Price, trade.TotalValue,
		trade.Reasoning, trade.Confidence, trade.Hypothesis, trade.TargetPrice, trade.StopLoss,
		trade.ExecutedAt, trade.ClosedAt, trade.PnL)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateTrade, trade.ID)
		}
		return fmt.Errorf("failed to insert trade: %w", err)
	}

	if pos.Shares > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO positions (instrument, shares, avg_price, opened_at, stop_floor_pct)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (instrument) DO UPDATE
			SET shares = EXCLUDED.shares, avg_price = EXCLUDED.avg_price,
			    stop_floor_pct = EXCLUDED.stop_floor_pct`,
			pos.Instrument, pos.Shares, pos.AvgPrice, pos.OpenedAt, pos.StopFloorPct)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM positions WHERE instrument = $1`, pos.Instrument)
	}
	if err != nil {
		return fmt.Errorf("failed to update position %s: %w", pos.Instrument, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE account SET cash = $1, updated_at = NOW()`, cash); err != nil {
		return fmt.Errorf("failed to update cash balance: %w", err)
	}

	return tx.Commit()
}

func (r *portfolioRepo) UpdateStopFloor(ctx context.Context, instrument string, floorPct float64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE positions SET stop_floor_pct = $1 WHERE instrument = $2 AND stop_floor_pct < $1`,
		floorPct, instrument)
	if err != nil {
		return fmt.Errorf("failed to raise stop floor for %s: %w", instrument, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no open position to ratchet for %s", instrument)
	}
	return nil
}

func (r *portfolioRepo) OpenPositions(ctx context.Context) ([]market.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var positions []market.Position
	query := `
		SELECT instrument, shares, avg_price, opened_at, stop_floor_pct
		FROM positions WHERE shares > 0
		ORDER BY opened_at`
	if err := r.db.SelectContext(ctx, &positions, query); err != nil {
		return nil, fmt.Errorf("failed to list open positions: %w", err)
	}
	return positions, nil
}

func (r *portfolioRepo) Cash(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var cash float64
	if err := r.db.GetContext(ctx, &cash, `SELECT cash FROM account LIMIT 1`); err != nil {
		return 0, fmt.Errorf("failed to read cash balance: %w", err)
	}
	return cash, nil
}

func (r *portfolioRepo) Trades(ctx context.Context, tr persistence.TimeRange) ([]market.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var trades []market.Trade
	query := `
		SELECT id, instrument, action, shares, price, total_value, reasoning,
		       confidence, hypothesis, target_price, stop_loss, executed_at, closed_at, pnl
		FROM trades
		WHERE executed_at >= $1 AND executed_at <= $2
		ORDER BY executed_at ASC`
	if err := r.db.SelectContext(ctx, &trades, query, tr.From, tr.To); err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}
