package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/omxlab/equityrun/internal/domain/market"
	"github.com/omxlab/equityrun/internal/persistence"
)

type barsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewBarsRepo creates the price bars repository.
func NewBarsRepo(db *sqlx.DB, timeout time.Duration) persistence.BarsRepo {
	return &barsRepo{db: db, timeout: timeout}
}

func (r *barsRepo) UpsertBatch(ctx context.Context, bars []market.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(bars)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO prices (instrument, date, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (instrument, date) DO UPDATE
		SET open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
		    close = EXCLUDED.close, volume = EXCLUDED.volume`)
	if err != nil {
		return fmt.Errorf("failed to prepare bar upsert: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		if _, err := stmt.ExecContext(ctx,
			bar.Instrument, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume); err != nil {
			return fmt.Errorf("failed to upsert bar %s/%s: %w", bar.Instrument, bar.Date.Format("2006-01-02"), err)
		}
	}
	return tx.Commit()
}

func (r *barsRepo) Lookback(ctx context.Context, instrument string, n int) ([]market.PriceBar, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var bars []market.PriceBar
	query := `
		SELECT instrument, date, open, high, low, close, volume
		FROM (
			SELECT instrument, date, open, high, low, close, volume
			FROM prices WHERE instrument = $1
			ORDER BY date DESC LIMIT $2
		) recent
		ORDER BY date ASC`
	if err := r.db.SelectContext(ctx, &bars, query, instrument, n); err != nil {
		return nil, fmt.Errorf("failed to load %d bars for %s: %w", n, instrument, err)
	}
	return bars, nil
}

func (r *barsRepo) ListBetween(ctx context.Context, instrument string, tr persistence.TimeRange) ([]market.PriceBar, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var bars []market.PriceBar
	query := `
		SELECT instrument, date, open, high, low, close, volume
		FROM prices
		WHERE instrument = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC`
	if err := r.db.SelectContext(ctx, &bars, query, instrument, tr.From, tr.To); err != nil {
		return nil, fmt.Errorf("failed to list bars for %s: %w", instrument, err)
	}
	return bars, nil
}

func (r *barsRepo) LatestClose(ctx context.Context, instrument string) (float64, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row struct {
		Close float64   `db:"close"`
		Date  time.Time `db:"date"`
	}
	query := `SELECT close, date FROM prices WHERE instrument = $1 ORDER BY date DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &row, query, instrument); err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to get latest close for %s: %w", instrument, err)
	}
	return row.Close, row.Date, nil
}
