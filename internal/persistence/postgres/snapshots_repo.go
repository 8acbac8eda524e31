package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/omxlab/equityrun/internal/domain/market"
	"github.com/omxlab/equityrun/internal/persistence"
)

type snapshotsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSnapshotsRepo creates the technical snapshots repository.
func NewSnapshotsRepo(db *sqlx.DB, timeout time.Duration) persistence.SnapshotsRepo {
	return &snapshotsRepo{db: db, timeout: timeout}
}

func (r *snapshotsRepo) Upsert(ctx context.Context, snap market.TechnicalSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO technical_snapshots
			(instrument, date, rsi14, sma20, sma50, volume_ratio, momentum_score, pattern, pattern_signal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (instrument, date) DO UPDATE
		SET rsi14 = EXCLUDED.rsi14, sma20 = EXCLUDED.sma20, sma50 = EXCLUDED.sma50,
		    volume_ratio = EXCLUDED.volume_ratio, momentum_score = EXCLUDED.momentum_score,
		    pattern = EXCLUDED.pattern, pattern_signal = EXCLUDED.pattern_signal`
	if _, err := r.db.ExecContext(ctx, query,
		snap.Instrument, snap.Date, snap.RSI14, snap.SMA20, snap.SMA50,
		snap.VolumeRatio, snap.MomentumScore, snap.Pattern, snap.PatternSignal); err != nil {
		return fmt.Errorf("failed to upsert snapshot %s/%s: %w", snap.Instrument, snap.Date.Format("2006-01-02"), err)
	}
	return nil
}

func (r *snapshotsRepo) Latest(ctx context.Context, instrument string) (*market.TechnicalSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var snap market.TechnicalSnapshot
	query := `
		SELECT instrument, date, rsi14, sma20, sma50, volume_ratio, momentum_score, pattern, pattern_signal
		FROM technical_snapshots
		WHERE instrument = $1
		ORDER BY date DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &snap, query, instrument); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot for %s: %w", instrument, err)
	}
	return &snap, nil
}

func (r *snapshotsRepo) ListBetween(ctx context.Context, instrument string, tr persistence.TimeRange) ([]market.TechnicalSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var snaps []market.TechnicalSnapshot
	query := `
		SELECT instrument, date, rsi14, sma20, sma50, volume_ratio, momentum_score, pattern, pattern_signal
		FROM technical_snapshots
		WHERE instrument = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC`
	if err := r.db.SelectContext(ctx, &snaps, query, instrument, tr.From, tr.To); err != nil {
		return nil, fmt.Errorf("failed to list snapshots for %s: %w", instrument, err)
	}
	return snaps, nil
}
