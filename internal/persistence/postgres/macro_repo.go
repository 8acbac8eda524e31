package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/omxlab/equityrun/internal/domain/market"
	"github.com/omxlab/equityrun/internal/persistence"
)

type macroRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMacroRepo creates the macro readings repository.
func NewMacroRepo(db *sqlx.DB, timeout time.Duration) persistence.MacroRepo {
	return &macroRepo{db: db, timeout: timeout}
}

func (r *macroRepo) Upsert(ctx context.Context, reading market.MacroReading) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO macro_readings (symbol, value, change_pct, date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, date) DO UPDATE
		SET value = EXCLUDED.value, change_pct = EXCLUDED.change_pct`
	if _, err := r.db.ExecContext(ctx, query, reading.Symbol, reading.Value, reading.ChangePct, reading.Date); err != nil {
		return fmt.Errorf("failed to upsert macro reading %s: %w", reading.Symbol, err)
	}
	return nil
}

func (r *macroRepo) LatestPerSymbol(ctx context.Context) (map[string]market.MacroReading, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var readings []market.MacroReading
	query := `
		SELECT DISTINCT ON (symbol) symbol, value, change_pct, date
		FROM macro_readings
		ORDER BY symbol, date DESC`
	if err := r.db.SelectContext(ctx, &readings, query); err != nil {
		return nil, fmt.Errorf("failed to load latest macro readings: %w", err)
	}

	latest := make(map[string]market.MacroReading, len(readings))
	for _, reading := range readings {
		latest[reading.Symbol] = reading
	}
	return latest, nil
}
