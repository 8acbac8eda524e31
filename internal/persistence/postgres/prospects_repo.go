package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/omxlab/equityrun/internal/domain/market"
	"github.com/omxlab/equityrun/internal/persistence"
)

type prospectsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewProspectsRepo creates the prospects projection repository.
func NewProspectsRepo(db *sqlx.DB, timeout time.Duration) persistence.ProspectsRepo {
	return &prospectsRepo{db: db, timeout: timeout}
}

// Replace swaps the whole projection for the given scan. The table
// only ever holds the latest scan's rows; history lives in the scans'
// source data, not here.
func (r *prospectsRepo) Replace(ctx context.Context, scanAt time.Time, opps []market.Opportunity) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM prospects`); err != nil {
		return fmt.Errorf("failed to clear prospects: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO prospects
			(instrument, confidence, breakdown, thesis, entry_trigger, current_price, scanned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("failed to prepare prospect insert: %w", err)
	}
	defer stmt.Close()

	for _, opp := range opps {
		breakdown, err := json.Marshal(opp.Breakdown)
		if err != nil {
			return fmt.Errorf("failed to marshal breakdown for %s: %w", opp.Instrument, err)
		}
		if _, err := stmt.ExecContext(ctx,
			opp.Instrument, opp.Confidence, breakdown, opp.Thesis, opp.EntryTrigger,
			opp.CurrentPrice, scanAt); err != nil {
			return fmt.Errorf("failed to insert prospect %s: %w", opp.Instrument, err)
		}
	}
	return tx.Commit()
}

func (r *prospectsRepo) Latest(ctx context.Context, limit int) ([]market.Opportunity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT instrument, confidence, breakdown, thesis, entry_trigger, current_price
		FROM prospects
		ORDER BY confidence DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query prospects: %w", err)
	}
	defer rows.Close()

	var opps []market.Opportunity
	for rows.Next() {
		var opp market.Opportunity
		var breakdown []byte
		if err := rows.Scan(&opp.Instrument, &opp.Confidence, &breakdown,
			&opp.Thesis, &opp.EntryTrigger, &opp.CurrentPrice); err != nil {
			return nil, fmt.Errorf("failed to scan prospect: %w", err)
		}
		if len(breakdown) > 0 {
			if err := json.Unmarshal(breakdown, &opp.Breakdown); err != nil {
				return nil, fmt.Errorf("failed to unmarshal breakdown for %s: %w", opp.Instrument, err)
			}
		}
		opps = append(opps, opp)
	}
	return opps, rows.Err()
}
