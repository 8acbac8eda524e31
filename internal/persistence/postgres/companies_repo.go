// Package postgres implements the persistence interfaces on
// PostgreSQL via sqlx. Every query runs under the configured timeout.
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

type companiesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCompaniesRepo creates the companies repository.
func NewCompaniesRepo(db *sqlx.DB, timeout time.Duration) persistence.CompaniesRepo {
	return &companiesRepo{db: db, timeout: timeout}
}

func (r *companiesRepo) ListTracked(ctx context.Context) ([]market.Company, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var companies []market.Company
	query := `SELECT instrument, name, sector FROM companies WHERE tracked ORDER BY instrument`
	if err := r.db.SelectContext(ctx, &companies, query); err != nil {
		return nil, fmt.Errorf("failed to list tracked companies: %w", err)
	}
	return companies, nil
}

func (r *companiesRepo) Get(ctx context.Context, instrument string) (*market.Company, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var company market.Company
	query := `SELECT instrument, name, sector FROM companies WHERE instrument = $1`
	if err := r.db.GetContext(ctx, &company, query, instrument); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get company %s: %w", instrument, err)
	}
	return &company, nil
}

func (r *companiesRepo) Dependencies(ctx context.Context, instrument string) ([]market.Dependency, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var deps []market.Dependency
	query := `
		SELECT instrument, input_name, macro_symbol, impact_direction, impact_strength, description
		FROM dependencies
		WHERE instrument = $1
		ORDER BY impact_strength DESC, input_name`
	if err := r.db.SelectContext(ctx, &deps, query, instrument); err != nil {
		return nil, fmt.Errorf("failed to list dependencies for %s: %w", instrument, err)
	}
	return deps, nil
}
