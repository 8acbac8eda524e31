// Package persistence defines the storage interfaces the engine
// consumes. Repositories are constructed once at startup and passed
// by reference; no component reaches for ambient database state.
package persistence

import (
	"context"
	"time"

	"github.com/omxlab/equityrun/internal/domain/market"
)

// TimeRange is an inclusive query window.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CompaniesRepo serves the tracked instrument universe and its macro
// dependency weights.
type CompaniesRepo interface {
	// ListTracked returns the universe in a stable order.
	ListTracked(ctx context.Context) ([]market.Company, error)

	// Get returns one company by instrument.
	Get(ctx context.Context, instrument string) (*market.Company, error)

	// Dependencies returns the macro dependency weights for an
	// instrument, ordered by descending impact strength.
	Dependencies(ctx context.Context, instrument string) ([]market.Dependency, error)
}

// BarsRepo persists and serves historical price bars.
type BarsRepo interface {
	// UpsertBatch writes bars atomically, replacing same-day rows.
	UpsertBatch(ctx context.Context, bars []market.PriceBar) error

	// Lookback returns the most recent n bars, oldest first.
	Lookback(ctx context.Context, instrument string, n int) ([]market.PriceBar, error)

	// ListBetween returns bars inside the window, oldest first.
	ListBetween(ctx context.Context, instrument string, tr TimeRange) ([]market.PriceBar, error)

	// LatestClose returns the most recent close and its date.
	LatestClose(ctx context.Context, instrument string) (float64, time.Time, error)
}

// MacroRepo persists exogenous macro readings.
type MacroRepo interface {
	// Upsert writes one reading, replacing same-day rows per symbol.
	Upsert(ctx context.Context, reading market.MacroReading) error

	// LatestPerSymbol returns the newest reading for every symbol.
	LatestPerSymbol(ctx context.Context) (map[string]market.MacroReading, error)
}

// SnapshotsRepo persists derived technical snapshots. A recomputation
// supersedes the stored row for the same (instrument, date).
type SnapshotsRepo interface {
	Upsert(ctx context.Context, snap market.TechnicalSnapshot) error

	// Latest returns the newest snapshot for an instrument.
	Latest(ctx context.Context, instrument string) (*market.TechnicalSnapshot, error)

	// ListBetween returns snapshots inside the window, oldest first.
	ListBetween(ctx context.Context, instrument string, tr TimeRange) ([]market.TechnicalSnapshot, error)
}

// PortfolioRepo persists the account, open positions and the
// immutable trade log. ApplyTrade is the single mutation path: the
// trade row, the position row and the cash balance commit in one
// transaction so a partial write can never split them.
type PortfolioRepo interface {
	// ApplyTrade appends the trade, upserts (or deletes, when Shares
	// reaches zero) the position and sets the cash balance atomically.
	ApplyTrade(ctx context.Context, trade market.Trade, pos market.Position, cash float64) error

	// UpdateStopFloor persists a ratcheted stop floor.
	UpdateStopFloor(ctx context.Context, instrument string, floorPct float64) error

	// OpenPositions returns every open position.
	OpenPositions(ctx context.Context) ([]market.Position, error)

	// Cash returns the current balance.
	Cash(ctx context.Context) (float64, error)

	// Trades returns the trade log inside the window, oldest first.
	Trades(ctx context.Context, tr TimeRange) ([]market.Trade, error)
}

// ProspectsRepo externalizes the top-N opportunity projection. The
// projection is a derived view, replaced wholesale on every scan.
type ProspectsRepo interface {
	Replace(ctx context.Context, scanAt time.Time, opps []market.Opportunity) error
	Latest(ctx context.Context, limit int) ([]market.Opportunity, error)
}

// BacktestRepo appends strategy run results; rows are never updated.
type BacktestRepo interface {
	Append(ctx context.Context, result market.BacktestResult) error
	ListByStrategy(ctx context.Context, strategy string, limit int) ([]market.BacktestResult, error)
}

// Repository aggregates the persistence interfaces.
type Repository struct {
	Companies CompaniesRepo
	Bars      BarsRepo
	Macro     MacroRepo
	Snapshots SnapshotsRepo
	Portfolio PortfolioRepo
	Prospects ProspectsRepo
	Backtests BacktestRepo
}

// HealthCheck reports repository health.
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for the storage layer.
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
	Stats(ctx context.Context) map[string]interface{}
}
