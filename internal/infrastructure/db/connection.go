// Package db manages the PostgreSQL connection pool and wires the
// repository set. Persistence is optional: with Enabled false the
// manager hands out a nil repository and a healthy no-op checker.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"gopkg.in/yaml.v3"

	"github.com/omxlab/equityrun/internal/persistence"
	"github.com/omxlab/equityrun/internal/persistence/postgres"
)

// Config holds database connection configuration.
type Config struct {
	DSN             string        `yaml:"dsn" env:"PG_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"PG_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"PG_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"PG_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"PG_CONN_MAX_IDLE_TIME"`
	QueryTimeout    time.Duration `yaml:"query_timeout" env:"PG_QUERY_TIMEOUT"`
	Enabled         bool          `yaml:"enabled" env:"PG_ENABLED"`
}

// UnmarshalYAML accepts duration fields as strings like "30s".
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	aux := struct {
		DSN             string `yaml:"dsn"`
		MaxOpenConns    int    `yaml:"max_open_conns"`
		MaxIdleConns    int    `yaml:"max_idle_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		ConnMaxIdleTime string `yaml:"conn_max_idle_time"`
		QueryTimeout    string `yaml:"query_timeout"`
		Enabled         bool   `yaml:"enabled"`
	}{
		DSN:          c.DSN,
		MaxOpenConns: c.MaxOpenConns,
		MaxIdleConns: c.MaxIdleConns,
		Enabled:      c.Enabled,
	}
	if err := node.Decode(&aux); err != nil {
		return err
	}
	c.DSN = aux.DSN
	c.MaxOpenConns = aux.MaxOpenConns
	c.MaxIdleConns = aux.MaxIdleConns
	c.Enabled = aux.Enabled
	return setDurations(map[*time.Duration]string{
		&c.ConnMaxLifetime: aux.ConnMaxLifetime,
		&c.ConnMaxIdleTime: aux.ConnMaxIdleTime,
		&c.QueryTimeout:    aux.QueryTimeout,
	})
}

func setDurations(fields map[*time.Duration]string) error {
	for dst, raw := range fields {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*dst = d
	}
	return nil
}

// DefaultConfig returns pool defaults; persistence stays disabled
// until a DSN is configured.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
		Enabled:         false,
	}
}

// Manager owns the connection pool and the repository instances.
type Manager struct {
	db     *sqlx.DB
	config Config
	repos  *persistence.Repository
	health *healthChecker
}

// NewManager opens the pool, verifies connectivity and constructs the
// repositories.
func NewManager(config Config) (*Manager, error) {
	if !config.Enabled {
		return &Manager{
			config: config,
			health: &healthChecker{enabled: false},
		}, nil
	}

	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}

	sqlxDB, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlxDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlxDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlxDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlxDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlxDB.PingContext(ctx); err != nil {
		sqlxDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repos := &persistence.Repository{
		Companies: postgres.NewCompaniesRepo(sqlxDB, config.QueryTimeout),
		Bars:      postgres.NewBarsRepo(sqlxDB, config.QueryTimeout),
		Macro:     postgres.NewMacroRepo(sqlxDB, config.QueryTimeout),
		Snapshots: postgres.NewSnapshotsRepo(sqlxDB, config.QueryTimeout),
		Portfolio: postgres.NewPortfolioRepo(sqlxDB, config.QueryTimeout),
		Prospects: postgres.NewProspectsRepo(sqlxDB, config.QueryTimeout),
		Backtests: postgres.NewBacktestRepo(sqlxDB, config.QueryTimeout),
	}

	return &Manager{
		db:     sqlxDB,
		config: config,
		repos:  repos,
		health: &healthChecker{enabled: true, db: sqlxDB, timeout: config.QueryTimeout},
	}, nil
}

// Repository returns the repository collection, or nil when disabled.
func (m *Manager) Repository() *persistence.Repository {
	return m.repos
}

// Health returns the health checker.
func (m *Manager) Health() persistence.RepositoryHealth {
	return m.health
}

// DB exposes the pool for migrations.
func (m *Manager) DB() *sqlx.DB {
	return m.db
}

// IsEnabled reports whether persistence is active.
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled && m.db != nil
}

// Close closes the pool.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

type healthChecker struct {
	enabled bool
	db      *sqlx.DB
	timeout time.Duration
}

func (h *healthChecker) Health(ctx context.Context) persistence.HealthCheck {
	if !h.enabled {
		return persistence.HealthCheck{
			Healthy:        true,
			Errors:         []string{"database persistence disabled"},
			ConnectionPool: map[string]int{"status": 0},
			LastCheck:      time.Now(),
		}
	}

	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var errs []string
	healthy := true
	if err := h.db.PingContext(pingCtx); err != nil {
		errs = append(errs, fmt.Sprintf("ping failed: %v", err))
		healthy = false
	}

	stats := h.db.Stats()
	return persistence.HealthCheck{
		Healthy: healthy,
		Errors:  errs,
		ConnectionPool: map[string]int{
			"max_open":      stats.MaxOpenConnections,
			"open":          stats.OpenConnections,
			"in_use":        stats.InUse,
			"idle":          stats.Idle,
			"wait_count":    int(stats.WaitCount),
			"wait_duration": int(stats.WaitDuration.Milliseconds()),
		},
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}

func (h *healthChecker) Ping(ctx context.Context) error {
	if !h.enabled {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.db.PingContext(pingCtx)
}

func (h *healthChecker) Stats(ctx context.Context) map[string]interface{} {
	if !h.enabled {
		return map[string]interface{}{"enabled": false, "status": "disabled"}
	}

	stats := h.db.Stats()
	return map[string]interface{}{
		"enabled":              true,
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}
