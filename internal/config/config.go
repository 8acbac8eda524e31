// Package config loads the application configuration: a yaml file
// layered over built-in defaults, with secrets pulled from the
// environment (a .env file is honored when present).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/omxlab/equityrun/internal/data/cache"
	"github.com/omxlab/equityrun/internal/data/feed"
	"github.com/omxlab/equityrun/internal/domain/market"
	"github.com/omxlab/equityrun/internal/exits"
	"github.com/omxlab/equityrun/internal/gates"
	"github.com/omxlab/equityrun/internal/infrastructure/db"
	"github.com/omxlab/equityrun/internal/scoring"
)

// AppConfig holds process-level settings.
type AppConfig struct {
	LogLevel     string  `yaml:"log_level"`
	Timezone     string  `yaml:"timezone"`
	StartingCash float64 `yaml:"starting_cash"`
	Benchmark    string  `yaml:"benchmark"`
	ProspectsTop int     `yaml:"prospects_top"`
	LookbackBars int     `yaml:"lookback_bars"`
}

// MonitorConfig tunes the health and metrics endpoint.
type MonitorConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

// Config is the full application configuration tree.
type Config struct {
	App          AppConfig        `yaml:"app"`
	Database     db.Config        `yaml:"database"`
	Redis        cache.Config     `yaml:"redis"`
	Feed         feed.Config      `yaml:"feed"`
	Risk         gates.RiskConfig `yaml:"risk"`
	Scoring      scoring.Config   `yaml:"scoring"`
	Exits        exits.Config     `yaml:"exits"`
	Monitor      MonitorConfig    `yaml:"monitor"`
	MacroSymbols []string         `yaml:"macro_symbols"`

	// Strategies overrides or extends the built-in backtest catalog;
	// entries sharing a built-in name replace it.
	Strategies []market.StrategyDefinition `yaml:"strategies"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		App: AppConfig{
			LogLevel:     "info",
			Timezone:     "Europe/Stockholm",
			StartingCash: 100000,
			Benchmark:    "^OMX",
			ProspectsTop: 10,
			LookbackBars: 120,
		},
		Database: db.DefaultConfig(),
		Redis:    cache.DefaultConfig(),
		Feed:     feed.DefaultConfig(),
		Risk:     gates.DefaultRiskConfig(),
		Scoring:  scoring.DefaultConfig(),
		Exits:    exits.DefaultConfig(),
		Monitor:  MonitorConfig{Addr: ":8090", Enabled: false},
		MacroSymbols: []string{
			"^OMX", "HG=F", "CL=F", "EURSEK=X", "USDSEK=X", "TNX",
		},
	}
}

// Load reads the yaml file at path over the defaults and then applies
// environment overrides. A missing file is not an error; the defaults
// plus environment apply.
func Load(path string) (Config, error) {
	// Secrets and local overrides live in .env during development.
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env file")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			log.Warn().Str("path", path).Msg("Config file not found, using defaults")
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PG_DSN"); v != "" {
		cfg.Database.DSN = v
		cfg.Database.Enabled = true
	}
	if v := os.Getenv("PG_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Database.Enabled = b
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FEED_BASE_URL"); v != "" {
		cfg.Feed.BaseURL = v
	}
	if v := os.Getenv("FEED_API_KEY"); v != "" {
		cfg.Feed.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
}

func validate(cfg Config) error {
	if cfg.App.StartingCash <= 0 {
		return fmt.Errorf("app.starting_cash must be positive, got %v", cfg.App.StartingCash)
	}
	if cfg.App.ProspectsTop <= 0 {
		return fmt.Errorf("app.prospects_top must be positive, got %d", cfg.App.ProspectsTop)
	}
	if cfg.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be positive, got %d", cfg.Risk.MaxOpenPositions)
	}
	if cfg.Exits.TakeProfitPct <= 0 {
		return fmt.Errorf("exits.take_profit_pct must be positive, got %v", cfg.Exits.TakeProfitPct)
	}
	if cfg.Database.Enabled && cfg.Database.QueryTimeout <= 0 {
		return fmt.Errorf("database.query_timeout must be positive when the database is enabled")
	}
	for _, def := range cfg.Strategies {
		if def.Name == "" {
			return fmt.Errorf("strategies entries need a name")
		}
		if def.HoldDays <= 0 {
			return fmt.Errorf("strategies.%s.hold_days must be positive, got %d", def.Name, def.HoldDays)
		}
	}
	return nil
}

// Location resolves the configured timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		log.Warn().Str("timezone", c.App.Timezone).Msg("Unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}
