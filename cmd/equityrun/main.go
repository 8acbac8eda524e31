package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/omxlab/equityrun/internal/application"
	"github.com/omxlab/equityrun/internal/config"
	"github.com/omxlab/equityrun/internal/data/cache"
	"github.com/omxlab/equityrun/internal/data/feed"
	"github.com/omxlab/equityrun/internal/infrastructure/db"
	"github.com/omxlab/equityrun/internal/telemetry"
)

const (
	appName = "equityrun"
	version = "v1.3.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Quantitative signal and decision-validation engine for equities",
		Version: version,
		Long: `equityrun computes technical signals over a tracked equity universe,
scores opportunities against macro dependencies, validates candidate
trades through a risk gate chain and manages the position lifecycle.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "Path to config file")

	rootCmd.AddCommand(
		newUpdateCmd(),
		newSignalsCmd(),
		newScanCmd(),
		newExecCmd(),
		newPositionsCmd(),
		newBacktestCmd(),
		newScheduleCmd(),
		newMonitorCmd(),
		newHealthCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runtime bundles everything a command needs beyond the engine.
type runtime struct {
	cfg     config.Config
	manager *db.Manager
	engine  *application.Engine
	feed    *feed.Client
}

func (r *runtime) close() {
	if r.manager != nil {
		if err := r.manager.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing database")
		}
	}
}

// buildRuntime loads the config and wires the engine. Commands that
// read or write state require the database to be enabled.
func buildRuntime(requireDB bool) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if level, err := zerolog.ParseLevel(cfg.App.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	manager, err := db.NewManager(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if requireDB && !manager.IsEnabled() {
		manager.Close()
		return nil, fmt.Errorf("this command requires the database; set database.enabled and dsn (or PG_DSN)")
	}

	var feedClient *feed.Client
	if cfg.Feed.BaseURL != "" {
		quotes := cache.NewQuotes(cache.New(cfg.Redis), cfg.Redis.QuoteTTL)
		feedClient = feed.NewClient(cfg.Feed, quotes)
	}

	engine := application.New(cfg, manager.Repository(), feedClient, telemetry.NewMetrics())
	return &runtime{cfg: cfg, manager: manager, engine: engine, feed: feedClient}, nil
}
