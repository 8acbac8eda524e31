// Package application orchestrates the pipeline cycles: data refresh,
// signal computation, opportunity scoring, validated execution,
// position checks and backtests. Every cycle reads through the
// repository interfaces and emits telemetry.
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/omxlab/equityrun/internal/config"
	"github.com/omxlab/equityrun/internal/data/feed"
	"github.com/omxlab/equityrun/internal/exits"
	"github.com/omxlab/equityrun/internal/gates"
	"github.com/omxlab/equityrun/internal/persistence"
	"github.com/omxlab/equityrun/internal/scoring"
	"github.com/omxlab/equityrun/internal/telemetry"
)

// Engine wires the pipeline components over one repository set.
type Engine struct {
	cfg       config.Config
	repos     *persistence.Repository
	feed      *feed.Client
	scorer    *scoring.Scorer
	validator *gates.Validator
	exits     *exits.Evaluator
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// New builds the engine. The feed client may be nil for offline use;
// cycles that need it fail with a clear error.
func New(cfg config.Config, repos *persistence.Repository, feedClient *feed.Client, metrics *telemetry.Metrics) *Engine {
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	return &Engine{
		cfg:       cfg,
		repos:     repos,
		feed:      feedClient,
		scorer:    scoring.NewScorer(cfg.Scoring),
		validator: gates.NewValidator(cfg.Risk),
		exits:     exits.NewEvaluator(cfg.Exits),
		metrics:   metrics,
		now:       time.Now,
	}
}

// Metrics exposes the engine's metric set for the monitor server.
func (e *Engine) Metrics() *telemetry.Metrics {
	return e.metrics
}

func (e *Engine) observeCycle(name string, start time.Time, err error) {
	e.metrics.CycleDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.CycleErrors.WithLabelValues(name).Inc()
	}
}

// latestPrice returns the freshest known price for an instrument: the
// feed quote when a client is wired, the stored close otherwise.
func (e *Engine) latestPrice(ctx context.Context, instrument string) (float64, error) {
	if e.feed != nil {
		quote, err := e.feed.Quote(ctx, instrument)
		if err == nil && quote.Price > 0 {
			return quote.Price, nil
		}
		log.Debug().Err(err).Str("instrument", instrument).Msg("Quote unavailable, falling back to stored close")
	}

	px, _, err := e.repos.Bars.LatestClose(ctx, instrument)
	if err != nil {
		return 0, fmt.Errorf("no price for %s: %w", instrument, err)
	}
	return px, nil
}

// benchmarkChangePct reads the benchmark's latest day change, zero
// when no reading exists.
func (e *Engine) benchmarkChangePct(ctx context.Context) float64 {
	readings, err := e.repos.Macro.LatestPerSymbol(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Macro readings unavailable, treating benchmark as flat")
		return 0
	}
	if reading, ok := readings[e.cfg.App.Benchmark]; ok {
		return reading.ChangePct
	}
	return 0
}

// portfolioSnapshot assembles the validation state from storage.
func (e *Engine) portfolioSnapshot(ctx context.Context) (gates.PortfolioState, error) {
	cash, err := e.repos.Portfolio.Cash(ctx)
	if err != nil {
		return gates.PortfolioState{}, fmt.Errorf("load cash: %w", err)
	}
	positions, err := e.repos.Portfolio.OpenPositions(ctx)
	if err != nil {
		return gates.PortfolioState{}, fmt.Errorf("load positions: %w", err)
	}

	total := cash
	sectors := make(map[string]int)
	for _, pos := range positions {
		price, err := e.latestPrice(ctx, pos.Instrument)
		if err != nil {
			price = pos.AvgPrice
		}
		total += pos.Shares * price

		company, err := e.repos.Companies.Get(ctx, pos.Instrument)
		if err == nil && company != nil {
			sectors[company.Sector]++
		}
	}

	e.metrics.OpenPositions.Set(float64(len(positions)))
	e.metrics.CashBalance.Set(cash)
	e.metrics.PortfolioValue.Set(total)

	return gates.PortfolioState{
		Cash:               cash,
		TotalValue:         total,
		Positions:          positions,
		SectorCounts:       sectors,
		BenchmarkChangePct: e.benchmarkChangePct(ctx),
	}, nil
}
