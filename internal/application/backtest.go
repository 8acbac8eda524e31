package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/omxlab/equityrun/internal/backtest"
	"github.com/omxlab/equityrun/internal/domain/market"
	"github.com/omxlab/equityrun/internal/persistence"
)

// RunBacktest replays one cataloged strategy over the window, appends
// the aggregate row to the results log and returns it with the
// individual trade outcomes.
func (e *Engine) RunBacktest(ctx context.Context, strategy string, start, end time.Time) (market.BacktestResult, []backtest.TradeOutcome, error) {
	cycleStart := e.now()
	var err error
	defer func() { e.observeCycle("backtest.run", cycleStart, err) }()

	catalog := backtest.Merge(e.cfg.Strategies)
	def, ok := backtest.Lookup(catalog, strategy)
	if !ok {
		known := lo.Map(catalog, func(d market.StrategyDefinition, _ int) string {
			return d.Name
		})
		err = fmt.Errorf("unknown strategy %q, have %v", strategy, known)
		return market.BacktestResult{}, nil, err
	}

	sim := backtest.NewSimulator(&repoSeries{ctx: ctx, repos: e.repos})
	result, outcomes, err := sim.Run(def, start, end)
	if err != nil {
		return result, outcomes, err
	}

	if appendErr := e.repos.Backtests.Append(ctx, result); appendErr != nil {
		err = fmt.Errorf("persist backtest result: %w", appendErr)
		return result, outcomes, err
	}

	log.Info().
		Str("strategy", strategy).
		Int("trades", result.TradesCount).
		Float64("win_rate", result.WinRate).
		Float64("avg_trade_pct", result.AvgTradePct).
		Msg("Backtest complete")
	return result, outcomes, nil
}

// RunBacktestCatalog replays every cataloged strategy over the
// trailing year. Individual strategy failures are collected, not
// fatal, so one thin series never blocks the rest of the sweep.
func (e *Engine) RunBacktestCatalog(ctx context.Context) ([]market.BacktestResult, error) {
	end := e.now()
	start := end.AddDate(-1, 0, 0)

	var results []market.BacktestResult
	var errs []error
	for _, def := range backtest.Merge(e.cfg.Strategies) {
		result, _, err := e.RunBacktest(ctx, def.Name, start, end)
		if err != nil {
			log.Warn().Err(err).Str("strategy", def.Name).Msg("Catalog backtest failed")
			errs = append(errs, fmt.Errorf("%s: %w", def.Name, err))
			continue
		}
		results = append(results, result)
	}
	if len(results) == 0 && len(errs) > 0 {
		return nil, errs[0]
	}
	return results, nil
}

// repoSeries adapts the repository set to the simulator's series
// interface, pinning the request context.
type repoSeries struct {
	ctx   context.Context
	repos *persistence.Repository
}

func (r *repoSeries) InstrumentsTracked() ([]string, error) {
	companies, err := r.repos.Companies.ListTracked(r.ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(companies, func(c market.Company, _ int) string {
		return c.Instrument
	}), nil
}

func (r *repoSeries) BarsBetween(instrument string, start, end time.Time) ([]market.PriceBar, error) {
	return r.repos.Bars.ListBetween(r.ctx, instrument, persistence.TimeRange{From: start, To: end})
}

func (r *repoSeries) SnapshotsBetween(instrument string, start, end time.Time) ([]market.TechnicalSnapshot, error) {
	return r.repos.Snapshots.ListBetween(r.ctx, instrument, persistence.TimeRange{From: start, To: end})
}
