package application

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/omxlab/equityrun/internal/domain/market"
	"github.com/omxlab/equityrun/internal/scoring"
)

// RunScoringPass scores every tracked instrument against the latest
// macro readings and snapshots, persists the ranked top-N prospects
// projection and returns it. Instruments missing a price are skipped
// with a log line.
func (e *Engine) RunScoringPass(ctx context.Context) ([]market.Opportunity, error) {
	start := e.now()
	var err error
	defer func() { e.observeCycle("scan.score", start, err) }()

	companies, err := e.repos.Companies.ListTracked(ctx)
	if err != nil {
		err = fmt.Errorf("list tracked companies: %w", err)
		return nil, err
	}
	readings, err := e.repos.Macro.LatestPerSymbol(ctx)
	if err != nil {
		err = fmt.Errorf("load macro readings: %w", err)
		return nil, err
	}

	var emitted []market.Opportunity
	for _, company := range companies {
		input, ok := e.scoringInput(ctx, company, readings)
		if !ok {
			continue
		}
		opp, above := e.scorer.Score(input)
		if above {
			emitted = append(emitted, opp)
		}
	}

	ranked := scoring.Rank(emitted)
	if len(ranked) > e.cfg.App.ProspectsTop {
		ranked = ranked[:e.cfg.App.ProspectsTop]
	}

	if repErr := e.repos.Prospects.Replace(ctx, e.now(), ranked); repErr != nil {
		err = fmt.Errorf("persist prospects: %w", repErr)
		return ranked, err
	}

	e.metrics.OpportunitiesEmitted.Set(float64(len(ranked)))
	if len(ranked) > 0 {
		e.metrics.TopConfidence.Set(ranked[0].Confidence)
	} else {
		e.metrics.TopConfidence.Set(0)
	}

	log.Info().
		Int("universe", len(companies)).
		Int("emitted", len(ranked)).
		Msg("Scoring pass complete")
	return ranked, nil
}

func (e *Engine) scoringInput(ctx context.Context, company market.Company, readings map[string]market.MacroReading) (scoring.Input, bool) {
	bars, err := e.repos.Bars.Lookback(ctx, company.Instrument, 2)
	if err != nil || len(bars) == 0 {
		log.Debug().Err(err).Str("instrument", company.Instrument).Msg("No price history, skipping score")
		return scoring.Input{}, false
	}

	latest := bars[len(bars)-1]
	dayChange := latest.ChangePct()
	if len(bars) == 2 && bars[0].Close > 0 {
		dayChange = ((latest.Close / bars[0].Close) - 1.0) * 100
	}

	deps, err := e.repos.Companies.Dependencies(ctx, company.Instrument)
	if err != nil {
		log.Warn().Err(err).Str("instrument", company.Instrument).Msg("Dependencies unavailable")
	}

	snap, err := e.repos.Snapshots.Latest(ctx, company.Instrument)
	if err != nil {
		log.Warn().Err(err).Str("instrument", company.Instrument).Msg("Snapshot unavailable")
	}

	return scoring.Input{
		Instrument:   company.Instrument,
		Name:         company.Name,
		Sector:       company.Sector,
		Dependencies: deps,
		Macro:        readings,
		Technical:    snap,
		DayChangePct: dayChange,
		CurrentPrice: latest.Close,
	}, true
}
