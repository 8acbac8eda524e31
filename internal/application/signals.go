package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/omxlab/equityrun/internal/signal"
)

// SignalSummary reports one signal computation cycle.
type SignalSummary struct {
	Computed int      `json:"computed"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// RunSignalPass recomputes the technical snapshot for every tracked
// instrument from its stored history. Instruments with too little
// history are skipped, not failed.
func (e *Engine) RunSignalPass(ctx context.Context) (SignalSummary, error) {
	start := e.now()
	summary := SignalSummary{}
	var err error
	defer func() { e.observeCycle("signal.refresh", start, err) }()

	companies, err := e.repos.Companies.ListTracked(ctx)
	if err != nil {
		err = fmt.Errorf("list tracked companies: %w", err)
		return summary, err
	}

	for _, company := range companies {
		bars, lookErr := e.repos.Bars.Lookback(ctx, company.Instrument, e.cfg.App.LookbackBars)
		if lookErr != nil {
			summary.Errors = append(summary.Errors, lookErr.Error())
			continue
		}

		snap, compErr := signal.Compute(bars)
		if compErr != nil {
			if errors.Is(compErr, signal.ErrInsufficientData) {
				e.metrics.SnapshotsSkipped.WithLabelValues("insufficient_history").Inc()
				summary.Skipped++
				log.Debug().Str("instrument", company.Instrument).Int("bars", len(bars)).Msg("Skipping snapshot")
				continue
			}
			summary.Errors = append(summary.Errors, compErr.Error())
			continue
		}

		if upErr := e.repos.Snapshots.Upsert(ctx, snap); upErr != nil {
			summary.Errors = append(summary.Errors, upErr.Error())
			continue
		}
		e.metrics.SnapshotsComputed.Inc()
		summary.Computed++
	}

	log.Info().
		Int("computed", summary.Computed).
		Int("skipped", summary.Skipped).
		Int("errors", len(summary.Errors)).
		Msg("Signal pass complete")
	return summary, nil
}
