package application

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/omxlab/equityrun/internal/domain/market"
	"github.com/omxlab/equityrun/internal/exits"
)

// PositionCheckSummary reports one position check cycle.
type PositionCheckSummary struct {
	Checked        int            `json:"checked"`
	FloorsRaised   int            `json:"floors_raised"`
	ExitsTriggered int            `json:"exits_triggered"`
	Results        []exits.Result `json:"results"`
	Errors         []string       `json:"errors,omitempty"`
}

// RunPositionCheck evaluates the exit chain over every open position.
// Ratcheted stop floors are persisted immediately; exit signals are
// turned into SELL actions and executed through the same validated
// path as any other action.
func (e *Engine) RunPositionCheck(ctx context.Context) (PositionCheckSummary, error) {
	start := e.now()
	summary := PositionCheckSummary{}
	var err error
	defer func() { e.observeCycle("positions.check", start, err) }()

	positions, err := e.repos.Portfolio.OpenPositions(ctx)
	if err != nil {
		err = fmt.Errorf("load positions: %w", err)
		return summary, err
	}

	var forced []market.Action
	asOf := e.now()
	for _, pos := range positions {
		price, priceErr := e.latestPrice(ctx, pos.Instrument)
		if priceErr != nil {
			summary.Errors = append(summary.Errors, priceErr.Error())
			continue
		}

		result := e.exits.Evaluate(pos, price, asOf)
		summary.Checked++
		summary.Results = append(summary.Results, result)

		if result.RaiseFloorTo != nil {
			if upErr := e.repos.Portfolio.UpdateStopFloor(ctx, pos.Instrument, *result.RaiseFloorTo); upErr != nil {
				summary.Errors = append(summary.Errors, upErr.Error())
			} else {
				summary.FloorsRaised++
				log.Info().Str("instrument", pos.Instrument).
					Float64("floor_pct", *result.RaiseFloorTo).
					Msg("Stop floor ratcheted")
			}
		}

		if result.ShouldExit {
			e.metrics.ExitSignals.WithLabelValues(result.Reason.String()).Inc()
			forced = append(forced, market.Action{
				Type:       market.ActionSell,
				Instrument: pos.Instrument,
				Rationale:  fmt.Sprintf("%s: %s", result.Reason, result.Detail),
			})
		}
	}

	if len(forced) > 0 {
		results, execErr := e.ExecuteActions(ctx, forced)
		if execErr != nil {
			summary.Errors = append(summary.Errors, execErr.Error())
		}
		for _, res := range results {
			if res.Trade != nil {
				summary.ExitsTriggered++
			} else if res.Error != "" {
				summary.Errors = append(summary.Errors, res.Error)
			}
		}
	}

	log.Info().
		Int("checked", summary.Checked).
		Int("floors_raised", summary.FloorsRaised).
		Int("exits", summary.ExitsTriggered).
		Msg("Position check complete")
	return summary, nil
}
