package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// UpdateSummary reports one data refresh cycle.
type UpdateSummary struct {
	Instruments  int      `json:"instruments"`
	BarsUpserted int      `json:"bars_upserted"`
	MacroUpdated int      `json:"macro_updated"`
	Errors       []string `json:"errors,omitempty"`
}

const initialHistoryDays = 365

// RunDataUpdate pulls fresh daily bars for every tracked instrument
// and the latest reading for every configured macro symbol. Instruments
// with no stored history backfill one year. Per-instrument failures are
// collected, not fatal; the cycle fails only when nothing works at all.
func (e *Engine) RunDataUpdate(ctx context.Context) (UpdateSummary, error) {
	start := e.now()
	summary := UpdateSummary{}
	var err error
	defer func() { e.observeCycle("data.update", start, err) }()

	if e.feed == nil {
		err = fmt.Errorf("data update requires a feed client")
		return summary, err
	}

	companies, err := e.repos.Companies.ListTracked(ctx)
	if err != nil {
		err = fmt.Errorf("list tracked companies: %w", err)
		return summary, err
	}
	summary.Instruments = len(companies)
	today := e.now()

	for _, company := range companies {
		from := today.AddDate(0, 0, -initialHistoryDays)
		if _, lastDate, lcErr := e.repos.Bars.LatestClose(ctx, company.Instrument); lcErr == nil {
			from = lastDate.AddDate(0, 0, 1)
		}
		if from.After(today) {
			continue // already current
		}

		bars, fetchErr := e.feed.DailyBars(ctx, company.Instrument, from, today)
		if fetchErr != nil {
			e.metrics.FeedRequests.WithLabelValues("error").Inc()
			summary.Errors = append(summary.Errors, fetchErr.Error())
			log.Warn().Err(fetchErr).Str("instrument", company.Instrument).Msg("Bar fetch failed")
			continue
		}
		e.metrics.FeedRequests.WithLabelValues("ok").Inc()
		if len(bars) == 0 {
			continue
		}

		if upErr := e.repos.Bars.UpsertBatch(ctx, bars); upErr != nil {
			summary.Errors = append(summary.Errors, upErr.Error())
			continue
		}
		summary.BarsUpserted += len(bars)
	}

	for _, symbol := range e.cfg.MacroSymbols {
		reading, fetchErr := e.feed.Macro(ctx, symbol)
		if fetchErr != nil {
			e.metrics.FeedRequests.WithLabelValues("error").Inc()
			summary.Errors = append(summary.Errors, fetchErr.Error())
			continue
		}
		e.metrics.FeedRequests.WithLabelValues("ok").Inc()
		if upErr := e.repos.Macro.Upsert(ctx, reading); upErr != nil {
			summary.Errors = append(summary.Errors, upErr.Error())
			continue
		}
		summary.MacroUpdated++
	}

	if summary.BarsUpserted == 0 && summary.MacroUpdated == 0 && len(summary.Errors) > 0 {
		err = fmt.Errorf("data update produced nothing: %d errors, first: %s", len(summary.Errors), summary.Errors[0])
		return summary, err
	}

	log.Info().
		Int("instruments", summary.Instruments).
		Int("bars", summary.BarsUpserted).
		Int("macro", summary.MacroUpdated).
		Int("errors", len(summary.Errors)).
		Dur("elapsed", time.Since(start)).
		Msg("Data update complete")
	return summary, nil
}
