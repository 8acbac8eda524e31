// Package backtest replays named strategy definitions over historical
// snapshot and price series and aggregates per-trade returns into one
// result row per run. Results are append-only so successive runs of
// the same strategy stay comparable.
package backtest

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/omxlab/equityrun/internal/domain/market"
)

// SeriesProvider supplies the historical data a run consumes. Bars
// and snapshots come back ordered by date within the window.
type SeriesProvider interface {
	InstrumentsTracked() ([]string, error)
	BarsBetween(instrument string, start, end time.Time) ([]market.PriceBar, error)
	SnapshotsBetween(instrument string, start, end time.Time) ([]market.TechnicalSnapshot, error)
}

// TradeOutcome is one simulated entry/exit pair.
type TradeOutcome struct {
	Instrument string    `json:"instrument"`
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
	ExitDate   time.Time `json:"exit_date"`
	ExitPrice  float64   `json:"exit_price"`
	ReturnPct  float64   `json:"return_pct"`
}

// Simulator runs strategies against a series provider.
type Simulator struct {
	provider SeriesProvider
}

func NewSimulator(provider SeriesProvider) *Simulator {
	return &Simulator{provider: provider}
}

// Run replays one strategy over [start, end]. Entry is the first close
// on or after the signal date; exit is the first close on or after the
// signal date plus the hold period. Signals whose entry or exit falls
// past the available history are skipped. Zero matched trades is a
// valid all-zero result, not an error.
func (s *Simulator) Run(def market.StrategyDefinition, start, end time.Time) (market.BacktestResult, []TradeOutcome, error) {
	instruments, err := s.provider.InstrumentsTracked()
	if err != nil {
		return market.BacktestResult{}, nil, err
	}

	var outcomes []TradeOutcome
	for _, instrument := range instruments {
		bars, err := s.provider.BarsBetween(instrument, start, end)
		if err != nil {
			log.Warn().Err(err).Str("instrument", instrument).Msg("skipping instrument, bars unavailable")
			continue
		}
		snaps, err := s.provider.SnapshotsBetween(instrument, start, end)
		if err != nil {
			log.Warn().Err(err).Str("instrument", instrument).Msg("skipping instrument, snapshots unavailable")
			continue
		}
		if len(bars) == 0 || len(snaps) == 0 {
			continue
		}
		outcomes = append(outcomes, s.findTrades(instrument, def, bars, snaps)...)
	}

	result := aggregate(def.Name, start, end, outcomes)
	log.Info().
		Str("strategy", def.Name).
		Int("trades", result.TradesCount).
		Float64("total_return_pct", result.TotalReturnPct).
		Float64("win_rate", result.WinRate).
		Msg("backtest complete")
	return result, outcomes, nil
}

func (s *Simulator) findTrades(instrument string, def market.StrategyDefinition, bars []market.PriceBar, snaps []market.TechnicalSnapshot) []TradeOutcome {
	var outcomes []TradeOutcome
	for _, snap := range snaps {
		if !matchesEntry(def.Entry, snap) {
			continue
		}
		entryBar, ok := firstBarOnOrAfter(bars, snap.Date)
		if !ok || entryBar.Close <= 0 {
			continue
		}
		exitBar, ok := firstBarOnOrAfter(bars, snap.Date.AddDate(0, 0, def.HoldDays))
		if !ok || exitBar.Close <= 0 {
			continue
		}
		outcomes = append(outcomes, TradeOutcome{
			Instrument: instrument,
			EntryDate:  entryBar.Date,
			EntryPrice: entryBar.Close,
			ExitDate:   exitBar.Date,
			ExitPrice:  exitBar.Close,
			ReturnPct:  (exitBar.Close/entryBar.Close - 1) * 100,
		})
	}
	return outcomes
}

func matchesEntry(rule market.EntryRule, snap market.TechnicalSnapshot) bool {
	switch rule.Kind {
	case market.EntryPattern:
		return snap.Pattern != nil && *snap.Pattern == rule.Pattern &&
			snap.PatternSignal != nil && *snap.PatternSignal == market.SignalBullish
	case market.EntryRSIBelow:
		return snap.RSI14 != nil && *snap.RSI14 < rule.RSIBelow
	default:
		return false
	}
}

func firstBarOnOrAfter(bars []market.PriceBar, date time.Time) (market.PriceBar, bool) {
	for _, bar := range bars {
		if !bar.Date.Before(date) {
			return bar, true
		}
	}
	return market.PriceBar{}, false
}

// aggregate folds outcomes into the result row. MaxDrawdownPct is the
// worst single-trade return of the run.
func aggregate(strategy string, start, end time.Time, outcomes []TradeOutcome) market.BacktestResult {
	result := market.BacktestResult{
		Strategy:    strategy,
		PeriodStart: start,
		PeriodEnd:   end,
		TradesCount: len(outcomes),
		CreatedAt:   time.Now().UTC(),
	}
	if len(outcomes) == 0 {
		return result
	}

	wins := 0
	worst := outcomes[0].ReturnPct
	for _, o := range outcomes {
		result.TotalReturnPct += o.ReturnPct
		if o.ReturnPct > 0 {
			wins++
		}
		if o.ReturnPct < worst {
			worst = o.ReturnPct
		}
	}
	result.WinRate = float64(wins) / float64(len(outcomes)) * 100
	result.AvgTradePct = result.TotalReturnPct / float64(len(outcomes))
	result.MaxDrawdownPct = worst
	return result
}
