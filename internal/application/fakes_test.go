package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/omxlab/equityrun/internal/domain/market"
	"github.com/omxlab/equityrun/internal/persistence"
)

// fakeStore is the in-memory state behind the per-interface fakes.
type fakeStore struct {
	companies []market.Company
	deps      map[string][]market.Dependency
	bars      map[string][]market.PriceBar
	macro     map[string]market.MacroReading
	snaps     map[string][]market.TechnicalSnapshot
	cash      float64
	positions map[string]market.Position
	trades    []market.Trade
	prospects []market.Opportunity
	backtests []market.BacktestResult
}

func newFakeStore() (*fakeStore, *persistence.Repository) {
	s := &fakeStore{
		deps:      make(map[string][]market.Dependency),
		bars:      make(map[string][]market.PriceBar),
		macro:     make(map[string]market.MacroReading),
		snaps:     make(map[string][]market.TechnicalSnapshot),
		positions: make(map[string]market.Position),
	}
	return s, &persistence.Repository{
		Companies: fakeCompanies{s},
		Bars:      fakeBars{s},
		Macro:     fakeMacro{s},
		Snapshots: fakeSnaps{s},
		Portfolio: fakePortfolio{s},
		Prospects: fakeProspects{s},
		Backtests: fakeBacktests{s},
	}
}

type fakeCompanies struct{ s *fakeStore }

func (f fakeCompanies) ListTracked(context.Context) ([]market.Company, error) {
	return f.s.companies, nil
}

func (f fakeCompanies) Get(_ context.Context, instrument string) (*market.Company, error) {
	for _, c := range f.s.companies {
		if c.Instrument == instrument {
			company := c
			return &company, nil
		}
	}
	return nil, nil
}

func (f fakeCompanies) Dependencies(_ context.Context, instrument string) ([]market.Dependency, error) {
	return f.s.deps[instrument], nil
}

type fakeBars struct{ s *fakeStore }

func (f fakeBars) UpsertBatch(_ context.Context, bars []market.PriceBar) error {
	for _, b := range bars {
		f.s.bars[b.Instrument] = append(f.s.bars[b.Instrument], b)
	}
	return nil
}

func (f fakeBars) Lookback(_ context.Context, instrument string, n int) ([]market.PriceBar, error) {
	bars := f.s.bars[instrument]
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

func (f fakeBars) ListBetween(_ context.Context, instrument string, tr persistence.TimeRange) ([]market.PriceBar, error) {
	var out []market.PriceBar
	for _, b := range f.s.bars[instrument] {
		if !b.Date.Before(tr.From) && !b.Date.After(tr.To) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f fakeBars) LatestClose(_ context.Context, instrument string) (float64, time.Time, error) {
	bars := f.s.bars[instrument]
	if len(bars) == 0 {
		return 0, time.Time{}, fmt.Errorf("no bars for %s", instrument)
	}
	last := bars[len(bars)-1]
	return last.Close, last.Date, nil
}

type fakeMacro struct{ s *fakeStore }

func (f fakeMacro) Upsert(_ context.Context, reading market.MacroReading) error {
	f.s.macro[reading.Symbol] = reading
	return nil
}

func (f fakeMacro) LatestPerSymbol(context.Context) (map[string]market.MacroReading, error) {
	out := make(map[string]market.MacroReading, len(f.s.macro))
	for k, v := range f.s.macro {
		out[k] = v
	}
	return out, nil
}

type fakeSnaps struct{ s *fakeStore }

func (f fakeSnaps) Upsert(_ context.Context, snap market.TechnicalSnapshot) error {
	f.s.snaps[snap.Instrument] = append(f.s.snaps[snap.Instrument], snap)
	return nil
}

func (f fakeSnaps) Latest(_ context.Context, instrument string) (*market.TechnicalSnapshot, error) {
	snaps := f.s.snaps[instrument]
	if len(snaps) == 0 {
		return nil, nil
	}
	snap := snaps[len(snaps)-1]
	return &snap, nil
}

func (f fakeSnaps) ListBetween(_ context.Context, instrument string, tr persistence.TimeRange) ([]market.TechnicalSnapshot, error) {
	var out []market.TechnicalSnapshot
	for _, s := range f.s.snaps[instrument] {
		if !s.Date.Before(tr.From) && !s.Date.After(tr.To) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakePortfolio struct{ s *fakeStore }

func (f fakePortfolio) ApplyTrade(_ context.Context, trade market.Trade, pos market.Position, cash float64) error {
	f.s.trades = append(f.s.trades, trade)
	if pos.Shares <= 0 {
		delete(f.s.positions, pos.Instrument)
	} else {
		f.s.positions[pos.Instrument] = pos
	}
	f.s.cash = cash
	return nil
}

func (f fakePortfolio) UpdateStopFloor(_ context.Context, instrument string, floorPct float64) error {
	pos, ok := f.s.positions[instrument]
	if !ok {
		return fmt.Errorf("no position for %s", instrument)
	}
	pos.StopFloorPct = floorPct
	f.s.positions[instrument] = pos
	return nil
}

func (f fakePortfolio) OpenPositions(context.Context) ([]market.Position, error) {
	out := make([]market.Position, 0, len(f.s.positions))
	for _, pos := range f.s.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out, nil
}

func (f fakePortfolio) Cash(context.Context) (float64, error) { return f.s.cash, nil }

func (f fakePortfolio) Trades(_ context.Context, tr persistence.TimeRange) ([]market.Trade, error) {
	var out []market.Trade
	for _, t := range f.s.trades {
		if !t.ExecutedAt.Before(tr.From) && !t.ExecutedAt.After(tr.To) {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeProspects struct{ s *fakeStore }

func (f fakeProspects) Replace(_ context.Context, _ time.Time, opps []market.Opportunity) error {
	f.s.prospects = opps
	return nil
}

func (f fakeProspects) Latest(_ context.Context, limit int) ([]market.Opportunity, error) {
	if len(f.s.prospects) > limit {
		return f.s.prospects[:limit], nil
	}
	return f.s.prospects, nil
}

type fakeBacktests struct{ s *fakeStore }

func (f fakeBacktests) Append(_ context.Context, result market.BacktestResult) error {
	f.s.backtests = append(f.s.backtests, result)
	return nil
}

func (f fakeBacktests) ListByStrategy(_ context.Context, strategy string, limit int) ([]market.BacktestResult, error) {
	var out []market.BacktestResult
	for _, r := range f.s.backtests {
		if r.Strategy == strategy {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
