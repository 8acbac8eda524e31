package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omxlab/equityrun/internal/domain/market"
)

var day0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func TestApplyBuy_OpensPosition(t *testing.T) {
	l := New(100_000)
	trade, err := l.ApplyBuy(BuyOrder{Instrument: "VOLV-B.ST", Shares: 40, Price: 250, ExecutedAt: day0})
	require.NoError(t, err)
	assert.Equal(t, market.ActionBuy, trade.Action)
	assert.NotEmpty(t, trade.ID)
	assert.InDelta(t, 10_000, trade.TotalValue, 1e-9)

	assert.InDelta(t, 90_000, l.Cash(), 1e-9)
	pos, ok := l.Position("VOLV-B.ST")
	require.True(t, ok)
	assert.InDelta(t, 40, pos.Shares, 1e-9)
	assert.InDelta(t, 250, pos.AvgPrice, 1e-9)
	assert.InDelta(t, market.DefaultStopFloorPct, pos.StopFloorPct, 1e-9)
}

func TestApplyBuy_MergeUsesWeightedAverage(t *testing.T) {
	l := New(100_000)
	_, err := l.ApplyBuy(BuyOrder{Instrument: "SAND.ST", Shares: 100, Price: 200, ExecutedAt: day0})
	require.NoError(t, err)
	_, err = l.ApplyBuy(BuyOrder{Instrument: "SAND.ST", Shares: 50, Price: 230, ExecutedAt: day0.AddDate(0, 0, 2)})
	require.NoError(t, err)

	pos, ok := l.Position("SAND.ST")
	require.True(t, ok)
	assert.InDelta(t, 150, pos.Shares, 1e-9)
	assert.InDelta(t, 210, pos.AvgPrice, 1e-9) // (100*200 + 50*230) / 150
	assert.Equal(t, day0, pos.OpenedAt)        // merge keeps the original open date
}

func TestApplyBuy_InsufficientCash(t *testing.T) {
	l := New(1_000)
	_, err := l.ApplyBuy(BuyOrder{Instrument: "ATCO-A.ST", Shares: 100, Price: 50, ExecutedAt: day0})
	require.ErrorIs(t, err, ErrInsufficientCash)
	assert.InDelta(t, 1_000, l.Cash(), 1e-9)
	assert.Empty(t, l.Trades())
}

func TestApplySell_RealizesPnL(t *testing.T) {
	l := New(100_000)
	_, err := l.ApplyBuy(BuyOrder{Instrument: "ERIC-B.ST", Shares: 200, Price: 60, ExecutedAt: day0})
	require.NoError(t, err)

	trade, err := l.ApplySell(SellOrder{Instrument: "ERIC-B.ST", Shares: 200, Price: 66, ExecutedAt: day0.AddDate(0, 0, 5)})
	require.NoError(t, err)
	require.NotNil(t, trade.PnL)
	assert.InDelta(t, 1_200, *trade.PnL, 1e-9) // (66-60)*200
	require.NotNil(t, trade.ClosedAt)

	_, open := l.Position("ERIC-B.ST")
	assert.False(t, open)
	assert.InDelta(t, 101_200, l.Cash(), 1e-9)
}

func TestApplySell_PartialKeepsAveragePrice(t *testing.T) {
	l := New(100_000)
	_, err := l.ApplyBuy(BuyOrder{Instrument: "HM-B.ST", Shares: 100, Price: 150, ExecutedAt: day0})
	require.NoError(t, err)
	_, err = l.ApplySell(SellOrder{Instrument: "HM-B.ST", Shares: 40, Price: 160, ExecutedAt: day0.AddDate(0, 0, 1)})
	require.NoError(t, err)

	pos, ok := l.Position("HM-B.ST")
	require.True(t, ok)
	assert.InDelta(t, 60, pos.Shares, 1e-9)
	assert.InDelta(t, 150, pos.AvgPrice, 1e-9)
}

func TestApplySell_NoPosition(t *testing.T) {
	l := New(100_000)
	_, err := l.ApplySell(SellOrder{Instrument: "GHOST.ST", Shares: 10, Price: 100, ExecutedAt: day0})
	require.ErrorIs(t, err, ErrNoPosition)
}

func TestApplySell_OversellIsNeverClamped(t *testing.T) {
	l := New(100_000)
	_, err := l.ApplyBuy(BuyOrder{Instrument: "SKF-B.ST", Shares: 30, Price: 180, ExecutedAt: day0})
	require.NoError(t, err)

	_, err = l.ApplySell(SellOrder{Instrument: "SKF-B.ST", Shares: 31, Price: 180, ExecutedAt: day0})
	require.ErrorIs(t, err, ErrOversell)

	// Position untouched by the failed sell.
	pos, ok := l.Position("SKF-B.ST")
	require.True(t, ok)
	assert.InDelta(t, 30, pos.Shares, 1e-9)
}

func TestRaiseStopFloor_OnlyRatchetsUp(t *testing.T) {
	l := New(100_000)
	_, err := l.ApplyBuy(BuyOrder{Instrument: "ABB.ST", Shares: 10, Price: 500, ExecutedAt: day0})
	require.NoError(t, err)

	require.NoError(t, l.RaiseStopFloor("ABB.ST", 2.0))
	pos, _ := l.Position("ABB.ST")
	assert.InDelta(t, 2.0, pos.StopFloorPct, 1e-9)

	// Lowering is ignored.
	require.NoError(t, l.RaiseStopFloor("ABB.ST", -5.0))
	pos, _ = l.Position("ABB.ST")
	assert.InDelta(t, 2.0, pos.StopFloorPct, 1e-9)

	require.ErrorIs(t, l.RaiseStopFloor("GHOST.ST", 2.0), ErrNoPosition)
}

func TestTotalValue_MarksAtQuotes(t *testing.T) {
	l := New(100_000)
	_, err := l.ApplyBuy(BuyOrder{Instrument: "VOLV-B.ST", Shares: 40, Price: 250, ExecutedAt: day0})
	require.NoError(t, err)

	total := l.TotalValue(map[string]float64{"VOLV-B.ST": 260})
	assert.InDelta(t, 90_000+40*260, total, 1e-9)

	// Missing quote falls back to entry price.
	total = l.TotalValue(nil)
	assert.InDelta(t, 100_000, total, 1e-9)
}

func TestReplay_RoundTrip(t *testing.T) {
	l := New(100_000)
	_, err := l.ApplyBuy(BuyOrder{Instrument: "VOLV-B.ST", Shares: 40, Price: 250, ExecutedAt: day0})
	require.NoError(t, err)
	_, err = l.ApplyBuy(BuyOrder{Instrument: "SAND.ST", Shares: 100, Price: 200, ExecutedAt: day0.AddDate(0, 0, 1)})
	require.NoError(t, err)
	_, err = l.ApplyBuy(BuyOrder{Instrument: "SAND.ST", Shares: 50, Price: 230, ExecutedAt: day0.AddDate(0, 0, 2)})
	require.NoError(t, err)
	_, err = l.ApplySell(SellOrder{Instrument: "VOLV-B.ST", Shares: 40, Price: 262, ExecutedAt: day0.AddDate(0, 0, 7)})
	require.NoError(t, err)

	replayed, err := Replay(100_000, l.Trades())
	require.NoError(t, err)

	assert.InDelta(t, l.Cash(), replayed.Cash(), 1e-9)
	assert.ElementsMatch(t, l.Positions(), replayed.Positions())
}

func TestReplay_InconsistentLogFails(t *testing.T) {
	trades := []market.Trade{
		{ID: "t1", Instrument: "X", Action: market.ActionSell, Shares: 10, Price: 100, ExecutedAt: day0},
	}
	_, err := Replay(50_000, trades)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoPosition)
}
