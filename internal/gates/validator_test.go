package gates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omxlab/equityrun/internal/domain/market"
)

func ptr[T any](v T) *T { return &v }

func buyAction(ticker string, confidence, sizePct float64) market.Action {
	return market.Action{
		Type:       market.ActionBuy,
		Instrument: ticker,
		Confidence: confidence,
		SizePct:    sizePct,
	}
}

func openState() PortfolioState {
	return PortfolioState{
		Cash:         100_000,
		TotalValue:   100_000,
		SectorCounts: map[string]int{},
	}
}

func TestValidateBuy_ConfidenceBelowThreshold(t *testing.T) {
	v := NewValidator(DefaultRiskConfig())
	verdict := v.ValidateBuy(BuyRequest{Action: buyAction("VOLV-B.ST", 54.9, 10), Price: 250}, openState())
	assert.False(t, verdict.Approved)
	assert.Contains(t, verdict.RejectReason, "confidence")
}

func TestValidateBuy_PortfolioFull(t *testing.T) {
	v := NewValidator(DefaultRiskConfig())
	state := openState()
	for _, tk := range []string{"A", "B", "C", "D", "E"} {
		state.Positions = append(state.Positions, market.Position{Instrument: tk, Shares: 1, AvgPrice: 100})
	}
	verdict := v.ValidateBuy(BuyRequest{Action: buyAction("F", 80, 10), Price: 100}, state)
	assert.False(t, verdict.Approved)
	assert.Contains(t, verdict.RejectReason, "positions")
}

func TestValidateBuy_BenchmarkRiskOff(t *testing.T) {
	v := NewValidator(DefaultRiskConfig())
	state := openState()
	state.BenchmarkChangePct = -2.6
	verdict := v.ValidateBuy(BuyRequest{Action: buyAction("ERIC-B.ST", 80, 10), Price: 60}, state)
	assert.False(t, verdict.Approved)
	assert.Contains(t, verdict.RejectReason, "risk-off")

	// Exactly at the threshold passes.
	state.BenchmarkChangePct = -2.5
	verdict = v.ValidateBuy(BuyRequest{Action: buyAction("ERIC-B.ST", 80, 10), Price: 60}, state)
	assert.True(t, verdict.Approved)
}

func TestValidateBuy_AlreadyHeld(t *testing.T) {
	v := NewValidator(DefaultRiskConfig())
	state := openState()
	state.Positions = []market.Position{{Instrument: "SAND.ST", Shares: 10, AvgPrice: 200}}
	verdict := v.ValidateBuy(BuyRequest{Action: buyAction("SAND.ST", 90, 10), Price: 210}, state)
	assert.False(t, verdict.Approved)
	assert.Contains(t, verdict.RejectReason, "already in portfolio")
}

func TestValidateBuy_SectorCap(t *testing.T) {
	v := NewValidator(DefaultRiskConfig())
	state := openState()
	state.Positions = []market.Position{
		{Instrument: "A", Shares: 1, AvgPrice: 100},
		{Instrument: "B", Shares: 1, AvgPrice: 100},
	}
	state.SectorCounts = map[string]int{"Industrials": 2}
	verdict := v.ValidateBuy(BuyRequest{Action: buyAction("C", 80, 10), Price: 100, Sector: "Industrials"}, state)
	assert.False(t, verdict.Approved)
	assert.Contains(t, verdict.RejectReason, "sector")

	// A different sector is fine.
	verdict = v.ValidateBuy(BuyRequest{Action: buyAction("C", 80, 10), Price: 100, Sector: "Healthcare"}, state)
	assert.True(t, verdict.Approved)
}

func TestValidateBuy_PositionCapShrinks(t *testing.T) {
	v := NewValidator(DefaultRiskConfig())
	verdict := v.ValidateBuy(BuyRequest{Action: buyAction("ABB.ST", 80, 40), Price: 100}, openState())
	require.True(t, verdict.Approved)
	// 40% of 100k requested, capped at 25%.
	assert.InDelta(t, 250, verdict.Shares, 1e-9)
	assert.InDelta(t, 25_000, verdict.Value, 1e-9)
	require.NotEmpty(t, verdict.Warnings)
	assert.Contains(t, verdict.Warnings[0], "position cap")
}

func TestValidateBuy_CashShortfallShrinksToNinetyPct(t *testing.T) {
	v := NewValidator(DefaultRiskConfig())
	state := openState()
	state.Cash = 10_000
	state.TotalValue = 100_000
	verdict := v.ValidateBuy(BuyRequest{Action: buyAction("ATCO-A.ST", 80, 20), Price: 100}, state)
	require.True(t, verdict.Approved)
	// 20k requested, only 10k cash, shrunk to 9k.
	assert.InDelta(t, 90, verdict.Shares, 1e-9)
	assert.InDelta(t, 9_000, verdict.Value, 1e-9)
}

func TestValidateBuy_MinTicket(t *testing.T) {
	v := NewValidator(DefaultRiskConfig())
	state := openState()
	state.Cash = 500
	state.TotalValue = 100_000
	// 90% of 500 = 450, below the 500 floor.
	verdict := v.ValidateBuy(BuyRequest{Action: buyAction("HM-B.ST", 80, 10), Price: 150}, state)
	assert.False(t, verdict.Approved)
	assert.Contains(t, verdict.RejectReason, "minimum")
}

func TestValidateBuy_WarningsDoNotBlock(t *testing.T) {
	v := NewValidator(DefaultRiskConfig())
	snap := &market.TechnicalSnapshot{RSI14: ptr(72.0), SMA20: ptr(110.0)}
	verdict := v.ValidateBuy(BuyRequest{Action: buyAction("SKF-B.ST", 80, 10), Price: 100, Technical: snap}, openState())
	require.True(t, verdict.Approved)
	require.Len(t, verdict.Warnings, 2)
	assert.Contains(t, verdict.Warnings[0], "overbought")
	assert.Contains(t, verdict.Warnings[1], "below SMA20")
}

func TestValidateBuy_NoPrice(t *testing.T) {
	v := NewValidator(DefaultRiskConfig())
	verdict := v.ValidateBuy(BuyRequest{Action: buyAction("X", 80, 10), Price: 0}, openState())
	assert.False(t, verdict.Approved)
}

func TestValidateSell(t *testing.T) {
	v := NewValidator(DefaultRiskConfig())
	state := openState()
	state.Positions = []market.Position{{Instrument: "VOLV-B.ST", Shares: 40, AvgPrice: 250, OpenedAt: time.Now()}}

	verdict := v.ValidateSell(market.Action{Type: market.ActionSell, Instrument: "VOLV-B.ST"}, state)
	require.True(t, verdict.Approved)
	assert.InDelta(t, 40, verdict.Shares, 1e-9)

	verdict = v.ValidateSell(market.Action{Type: market.ActionSell, Instrument: "GHOST.ST"}, state)
	assert.False(t, verdict.Approved)
	assert.Contains(t, verdict.RejectReason, "no open position")
}

func TestValidateSell_FractionalHoldingSellsInFull(t *testing.T) {
	v := NewValidator(DefaultRiskConfig())
	state := openState()
	state.Positions = []market.Position{{Instrument: "INVE-B.ST", Shares: 12.5, AvgPrice: 200, OpenedAt: time.Now()}}

	verdict := v.ValidateSell(market.Action{Type: market.ActionSell, Instrument: "INVE-B.ST"}, state)
	require.True(t, verdict.Approved)
	assert.InDelta(t, 12.5, verdict.Shares, 1e-9)
}

func TestValidateBatch_StateEvolvesAcrossApprovals(t *testing.T) {
	v := NewValidator(DefaultRiskConfig())
	state := openState()
	state.Cash = 30_000
	state.TotalValue = 100_000

	buys := []BuyRequest{
		{Action: buyAction("A", 90, 25), Price: 100, Sector: "Technology"},
		{Action: buyAction("B", 85, 25), Price: 100, Sector: "Technology"},
		{Action: buyAction("C", 80, 25), Price: 100, Sector: "Technology"},
	}
	verdicts := v.ValidateBatch(buys, nil, state)
	require.Len(t, verdicts, 3)

	// First buy takes 25k of the 30k cash.
	require.True(t, verdicts[0].Approved)
	assert.InDelta(t, 25_000, verdicts[0].Value, 1e-9)

	// Second sees 5k cash left, shrinks to 4.5k.
	require.True(t, verdicts[1].Approved)
	assert.InDelta(t, 4_500, verdicts[1].Value, 1e-9)

	// Third hits the sector cap set by the first two.
	assert.False(t, verdicts[2].Approved)
	assert.Contains(t, verdicts[2].RejectReason, "sector")
}

func TestValidateBatch_SellFreesCapacity(t *testing.T) {
	v := NewValidator(DefaultRiskConfig())
	state := openState()
	for _, tk := range []string{"A", "B", "C", "D", "E"} {
		state.Positions = append(state.Positions, market.Position{Instrument: tk, Shares: 1, AvgPrice: 100})
	}
	sells := []market.Action{{Type: market.ActionSell, Instrument: "E"}}
	buys := []BuyRequest{{Action: buyAction("F", 80, 10), Price: 100}}

	verdicts := v.ValidateBatch(buys, sells, state)
	require.Len(t, verdicts, 2)
	assert.True(t, verdicts[0].Approved) // the sell
	assert.True(t, verdicts[1].Approved) // the buy now fits
}
