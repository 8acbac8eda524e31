package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omxlab/equityrun/internal/domain/market"
)

func TestParseActions_CleanArray(t *testing.T) {
	raw := `[{"action":"BUY","ticker":"VOLV-B.ST","confidence":72,"reason":"truck cycle turning","position_size_pct":15}]`
	actions, err := ParseActions(raw)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, market.ActionBuy, actions[0].Type)
	assert.Equal(t, "VOLV-B.ST", actions[0].Instrument)
	assert.InDelta(t, 72, actions[0].Confidence, 1e-9)
	assert.InDelta(t, 15, actions[0].SizePct, 1e-9)
}

func TestParseActions_EnvelopeShape(t *testing.T) {
	raw := `{"actions":[{"action":"SELL","ticker":"HM-B.ST","confidence":60,"reason":"margin pressure"}]}`
	actions, err := ParseActions(raw)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, market.ActionSell, actions[0].Type)
}

func TestParseActions_RepairsSloppyJSON(t *testing.T) {
	// trailing comma and single quotes, the usual advisor artifacts
	raw := `[{'action': 'HOLD', 'ticker': 'SAND.ST', 'confidence': 55, 'reason': 'wait for capex data',},]`
	actions, err := ParseActions(raw)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, market.ActionHold, actions[0].Type)
}

func TestParseActions_UnwrapsMarkdownFences(t *testing.T) {
	raw := "```json\n[{\"action\":\"BUY\",\"ticker\":\"ABB.ST\",\"confidence\":80,\"reason\":\"grid capex\",\"position_size_pct\":10}]\n```"
	actions, err := ParseActions(raw)
	require.NoError(t, err)
	require.Len(t, actions, 1)
}

func TestParseActions_DropsInvalidKeepsRest(t *testing.T) {
	raw := `[
		{"action":"BUY","ticker":"VOLV-B.ST","confidence":72,"reason":"ok","position_size_pct":15},
		{"action":"SHORT","ticker":"HM-B.ST","confidence":60,"reason":"not a thing"},
		{"action":"BUY","ticker":"","confidence":60,"reason":"no instrument","position_size_pct":10},
		{"action":"BUY","ticker":"SKF-B.ST","confidence":120,"reason":"overconfident","position_size_pct":10},
		{"action":"BUY","ticker":"ERIC-B.ST","confidence":65,"reason":"missing size"}
	]`
	actions, err := ParseActions(raw)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "VOLV-B.ST", actions[0].Instrument)
}

func TestParseActions_GarbageIsAnError(t *testing.T) {
	_, err := ParseActions(`the market feels bullish today`)
	assert.Error(t, err)
}

func TestValidate_SellNeedsNoSize(t *testing.T) {
	err := Validate(market.Action{Type: market.ActionSell, Instrument: "VOLV-B.ST", Confidence: 70})
	assert.NoError(t, err)
}
