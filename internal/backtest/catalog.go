package backtest

import (
	"github.com/omxlab/equityrun/internal/domain/market"
	"github.com/omxlab/equityrun/internal/domain/patterns"
)

// Catalog returns the built-in strategy definitions. Names are stable
// identifiers used in stored results; Merge layers yaml overrides on
// top of these.
func Catalog() []market.StrategyDefinition {
	return []market.StrategyDefinition{
		{
			Name:          "golden_cross_sma20_sma50",
			Entry:         market.EntryRule{Kind: market.EntryPattern, Pattern: patterns.GoldenCross},
			HoldDays:      10,
			StopLossPct:   -8,
			TakeProfitPct: 12,
		},
		{
			Name:        "rsi_oversold_30",
			Entry:       market.EntryRule{Kind: market.EntryRSIBelow, RSIBelow: 30},
			HoldDays:    5,
			StopLossPct: -5,
		},
		{
			Name:     "momentum_breakout",
			Entry:    market.EntryRule{Kind: market.EntryPattern, Pattern: patterns.Breakout},
			HoldDays: 7,
		},
	}
}

// Merge layers configured strategy definitions over the built-in
// catalog. A definition sharing a built-in name replaces it in place;
// new names append in config order.
func Merge(overrides []market.StrategyDefinition) []market.StrategyDefinition {
	merged := Catalog()
	index := make(map[string]int, len(merged))
	for i, def := range merged {
		index[def.Name] = i
	}
	for _, def := range overrides {
		if i, ok := index[def.Name]; ok {
			merged[i] = def
			continue
		}
		index[def.Name] = len(merged)
		merged = append(merged, def)
	}
	return merged
}

// Lookup finds a strategy by name in the given definition set.
func Lookup(defs []market.StrategyDefinition, name string) (market.StrategyDefinition, bool) {
	for _, def := range defs {
		if def.Name == name {
			return def, true
		}
	}
	return market.StrategyDefinition{}, false
}
