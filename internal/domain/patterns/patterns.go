// Package patterns detects chart formations on a trailing price
// window. Detection is an ordered rule table: each pattern family has
// a fixed priority and a predicate, rules are evaluated top-down, and
// only the single highest-priority match is reported per day.
package patterns

import (
	"fmt"
	"math"

	"github.com/omxlab/equityrun/internal/domain/indicators"
	"github.com/omxlab/equityrun/internal/domain/market"
)

// Pattern family names. Bullish and bearish variants of the same
// family share a priority.
const (
	GoldenCross         = "golden_cross"
	DeathCross          = "death_cross"
	Breakout            = "breakout"
	Breakdown           = "breakdown"
	RSIDivergence       = "rsi_divergence"
	VolumeSpike         = "volume_spike"
	SupportBounce       = "support_bounce"
	ResistanceRejection = "resistance_rejection"
)

const (
	divergenceLookback = 10
	breakoutWindow     = 20
	bounceWindow       = 30

	breakoutVolumeMin = 1.3
	spikeVolumeMin    = 2.0
	spikeMovePct      = 1.0
	bounceProximity   = 0.02
)

// Detection is a tagged match result. A nil *Detection from Detect
// means "no pattern", which is distinct from a detected pattern with a
// neutral signal.
type Detection struct {
	Name     string
	Signal   market.Signal
	Priority int
	Detail   string
}

// Inputs carries the price window and precomputed indicator state the
// rules evaluate against. RSIPrior is the oscillator value roughly ten
// bars back, computed on the window excluding the trailing lookback.
type Inputs struct {
	Bars        []market.PriceBar
	RSI         indicators.RSIResult
	RSIPrior    indicators.RSIResult
	SMA20       indicators.SMAResult
	SMA50       indicators.SMAResult
	SMA20Prev   indicators.SMAResult
	SMA50Prev   indicators.SMAResult
	VolumeRatio float64
}

type rule struct {
	priority int
	name     string
	detect   func(Inputs) *Detection
}

// ruleTable is ordered by descending priority; ties within a row are
// impossible since each family owns one priority.
var ruleTable = []rule{
	{priority: 10, name: "ma_cross", detect: detectCross},
	{priority: 9, name: "breakout", detect: detectBreakout},
	{priority: 8, name: "rsi_divergence", detect: detectDivergence},
	{priority: 7, name: "volume_spike", detect: detectVolumeSpike},
	{priority: 6, name: "sr_bounce", detect: detectBounce},
}

// Detect evaluates the rule table top-down and returns the first
// match, or nil when no family matches. A nil result is not an error.
func Detect(in Inputs) *Detection {
	if len(in.Bars) == 0 {
		return nil
	}
	for _, r := range ruleTable {
		if d := r.detect(in); d != nil {
			d.Priority = r.priority
			return d
		}
	}
	return nil
}

// Label returns a human-readable description for a pattern name, used
// in thesis text.
func Label(name string, signal market.Signal) string {
	labels := map[string]string{
		GoldenCross:         "golden cross (SMA20 over SMA50)",
		DeathCross:          "death cross (SMA20 under SMA50)",
		Breakout:            "20-day breakout on volume",
		Breakdown:           "20-day breakdown on volume",
		RSIDivergence:       "RSI divergence",
		VolumeSpike:         "volume spike",
		SupportBounce:       "bounce off support",
		ResistanceRejection: "rejection at resistance",
	}
	if l, ok := labels[name]; ok {
		if name == RSIDivergence {
			return fmt.Sprintf("%s %s", signal, l)
		}
		return l
	}
	return name
}

// detectCross flags a strict sign change of SMA20-SMA50 between
// yesterday's and today's windows.
func detectCross(in Inputs) *Detection {
	if !in.SMA20.IsValid || !in.SMA50.IsValid || !in.SMA20Prev.IsValid || !in.SMA50Prev.IsValid {
		return nil
	}
	prevDiff := in.SMA20Prev.Value - in.SMA50Prev.Value
	curDiff := in.SMA20.Value - in.SMA50.Value

	switch {
	case prevDiff < 0 && curDiff > 0:
		return &Detection{
			Name:   GoldenCross,
			Signal: market.SignalBullish,
			Detail: fmt.Sprintf("SMA20 %.2f crossed above SMA50 %.2f", in.SMA20.Value, in.SMA50.Value),
		}
	case prevDiff > 0 && curDiff < 0:
		return &Detection{
			Name:   DeathCross,
			Signal: market.SignalBearish,
			Detail: fmt.Sprintf("SMA20 %.2f crossed below SMA50 %.2f", in.SMA20.Value, in.SMA50.Value),
		}
	}
	return nil
}

// detectBreakout flags a close beyond the prior 20-bar extreme
// (excluding today) confirmed by elevated volume.
func detectBreakout(in Inputs) *Detection {
	if len(in.Bars) < breakoutWindow+1 || in.VolumeRatio <= breakoutVolumeMin {
		return nil
	}
	window := in.Bars[len(in.Bars)-breakoutWindow-1 : len(in.Bars)-1]
	latest := in.Bars[len(in.Bars)-1]

	high := math.Inf(-1)
	low := math.Inf(1)
	for _, b := range window {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}

	switch {
	case latest.Close > high:
		return &Detection{
			Name:   Breakout,
			Signal: market.SignalBullish,
			Detail: fmt.Sprintf("close %.2f above 20-bar high %.2f, volume ratio %.2f", latest.Close, high, in.VolumeRatio),
		}
	case latest.Close < low:
		return &Detection{
			Name:   Breakdown,
			Signal: market.SignalBearish,
			Detail: fmt.Sprintf("close %.2f below 20-bar low %.2f, volume ratio %.2f", latest.Close, low, in.VolumeRatio),
		}
	}
	return nil
}

// detectDivergence compares the oscillator now against ~10 bars prior
// while price prints a fresh extreme over matching windows: a lower
// price low with a higher oscillator low is bullish (RSI<45), the
// mirror with highs is bearish (RSI>55).
func detectDivergence(in Inputs) *Detection {
	if len(in.Bars) < 2*divergenceLookback || !in.RSI.IsValid || !in.RSIPrior.IsValid {
		return nil
	}
	recent := in.Bars[len(in.Bars)-divergenceLookback:]
	prior := in.Bars[len(in.Bars)-2*divergenceLookback : len(in.Bars)-divergenceLookback]

	recentLow, priorLow := math.Inf(1), math.Inf(1)
	recentHigh, priorHigh := math.Inf(-1), math.Inf(-1)
	for _, b := range recent {
		recentLow = math.Min(recentLow, b.Low)
		recentHigh = math.Max(recentHigh, b.High)
	}
	for _, b := range prior {
		priorLow = math.Min(priorLow, b.Low)
		priorHigh = math.Max(priorHigh, b.High)
	}

	switch {
	case recentLow < priorLow && in.RSI.Value > in.RSIPrior.Value && in.RSI.Value < 45:
		return &Detection{
			Name:   RSIDivergence,
			Signal: market.SignalBullish,
			Detail: fmt.Sprintf("price lower low %.2f<%.2f while RSI rose %.0f->%.0f", recentLow, priorLow, in.RSIPrior.Value, in.RSI.Value),
		}
	case recentHigh > priorHigh && in.RSI.Value < in.RSIPrior.Value && in.RSI.Value > 55:
		return &Detection{
			Name:   RSIDivergence,
			Signal: market.SignalBearish,
			Detail: fmt.Sprintf("price higher high %.2f>%.2f while RSI fell %.0f->%.0f", recentHigh, priorHigh, in.RSIPrior.Value, in.RSI.Value),
		}
	}
	return nil
}

// detectVolumeSpike flags a volume ratio over 2.0 combined with a >1%
// same-day move in the matching direction.
func detectVolumeSpike(in Inputs) *Detection {
	if in.VolumeRatio <= spikeVolumeMin {
		return nil
	}
	latest := in.Bars[len(in.Bars)-1]
	change := latest.ChangePct()

	switch {
	case change > spikeMovePct:
		return &Detection{
			Name:   VolumeSpike,
			Signal: market.SignalBullish,
			Detail: fmt.Sprintf("volume ratio %.2f with +%.1f%% day", in.VolumeRatio, change),
		}
	case change < -spikeMovePct:
		return &Detection{
			Name:   VolumeSpike,
			Signal: market.SignalBearish,
			Detail: fmt.Sprintf("volume ratio %.2f with %.1f%% day", in.VolumeRatio, change),
		}
	}
	return nil
}

// detectBounce checks proximity to percentile support/resistance over
// the trailing 30 bars: within 2% of support with an up-tick is a
// bullish bounce, within 2% of resistance with a down-tick a bearish
// rejection.
func detectBounce(in Inputs) *Detection {
	if len(in.Bars) < bounceWindow+1 {
		return nil
	}
	window := in.Bars[len(in.Bars)-bounceWindow:]
	lows := make([]float64, len(window))
	highs := make([]float64, len(window))
	for i, b := range window {
		lows[i] = b.Low
		highs[i] = b.High
	}
	support := indicators.Percentile(lows, 10)
	resistance := indicators.Percentile(highs, 90)

	latest := in.Bars[len(in.Bars)-1]
	prev := in.Bars[len(in.Bars)-2]

	if support > 0 && math.Abs(latest.Close-support)/support <= bounceProximity && latest.Close > prev.Close {
		return &Detection{
			Name:   SupportBounce,
			Signal: market.SignalBullish,
			Detail: fmt.Sprintf("close %.2f near support %.2f, ticking up", latest.Close, support),
		}
	}
	if resistance > 0 && math.Abs(latest.Close-resistance)/resistance <= bounceProximity && latest.Close < prev.Close {
		return &Detection{
			Name:   ResistanceRejection,
			Signal: market.SignalBearish,
			Detail: fmt.Sprintf("close %.2f near resistance %.2f, ticking down", latest.Close, resistance),
		}
	}
	return nil
}
