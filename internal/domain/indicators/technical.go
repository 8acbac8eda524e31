// Package indicators implements the trailing-window technical
// indicators behind each snapshot. Every calculation degrades to an
// invalid/neutral result when history is short instead of returning an
// error; callers skip, rather than zero, invalid terms.
package indicators

import (
	"math"
)

// RSIResult represents the result of RSI calculation
type RSIResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateRSI computes the relative strength index over the trailing
// `period` close-to-close deltas: mean gain over mean loss. A zero
// mean loss saturates the oscillator at 100. Needs period+1 closes.
func CalculateRSI(closes []float64, period int) RSIResult {
	if len(closes) < period+1 {
		return RSIResult{Period: period, IsValid: false, DataCount: len(closes)}
	}

	window := closes[len(closes)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses += -delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return RSIResult{Value: 100.0, Period: period, IsValid: true, DataCount: len(closes)}
	}

	rs := avgGain / avgLoss
	return RSIResult{
		Value:     100.0 - (100.0 / (1.0 + rs)),
		Period:    period,
		IsValid:   true,
		DataCount: len(closes),
	}
}

// SMAResult represents the result of a simple moving average
type SMAResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateSMA computes the simple mean of the trailing `period`
// closes, invalid until enough history exists.
func CalculateSMA(closes []float64, period int) SMAResult {
	if len(closes) < period || period <= 0 {
		return SMAResult{Period: period, IsValid: false, DataCount: len(closes)}
	}
	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return SMAResult{
		Value:     sum / float64(period),
		Period:    period,
		IsValid:   true,
		DataCount: len(closes),
	}
}

// CalculatePrevSMA computes the same average with the window shifted
// back by one bar, used to detect crossovers against the current value.
func CalculatePrevSMA(closes []float64, period int) SMAResult {
	if len(closes) < period+1 {
		return SMAResult{Period: period, IsValid: false, DataCount: len(closes)}
	}
	return CalculateSMA(closes[:len(closes)-1], period)
}

// VolumeRatioPeriod is the trailing window for the volume baseline.
const VolumeRatioPeriod = 20

// CalculateVolumeRatio returns the latest volume over the trailing-20
// mean volume. With insufficient history the ratio defaults to 1.0,
// which is neutral, not a signal.
func CalculateVolumeRatio(volumes []int64) float64 {
	if len(volumes) < VolumeRatioPeriod {
		return 1.0
	}
	window := volumes[len(volumes)-VolumeRatioPeriod:]
	sum := 0.0
	for _, v := range window {
		sum += float64(v)
	}
	mean := sum / float64(len(window))
	if mean == 0 {
		return 1.0
	}
	return float64(volumes[len(volumes)-1]) / mean
}

// Momentum scoring caps per term.
const (
	momentumRSICap    = 30.0
	momentumPriceCap  = 30.0
	momentumCrossCap  = 20.0
	momentumVolumeCap = 20.0
)

// MomentumInputs carries the indicator terms feeding the momentum
// score. Invalid sub-results cause their term to be skipped.
type MomentumInputs struct {
	RSI         RSIResult
	SMA20       SMAResult
	SMA50       SMAResult
	Close       float64
	VolumeRatio float64
}

// CalculateMomentum fuses the indicator terms into one bounded score
// in [-100, 100]. Four additive contributions: RSI distance from the
// 50 midline (x1.5, cap ±30), price distance from SMA20 (pct x5, cap
// ±30), SMA20-vs-SMA50 divergence (pct x5, cap ±20), and a volume
// amplification that pushes the running score further in its own sign
// when the volume ratio exceeds 1.5 (cap ±20).
func CalculateMomentum(in MomentumInputs) float64 {
	score := 0.0

	if in.RSI.IsValid {
		score += clamp((in.RSI.Value-50.0)*1.5, -momentumRSICap, momentumRSICap)
	}

	if in.SMA20.IsValid && in.SMA20.Value != 0 {
		pct := ((in.Close / in.SMA20.Value) - 1.0) * 100
		score += clamp(pct*5.0, -momentumPriceCap, momentumPriceCap)
	}

	if in.SMA20.IsValid && in.SMA50.IsValid && in.SMA50.Value != 0 {
		pct := ((in.SMA20.Value / in.SMA50.Value) - 1.0) * 100
		score += clamp(pct*5.0, -momentumCrossCap, momentumCrossCap)
	}

	if in.VolumeRatio > 1.5 && score != 0 {
		amp := math.Min((in.VolumeRatio-1.5)*10.0, momentumVolumeCap)
		if score > 0 {
			score += amp
		} else {
			score -= amp
		}
	}

	return clamp(score, -100.0, 100.0)
}

// Percentile returns the p-th percentile (0-100) of values using
// nearest-rank on a sorted copy. Zero for empty input.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sortFloats(sorted)

	rank := p / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

func sortFloats(v []float64) {
	// insertion sort; windows here are 30 values at most
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
