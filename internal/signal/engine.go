// Package signal turns an instrument's ordered price history into a
// TechnicalSnapshot: oscillator, moving averages, volume ratio,
// momentum score and the highest-priority detected chart pattern.
package signal

import (
	"errors"
	"fmt"

	"github.com/omxlab/equityrun/internal/domain/indicators"
	"github.com/omxlab/equityrun/internal/domain/market"
	"github.com/omxlab/equityrun/internal/domain/patterns"
)

// MinBars is the minimum history for a snapshot; MinBarsRSI is the
// smaller minimum for the oscillator alone.
const (
	MinBars    = 20
	MinBarsRSI = 15

	rsiPeriod   = 14
	smaShort    = 20
	smaLong     = 50
	priorOffset = 10
)

// ErrInsufficientData marks a history shorter than the snapshot
// minimum. Individual indicators degrade on their own below their own
// windows; this error fires only when the whole snapshot is hopeless.
var ErrInsufficientData = errors.New("insufficient price history")

// Compute derives the snapshot for the latest bar of a chronologically
// ordered series. Sub-computations that lack history come back nil or
// neutral; no single indicator failure fails the snapshot.
func Compute(bars []market.PriceBar) (market.TechnicalSnapshot, error) {
	if len(bars) < MinBars {
		return market.TechnicalSnapshot{}, fmt.Errorf("%w: %d bars, need %d", ErrInsufficientData, len(bars), MinBars)
	}

	latest := bars[len(bars)-1]
	closes := make([]float64, len(bars))
	volumes := make([]int64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	rsi := indicators.CalculateRSI(closes, rsiPeriod)
	sma20 := indicators.CalculateSMA(closes, smaShort)
	sma50 := indicators.CalculateSMA(closes, smaLong)
	sma20Prev := indicators.CalculatePrevSMA(closes, smaShort)
	sma50Prev := indicators.CalculatePrevSMA(closes, smaLong)
	volumeRatio := indicators.CalculateVolumeRatio(volumes)

	momentum := indicators.CalculateMomentum(indicators.MomentumInputs{
		RSI:         rsi,
		SMA20:       sma20,
		SMA50:       sma50,
		Close:       latest.Close,
		VolumeRatio: volumeRatio,
	})

	var rsiPrior indicators.RSIResult
	if len(closes) > priorOffset {
		rsiPrior = indicators.CalculateRSI(closes[:len(closes)-priorOffset], rsiPeriod)
	}

	snapshot := market.TechnicalSnapshot{
		Instrument:    latest.Instrument,
		Date:          latest.Date,
		VolumeRatio:   volumeRatio,
		MomentumScore: momentum,
	}
	if rsi.IsValid {
		snapshot.RSI14 = &rsi.Value
	}
	if sma20.IsValid {
		snapshot.SMA20 = &sma20.Value
	}
	if sma50.IsValid {
		snapshot.SMA50 = &sma50.Value
	}

	if det := patterns.Detect(patterns.Inputs{
		Bars:        bars,
		RSI:         rsi,
		RSIPrior:    rsiPrior,
		SMA20:       sma20,
		SMA50:       sma50,
		SMA20Prev:   sma20Prev,
		SMA50Prev:   sma50Prev,
		VolumeRatio: volumeRatio,
	}); det != nil {
		name := det.Name
		sig := det.Signal
		snapshot.Pattern = &name
		snapshot.PatternSignal = &sig
	}

	return snapshot, nil
}
