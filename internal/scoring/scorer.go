// Package scoring fuses macro-impact analysis, the latest technical
// snapshot, a sector baseline and price momentum into one bounded
// composite confidence score per instrument.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/omxlab/equityrun/internal/domain/market"
	"github.com/omxlab/equityrun/internal/domain/patterns"
)

// Sub-score bands. The four bands sum to the 0-100 composite range.
const (
	macroBand     = 35.0
	momentumBand  = 25.0
	sectorBand    = 20.0
	technicalBand = 20.0

	// MinConfidence is the emission threshold: instruments scoring
	// below it produce no Opportunity at all.
	MinConfidence = 50.0

	alignmentBonus       = 3.0
	alignmentMinStrength = 0.6

	momentumBaseline = 12.0
)

// Config carries scorer tunables. Sector baselines come from the yaml
// config; DefaultConfig serves tests and fallback.
type Config struct {
	MinConfidence   float64            `yaml:"min_confidence"`
	SectorBaselines map[string]float64 `yaml:"sector_baselines"`
}

// DefaultConfig returns the built-in sector baseline table.
func DefaultConfig() Config {
	return Config{
		MinConfidence: MinConfidence,
		SectorBaselines: map[string]float64{
			"Industrials":            14,
			"Technology":             15,
			"Basic Materials":        12,
			"Financial Services":     11,
			"Healthcare":             13,
			"Consumer Cyclical":      10,
			"Consumer Defensive":     9,
			"Energy":                 11,
			"Real Estate":            8,
			"Communication Services": 10,
			"Utilities":              8,
		},
	}
}

// Input is everything the scorer consults for one instrument. All
// fields are value snapshots taken at the start of the cycle.
type Input struct {
	Instrument   string
	Name         string
	Sector       string
	Dependencies []market.Dependency
	Macro        map[string]market.MacroReading
	Technical    *market.TechnicalSnapshot
	DayChangePct float64
	CurrentPrice float64
}

// macroImpact is one dependency's resolved contribution.
type macroImpact struct {
	Factor   string
	Weighted float64
	Reason   string
}

// Scorer computes composite opportunity scores.
type Scorer struct {
	cfg Config
}

// NewScorer builds a scorer, falling back to defaults for zero-value
// config fields.
func NewScorer(cfg Config) *Scorer {
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = MinConfidence
	}
	if len(cfg.SectorBaselines) == 0 {
		cfg.SectorBaselines = DefaultConfig().SectorBaselines
	}
	return &Scorer{cfg: cfg}
}

// Score evaluates one instrument. The returned bool reports whether
// the composite cleared the emission threshold.
func (s *Scorer) Score(in Input) (market.Opportunity, bool) {
	macroScore, impacts := s.macroScore(in.Dependencies, in.Macro)
	momentumScore := s.momentumScore(in.DayChangePct)
	sectorScore := s.sectorScore(in.Sector)
	technicalScore := s.technicalScore(in.Technical)

	confidence := clamp(macroScore+momentumScore+sectorScore+technicalScore, 0, 100)

	opp := market.Opportunity{
		Instrument:   in.Instrument,
		Name:         in.Name,
		Sector:       in.Sector,
		Confidence:   confidence,
		CurrentPrice: in.CurrentPrice,
		Breakdown: market.ScoreBreakdown{
			Macro:     macroScore,
			Momentum:  momentumScore,
			Sector:    sectorScore,
			Technical: technicalScore,
		},
		Thesis:       s.thesis(impacts, in.Technical),
		EntryTrigger: s.entryTrigger(in.Technical),
	}

	if confidence < s.cfg.MinConfidence {
		return opp, false
	}
	return opp, true
}

// Rank sorts opportunities descending by confidence. Ties keep input
// order, which is deterministic given a stable dependency ordering.
func Rank(opps []market.Opportunity) []market.Opportunity {
	ranked := make([]market.Opportunity, len(opps))
	copy(ranked, opps)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})
	return ranked
}

// macroScore maps each dependency's macro percent change into a signed
// impact in [-1,1] (cost dependencies invert the sign: a falling cost
// input helps the instrument), weights by impact strength and rescales
// the weighted-average net sentiment onto the 0-35 band. Strongly
// aligned positive factors (strength >= 0.6) add a small bonus, capped
// at the band.
func (s *Scorer) macroScore(deps []market.Dependency, macro map[string]market.MacroReading) (float64, []macroImpact) {
	var impacts []macroImpact
	var weightedSum, weightTotal float64
	bonus := 0.0

	for _, dep := range deps {
		reading, ok := macro[dep.MacroSymbol]
		if !ok {
			continue
		}
		raw := clamp(reading.ChangePct/10.0, -1, 1)
		if dep.ImpactDirection == market.ImpactCost {
			raw = -raw
		}
		weighted := raw * dep.ImpactStrength
		weightedSum += weighted
		weightTotal += dep.ImpactStrength

		verb := "up"
		if reading.ChangePct < 0 {
			verb = "down"
		}
		impacts = append(impacts, macroImpact{
			Factor:   dep.InputName,
			Weighted: weighted,
			Reason:   fmt.Sprintf("%s %s %.1f%%", dep.InputName, verb, math.Abs(reading.ChangePct)),
		})

		if dep.ImpactStrength >= alignmentMinStrength && weighted > 0 {
			bonus += alignmentBonus
		}
	}

	net := 0.0
	if weightTotal > 0 {
		net = clamp(weightedSum/weightTotal, -1, 1)
	}
	base := (net + 1) / 2 * macroBand

	return math.Min(base+bonus, macroBand), impacts
}

// momentumScore rewards a positive day-over-day move at x5 up to the
// cap; a non-positive move starts from a smaller baseline decayed by
// twice the drop, floored at zero.
func (s *Scorer) momentumScore(dayChangePct float64) float64 {
	if dayChangePct > 0 {
		return math.Min(dayChangePct*5.0, momentumBand)
	}
	return math.Max(momentumBaseline+dayChangePct*2.0, 0)
}

// sectorScore looks up the static baseline; unknown sectors fall back
// to the table's minimum entry.
func (s *Scorer) sectorScore(sector string) float64 {
	if v, ok := s.cfg.SectorBaselines[sector]; ok {
		return v
	}
	min := sectorBand
	for _, v := range s.cfg.SectorBaselines {
		min = math.Min(min, v)
	}
	log.Debug().Str("sector", sector).Float64("baseline", min).Msg("unknown sector, using table minimum")
	return min
}

// patternBonus enumerates the per-pattern technical adjustment, scaled
// by pattern severity.
var patternBonus = map[string]float64{
	patterns.GoldenCross:         8,
	patterns.Breakout:            7,
	patterns.SupportBounce:       4,
	patterns.DeathCross:          -8,
	patterns.Breakdown:           -7,
	patterns.ResistanceRejection: -4,
}

// technicalScore starts from a neutral baseline and nudges it with the
// oscillator, the momentum score and any detected pattern, clamped to
// the 0-20 band.
func (s *Scorer) technicalScore(snap *market.TechnicalSnapshot) float64 {
	score := technicalBand / 2
	if snap == nil {
		return score
	}

	if snap.RSI14 != nil {
		rsi := *snap.RSI14
		switch {
		case rsi < 35:
			score += (35 - rsi) / 35 * 5
		case rsi > 65:
			score -= (rsi - 65) / 35 * 3
		case rsi >= 40 && rsi <= 60:
			score += 2
		}
	}

	score += clamp(snap.MomentumScore/20.0, -5, 5)

	if snap.Pattern != nil {
		score += s.patternAdjustment(*snap.Pattern, snap.PatternSignal)
	}

	return clamp(score, 0, technicalBand)
}

func (s *Scorer) patternAdjustment(name string, sig *market.Signal) float64 {
	bearish := sig != nil && *sig == market.SignalBearish
	switch name {
	case patterns.RSIDivergence:
		// divergence severity sits between breakout and spike
		if bearish {
			return -6
		}
		return 6
	case patterns.VolumeSpike:
		// spikes share a name across both directions; a spike on a
		// down day confirms the selloff
		if bearish {
			return -5
		}
		return 5
	}
	return patternBonus[name]
}

// thesis concatenates the strongest positive and negative macro
// reasons, ordered by absolute weighted impact, plus a readable label
// for the detected pattern.
func (s *Scorer) thesis(impacts []macroImpact, snap *market.TechnicalSnapshot) string {
	sorted := make([]macroImpact, len(impacts))
	copy(sorted, impacts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Weighted) > math.Abs(sorted[j].Weighted)
	})

	positives := lo.Filter(sorted, func(m macroImpact, _ int) bool { return m.Weighted > 0 })
	negatives := lo.Filter(sorted, func(m macroImpact, _ int) bool { return m.Weighted < 0 })

	var parts []string
	if len(positives) > 0 {
		parts = append(parts, "tailwind: "+positives[0].Reason)
	}
	if len(negatives) > 0 {
		parts = append(parts, "headwind: "+negatives[0].Reason)
	}
	if snap != nil && snap.Pattern != nil {
		var sig market.Signal
		if snap.PatternSignal != nil {
			sig = *snap.PatternSignal
		}
		parts = append(parts, patterns.Label(*snap.Pattern, sig))
	}
	if len(parts) == 0 {
		return "no dominant macro driver"
	}
	return strings.Join(parts, "; ")
}

func (s *Scorer) entryTrigger(snap *market.TechnicalSnapshot) string {
	if snap != nil && snap.Pattern != nil && snap.PatternSignal != nil && *snap.PatternSignal == market.SignalBullish {
		return fmt.Sprintf("follow-through on %s", *snap.Pattern)
	}
	if snap != nil && snap.SMA20 != nil {
		return fmt.Sprintf("close above SMA20 (%.2f) with volume confirmation", *snap.SMA20)
	}
	return "momentum confirmation over two sessions"
}

func clamp(v, floor, ceil float64) float64 {
	if v < floor {
		return floor
	}
	if v > ceil {
		return ceil
	}
	return v
}
