// Package gates enforces portfolio risk rules on proposed trade
// actions. BUY actions run a fixed-order chain of hard checks and
// size adjustments; SELL actions only require an open position.
package gates

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/omxlab/equityrun/internal/domain/market"
)

// RiskConfig contains hard thresholds for trade validation.
type RiskConfig struct {
	MinConfidence       float64 `yaml:"min_confidence"`         // reject below 55
	MaxOpenPositions    int     `yaml:"max_open_positions"`     // reject at 5
	RiskOffBenchmarkPct float64 `yaml:"risk_off_benchmark_pct"` // reject when benchmark day change < -2.5%
	MaxPositionPct      float64 `yaml:"max_position_pct"`       // shrink tickets above 25% of portfolio
	CashReservePct      float64 `yaml:"cash_reserve_pct"`       // shrink to 90% of cash when short
	MinTicketValue      float64 `yaml:"min_ticket_value"`       // reject tickets below 500
	SectorCap           int     `yaml:"sector_cap"`             // reject a third position in one sector
	RSIWarnLevel        float64 `yaml:"rsi_warn_level"`         // warn above 65
}

// DefaultRiskConfig returns the production rule set.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MinConfidence:       55.0,
		MaxOpenPositions:    5,
		RiskOffBenchmarkPct: -2.5,
		MaxPositionPct:      25.0,
		CashReservePct:      90.0,
		MinTicketValue:      500.0,
		SectorCap:           2,
		RSIWarnLevel:        65.0,
	}
}

// PortfolioState is the account snapshot validation runs against.
// Batch validation mutates its working copy as approvals land, so a
// second BUY in the same batch sees the first one's cash drain.
type PortfolioState struct {
	Cash               float64
	TotalValue         float64
	Positions          []market.Position
	SectorCounts       map[string]int
	BenchmarkChangePct float64
}

func (p PortfolioState) holds(instrument string) bool {
	return lo.ContainsBy(p.Positions, func(pos market.Position) bool {
		return pos.Instrument == instrument
	})
}

// BuyRequest bundles a proposed BUY with the market context the rules
// need. Technical may be nil when no snapshot exists.
type BuyRequest struct {
	Action    market.Action
	Price     float64
	Sector    string
	Technical *market.TechnicalSnapshot
}

// Check records one rule evaluation, pass or fail.
type Check struct {
	Name        string      `json:"name"`
	Passed      bool        `json:"passed"`
	Value       interface{} `json:"value"`
	Threshold   interface{} `json:"threshold"`
	Description string      `json:"description"`
}

// Verdict is the validation outcome for one action. A rejected verdict
// names the first rule that failed; hard checks later in the chain are
// not evaluated. Warnings never block.
type Verdict struct {
	Action       market.Action `json:"action"`
	Approved     bool          `json:"approved"`
	RejectReason string        `json:"reject_reason,omitempty"`
	Checks       []Check       `json:"checks"`
	Warnings     []string      `json:"warnings,omitempty"`
	Value        float64       `json:"value"`  // final ticket value after shrinks
	Shares       float64       `json:"shares"` // whole shares at Price for buys, the full holding for sells
	Price        float64       `json:"price"`
}

// Validator applies the risk rule chain.
type Validator struct {
	cfg RiskConfig
}

func NewValidator(cfg RiskConfig) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateBuy runs the BUY rule chain in order: confidence, portfolio
// capacity, benchmark risk-off, duplicate holding, sector cap, then
// the sizing adjustments (position cap, cash shrink) and the minimum
// ticket. The first failing hard rule rejects; sizing rules adjust.
func (v *Validator) ValidateBuy(req BuyRequest, state PortfolioState) Verdict {
	verdict := Verdict{Action: req.Action, Price: req.Price}

	if req.Price <= 0 {
		return v.reject(verdict, "price", "no valid price for instrument")
	}

	check := Check{
		Name:        "confidence",
		Value:       req.Action.Confidence,
		Threshold:   v.cfg.MinConfidence,
		Passed:      req.Action.Confidence >= v.cfg.MinConfidence,
		Description: fmt.Sprintf("confidence %.1f >= %.1f", req.Action.Confidence, v.cfg.MinConfidence),
	}
	verdict.Checks = append(verdict.Checks, check)
	if !check.Passed {
		return v.reject(verdict, "confidence", fmt.Sprintf("confidence %.1f below %.1f", req.Action.Confidence, v.cfg.MinConfidence))
	}

	check = Check{
		Name:        "portfolio_capacity",
		Value:       len(state.Positions),
		Threshold:   v.cfg.MaxOpenPositions,
		Passed:      len(state.Positions) < v.cfg.MaxOpenPositions,
		Description: fmt.Sprintf("open positions %d < %d", len(state.Positions), v.cfg.MaxOpenPositions),
	}
	verdict.Checks = append(verdict.Checks, check)
	if !check.Passed {
		return v.reject(verdict, "portfolio_capacity", fmt.Sprintf("already holding %d positions", len(state.Positions)))
	}

	check = Check{
		Name:        "benchmark_risk_off",
		Value:       state.BenchmarkChangePct,
		Threshold:   v.cfg.RiskOffBenchmarkPct,
		Passed:      state.BenchmarkChangePct >= v.cfg.RiskOffBenchmarkPct,
		Description: fmt.Sprintf("benchmark %.2f%% >= %.2f%%", state.BenchmarkChangePct, v.cfg.RiskOffBenchmarkPct),
	}
	verdict.Checks = append(verdict.Checks, check)
	if !check.Passed {
		return v.reject(verdict, "benchmark_risk_off", fmt.Sprintf("benchmark down %.2f%%, risk-off", state.BenchmarkChangePct))
	}

	held := state.holds(req.Action.Instrument)
	check = Check{
		Name:        "duplicate_holding",
		Value:       held,
		Threshold:   false,
		Passed:      !held,
		Description: "instrument not already held",
	}
	verdict.Checks = append(verdict.Checks, check)
	if held {
		return v.reject(verdict, "duplicate_holding", fmt.Sprintf("%s already in portfolio", req.Action.Instrument))
	}

	sectorCount := state.SectorCounts[req.Sector]
	check = Check{
		Name:        "sector_cap",
		Value:       sectorCount,
		Threshold:   v.cfg.SectorCap,
		Passed:      req.Sector == "" || sectorCount < v.cfg.SectorCap,
		Description: fmt.Sprintf("sector %q holds %d of %d", req.Sector, sectorCount, v.cfg.SectorCap),
	}
	verdict.Checks = append(verdict.Checks, check)
	if !check.Passed {
		return v.reject(verdict, "sector_cap", fmt.Sprintf("sector %q at cap (%d)", req.Sector, v.cfg.SectorCap))
	}

	// Sizing adjustments. These shrink rather than reject.
	value := req.Action.SizePct / 100.0 * state.TotalValue
	maxValue := v.cfg.MaxPositionPct / 100.0 * state.TotalValue
	if value > maxValue {
		verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("ticket shrunk from %.0f to %.0f (position cap %.0f%%)", value, maxValue, v.cfg.MaxPositionPct))
		value = maxValue
	}
	if value > state.Cash {
		shrunk := state.Cash * v.cfg.CashReservePct / 100.0
		verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("ticket shrunk from %.0f to %.0f (cash %.0f)", value, shrunk, state.Cash))
		value = shrunk
	}

	shares := math.Floor(value / req.Price)
	value = shares * req.Price

	check = Check{
		Name:        "min_ticket",
		Value:       value,
		Threshold:   v.cfg.MinTicketValue,
		Passed:      value >= v.cfg.MinTicketValue && shares >= 1,
		Description: fmt.Sprintf("ticket %.0f >= %.0f", value, v.cfg.MinTicketValue),
	}
	verdict.Checks = append(verdict.Checks, check)
	if !check.Passed {
		return v.reject(verdict, "min_ticket", fmt.Sprintf("ticket %.0f below minimum %.0f", value, v.cfg.MinTicketValue))
	}

	// Advisory signals, never blocking.
	if req.Technical != nil {
		if req.Technical.RSI14 != nil && *req.Technical.RSI14 > v.cfg.RSIWarnLevel {
			verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("RSI %.1f overbought", *req.Technical.RSI14))
		}
		if req.Technical.SMA20 != nil && req.Price < *req.Technical.SMA20 {
			verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("price %.2f below SMA20 %.2f", req.Price, *req.Technical.SMA20))
		}
	}

	verdict.Approved = true
	verdict.Value = value
	verdict.Shares = shares
	return verdict
}

// ValidateSell approves any SELL of an instrument actually held; the
// verdict carries the full position size. Selling an instrument with
// no open position is the single rejection case.
func (v *Validator) ValidateSell(action market.Action, state PortfolioState) Verdict {
	verdict := Verdict{Action: action}

	pos, held := lo.Find(state.Positions, func(p market.Position) bool {
		return p.Instrument == action.Instrument
	})
	verdict.Checks = append(verdict.Checks, Check{
		Name:        "open_position",
		Value:       held,
		Threshold:   true,
		Passed:      held,
		Description: fmt.Sprintf("open position in %s", action.Instrument),
	})
	if !held {
		return v.reject(verdict, "open_position", fmt.Sprintf("no open position in %s", action.Instrument))
	}

	verdict.Approved = true
	verdict.Shares = pos.Shares
	return verdict
}

// ValidateBatch processes actions in order against an evolving copy of
// the portfolio state: each approved BUY consumes cash and a position
// slot before the next action is considered. HOLD actions pass through
// approved with no sizing.
func (v *Validator) ValidateBatch(buys []BuyRequest, sells []market.Action, state PortfolioState) []Verdict {
	working := state
	working.Positions = append([]market.Position(nil), state.Positions...)
	working.SectorCounts = map[string]int{}
	for k, n := range state.SectorCounts {
		working.SectorCounts[k] = n
	}

	verdicts := make([]Verdict, 0, len(sells)+len(buys))

	// Sells first: they free capacity for the buys that follow.
	for _, action := range sells {
		verdict := v.ValidateSell(action, working)
		if verdict.Approved {
			working.Positions = lo.Reject(working.Positions, func(p market.Position, _ int) bool {
				return p.Instrument == action.Instrument
			})
		}
		verdicts = append(verdicts, verdict)
	}

	for _, req := range buys {
		verdict := v.ValidateBuy(req, working)
		if verdict.Approved {
			working.Cash -= verdict.Value
			working.Positions = append(working.Positions, market.Position{
				Instrument: req.Action.Instrument,
				Shares:     verdict.Shares,
				AvgPrice:   req.Price,
			})
			if req.Sector != "" {
				working.SectorCounts[req.Sector]++
			}
		}
		verdicts = append(verdicts, verdict)
	}
	return verdicts
}

func (v *Validator) reject(verdict Verdict, rule, reason string) Verdict {
	verdict.Approved = false
	verdict.RejectReason = reason
	log.Debug().
		Str("instrument", verdict.Action.Instrument).
		Str("rule", rule).
		Str("reason", reason).
		Msg("action rejected")
	return verdict
}
