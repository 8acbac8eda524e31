// Package exits evaluates open positions against the exit rule chain.
// Rules are checked in precedence order and the first trigger wins;
// evaluation is idempotent, a closed position never re-triggers.
package exits

import (
	"fmt"
	"time"

	"github.com/omxlab/equityrun/internal/domain/market"
)

// ExitReason identifies which rule fired, ordered by precedence.
type ExitReason int

const (
	NoExit ExitReason = iota
	StopLoss
	TrailingStop
	ProfitTarget
	TimeStop
)

func (er ExitReason) String() string {
	switch er {
	case NoExit:
		return "no_exit"
	case StopLoss:
		return "stop_loss"
	case TrailingStop:
		return "trailing_stop"
	case ProfitTarget:
		return "take_profit"
	case TimeStop:
		return "time_stop"
	default:
		return "unknown"
	}
}

// Config holds the exit thresholds, all in percent from entry.
type Config struct {
	StopLossPct         float64 `yaml:"stop_loss_pct"`          // exit at or below -5
	TakeProfitPct       float64 `yaml:"take_profit_pct"`        // exit at or above +10
	TrailingActivatePct float64 `yaml:"trailing_activate_pct"`  // ratchet the floor at +5
	TrailingFloorPct    float64 `yaml:"trailing_floor_pct"`     // raised floor locks in +2
	TimeStopDays        int     `yaml:"time_stop_days"`         // stale after 10 days
	TimeStopMinGainPct  float64 `yaml:"time_stop_min_gain_pct"` // unless up at least +3
}

// DefaultConfig returns the production exit thresholds.
func DefaultConfig() Config {
	return Config{
		StopLossPct:         market.DefaultStopFloorPct,
		TakeProfitPct:       10.0,
		TrailingActivatePct: 5.0,
		TrailingFloorPct:    2.0,
		TimeStopDays:        10,
		TimeStopMinGainPct:  3.0,
	}
}

// Result is the outcome of one evaluation. RaiseFloorTo, when set,
// instructs the caller to persist a ratcheted stop floor on the
// position; it is never set together with ShouldExit.
type Result struct {
	Instrument   string     `json:"instrument"`
	EvaluatedAt  time.Time  `json:"evaluated_at"`
	ShouldExit   bool       `json:"should_exit"`
	Reason       ExitReason `json:"reason"`
	Detail       string     `json:"detail"`
	CurrentPrice float64    `json:"current_price"`
	PnLPct       float64    `json:"pnl_pct"`
	DaysHeld     int        `json:"days_held"`
	RaiseFloorTo *float64   `json:"raise_floor_to,omitempty"`
}

// Evaluator applies the exit chain to open positions.
type Evaluator struct {
	cfg Config
}

func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate runs the chain against one position at the given price.
// Order: effective stop floor, take-profit, trailing activation, time
// stop. The effective floor is the configured stop-loss until the
// trailing rule has ratcheted it; a hit on the raised floor reports
// trailing_stop rather than stop_loss.
func (e *Evaluator) Evaluate(pos market.Position, price float64, asOf time.Time) Result {
	result := Result{
		Instrument:   pos.Instrument,
		EvaluatedAt:  asOf,
		CurrentPrice: price,
	}
	if pos.Shares <= 0 || price <= 0 || pos.AvgPrice <= 0 {
		return result
	}

	pnl := pos.UnrealizedPct(price)
	days := int(asOf.Sub(pos.OpenedAt).Hours() / 24)
	result.PnLPct = pnl
	result.DaysHeld = days

	floor := e.cfg.StopLossPct
	ratcheted := false
	if pos.StopFloorPct > e.cfg.StopLossPct {
		floor = pos.StopFloorPct
		ratcheted = true
	}

	if pnl <= floor {
		result.ShouldExit = true
		if ratcheted {
			result.Reason = TrailingStop
			result.Detail = fmt.Sprintf("fell to %.2f%%, raised floor %.2f%%", pnl, floor)
		} else {
			result.Reason = StopLoss
			result.Detail = fmt.Sprintf("down %.2f%%, stop at %.2f%%", pnl, floor)
		}
		return result
	}

	if pnl >= e.cfg.TakeProfitPct {
		result.ShouldExit = true
		result.Reason = ProfitTarget
		result.Detail = fmt.Sprintf("up %.2f%%, target %.2f%%", pnl, e.cfg.TakeProfitPct)
		return result
	}

	if pnl >= e.cfg.TrailingActivatePct && pos.StopFloorPct < e.cfg.TrailingFloorPct {
		newFloor := e.cfg.TrailingFloorPct
		result.RaiseFloorTo = &newFloor
		result.Detail = fmt.Sprintf("up %.2f%%, stop floor raised to %.2f%%", pnl, newFloor)
		return result
	}

	if days >= e.cfg.TimeStopDays && pnl < e.cfg.TimeStopMinGainPct {
		result.ShouldExit = true
		result.Reason = TimeStop
		result.Detail = fmt.Sprintf("held %d days at %.2f%%, below %.2f%%", days, pnl, e.cfg.TimeStopMinGainPct)
		return result
	}

	return result
}
