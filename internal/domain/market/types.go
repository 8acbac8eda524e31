// Package market defines the shared data model of the signal engine:
// price history, derived technical snapshots, macro dependencies, and
// the portfolio entities mutated by trade execution.
package market

import (
	"time"
)

// ActionType is the direction of a candidate or executed trade.
type ActionType string

const (
	ActionBuy  ActionType = "BUY"
	ActionSell ActionType = "SELL"
	ActionHold ActionType = "HOLD"
)

// Signal is the directional bias attached to a detected pattern.
type Signal string

const (
	SignalBullish Signal = "bullish"
	SignalBearish Signal = "bearish"
	SignalNeutral Signal = "neutral"
)

// ImpactDirection states whether a macro input hits the cost or the
// revenue side of an instrument. A falling cost input is positive for
// the instrument; a rising revenue input is positive.
type ImpactDirection string

const (
	ImpactCost    ImpactDirection = "cost"
	ImpactRevenue ImpactDirection = "revenue"
)

// PriceBar is one daily OHLCV record. Bars are immutable once recorded
// and ordered by date per instrument; gaps are tolerated downstream.
type PriceBar struct {
	Instrument string    `json:"instrument" db:"instrument"`
	Date       time.Time `json:"date" db:"date"`
	Open       float64   `json:"open" db:"open"`
	High       float64   `json:"high" db:"high"`
	Low        float64   `json:"low" db:"low"`
	Close      float64   `json:"close" db:"close"`
	Volume     int64     `json:"volume" db:"volume"`
}

// ChangePct returns the same-day percent move of the bar.
func (b PriceBar) ChangePct() float64 {
	if b.Open == 0 {
		return 0
	}
	return ((b.Close / b.Open) - 1.0) * 100
}

// TechnicalSnapshot is the derived technical state of one instrument on
// one date. Nil indicator fields mean the trailing window was too short;
// a snapshot is recomputed on demand and supersedes, never merges with,
// an earlier one for the same (instrument, date).
type TechnicalSnapshot struct {
	Instrument    string    `json:"instrument" db:"instrument"`
	Date          time.Time `json:"date" db:"date"`
	RSI14         *float64  `json:"rsi14,omitempty" db:"rsi14"`
	SMA20         *float64  `json:"sma20,omitempty" db:"sma20"`
	SMA50         *float64  `json:"sma50,omitempty" db:"sma50"`
	VolumeRatio   float64   `json:"volume_ratio" db:"volume_ratio"`
	MomentumScore float64   `json:"momentum_score" db:"momentum_score"`
	Pattern       *string   `json:"pattern,omitempty" db:"pattern"`
	PatternSignal *Signal   `json:"pattern_signal,omitempty" db:"pattern_signal"`
}

// HasPattern reports whether a chart pattern was detected on this date.
func (s TechnicalSnapshot) HasPattern() bool {
	return s.Pattern != nil
}

// Dependency is a weighted causal link from a macro symbol to an
// instrument. ImpactStrength is a weight, not a probability: impacts
// aggregate as a weighted average, never as multiplied probabilities.
type Dependency struct {
	Instrument      string          `json:"instrument" db:"instrument"`
	InputName       string          `json:"input_name" db:"input_name"`
	MacroSymbol     string          `json:"macro_symbol" db:"macro_symbol"`
	ImpactDirection ImpactDirection `json:"impact_direction" db:"impact_direction"`
	ImpactStrength  float64         `json:"impact_strength" db:"impact_strength"`
	Description     string          `json:"description" db:"description"`
}

// MacroReading is one observation of a macro symbol (index, commodity,
// currency pair). Scoring consults only the latest reading per symbol.
type MacroReading struct {
	Symbol    string    `json:"symbol" db:"symbol"`
	Value     float64   `json:"value" db:"value"`
	ChangePct float64   `json:"change_pct" db:"change_pct"`
	Date      time.Time `json:"date" db:"date"`
}

// ScoreBreakdown carries the four sub-scores behind a composite
// confidence value.
type ScoreBreakdown struct {
	Macro     float64 `json:"macro"`
	Momentum  float64 `json:"momentum"`
	Sector    float64 `json:"sector"`
	Technical float64 `json:"technical"`
}

// Opportunity is an ephemeral scoring result. It is recomputed in full
// on every scan; only the top-N prospects projection is persisted.
type Opportunity struct {
	Instrument   string         `json:"instrument"`
	Name         string         `json:"name,omitempty"`
	Sector       string         `json:"sector,omitempty"`
	Confidence   float64        `json:"confidence"`
	Breakdown    ScoreBreakdown `json:"breakdown"`
	Thesis       string         `json:"thesis"`
	EntryTrigger string         `json:"entry_trigger"`
	CurrentPrice float64        `json:"current_price"`
}

// Company is one tracked instrument in the universe.
type Company struct {
	Instrument string `json:"instrument" db:"instrument"`
	Name       string `json:"name" db:"name"`
	Sector     string `json:"sector" db:"sector"`
}

// DefaultStopFloorPct is the stop-loss floor assigned to a freshly
// opened position, in percent from the average entry price. Trailing
// logic only ever raises it.
const DefaultStopFloorPct = -5.0

// Position is an open holding. Shares never go negative; AvgPrice is a
// quantity-weighted mean recomputed on every BUY. StopFloorPct is the
// effective stop-loss floor in percent from entry: it starts at the
// configured stop-loss and is ratcheted upward by the trailing stop.
type Position struct {
	Instrument   string    `json:"instrument" db:"instrument"`
	Shares       float64   `json:"shares" db:"shares"`
	AvgPrice     float64   `json:"avg_price" db:"avg_price"`
	OpenedAt     time.Time `json:"opened_at" db:"opened_at"`
	StopFloorPct float64   `json:"stop_floor_pct" db:"stop_floor_pct"`
}

// Open reports whether the position holds any shares. A closed
// position and a never-opened one are equivalent.
func (p Position) Open() bool {
	return p.Shares > 0
}

// UnrealizedPct returns the percent return of the position at the
// given price, zero for an entry price of zero.
func (p Position) UnrealizedPct(price float64) float64 {
	if p.AvgPrice == 0 {
		return 0
	}
	return ((price / p.AvgPrice) - 1.0) * 100
}

// Trade is one immutable log entry. The trade log is the audit source
// of truth and feeds the learning and backtest calibration loop.
type Trade struct {
	ID          string     `json:"id" db:"id"`
	Instrument  string     `json:"instrument" db:"instrument"`
	Action      ActionType `json:"action" db:"action"`
	Shares      float64    `json:"shares" db:"shares"`
	Price       float64    `json:"price" db:"price"`
	TotalValue  float64    `json:"total_value" db:"total_value"`
	Reasoning   string     `json:"reasoning" db:"reasoning"`
	Confidence  float64    `json:"confidence" db:"confidence"`
	Hypothesis  string     `json:"hypothesis" db:"hypothesis"`
	TargetPrice *float64   `json:"target_price,omitempty" db:"target_price"`
	StopLoss    *float64   `json:"stop_loss,omitempty" db:"stop_loss"`
	ExecutedAt  time.Time  `json:"executed_at" db:"executed_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	PnL         *float64   `json:"pnl,omitempty" db:"pnl"`
}

// EntryKind names the kind of backtest entry condition.
type EntryKind string

const (
	EntryPattern  EntryKind = "pattern"   // a named pattern is present with bullish signal
	EntryRSIBelow EntryKind = "rsi_below" // RSI under a threshold
)

// EntryRule is a strategy's entry condition against a snapshot series.
type EntryRule struct {
	Kind     EntryKind `yaml:"kind" json:"kind"`
	Pattern  string    `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	RSIBelow float64   `yaml:"rsi_below,omitempty" json:"rsi_below,omitempty"`
}

// StrategyDefinition is a named, replayable strategy. The backtest
// simulator and the live exit rules share these parameters so the two
// cannot diverge silently.
type StrategyDefinition struct {
	Name          string    `yaml:"name" json:"name"`
	Entry         EntryRule `yaml:"entry" json:"entry"`
	HoldDays      int       `yaml:"hold_days" json:"hold_days"`
	StopLossPct   float64   `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	TakeProfitPct float64   `yaml:"take_profit_pct" json:"take_profit_pct"`
}

// BacktestResult is one append-only row per (strategy, period) run.
// MaxDrawdownPct is the worst single-trade return of the run, not a
// peak-to-trough equity drawdown; the historical column name is kept.
type BacktestResult struct {
	Strategy       string    `json:"strategy" db:"strategy"`
	PeriodStart    time.Time `json:"period_start" db:"period_start"`
	PeriodEnd      time.Time `json:"period_end" db:"period_end"`
	TradesCount    int       `json:"trades_count" db:"trades_count"`
	WinRate        float64   `json:"win_rate" db:"win_rate"`
	TotalReturnPct float64   `json:"total_return_pct" db:"total_return_pct"`
	AvgTradePct    float64   `json:"avg_trade_pct" db:"avg_trade_pct"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct" db:"max_drawdown_pct"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Action is a candidate trading action proposed by the advisor or by
// an automatic threshold check. Advisor input is untrusted and passes
// schema validation before reaching the risk validator.
type Action struct {
	Type       ActionType `json:"action"`
	Instrument string     `json:"ticker"`
	Confidence float64    `json:"confidence"`
	Rationale  string     `json:"reason"`
	SizePct    float64    `json:"position_size_pct,omitempty"`
}
