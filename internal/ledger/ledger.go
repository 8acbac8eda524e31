// Package ledger maintains the account book: cash, open positions and
// the append-only trade log. Buys into an existing position merge at a
// quantity-weighted average price; sells never exceed the held size.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/omxlab/equityrun/internal/domain/market"
)

var (
	// ErrInsufficientCash rejects a buy whose cost exceeds the balance.
	ErrInsufficientCash = errors.New("insufficient cash")
	// ErrNoPosition rejects a sell of an instrument not held.
	ErrNoPosition = errors.New("no open position")
	// ErrOversell rejects a sell larger than the held size. The sell is
	// never clamped; the caller must re-issue with a valid size.
	ErrOversell = errors.New("sell exceeds position size")
)

// BuyOrder describes an executed purchase to record.
type BuyOrder struct {
	Instrument  string
	Shares      float64
	Price       float64
	Reasoning   string
	Confidence  float64
	Hypothesis  string
	TargetPrice float64
	StopLoss    float64
	ExecutedAt  time.Time
}

// SellOrder describes an executed sale to record.
type SellOrder struct {
	Instrument string
	Shares     float64
	Price      float64
	Reasoning  string
	ExecutedAt time.Time
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu        sync.RWMutex
	cash      float64
	positions map[string]market.Position
	trades    []market.Trade
}

// New starts a ledger with the given cash balance and no positions.
func New(startingCash float64) *Ledger {
	return &Ledger{
		cash:      startingCash,
		positions: make(map[string]market.Position),
	}
}

// FromState seeds a ledger with an existing cash balance and open
// positions, as loaded from storage. The trade log starts empty; only
// trades applied afterwards are recorded.
func FromState(cash float64, positions []market.Position) *Ledger {
	l := New(cash)
	for _, pos := range positions {
		if pos.Open() {
			l.positions[pos.Instrument] = pos
		}
	}
	return l
}

// ApplyBuy debits cash, opens or extends the position and appends the
// trade in one step. An extension recomputes AvgPrice as the
// quantity-weighted mean and keeps the original OpenedAt and stop
// floor.
func (l *Ledger) ApplyBuy(order BuyOrder) (market.Trade, error) {
	if order.Shares <= 0 || order.Price <= 0 {
		return market.Trade{}, fmt.Errorf("invalid buy order for %s: %g shares at %g", order.Instrument, order.Shares, order.Price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cost := order.Shares * order.Price
	if cost > l.cash {
		return market.Trade{}, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, cost, l.cash)
	}

	pos, ok := l.positions[order.Instrument]
	if ok {
		total := pos.Shares + order.Shares
		pos.AvgPrice = (pos.Shares*pos.AvgPrice + order.Shares*order.Price) / total
		pos.Shares = total
	} else {
		pos = market.Position{
			Instrument:   order.Instrument,
			Shares:       order.Shares,
			AvgPrice:     order.Price,
			OpenedAt:     order.ExecutedAt,
			StopFloorPct: market.DefaultStopFloorPct,
		}
	}
	l.positions[order.Instrument] = pos
	l.cash -= cost

	trade := market.Trade{
		ID:         uuid.NewString(),
		Instrument: order.Instrument,
		Action:     market.ActionBuy,
		Shares:     order.Shares,
		Price:      order.Price,
		TotalValue: cost,
		Reasoning:  order.Reasoning,
		Confidence: order.Confidence,
		Hypothesis: order.Hypothesis,
		ExecutedAt: order.ExecutedAt,
	}
	if order.TargetPrice > 0 {
		trade.TargetPrice = &order.TargetPrice
	}
	if order.StopLoss > 0 {
		trade.StopLoss = &order.StopLoss
	}
	l.trades = append(l.trades, trade)

	log.Info().
		Str("instrument", order.Instrument).
		Float64("shares", order.Shares).
		Float64("price", order.Price).
		Float64("cash", l.cash).
		Msg("buy recorded")
	return trade, nil
}

// ApplySell credits cash, shrinks or closes the position and appends
// the trade with realized PnL against the weighted average entry.
func (l *Ledger) ApplySell(order SellOrder) (market.Trade, error) {
	if order.Shares <= 0 || order.Price <= 0 {
		return market.Trade{}, fmt.Errorf("invalid sell order for %s: %g shares at %g", order.Instrument, order.Shares, order.Price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[order.Instrument]
	if !ok {
		return market.Trade{}, fmt.Errorf("%w: %s", ErrNoPosition, order.Instrument)
	}
	if order.Shares > pos.Shares {
		return market.Trade{}, fmt.Errorf("%w: %s selling %g of %g", ErrOversell, order.Instrument, order.Shares, pos.Shares)
	}

	proceeds := order.Shares * order.Price
	pnl := (order.Price - pos.AvgPrice) * order.Shares
	l.cash += proceeds

	pos.Shares -= order.Shares
	if pos.Shares == 0 {
		delete(l.positions, order.Instrument)
	} else {
		l.positions[order.Instrument] = pos
	}

	closedAt := order.ExecutedAt
	trade := market.Trade{
		ID:         uuid.NewString(),
		Instrument: order.Instrument,
		Action:     market.ActionSell,
		Shares:     order.Shares,
		Price:      order.Price,
		TotalValue: proceeds,
		Reasoning:  order.Reasoning,
		ExecutedAt: order.ExecutedAt,
		ClosedAt:   &closedAt,
		PnL:        &pnl,
	}
	l.trades = append(l.trades, trade)

	log.Info().
		Str("instrument", order.Instrument).
		Float64("shares", order.Shares).
		Float64("pnl", pnl).
		Float64("cash", l.cash).
		Msg("sell recorded")
	return trade, nil
}

// RaiseStopFloor persists a ratcheted stop floor on an open position.
func (l *Ledger) RaiseStopFloor(instrument string, floorPct float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[instrument]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPosition, instrument)
	}
	if floorPct > pos.StopFloorPct {
		pos.StopFloorPct = floorPct
		l.positions[instrument] = pos
	}
	return nil
}

// Cash returns the current balance.
func (l *Ledger) Cash() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// Position returns the open position for an instrument, if any.
func (l *Ledger) Position(instrument string) (market.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[instrument]
	return pos, ok
}

// Positions returns a copy of all open positions.
func (l *Ledger) Positions() []market.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]market.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos)
	}
	return out
}

// Trades returns a copy of the trade log in execution order.
func (l *Ledger) Trades() []market.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]market.Trade(nil), l.trades...)
}

// TotalValue marks open positions at the supplied prices and adds
// cash. Instruments missing a quote are marked at their entry price.
func (l *Ledger) TotalValue(prices map[string]float64) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := l.cash
	for _, pos := range l.positions {
		price, ok := prices[pos.Instrument]
		if !ok {
			price = pos.AvgPrice
		}
		total += pos.Shares * price
	}
	return total
}

// Replay rebuilds a ledger from a trade log. Trades must be in
// execution order; the first inconsistency aborts the replay.
func Replay(startingCash float64, trades []market.Trade) (*Ledger, error) {
	l := New(startingCash)
	for _, tr := range trades {
		var err error
		switch tr.Action {
		case market.ActionBuy:
			_, err = l.ApplyBuy(BuyOrder{
				Instrument: tr.Instrument,
				Shares:     tr.Shares,
				Price:      tr.Price,
				Reasoning:  tr.Reasoning,
				Confidence: tr.Confidence,
				Hypothesis: tr.Hypothesis,
				ExecutedAt: tr.ExecutedAt,
			})
		case market.ActionSell:
			_, err = l.ApplySell(SellOrder{
				Instrument: tr.Instrument,
				Shares:     tr.Shares,
				Price:      tr.Price,
				Reasoning:  tr.Reasoning,
				ExecutedAt: tr.ExecutedAt,
			})
		default:
			err = fmt.Errorf("unsupported action %q in trade log", tr.Action)
		}
		if err != nil {
			return nil, fmt.Errorf("replay trade %s: %w", tr.ID, err)
		}
	}
	return l, nil
}
