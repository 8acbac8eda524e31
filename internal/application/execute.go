package application

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/omxlab/equityrun/internal/domain/market"
	"github.com/omxlab/equityrun/internal/gates"
	"github.com/omxlab/equityrun/internal/ledger"
)

// ExecutionResult pairs one validated action with its executed trade,
// when the verdict approved it and the book accepted it.
type ExecutionResult struct {
	Verdict gates.Verdict `json:"verdict"`
	Trade   *market.Trade `json:"trade,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// ExecuteActions validates a batch of candidate actions against the
// persisted portfolio and executes the approved ones. Sells are
// processed before buys. Each executed trade commits atomically with
// its position and cash update.
func (e *Engine) ExecuteActions(ctx context.Context, actions []market.Action) ([]ExecutionResult, error) {
	start := e.now()
	var err error
	defer func() { e.observeCycle("exec.actions", start, err) }()

	state, err := e.portfolioSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	sells := lo.Filter(actions, func(a market.Action, _ int) bool {
		return a.Type == market.ActionSell
	})
	var buys []gates.BuyRequest
	for _, action := range actions {
		if action.Type != market.ActionBuy {
			continue
		}
		req, ok := e.buyRequest(ctx, action)
		if !ok {
			continue
		}
		buys = append(buys, req)
	}

	verdicts := e.validator.ValidateBatch(buys, sells, state)

	book := ledger.FromState(state.Cash, state.Positions)
	theses := e.prospectTheses(ctx)
	results := make([]ExecutionResult, 0, len(verdicts))
	for _, verdict := range verdicts {
		results = append(results, e.settle(ctx, verdict, book, theses))
	}
	return results, nil
}

// prospectTheses maps each instrument on the prospects board to its
// scored thesis, so executed buys keep the hypothesis they trade on.
func (e *Engine) prospectTheses(ctx context.Context) map[string]string {
	prospects, err := e.repos.Prospects.Latest(ctx, e.cfg.App.ProspectsTop)
	if err != nil {
		log.Debug().Err(err).Msg("Prospects unavailable, trades recorded without thesis")
		return nil
	}
	theses := make(map[string]string, len(prospects))
	for _, opp := range prospects {
		theses[opp.Instrument] = opp.Thesis
	}
	return theses
}

func (e *Engine) buyRequest(ctx context.Context, action market.Action) (gates.BuyRequest, bool) {
	price, err := e.latestPrice(ctx, action.Instrument)
	if err != nil {
		log.Warn().Err(err).Str("instrument", action.Instrument).Msg("No price for buy candidate, dropping")
		return gates.BuyRequest{}, false
	}

	sector := ""
	if company, err := e.repos.Companies.Get(ctx, action.Instrument); err == nil && company != nil {
		sector = company.Sector
	}

	snap, err := e.repos.Snapshots.Latest(ctx, action.Instrument)
	if err != nil {
		log.Debug().Err(err).Str("instrument", action.Instrument).Msg("Snapshot unavailable for buy candidate")
	}

	return gates.BuyRequest{
		Action:    action,
		Price:     price,
		Sector:    sector,
		Technical: snap,
	}, true
}

// rejectRule names the failed rule for the rejection counter. The
// price guard rejects before any check is recorded, hence the default.
func rejectRule(verdict gates.Verdict) string {
	for _, check := range verdict.Checks {
		if !check.Passed {
			return check.Name
		}
	}
	return "price"
}

func (e *Engine) settle(ctx context.Context, verdict gates.Verdict, book *ledger.Ledger, theses map[string]string) ExecutionResult {
	result := ExecutionResult{Verdict: verdict}
	if !verdict.Approved {
		e.metrics.GateRejections.WithLabelValues(rejectRule(verdict)).Inc()
		return result
	}

	var trade market.Trade
	var err error
	switch verdict.Action.Type {
	case market.ActionBuy:
		trade, err = book.ApplyBuy(ledger.BuyOrder{
			Instrument:  verdict.Action.Instrument,
			Shares:      verdict.Shares,
			Price:       verdict.Price,
			Reasoning:   verdict.Action.Rationale,
			Confidence:  verdict.Action.Confidence,
			Hypothesis:  theses[verdict.Action.Instrument],
			TargetPrice: verdict.Price * (1 + e.cfg.Exits.TakeProfitPct/100),
			StopLoss:    verdict.Price * (1 + e.cfg.Exits.StopLossPct/100),
			ExecutedAt:  e.now(),
		})
	case market.ActionSell:
		var price float64
		price, err = e.latestPrice(ctx, verdict.Action.Instrument)
		if err == nil {
			trade, err = book.ApplySell(ledger.SellOrder{
				Instrument: verdict.Action.Instrument,
				Shares:     verdict.Shares,
				Price:      price,
				Reasoning:  verdict.Action.Rationale,
				ExecutedAt: e.now(),
			})
		}
	default:
		return result
	}
	if err != nil {
		result.Error = err.Error()
		return result
	}

	pos, _ := book.Position(trade.Instrument)
	pos.Instrument = trade.Instrument
	if applyErr := e.repos.Portfolio.ApplyTrade(ctx, trade, pos, book.Cash()); applyErr != nil {
		result.Error = fmt.Sprintf("persist trade: %v", applyErr)
		return result
	}

	e.metrics.TradesExecuted.WithLabelValues(string(trade.Action)).Inc()
	result.Trade = &trade
	return result
}
