package application

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/omxlab/equityrun/internal/advisor"
)

// RunAdvisorCycle hands the oracle the portfolio and the latest
// prospects, then pushes its proposed actions through validation and
// execution. The oracle's output is untrusted; everything it proposes
// still passes the full risk gate chain.
func (e *Engine) RunAdvisorCycle(ctx context.Context, oracle advisor.Oracle) ([]ExecutionResult, error) {
	start := e.now()
	var err error
	defer func() { e.observeCycle("advisor.cycle", start, err) }()

	cash, err := e.repos.Portfolio.Cash(ctx)
	if err != nil {
		err = fmt.Errorf("load cash: %w", err)
		return nil, err
	}
	positions, err := e.repos.Portfolio.OpenPositions(ctx)
	if err != nil {
		err = fmt.Errorf("load positions: %w", err)
		return nil, err
	}
	opportunities, err := e.repos.Prospects.Latest(ctx, e.cfg.App.ProspectsTop)
	if err != nil {
		err = fmt.Errorf("load prospects: %w", err)
		return nil, err
	}

	total := cash
	for _, pos := range positions {
		price, priceErr := e.latestPrice(ctx, pos.Instrument)
		if priceErr != nil {
			price = pos.AvgPrice
		}
		total += pos.Shares * price
	}

	actions, err := oracle.ProposeActions(ctx, advisor.PortfolioContext{
		Cash:          cash,
		TotalValue:    total,
		Positions:     positions,
		Opportunities: opportunities,
	})
	if err != nil {
		err = fmt.Errorf("oracle: %w", err)
		return nil, err
	}
	if len(actions) == 0 {
		log.Info().Msg("Advisor proposed no actions")
		return nil, nil
	}

	log.Info().Int("actions", len(actions)).Msg("Advisor proposed actions")
	return e.ExecuteActions(ctx, actions)
}
