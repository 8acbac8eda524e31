// Package advisor parses and validates action batches proposed by the
// external decision advisor. Advisor output is untrusted free-form
// JSON: it is repaired, decoded and schema-checked before anything
// reaches the risk validator, and it never touches persistence
// directly.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"

	"github.com/omxlab/equityrun/internal/domain/market"
)

// Oracle proposes candidate actions for the current portfolio context.
// Implementations wrap an external service; the core only sees the
// parsed batch.
type Oracle interface {
	ProposeActions(ctx context.Context, portfolio PortfolioContext) ([]market.Action, error)
}

// PortfolioContext is the summary handed to the oracle with each call.
type PortfolioContext struct {
	Cash          float64              `json:"cash"`
	TotalValue    float64              `json:"total_value"`
	Positions     []market.Position    `json:"positions"`
	Opportunities []market.Opportunity `json:"opportunities"`
}

// batchEnvelope tolerates the two shapes advisors produce: a bare
// array or an object wrapping one.
type batchEnvelope struct {
	Actions []market.Action `json:"actions"`
}

// ParseActions turns a raw advisor response into a validated batch.
// Malformed JSON is repaired first; responses wrapped in markdown
// fences are unwrapped. Individually invalid actions are dropped with
// a log line, never forwarded; an unparseable response is an error.
func ParseActions(raw string) ([]market.Action, error) {
	cleaned := stripFences(raw)
	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to repair advisor JSON: %w", err)
	}

	var batch []market.Action
	if err := json.Unmarshal([]byte(repaired), &batch); err != nil {
		var envelope batchEnvelope
		if err2 := json.Unmarshal([]byte(repaired), &envelope); err2 != nil {
			return nil, fmt.Errorf("advisor response is neither an action array nor an envelope: %w", err)
		}
		batch = envelope.Actions
	}

	valid := make([]market.Action, 0, len(batch))
	for i, action := range batch {
		if err := Validate(action); err != nil {
			log.Warn().Err(err).Int("index", i).Str("instrument", action.Instrument).Msg("dropping invalid advisor action")
			continue
		}
		valid = append(valid, action)
	}
	return valid, nil
}

// Validate checks one action against the schema: a known action type,
// a non-empty instrument, confidence in [0,100] and, for BUY, a size
// in (0,100].
func Validate(action market.Action) error {
	switch action.Type {
	case market.ActionBuy, market.ActionSell, market.ActionHold:
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
	if strings.TrimSpace(action.Instrument) == "" {
		return fmt.Errorf("missing instrument")
	}
	if action.Confidence < 0 || action.Confidence > 100 {
		return fmt.Errorf("confidence %.1f outside [0,100]", action.Confidence)
	}
	if action.Type == market.ActionBuy && (action.SizePct <= 0 || action.SizePct > 100) {
		return fmt.Errorf("buy size %.1f%% outside (0,100]", action.SizePct)
	}
	return nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
