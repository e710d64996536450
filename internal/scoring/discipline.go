package scoring

import (
	"strings"

	"github.com/openbench/tradearena/internal/agents"
	"github.com/openbench/tradearena/internal/portfolio"
)

// holdJustificationMin is the shortest acceptable hold reasoning
const holdJustificationMin = 40

// Violation kinds emitted by AnalyzeDiscipline
const (
	ViolationShortHoldJustification = "hold_justification_too_short"
	ViolationMissingReasoning       = "missing_reasoning"
	ViolationInvalidAction          = "invalid_action"
	ViolationMissingSymbol          = "missing_symbol"
	ViolationMissingPrediction      = "missing_predicted_outcome"
	ViolationMissingSources         = "missing_sources"
	ViolationNonPositiveQuantity    = "non_positive_quantity"
	ViolationQuantityExceedsBook    = "quantity_exceeds_portfolio"
	ViolationConfidenceOutOfRange   = "confidence_out_of_range"
)

// DisciplineResult is the pass/fail gate with its reasons
type DisciplineResult struct {
	Passed     bool     `json:"passed"`
	Violations []string `json:"violations"`
}

// AnalyzeDiscipline checks the structural hygiene of a decision:
// required fields, justification length on holds, quantity bounds and
// confidence range. The portfolio is optional; book-relative checks
// are skipped without it.
func AnalyzeDiscipline(d *agents.TradingDecision, pf *portfolio.Context) DisciplineResult {
	violations := []string{}

	reasoning := strings.TrimSpace(d.Reasoning)
	if reasoning == "" {
		violations = append(violations, ViolationMissingReasoning)
	}

	if !d.Action.Valid() {
		violations = append(violations, ViolationInvalidAction)
	}

	if d.IsHold() {
		if reasoning != "" && len(reasoning) < holdJustificationMin {
			violations = append(violations, ViolationShortHoldJustification)
		}
	} else {
		if d.Symbol == "" {
			violations = append(violations, ViolationMissingSymbol)
		}
		if len(d.Sources) == 0 {
			violations = append(violations, ViolationMissingSources)
		}
		if d.Quantity <= 0 {
			violations = append(violations, ViolationNonPositiveQuantity)
		}
		if pf != nil && pf.TotalValue > 0 {
			notional := d.Quantity
			if d.Action == agents.ActionSell {
				if pos, ok := pf.Position(d.Symbol); ok {
					notional = d.Quantity * pos.CurrentPrice
				}
			}
			if notional > pf.TotalValue {
				violations = append(violations, ViolationQuantityExceedsBook)
			}
		}
	}

	if d.PredictedOutcome == "" {
		violations = append(violations, ViolationMissingPrediction)
	}

	if d.Confidence < 0 || d.Confidence > 100 {
		violations = append(violations, ViolationConfidenceOutOfRange)
	}

	return DisciplineResult{Passed: len(violations) == 0, Violations: violations}
}
