package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openbench/tradearena/internal/agents"
	"github.com/openbench/tradearena/internal/portfolio"
)

func wellFormedBuy() *agents.TradingDecision {
	return &agents.TradingDecision{
		Action:           agents.ActionBuy,
		Symbol:           "BTC",
		Quantity:         250,
		Reasoning:        "Volume and RSI both support accumulation at this level.",
		Confidence:       65,
		Sources:          []string{"price feed", "technical indicators"},
		PredictedOutcome: "BTC trades above entry within 24h",
	}
}

func TestAnalyzeDiscipline_CleanDecisionPasses(t *testing.T) {
	res := AnalyzeDiscipline(wellFormedBuy(), nil)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Violations)
}

func TestAnalyzeDiscipline_ShortHoldJustification(t *testing.T) {
	d := &agents.TradingDecision{
		Action:           agents.ActionHold,
		Reasoning:        "nothing to do",
		Confidence:       50,
		PredictedOutcome: "flat market",
	}

	res := AnalyzeDiscipline(d, nil)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Violations, ViolationShortHoldJustification)
}

func TestAnalyzeDiscipline_TradeFieldViolations(t *testing.T) {
	d := wellFormedBuy()
	d.Symbol = ""
	d.Quantity = 0
	d.Sources = nil
	d.PredictedOutcome = ""
	d.Confidence = 140

	res := AnalyzeDiscipline(d, nil)
	assert.False(t, res.Passed)
	assert.ElementsMatch(t, []string{
		ViolationMissingSymbol,
		ViolationMissingSources,
		ViolationNonPositiveQuantity,
		ViolationMissingPrediction,
		ViolationConfidenceOutOfRange,
	}, res.Violations)
}

func TestAnalyzeDiscipline_QuantityExceedsBook(t *testing.T) {
	d := wellFormedBuy()
	d.Quantity = 50000

	pf := &portfolio.Context{AgentID: "agent-1", CashBalance: 1000, TotalValue: 1000}
	res := AnalyzeDiscipline(d, pf)
	assert.Contains(t, res.Violations, ViolationQuantityExceedsBook)
}

func TestAnalyzeDiscipline_SellNotionalUsesPosition(t *testing.T) {
	d := wellFormedBuy()
	d.Action = agents.ActionSell
	d.Quantity = 2 // units

	pf := &portfolio.Context{
		AgentID:     "agent-1",
		CashBalance: 100,
		TotalValue:  1100,
		Positions: []portfolio.Position{
			{Symbol: "BTC", Quantity: 2, CurrentPrice: 5000},
		},
	}

	res := AnalyzeDiscipline(d, pf)
	assert.Contains(t, res.Violations, ViolationQuantityExceedsBook)
}

func TestAnalyzeDiscipline_MissingReasoning(t *testing.T) {
	d := wellFormedBuy()
	d.Reasoning = "  "

	res := AnalyzeDiscipline(d, nil)
	assert.Contains(t, res.Violations, ViolationMissingReasoning)
}
