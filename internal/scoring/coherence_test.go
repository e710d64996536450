package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openbench/tradearena/internal/agents"
)

func decision(action agents.Action, symbol, reasoning string) *agents.TradingDecision {
	return &agents.TradingDecision{
		Action:     action,
		Symbol:     symbol,
		Quantity:   100,
		Reasoning:  reasoning,
		Confidence: 70,
	}
}

func TestAnalyzeCoherence_AlignedBuy(t *testing.T) {
	d := decision(agents.ActionBuy, "BTC",
		"BTC looks bullish: oversold RSI, a breakout above resistance and momentum building on rising volume.")

	res := AnalyzeCoherence(d)
	assert.Greater(t, res.Score, 0.8)
}

func TestAnalyzeCoherence_ContradictoryBuy(t *testing.T) {
	d := decision(agents.ActionBuy, "BTC",
		"BTC is deep in a downtrend, bearish structure everywhere, overbought bounce likely to fail in this sell-off.")

	res := AnalyzeCoherence(d)
	assert.Less(t, res.Score, 0.3)
}

func TestAnalyzeCoherence_BalancedHold(t *testing.T) {
	d := decision(agents.ActionHold, "ETH",
		"Mixed signals on ETH: one bullish breakout attempt against a bearish volume decline, so I wait for confirmation.")
	d.Quantity = 0

	res := AnalyzeCoherence(d)
	assert.Greater(t, res.Score, 0.6)
}

func TestAnalyzeCoherence_EmptyReasoning(t *testing.T) {
	d := decision(agents.ActionBuy, "BTC", "   ")

	res := AnalyzeCoherence(d)
	assert.InDelta(t, 0.1, res.Score, 1e-9)
	assert.Equal(t, "no reasoning provided", res.Explanation)
}

func TestAnalyzeCoherence_ZeroQuantityTradeHalvesScore(t *testing.T) {
	d := decision(agents.ActionBuy, "BTC", "Momentum building after the breakout.")
	withQty := AnalyzeCoherence(d)

	d.Quantity = 0
	withoutQty := AnalyzeCoherence(d)
	assert.InDelta(t, withQty.Score/2, withoutQty.Score, 1e-9)
}

func TestAnalyzeCoherence_UnmentionedSymbolPenalized(t *testing.T) {
	mentioned := decision(agents.ActionBuy, "SOL", "SOL shows a bullish breakout with momentum building.")
	unmentioned := decision(agents.ActionBuy, "SOL", "A bullish breakout with momentum building.")

	assert.Greater(t, AnalyzeCoherence(mentioned).Score, AnalyzeCoherence(unmentioned).Score)
}
