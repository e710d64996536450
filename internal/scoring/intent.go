package scoring

import (
	"strings"

	"github.com/openbench/tradearena/internal/agents"
)

var intentCues = map[string][]string{
	agents.IntentMomentum: {
		"momentum", "trend", "breakout", "breaking out", "moving average",
		"rsi", "macd", "volume surge", "continuation", "riding",
	},
	agents.IntentValue: {
		"undervalued", "overvalued", "fair value", "fundamentals",
		"intrinsic", "discount", "cheap", "expensive", "long-term value",
		"mispriced",
	},
	agents.IntentHedging: {
		"hedge", "hedging", "protect", "downside protection", "insurance",
		"offset", "reduce exposure", "de-risk", "defensive",
	},
	agents.IntentRebalance: {
		"rebalance", "rebalancing", "allocation", "target weight",
		"portfolio weight", "overweight", "underweight", "trim position",
		"diversif",
	},
	agents.IntentSpeculation: {
		"speculat", "gamble", "bet", "moonshot", "high risk", "lottery",
		"punt", "yolo",
	},
}

// classified intents carry deterministic priority on cue-count ties
var intentOrder = []string{
	agents.IntentMomentum,
	agents.IntentValue,
	agents.IntentHedging,
	agents.IntentRebalance,
	agents.IntentSpeculation,
}

// ClassifyIntent returns the decision's declared intent when it is one
// of the known motives, otherwise infers the motive from reasoning
// cues. Reasoning with no recognizable motive defaults to speculation.
func ClassifyIntent(d *agents.TradingDecision) string {
	declared := strings.ToLower(strings.TrimSpace(d.Intent))
	if _, ok := intentCues[declared]; ok {
		return declared
	}

	text := strings.ToLower(d.Reasoning)
	best, bestCount := agents.IntentSpeculation, 0
	for _, intent := range intentOrder {
		if n := countCues(text, intentCues[intent]); n > bestCount {
			best, bestCount = intent, n
		}
	}
	return best
}
