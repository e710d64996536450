package scoring

import (
	"fmt"
	"strings"

	"github.com/openbench/tradearena/internal/agents"
)

var bullishCues = []string{
	"bullish", "upside", "uptrend", "breakout", "oversold", "undervalued",
	"accumulate", "rally", "rebound", "recovery", "momentum building",
	"support holding", "higher high", "buy the dip", "upward",
}

var bearishCues = []string{
	"bearish", "downside", "downtrend", "breakdown", "overbought",
	"overvalued", "sell-off", "selloff", "distribution", "decline",
	"lower low", "losing support", "take profit", "downward", "correction",
}

var neutralCues = []string{
	"uncertain", "unclear", "sideways", "range-bound", "rangebound",
	"mixed signals", "no clear", "wait for", "stay flat", "conflicting",
}

// CoherenceResult grades how well the reasoning supports the action
type CoherenceResult struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// AnalyzeCoherence scores reasoning-to-action alignment from lexical
// direction cues. Balanced or neutral language supports a hold; a
// one-sided directional case supports the matching trade.
func AnalyzeCoherence(d *agents.TradingDecision) CoherenceResult {
	text := strings.ToLower(d.Reasoning)
	if strings.TrimSpace(text) == "" {
		return CoherenceResult{Score: 0.1, Explanation: "no reasoning provided"}
	}

	bull := countCues(text, bullishCues)
	bear := countCues(text, bearishCues)
	neut := countCues(text, neutralCues)

	var aligned, opposed int
	switch d.Action {
	case agents.ActionBuy:
		aligned, opposed = bull, bear
	case agents.ActionSell:
		aligned, opposed = bear, bull
	case agents.ActionHold:
		aligned = neut + min(bull, bear)
		opposed = abs(bull - bear)
	default:
		return CoherenceResult{Score: 0, Explanation: fmt.Sprintf("unknown action %q", d.Action)}
	}

	score := 0.5
	if aligned+opposed > 0 {
		score = 0.5 + 0.5*float64(aligned-opposed)/float64(aligned+opposed)
	}

	// Reasoning that never names the traded symbol is weaker evidence.
	if !d.IsHold() && d.Symbol != "" {
		if strings.Contains(text, strings.ToLower(d.Symbol)) {
			score += 0.05
		} else {
			score -= 0.05
		}
	}

	// A trade sized at zero contradicts any directional case.
	if !d.IsHold() && d.Quantity <= 0 {
		score *= 0.5
	}

	score = clamp01(score)
	return CoherenceResult{
		Score: score,
		Explanation: fmt.Sprintf("%s with %d supporting and %d opposing cues (%d bullish, %d bearish, %d neutral)",
			d.Action, aligned, opposed, bull, bear, neut),
	}
}

func countCues(text string, cues []string) int {
	n := 0
	for _, cue := range cues {
		n += strings.Count(text, cue)
	}
	return n
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
