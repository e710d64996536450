package scoring

import (
	"regexp"
	"strings"
)

var (
	stepMarkerRe = regexp.MustCompile(`(?i)\b(first|second|third|then|next|finally|step \d+)\b|\b\d+[.)]\s`)
	dollarRe     = regexp.MustCompile(`\$\d[\d,]*(?:\.\d+)?`)
	numPercentRe = regexp.MustCompile(`\d+(?:\.\d+)?\s*%`)
	wordRe       = regexp.MustCompile(`[a-z0-9]+`)
)

var connectiveCues = []string{
	"because", "therefore", "however", "although", "since", "thus",
	"consequently", "given that", "as a result", "due to", "despite",
	"whereas", "which means", "implies",
}

var indicatorTokens = []string{
	"rsi", "sma", "ema", "macd", "volume", "support", "resistance",
	"moving average", "volatility",
}

var counterCues = []string{
	"on the other hand", "however", "the risk is", "downside risk",
	"could fail", "counter-argument", "counterargument", "alternatively",
	"but if", "unless", "bear case", "bull case against",
}

var conclusionCues = []string{
	"therefore", "in conclusion", "overall", "on balance", "net",
	"so i will", "so i am", "my decision", "conclusion",
}

// Sub-score weights; they sum to 1
const (
	depthWeightSteps      = 0.20
	depthWeightConnective = 0.20
	depthWeightEvidence   = 0.25
	depthWeightCounter    = 0.15
	depthWeightConclusion = 0.10
	depthWeightVocabulary = 0.10
)

// DepthResult breaks reasoning depth into its measured parts
type DepthResult struct {
	Score            float64 `json:"score"`
	Steps            int     `json:"steps"`
	Connectives      int     `json:"connectives"`
	EvidenceAnchors  int     `json:"evidenceAnchors"`
	CounterArguments bool    `json:"counterArguments"`
	Conclusion       bool    `json:"conclusion"`
	TypeTokenRatio   float64 `json:"typeTokenRatio"`
}

// AnalyzeDepth measures structural reasoning quality: explicit steps,
// logical connectives, concrete evidence anchors (dollars, percents,
// indicator references), counter-argument presence, a recognizable
// conclusion and vocabulary richness. Fixed weighted sum.
func AnalyzeDepth(reasoning string) DepthResult {
	lower := strings.ToLower(reasoning)
	if strings.TrimSpace(lower) == "" {
		return DepthResult{}
	}

	steps := len(stepMarkerRe.FindAllString(reasoning, -1))
	connectives := countCues(lower, connectiveCues)
	evidence := len(dollarRe.FindAllString(reasoning, -1)) +
		len(numPercentRe.FindAllString(reasoning, -1)) +
		countCues(lower, indicatorTokens)
	counter := containsAny(lower, counterCues)
	conclusion := containsAny(lower, conclusionCues)

	words := wordRe.FindAllString(lower, -1)
	ttr := 0.0
	if len(words) > 0 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[w] = struct{}{}
		}
		ttr = float64(len(unique)) / float64(len(words))
	}

	score := depthWeightSteps*capRatio(steps, 4) +
		depthWeightConnective*capRatio(connectives, 3) +
		depthWeightEvidence*capRatio(evidence, 4) +
		depthWeightCounter*boolScore(counter) +
		depthWeightConclusion*boolScore(conclusion) +
		depthWeightVocabulary*clamp01((ttr-0.3)/0.4)

	return DepthResult{
		Score:            clamp01(score),
		Steps:            steps,
		Connectives:      connectives,
		EvidenceAnchors:  evidence,
		CounterArguments: counter,
		Conclusion:       conclusion,
		TypeTokenRatio:   ttr,
	}
}

func capRatio(n, full int) float64 {
	if n >= full {
		return 1
	}
	return float64(n) / float64(full)
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
