package scoring

import (
	"regexp"
	"strings"

	"github.com/openbench/tradearena/internal/agents"
)

// categoryPatterns maps each evidence category to its detector. The
// category set is fixed; adding one changes score comparability
// across benchmark versions.
var categoryPatterns = map[string]*regexp.Regexp{
	"price":       regexp.MustCompile(`(?i)\bprice|quote|last trade|\$\d`),
	"volume":      regexp.MustCompile(`(?i)\bvolume|turnover|liquidity`),
	"news":        regexp.MustCompile(`(?i)\bnews|headline|report|announce`),
	"technical":   regexp.MustCompile(`(?i)\brsi|sma|ema|macd|indicator|chart|trend|support|resistance`),
	"portfolio":   regexp.MustCompile(`(?i)\bportfolio|position|balance|holding|cash`),
	"sentiment":   regexp.MustCompile(`(?i)\bsentiment|fear|greed|mood|social`),
	"peer":        regexp.MustCompile(`(?i)\bpeer|other agent|consensus|majority`),
	"risk":        regexp.MustCompile(`(?i)\brisk|drawdown|exposure|stop.?loss|volatil`),
	"macro":       regexp.MustCompile(`(?i)\bmacro|fed\b|inflation|interest rate|cpi|economy`),
	"fundamental": regexp.MustCompile(`(?i)\bfundamental|adoption|on.?chain|network activity|utility`),
}

// categoryOrder keeps reported categories deterministic
var categoryOrder = []string{
	"price", "volume", "news", "technical", "portfolio",
	"sentiment", "peer", "risk", "macro", "fundamental",
}

var specificityRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

var crossRefCues = []string{
	"combined with", "aligns with", "confirmed by", "consistent with",
	"corroborat", "matches the", "agrees with",
}

var integrationCues = []string{
	"weighing", "balancing", "taken together", "considering all",
	"on balance", "net of", "putting it together", "all factors",
}

// Source-quality weights; they sum to 1
const (
	sourceWeightCategories  = 0.40
	sourceWeightSpecificity = 0.25
	sourceWeightCrossRef    = 0.20
	sourceWeightIntegration = 0.15
)

// SourceQualityResult reports the evidence profile of a decision
type SourceQualityResult struct {
	Score           float64  `json:"score"`
	Categories      []string `json:"categories"`
	Specificity     int      `json:"specificity"`
	CrossReferences int      `json:"crossReferences"`
	Integration     int      `json:"integration"`
}

// AnalyzeSourceQuality detects which evidence categories the decision
// draws on, how specific it is (numeric anchors), whether sources are
// cross-referenced against each other, and whether they are integrated
// into a single judgement. Fixed weighted sum.
func AnalyzeSourceQuality(d *agents.TradingDecision) SourceQualityResult {
	text := d.Reasoning + " " + strings.Join(d.Sources, " ")

	categories := make([]string, 0, 4)
	for _, name := range categoryOrder {
		if categoryPatterns[name].MatchString(text) {
			categories = append(categories, name)
		}
	}

	lower := strings.ToLower(text)
	specificity := len(specificityRe.FindAllString(text, -1))
	crossRefs := countCues(lower, crossRefCues)
	integration := countCues(lower, integrationCues)

	score := sourceWeightCategories*capRatio(len(categories), 4) +
		sourceWeightSpecificity*capRatio(specificity, 5) +
		sourceWeightCrossRef*capRatio(crossRefs, 2) +
		sourceWeightIntegration*capRatio(integration, 2)

	return SourceQualityResult{
		Score:           clamp01(score),
		Categories:      categories,
		Specificity:     specificity,
		CrossReferences: crossRefs,
		Integration:     integration,
	}
}
