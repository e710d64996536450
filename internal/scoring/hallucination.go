package scoring

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/openbench/tradearena/internal/agents"
	"github.com/openbench/tradearena/internal/market"
)

var (
	tickerRe  = regexp.MustCompile(`\b[A-Z]{2,6}\b`)
	percentRe = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*%`)
)

// knownAcronyms are uppercase tokens that are not ticker references
var knownAcronyms = map[string]struct{}{
	"USD": {}, "USDT": {}, "USDC": {}, "RSI": {}, "SMA": {}, "EMA": {},
	"MACD": {}, "ATH": {}, "ATL": {}, "ETF": {}, "SEC": {}, "FED": {},
	"FOMC": {}, "CPI": {}, "GDP": {}, "API": {}, "PNL": {}, "ROI": {},
	"AI": {}, "LLM": {}, "OK": {}, "NOT": {}, "AND": {}, "THE": {},
	"BUY": {}, "SELL": {}, "HOLD": {}, "TVL": {}, "APY": {}, "APR": {},
	"DCA": {},
}

var certaintyCues = []string{
	"guaranteed", "will definitely", "certain to", "100% chance",
	"cannot lose", "risk-free", "no risk", "sure thing",
}

var citationCues = []string{
	"according to", "reported by", "sources say", "announced that",
}

// Flag kinds emitted by AnalyzeHallucinations
const (
	FlagUnknownTicker      = "unknown_ticker"
	FlagInventedPercentage = "invented_percentage"
	FlagImplausiblePercent = "implausible_percentage"
	FlagUncitedClaim       = "uncited_claim"
	FlagUnverifiableSource = "unverifiable_source"
	FlagCertaintyClaim     = "certainty_claim"
)

var flagWeights = map[string]float64{
	FlagUnknownTicker:      0.30,
	FlagInventedPercentage: 0.25,
	FlagImplausiblePercent: 0.20,
	FlagUncitedClaim:       0.15,
	FlagUnverifiableSource: 0.20,
	FlagCertaintyClaim:     0.15,
}

// HallucinationResult lists fabrication flags with aggregate severity
type HallucinationResult struct {
	Flags    []string `json:"flags"`
	Severity float64  `json:"severity"`
}

// AnalyzeHallucinations pattern-matches the reasoning against the
// round snapshot: tickers that do not exist, 24h percentages that
// contradict observed data, citations with no source, and certainty
// language no market supports.
func AnalyzeHallucinations(d *agents.TradingDecision, snap *market.Snapshot) HallucinationResult {
	flags := []string{}
	text := d.Reasoning
	lower := strings.ToLower(text)

	for _, token := range tickerRe.FindAllString(text, -1) {
		if _, ok := knownAcronyms[token]; ok {
			continue
		}
		if snap != nil {
			if _, ok := snap.Quote(token); ok {
				continue
			}
		}
		flags = append(flags, fmt.Sprintf("%s:%s", FlagUnknownTicker, token))
	}

	flags = append(flags, percentageFlags(lower, d.Symbol, snap)...)

	if containsAny(lower, citationCues) && len(d.Sources) == 0 {
		flags = append(flags, FlagUncitedClaim)
	}

	for _, src := range d.Sources {
		s := strings.ToLower(src)
		if strings.Contains(s, "insider") || strings.Contains(s, "leaked") ||
			strings.Contains(s, "confidential") || strings.Contains(s, "rumor") {
			flags = append(flags, fmt.Sprintf("%s:%s", FlagUnverifiableSource, src))
		}
	}

	if containsAny(lower, certaintyCues) {
		flags = append(flags, FlagCertaintyClaim)
	}

	return HallucinationResult{Flags: flags, Severity: severityOf(flags)}
}

// percentageFlags checks claimed percentages. A figure framed as a 24h
// move is compared against the snapshot within a 10-point tolerance;
// any figure beyond 75% is implausible for a single day regardless.
func percentageFlags(lower, symbol string, snap *market.Snapshot) []string {
	var flags []string

	claims24h := strings.Contains(lower, "24h") || strings.Contains(lower, "24 hour") ||
		strings.Contains(lower, "past day") || strings.Contains(lower, "today")

	var actual float64
	haveActual := false
	if snap != nil && symbol != "" {
		if q, ok := snap.Quote(symbol); ok {
			actual = q.Change24h * 100
			haveActual = true
		}
	}

	seenInvented := false
	seenImplausible := false
	for _, m := range percentRe.FindAllStringSubmatch(lower, -1) {
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if math.Abs(pct) > 75 && !seenImplausible {
			flags = append(flags, FlagImplausiblePercent)
			seenImplausible = true
		}
		if claims24h && haveActual && math.Abs(pct-actual) > 10 && math.Abs(pct) <= 75 && !seenInvented {
			flags = append(flags, FlagInventedPercentage)
			seenInvented = true
		}
	}
	return flags
}

func severityOf(flags []string) float64 {
	severity := 0.0
	for _, f := range flags {
		kind := f
		if i := strings.IndexByte(f, ':'); i >= 0 {
			kind = f[:i]
		}
		severity += flagWeights[kind]
	}
	return clamp01(severity)
}

func containsAny(text string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}
