package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/openbench/tradearena/internal/agents"
)

// Round consensus classifications
const (
	ConsensusUnanimous    = "unanimous"
	ConsensusMajorityBuy  = "majority_buy"
	ConsensusMajoritySell = "majority_sell"
	ConsensusSplit        = "split"
	ConsensusNoTrades     = "no_trades"
)

// ClassifyConsensus labels the set-level agreement of one round's
// decisions. Holds do not count as trades; unanimity requires every
// non-hold decision to share one action.
func ClassifyConsensus(decisions []agents.TradingDecision) string {
	buys, sells := 0, 0
	for _, d := range decisions {
		switch d.Action {
		case agents.ActionBuy:
			buys++
		case agents.ActionSell:
			sells++
		}
	}

	switch {
	case buys+sells == 0:
		return ConsensusNoTrades
	case buys > 0 && sells == 0, sells > 0 && buys == 0:
		return ConsensusUnanimous
	case buys > sells:
		return ConsensusMajorityBuy
	case sells > buys:
		return ConsensusMajoritySell
	default:
		return ConsensusSplit
	}
}

// PairedRound is one round where both compared agents resolved a P&L
type PairedRound struct {
	RoundID string  `json:"roundId"`
	PnlA    float64 `json:"pnlA"`
	PnlB    float64 `json:"pnlB"`
}

// drawTolerance treats per-round P&L differences below this as draws
const drawTolerance = 1e-9

// HeadToHeadReport compares two agents over their shared rounds
type HeadToHeadReport struct {
	AgentA string `json:"agentA"`
	AgentB string `json:"agentB"`
	Rounds int    `json:"rounds"`

	WinsA int `json:"winsA"`
	WinsB int `json:"winsB"`
	Draws int `json:"draws"`

	MeanPnlA float64            `json:"meanPnlA"`
	MeanPnlB float64            `json:"meanPnlB"`
	CIA      ConfidenceInterval `json:"ciA"`
	CIB      ConfidenceInterval `json:"ciB"`

	Welch   *WelchResult `json:"welch,omitempty"`
	Cohen   *CohenResult `json:"cohen,omitempty"`
	Verdict string       `json:"verdict"`
}

// HeadToHead scores agent A against agent B on paired per-round P&L:
// win/loss/draw tallies, Welch's t-test on the two P&L samples,
// Cohen's d effect size and 95% confidence intervals for each mean.
// Needs at least two paired rounds.
func HeadToHead(agentA, agentB string, pairs []PairedRound) (*HeadToHeadReport, error) {
	if len(pairs) < 2 {
		return nil, errors.New("head-to-head comparison requires at least 2 paired rounds")
	}

	report := &HeadToHeadReport{
		AgentA: agentA,
		AgentB: agentB,
		Rounds: len(pairs),
	}

	pnlA := make([]float64, len(pairs))
	pnlB := make([]float64, len(pairs))
	for i, p := range pairs {
		pnlA[i], pnlB[i] = p.PnlA, p.PnlB
		switch {
		case math.Abs(p.PnlA-p.PnlB) < drawTolerance:
			report.Draws++
		case p.PnlA > p.PnlB:
			report.WinsA++
		default:
			report.WinsB++
		}
	}

	report.MeanPnlA = mean(pnlA)
	report.MeanPnlB = mean(pnlB)

	ciA, err := MeanCI(pnlA)
	if err != nil {
		return nil, err
	}
	ciB, err := MeanCI(pnlB)
	if err != nil {
		return nil, err
	}
	report.CIA, report.CIB = ciA, ciB

	welch, err := WelchT(pnlA, pnlB)
	if err == nil {
		report.Welch = welch
	}
	cohen, err := CohensD(pnlA, pnlB)
	if err == nil {
		report.Cohen = cohen
	}

	report.Verdict = verdict(report)
	return report, nil
}

// verdict renders the comparison into one line. A difference only
// counts as significant below the conventional 0.05 p-value.
func verdict(r *HeadToHeadReport) string {
	if r.Welch == nil {
		return "insufficient data for a statistical comparison"
	}

	leader, trailer := r.AgentA, r.AgentB
	if r.MeanPnlB > r.MeanPnlA {
		leader, trailer = r.AgentB, r.AgentA
	}

	effect := "negligible"
	if r.Cohen != nil {
		effect = r.Cohen.Label
	}

	if r.Welch.PValue < 0.05 {
		return fmt.Sprintf("%s outperforms %s (p=%.4f, %s effect)", leader, trailer, r.Welch.PValue, effect)
	}
	return fmt.Sprintf("no significant difference between %s and %s (p=%.4f, %s effect)", r.AgentA, r.AgentB, r.Welch.PValue, effect)
}
