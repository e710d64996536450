package scoring

import (
	"time"

	"github.com/openbench/tradearena/internal/agents"
	"github.com/openbench/tradearena/internal/market"
	"github.com/openbench/tradearena/internal/portfolio"
)

// Evaluation is everything the analyzer pool concluded about one
// decision. Sub carries the folded [0,1] subscores so downstream
// aggregators never recompute them.
type Evaluation struct {
	Coherence     CoherenceResult     `json:"coherence"`
	Hallucination HallucinationResult `json:"hallucination"`
	Discipline    DisciplineResult    `json:"discipline"`
	Depth         DepthResult         `json:"depth"`
	SourceQuality SourceQualityResult `json:"sourceQuality"`
	Intent        string              `json:"intent"`
	Efficiency    float64             `json:"efficiency"`
	Sub           SubScores           `json:"subScores"`
	ForensicScore float64             `json:"forensicScore"`
}

// Bundle owns the per-process analyzer state: the stateless text
// analyzers plus the calibration and personality trackers that
// accumulate across rounds.
type Bundle struct {
	Weights     Weights
	Calibration *CalibrationTracker
	Personality *PersonalityStore
}

// NewBundle builds the analyzer pool for one benchmark version.
// maxSamples bounds the per-agent calibration history, maxDecisions
// the per-agent personality history.
func NewBundle(version string, maxSamples, maxDecisions int) *Bundle {
	return &Bundle{
		Weights:     WeightsFor(version),
		Calibration: NewCalibrationTracker(maxSamples),
		Personality: NewPersonalityStore(maxDecisions),
	}
}

// EvaluateDecision runs every per-decision analyzer against one
// decision and folds the results into its forensic score. elapsed is
// how long the agent took against its deadline.
func (b *Bundle) EvaluateDecision(d *agents.TradingDecision, pf *portfolio.Context, snap *market.Snapshot, elapsed, deadline time.Duration) Evaluation {
	ev := Evaluation{
		Coherence:     AnalyzeCoherence(d),
		Hallucination: AnalyzeHallucinations(d, snap),
		Discipline:    AnalyzeDiscipline(d, pf),
		Depth:         AnalyzeDepth(d.Reasoning),
		SourceQuality: AnalyzeSourceQuality(d),
		Intent:        ClassifyIntent(d),
		Efficiency:    EfficiencyScore(elapsed, deadline),
	}
	ev.Sub = SubScores{
		Coherence:         ev.Coherence.Score,
		HallucinationFree: clamp01(1 - ev.Hallucination.Severity),
		Discipline:        boolScore(ev.Discipline.Passed),
		Depth:             ev.Depth.Score,
		SourceQuality:     ev.SourceQuality.Score,
		Efficiency:        ev.Efficiency,
	}
	ev.ForensicScore = b.Weights.EntryScore(ev.Sub)
	return ev
}
