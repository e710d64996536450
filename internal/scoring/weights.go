package scoring

import (
	"time"

	"github.com/Masterminds/semver/v3"
)

// Weights is one benchmark version's weighting of the forensic
// subscores. Each vector sums to 1.0.
type Weights struct {
	Version string `json:"version"`

	Coherence         float64 `json:"coherence"`
	HallucinationFree float64 `json:"hallucinationFree"`
	Discipline        float64 `json:"discipline"`
	Calibration       float64 `json:"calibration"`
	Depth             float64 `json:"depth"`
	SourceQuality     float64 `json:"sourceQuality"`
	Financial         float64 `json:"financial"`
	Stability         float64 `json:"stability"`
	Efficiency        float64 `json:"efficiency"`
}

// weightsV24 is the current benchmark vector. It shifts weight from
// raw text quality toward calibration and realized P&L compared to
// the v12 vector it replaced.
var weightsV24 = Weights{
	Version:           "v24",
	Coherence:         0.15,
	HallucinationFree: 0.15,
	Discipline:        0.10,
	Calibration:       0.15,
	Depth:             0.10,
	SourceQuality:     0.10,
	Financial:         0.15,
	Stability:         0.05,
	Efficiency:        0.05,
}

// weightsV12 is retained so historical runs can be rescored with the
// vector they were published under.
var weightsV12 = Weights{
	Version:           "v12",
	Coherence:         0.20,
	HallucinationFree: 0.20,
	Discipline:        0.10,
	Calibration:       0.10,
	Depth:             0.15,
	SourceQuality:     0.10,
	Financial:         0.10,
	Stability:         0.05,
	Efficiency:        0.00,
}

// WeightsFor selects the weight vector for a benchmark version tag.
// Tags from major 24 on use the v24 vector, older tags the v12 one.
// Unparseable tags fall back to the current vector.
func WeightsFor(version string) Weights {
	v, err := semver.NewVersion(version)
	if err != nil {
		return weightsV24
	}
	if v.Major() >= 24 {
		return weightsV24
	}
	return weightsV12
}

// SubScores are the per-decision forensic subscores, each in [0,1].
type SubScores struct {
	Coherence         float64 `json:"coherence"`
	HallucinationFree float64 `json:"hallucinationFree"`
	Discipline        float64 `json:"discipline"`
	Depth             float64 `json:"depth"`
	SourceQuality     float64 `json:"sourceQuality"`
	Efficiency        float64 `json:"efficiency"`
}

// EntryScore folds one decision's subscores into the forensic score
// recorded on its ledger entry. Calibration, stability and financial
// weight cannot be judged from a single decision, so their mass is
// redistributed proportionally across the per-decision terms.
func (w Weights) EntryScore(s SubScores) float64 {
	perDecision := w.Coherence + w.HallucinationFree + w.Discipline + w.Depth + w.SourceQuality + w.Efficiency
	if perDecision <= 0 {
		return 0
	}
	raw := w.Coherence*s.Coherence +
		w.HallucinationFree*s.HallucinationFree +
		w.Discipline*s.Discipline +
		w.Depth*s.Depth +
		w.SourceQuality*s.SourceQuality +
		w.Efficiency*s.Efficiency
	return clamp01(raw / perDecision)
}

// AgentScores are an agent's rolling subscore averages plus the
// slow-moving terms that only exist at the agent level.
type AgentScores struct {
	SubScores

	Calibration float64 `json:"calibration"`
	Financial   float64 `json:"financial"`
	Stability   float64 `json:"stability"`
}

// Composite is the weighted benchmark score for one agent in [0,1].
func (w Weights) Composite(s AgentScores) float64 {
	raw := w.Coherence*s.Coherence +
		w.HallucinationFree*s.HallucinationFree +
		w.Discipline*s.Discipline +
		w.Calibration*s.Calibration +
		w.Depth*s.Depth +
		w.SourceQuality*s.SourceQuality +
		w.Financial*s.Financial +
		w.Stability*s.Stability +
		w.Efficiency*s.Efficiency
	return clamp01(raw)
}

// FinancialScore maps a rolling P&L percentage onto [0,1] with 0.5 at
// break-even. The ±10% band covers realistic per-benchmark swings;
// anything beyond saturates.
func FinancialScore(pnlPercent float64) float64 {
	return clamp01(0.5 + pnlPercent/20.0)
}

// EfficiencyScore rewards decisions that arrive well before the
// per-agent deadline. A decision at the wire scores 0, an instant
// one scores 1.
func EfficiencyScore(elapsed, deadline time.Duration) float64 {
	if deadline <= 0 {
		return 0
	}
	return clamp01(1.0 - float64(elapsed)/float64(deadline))
}
