package scoring

import (
	"math"
	"sync"
)

// calibrationBins is the fixed equal-width bin count for ECE
const calibrationBins = 10

// defaultCalibrationHistory bounds per-agent (confidence, outcome) pairs
const defaultCalibrationHistory = 500

type calibSample struct {
	confidence float64 // normalized to [0,1]
	correct    bool
}

// CalibrationBin is one equal-width confidence bucket
type CalibrationBin struct {
	Lower         float64 `json:"lower"`
	Upper         float64 `json:"upper"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avgConfidence"`
	Accuracy      float64 `json:"accuracy"`
}

// CalibrationReport summarizes how well stated confidence predicts
// outcomes for one agent.
type CalibrationReport struct {
	Samples   int              `json:"samples"`
	ECE       float64          `json:"ece"`
	Brier     float64          `json:"brier"`
	Monotonic bool             `json:"monotonic"`
	Score     float64          `json:"score"`
	Bins      []CalibrationBin `json:"bins"`
}

// CalibrationTracker accumulates resolved (confidence, correct) pairs
// per agent. Outcomes arrive later than decisions, so recording is
// driven by ledger outcome resolution.
type CalibrationTracker struct {
	mu         sync.Mutex
	maxSamples int
	samples    map[string][]calibSample
}

// NewCalibrationTracker creates a tracker keeping at most maxSamples
// pairs per agent; zero or less takes the default.
func NewCalibrationTracker(maxSamples int) *CalibrationTracker {
	if maxSamples <= 0 {
		maxSamples = defaultCalibrationHistory
	}
	return &CalibrationTracker{
		maxSamples: maxSamples,
		samples:    make(map[string][]calibSample),
	}
}

// Record adds one resolved pair. Confidence arrives on the 0-100
// decision scale and is normalized here.
func (t *CalibrationTracker) Record(agentID string, confidence float64, correct bool) {
	conf := clamp01(confidence / 100)

	t.mu.Lock()
	defer t.mu.Unlock()

	s := append(t.samples[agentID], calibSample{confidence: conf, correct: correct})
	if len(s) > t.maxSamples {
		s = s[len(s)-t.maxSamples:]
	}
	t.samples[agentID] = s
}

// Report computes ECE over ten equal-width bins, the Brier score and
// a monotonicity flag (accuracy non-decreasing across occupied bins).
// Returns false when the agent has no resolved pairs yet.
func (t *CalibrationTracker) Report(agentID string) (*CalibrationReport, bool) {
	t.mu.Lock()
	samples := append([]calibSample(nil), t.samples[agentID]...)
	t.mu.Unlock()

	if len(samples) == 0 {
		return nil, false
	}

	bins := make([]CalibrationBin, calibrationBins)
	for i := range bins {
		bins[i].Lower = float64(i) / calibrationBins
		bins[i].Upper = float64(i+1) / calibrationBins
	}

	confSums := make([]float64, calibrationBins)
	hitCounts := make([]int, calibrationBins)
	brier := 0.0

	for _, s := range samples {
		idx := int(s.confidence * calibrationBins)
		if idx >= calibrationBins {
			idx = calibrationBins - 1
		}
		bins[idx].Count++
		confSums[idx] += s.confidence
		outcome := 0.0
		if s.correct {
			outcome = 1
			hitCounts[idx]++
		}
		d := s.confidence - outcome
		brier += d * d
	}
	brier /= float64(len(samples))

	ece := 0.0
	n := float64(len(samples))
	for i := range bins {
		if bins[i].Count == 0 {
			continue
		}
		bins[i].AvgConfidence = confSums[i] / float64(bins[i].Count)
		bins[i].Accuracy = float64(hitCounts[i]) / float64(bins[i].Count)
		ece += float64(bins[i].Count) / n * math.Abs(bins[i].Accuracy-bins[i].AvgConfidence)
	}

	monotonic := true
	prev := -1.0
	for i := range bins {
		if bins[i].Count == 0 {
			continue
		}
		if bins[i].Accuracy < prev-1e-9 {
			monotonic = false
			break
		}
		prev = bins[i].Accuracy
	}

	return &CalibrationReport{
		Samples:   len(samples),
		ECE:       ece,
		Brier:     brier,
		Monotonic: monotonic,
		Score:     clamp01(1 - ece),
		Bins:      bins,
	}, true
}
