package scoring

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openbench/tradearena/internal/agents"
)

const (
	// defaultMaxDecisions bounds the per-agent decision ring
	defaultMaxDecisions = 500
	// snapshotEvery triggers a trait snapshot on every Nth append
	snapshotEvery = 10
	// snapshotKeep bounds retained snapshots per agent
	snapshotKeep = 50
	// significantDrift is the 6-D distance above which drift matters
	significantDrift = 15.0
	// outcomeContext is how many decisions around a resolved outcome
	// feed the sensitivity traits
	outcomeContext = 3
)

// RecordedDecision is one decision as the personality store sees it
type RecordedDecision struct {
	AgentID     string        `json:"agentId"`
	RoundID     string        `json:"roundId"`
	Action      agents.Action `json:"action"`
	Symbol      string        `json:"symbol"`
	Confidence  float64       `json:"confidence"`
	PeerActions []string      `json:"peerActions"`
	PnlResult   *float64      `json:"pnlResult,omitempty"`
	Seq         int64         `json:"seq"`
}

// TraitSnapshot captures six personality traits, each in [0,100]
type TraitSnapshot struct {
	AgentID         string    `json:"agentId"`
	Seq             int64     `json:"seq"`
	DecisionCount   int       `json:"decisionCount"`
	Aggressiveness  float64   `json:"aggressiveness"`
	Contrarianism   float64   `json:"contrarianism"`
	Conviction      float64   `json:"conviction"`
	Diversification float64   `json:"diversification"`
	WinSensitivity  float64   `json:"winSensitivity"`
	LossSensitivity float64   `json:"lossSensitivity"`
	Timestamp       time.Time `json:"timestamp"`
}

func (s *TraitSnapshot) vector() [6]float64 {
	return [6]float64{
		s.Aggressiveness, s.Contrarianism, s.Conviction,
		s.Diversification, s.WinSensitivity, s.LossSensitivity,
	}
}

// DriftReport compares current traits against the agent's baseline
type DriftReport struct {
	AgentID     string         `json:"agentId"`
	Baseline    *TraitSnapshot `json:"baseline"`
	Current     *TraitSnapshot `json:"current"`
	Distance    float64        `json:"distance"`
	Significant bool           `json:"significant"`
}

// PersonalityStore tracks how each agent's trading character evolves.
// One writer (the orchestrator) appends; readers take snapshots.
type PersonalityStore struct {
	mu           sync.RWMutex
	maxDecisions int
	nextSeq      int64
	decisions    map[string][]*RecordedDecision
	appendCounts map[string]int64
	baselines    map[string]*TraitSnapshot
	snapshots    map[string][]*TraitSnapshot
	log          zerolog.Logger
}

// NewPersonalityStore creates a store with the given per-agent ring
// size; zero or less takes the default of 500.
func NewPersonalityStore(maxDecisions int) *PersonalityStore {
	if maxDecisions <= 0 {
		maxDecisions = defaultMaxDecisions
	}
	return &PersonalityStore{
		maxDecisions: maxDecisions,
		decisions:    make(map[string][]*RecordedDecision),
		appendCounts: make(map[string]int64),
		baselines:    make(map[string]*TraitSnapshot),
		snapshots:    make(map[string][]*TraitSnapshot),
		log:          log.With().Str("component", "personality").Logger(),
	}
}

// Record appends one decision with its round peer context. Every 10th
// append per agent takes a trait snapshot; the first snapshot becomes
// the agent's baseline. Returns the snapshot when one was taken.
func (p *PersonalityStore) Record(agentID, roundID string, action agents.Action, symbol string, confidence float64, peerActions []string) *TraitSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := &RecordedDecision{
		AgentID:     agentID,
		RoundID:     roundID,
		Action:      action,
		Symbol:      symbol,
		Confidence:  confidence,
		PeerActions: append([]string(nil), peerActions...),
		Seq:         p.nextSeq,
	}
	p.nextSeq++

	ring := append(p.decisions[agentID], rec)
	if len(ring) > p.maxDecisions {
		ring = ring[len(ring)-p.maxDecisions:]
	}
	p.decisions[agentID] = ring
	p.appendCounts[agentID]++

	if p.appendCounts[agentID]%snapshotEvery != 0 {
		return nil
	}

	snap := p.computeTraitsLocked(agentID)
	if snap == nil {
		return nil
	}

	if p.baselines[agentID] == nil {
		p.baselines[agentID] = snap
	}
	kept := append(p.snapshots[agentID], snap)
	if len(kept) > snapshotKeep {
		kept = kept[len(kept)-snapshotKeep:]
	}
	p.snapshots[agentID] = kept

	p.log.Debug().
		Str("agent_id", agentID).
		Int64("seq", snap.Seq).
		Float64("aggressiveness", snap.Aggressiveness).
		Float64("conviction", snap.Conviction).
		Msg("Personality snapshot taken")
	return snap
}

// ResolveOutcome attaches a realized P&L to the agent's decision for
// the round so later snapshots can measure outcome sensitivity.
func (p *PersonalityStore) ResolveOutcome(agentID, roundID string, pnlPercent float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, rec := range p.decisions[agentID] {
		if rec.RoundID == roundID && rec.PnlResult == nil {
			v := pnlPercent
			rec.PnlResult = &v
			return true
		}
	}
	return false
}

// Drift reports trait movement between baseline and the latest
// snapshot; significant above a 6-D Euclidean distance of 15.
func (p *PersonalityStore) Drift(agentID string) (*DriftReport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	baseline := p.baselines[agentID]
	snaps := p.snapshots[agentID]
	if baseline == nil || len(snaps) == 0 {
		return nil, false
	}
	current := snaps[len(snaps)-1]

	bv, cv := baseline.vector(), current.vector()
	sum := 0.0
	for i := range bv {
		d := cv[i] - bv[i]
		sum += d * d
	}
	distance := math.Sqrt(sum)

	return &DriftReport{
		AgentID:     agentID,
		Baseline:    baseline,
		Current:     current,
		Distance:    distance,
		Significant: distance > significantDrift,
	}, true
}

// StabilityScore maps drift onto [0,1] for the composite; an agent
// with no drift evidence yet scores 1.
func (p *PersonalityStore) StabilityScore(agentID string) float64 {
	report, ok := p.Drift(agentID)
	if !ok {
		return 1
	}
	return clamp01(1 - report.Distance/(2*significantDrift))
}

// Snapshots returns the retained snapshots for an agent, oldest first
func (p *PersonalityStore) Snapshots(agentID string) []*TraitSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*TraitSnapshot(nil), p.snapshots[agentID]...)
}

// DecisionCount reports lifetime appends for an agent
func (p *PersonalityStore) DecisionCount(agentID string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.appendCounts[agentID]
}

func (p *PersonalityStore) computeTraitsLocked(agentID string) *TraitSnapshot {
	ring := p.decisions[agentID]
	if len(ring) == 0 {
		return nil
	}

	total := float64(len(ring))
	nonHold := 0
	confSum := 0.0
	symbolCounts := make(map[string]int)
	contrarian, majorityRounds := 0, 0

	for _, rec := range ring {
		confSum += rec.Confidence
		majority, hasMajority := peerMajority(rec.PeerActions)
		if hasMajority {
			majorityRounds++
		}
		if rec.Action == agents.ActionHold || !rec.Action.Valid() {
			continue
		}
		nonHold++
		symbolCounts[rec.Symbol]++
		if hasMajority && opposes(rec.Action, majority) {
			contrarian++
		}
	}

	snap := &TraitSnapshot{
		AgentID:        agentID,
		Seq:            ring[len(ring)-1].Seq,
		DecisionCount:  len(ring),
		Aggressiveness: 100 * float64(nonHold) / total,
		Conviction:     clampTrait(confSum / total),
		Timestamp:      time.Now().UTC(),
	}
	if majorityRounds > 0 {
		snap.Contrarianism = 100 * float64(contrarian) / float64(majorityRounds)
	}
	snap.Diversification = diversification(symbolCounts)
	snap.WinSensitivity, snap.LossSensitivity = p.outcomeSensitivityLocked(ring)
	return snap
}

// peerMajority is the dominant non-hold action among peers; ties and
// all-hold rounds have no majority.
func peerMajority(peerActions []string) (agents.Action, bool) {
	buys, sells := 0, 0
	for _, a := range peerActions {
		switch agents.Action(a) {
		case agents.ActionBuy:
			buys++
		case agents.ActionSell:
			sells++
		}
	}
	if buys == sells {
		return "", false
	}
	if buys > sells {
		return agents.ActionBuy, true
	}
	return agents.ActionSell, true
}

func opposes(action, majority agents.Action) bool {
	return (action == agents.ActionBuy && majority == agents.ActionSell) ||
		(action == agents.ActionSell && majority == agents.ActionBuy)
}

// diversification is normalized Shannon entropy over traded symbols
// scaled by a breadth factor, on the 0-100 trait scale.
func diversification(symbolCounts map[string]int) float64 {
	k := len(symbolCounts)
	if k <= 1 {
		return 0
	}
	total := 0
	for _, n := range symbolCounts {
		total += n
	}
	entropy := 0.0
	for _, n := range symbolCounts {
		pr := float64(n) / float64(total)
		entropy -= pr * math.Log(pr)
	}
	normalized := entropy / math.Log(float64(k))
	breadth := math.Min(1, float64(k)/5)
	return clampTrait(100 * normalized * breadth)
}

// outcomeSensitivityLocked measures behavior change around resolved
// outcomes: for each win (loss), compare average confidence and trade
// rate in the three decisions before versus after.
func (p *PersonalityStore) outcomeSensitivityLocked(ring []*RecordedDecision) (winSens, lossSens float64) {
	var winVals, lossVals []float64

	for i, rec := range ring {
		if rec.PnlResult == nil || *rec.PnlResult == 0 {
			continue
		}
		before := contextWindow(ring, i-outcomeContext, i)
		after := contextWindow(ring, i+1, i+1+outcomeContext)
		if len(before) == 0 || len(after) == 0 {
			continue
		}

		deltaConf := math.Abs(avgConfidence(after) - avgConfidence(before))
		deltaRate := math.Abs(tradeRate(after) - tradeRate(before))
		value := clampTrait(0.5*deltaConf + 50*deltaRate)

		if *rec.PnlResult > 0 {
			winVals = append(winVals, value)
		} else {
			lossVals = append(lossVals, value)
		}
	}

	return meanOrZero(winVals), meanOrZero(lossVals)
}

func contextWindow(ring []*RecordedDecision, lo, hi int) []*RecordedDecision {
	if lo < 0 {
		lo = 0
	}
	if hi > len(ring) {
		hi = len(ring)
	}
	if lo >= hi {
		return nil
	}
	return ring[lo:hi]
}

func avgConfidence(recs []*RecordedDecision) float64 {
	sum := 0.0
	for _, r := range recs {
		sum += r.Confidence
	}
	return sum / float64(len(recs))
}

func tradeRate(recs []*RecordedDecision) float64 {
	trades := 0
	for _, r := range recs {
		if r.Action != agents.ActionHold {
			trades++
		}
	}
	return float64(trades) / float64(len(recs))
}

func meanOrZero(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return mean(xs)
}

func clampTrait(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 100 {
		return 100
	}
	return x
}
