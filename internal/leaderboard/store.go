// Package leaderboard maintains per-agent competitive aggregates and
// the ranked standings table served over HTTP.
package leaderboard

import (
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openbench/tradearena/internal/agents"
	"github.com/openbench/tradearena/internal/risk"
	"github.com/openbench/tradearena/internal/scoring"
)

const (
	// eloInitial is every agent's starting rating
	eloInitial = 1500.0
	// eloK is the per-pairing rating adjustment factor
	eloK = 32.0
	// eloDrawTolerance treats P&L differences below this as draws
	eloDrawTolerance = 1e-9
)

// Sort keys accepted by Top
const (
	SortComposite = "composite"
	SortElo       = "elo"
	SortPnl       = "pnl"
	SortWinRate   = "win_rate"
	SortSharpe    = "sharpe"
)

// Outcome is one agent's resolved result for a round
type Outcome struct {
	AgentID    string
	PnlPercent float64
	Correct    bool
	Traded     bool
}

// Row is one agent's standings snapshot
type Row struct {
	Rank             int     `json:"rank"`
	AgentID          string  `json:"agentId"`
	Name             string  `json:"name"`
	Model            string  `json:"model"`
	Decisions        int     `json:"decisions"`
	Trades           int     `json:"trades"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
	WinRate          float64 `json:"winRate"`
	TotalPnlPercent  float64 `json:"totalPnlPercent"`
	Sharpe           float64 `json:"sharpe"`
	MaxDrawdown      float64 `json:"maxDrawdown"`
	AvgConfidence    float64 `json:"avgConfidence"`
	CalibrationScore float64 `json:"calibrationScore"`
	StabilityScore   float64 `json:"stabilityScore"`
	Composite        float64 `json:"composite"`
	Elo              float64 `json:"elo"`
}

// agentStats is the mutable per-agent aggregate state
type agentStats struct {
	name  string
	model string

	decisions     int
	trades        int
	wins          int
	losses        int
	confidenceSum float64

	subSums  scoring.SubScores
	subCount int

	returns []float64 // resolved per-round P&L fractions
	equity  []float64 // index curve, starts at 100

	elo float64
}

// Store owns the standings. The orchestrator writes, HTTP reads.
type Store struct {
	mu      sync.RWMutex
	weights scoring.Weights
	bundle  *scoring.Bundle
	agents  map[string]*agentStats
	log     zerolog.Logger
}

// NewStore creates an empty standings table. The bundle supplies the
// calibration and stability terms of the composite at read time.
func NewStore(weights scoring.Weights, bundle *scoring.Bundle) *Store {
	return &Store{
		weights: weights,
		bundle:  bundle,
		agents:  make(map[string]*agentStats),
		log:     log.With().Str("component", "leaderboard").Logger(),
	}
}

// Register seeds a zeroed row so agents appear in the standings before
// their first decision.
func (s *Store) Register(cfg agents.AgentConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[cfg.ID]; ok {
		return
	}
	s.agents[cfg.ID] = &agentStats{
		name:   cfg.Name,
		model:  cfg.Model,
		elo:    eloInitial,
		equity: []float64{100},
	}
}

func (s *Store) statsLocked(agentID string) *agentStats {
	st, ok := s.agents[agentID]
	if !ok {
		st = &agentStats{elo: eloInitial, equity: []float64{100}}
		s.agents[agentID] = st
	}
	return st
}

// RecordDecision folds one evaluated decision into the agent's rolling
// aggregates. executed marks decisions that became fills.
func (s *Store) RecordDecision(agentID string, d *agents.TradingDecision, ev scoring.Evaluation, executed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.statsLocked(agentID)
	st.decisions++
	if executed {
		st.trades++
	}
	st.confidenceSum += d.Confidence

	st.subSums.Coherence += ev.Sub.Coherence
	st.subSums.HallucinationFree += ev.Sub.HallucinationFree
	st.subSums.Discipline += ev.Sub.Discipline
	st.subSums.Depth += ev.Sub.Depth
	st.subSums.SourceQuality += ev.Sub.SourceQuality
	st.subSums.Efficiency += ev.Sub.Efficiency
	st.subCount++
}

// RecordRoundOutcomes applies one round's resolved results: win/loss
// tallies and return series per agent, then pairwise ELO across the
// round's participants.
func (s *Store) RecordRoundOutcomes(roundID string, outcomes []Outcome) {
	if len(outcomes) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range outcomes {
		st := s.statsLocked(o.AgentID)
		st.returns = append(st.returns, o.PnlPercent/100)
		st.equity = append(st.equity, st.equity[len(st.equity)-1]*(1+o.PnlPercent/100))
		if o.Traded {
			if o.Correct {
				st.wins++
			} else {
				st.losses++
			}
		}
	}

	// Every pair plays once per resolved round.
	for i := 0; i < len(outcomes); i++ {
		for j := i + 1; j < len(outcomes); j++ {
			s.applyEloLocked(outcomes[i], outcomes[j])
		}
	}

	s.log.Debug().Str("round_id", roundID).Int("outcomes", len(outcomes)).Msg("Round outcomes recorded")
}

func (s *Store) applyEloLocked(a, b Outcome) {
	sa, sb := s.statsLocked(a.AgentID), s.statsLocked(b.AgentID)

	scoreA := 0.5
	switch {
	case a.PnlPercent > b.PnlPercent+eloDrawTolerance:
		scoreA = 1
	case b.PnlPercent > a.PnlPercent+eloDrawTolerance:
		scoreA = 0
	}

	expectedA := 1 / (1 + math.Pow(10, (sb.elo-sa.elo)/400))
	delta := eloK * (scoreA - expectedA)
	sa.elo += delta
	sb.elo -= delta
}

// Top returns the standings ordered by sortKey, highest first, with
// composite ties broken by ELO then agent id. limit <= 0 returns all.
func (s *Store) Top(limit int, sortKey string) []Row {
	s.mu.RLock()
	rows := make([]Row, 0, len(s.agents))
	for id, st := range s.agents {
		rows = append(rows, s.rowLocked(id, st))
	}
	s.mu.RUnlock()

	less := rowLess(sortKey)
	sort.Slice(rows, func(i, j int) bool { return less(rows[i], rows[j]) })

	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

// Row returns one agent's standings snapshot without ranking context
func (s *Store) Row(agentID string) (Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.agents[agentID]
	if !ok {
		return Row{}, false
	}
	return s.rowLocked(agentID, st), true
}

func (s *Store) rowLocked(agentID string, st *agentStats) Row {
	row := Row{
		AgentID:   agentID,
		Name:      st.name,
		Model:     st.model,
		Decisions: st.decisions,
		Trades:    st.trades,
		Wins:      st.wins,
		Losses:    st.losses,
		Elo:       st.elo,
	}

	if st.wins+st.losses > 0 {
		row.WinRate = float64(st.wins) / float64(st.wins+st.losses)
	}
	if st.decisions > 0 {
		row.AvgConfidence = st.confidenceSum / float64(st.decisions)
	}
	if len(st.equity) > 0 {
		row.TotalPnlPercent = st.equity[len(st.equity)-1] - 100
	}
	if sharpe, err := risk.SharpeRatio(st.returns, 0); err == nil {
		row.Sharpe = sharpe
	}
	_, maxDD, _ := risk.Drawdown(st.equity)
	row.MaxDrawdown = maxDD

	scores := scoring.AgentScores{
		Financial: scoring.FinancialScore(row.TotalPnlPercent),
	}
	if st.subCount > 0 {
		n := float64(st.subCount)
		scores.Coherence = st.subSums.Coherence / n
		scores.HallucinationFree = st.subSums.HallucinationFree / n
		scores.Discipline = st.subSums.Discipline / n
		scores.Depth = st.subSums.Depth / n
		scores.SourceQuality = st.subSums.SourceQuality / n
		scores.Efficiency = st.subSums.Efficiency / n
	}
	if s.bundle != nil {
		if report, ok := s.bundle.Calibration.Report(agentID); ok {
			scores.Calibration = report.Score
		}
		scores.Stability = s.bundle.Personality.StabilityScore(agentID)
		row.StabilityScore = scores.Stability
		row.CalibrationScore = scores.Calibration
	}
	row.Composite = s.weights.Composite(scores)
	return row
}

func rowLess(sortKey string) func(a, b Row) bool {
	key := func(r Row) float64 {
		switch sortKey {
		case SortElo:
			return r.Elo
		case SortPnl:
			return r.TotalPnlPercent
		case SortWinRate:
			return r.WinRate
		case SortSharpe:
			return r.Sharpe
		default:
			return r.Composite
		}
	}
	return func(a, b Row) bool {
		ka, kb := key(a), key(b)
		if ka != kb {
			return ka > kb
		}
		if a.Elo != b.Elo {
			return a.Elo > b.Elo
		}
		return a.AgentID < b.AgentID
	}
}
