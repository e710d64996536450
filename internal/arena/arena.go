// Package arena coordinates trading rounds end to end: the global
// trading lock, concurrent agent fan-out, circuit-breaker gating,
// venue execution, forensic scoring and the append-only record.
package arena

import (
	"fmt"
	"sync"
	"time"

	"github.com/openbench/tradearena/internal/agents"
	"github.com/openbench/tradearena/internal/risk"
	"github.com/openbench/tradearena/internal/scoring"
	"github.com/openbench/tradearena/internal/venue"
)

// Round terminal statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RoundInProgressError is returned by TryTrigger when the global
// trading lock is already held. Callers are never queued.
type RoundInProgressError struct {
	CurrentRoundID string
}

func (e *RoundInProgressError) Error() string {
	if e.CurrentRoundID == "" {
		return "a round is already in progress"
	}
	return fmt.Sprintf("round %s is already in progress", e.CurrentRoundID)
}

// DecisionRecord is one agent's complete story for a round: what it
// decided, what the breakers did about it, what the venue filled and
// how the forensic analyzers scored it.
type DecisionRecord struct {
	AgentID          string                  `json:"agentId"`
	Decision         agents.TradingDecision  `json:"decision"`
	Synthetic        bool                    `json:"synthetic,omitempty"`
	FailureKind      string                  `json:"failureKind,omitempty"`
	LLMCalls         int                     `json:"llmCalls"`
	ElapsedMs        int64                   `json:"elapsedMs"`
	Activations      []risk.Activation       `json:"activations"`
	Executed         bool                    `json:"executed"`
	ExecutionDetails *venue.ExecutionDetails `json:"executionDetails,omitempty"`
	ExecutionError   string                  `json:"executionError,omitempty"`
	SubScores        scoring.SubScores       `json:"subScores"`
	ForensicScore    float64                 `json:"forensicScore"`
	LedgerEntryID    string                  `json:"ledgerEntryId,omitempty"`
}

// TriggeredRound is the round document returned to the caller and kept
// in the history ring. It is immutable once the round finishes.
type TriggeredRound struct {
	RoundID            string           `json:"roundId"`
	Status             string           `json:"status"`
	StartedAt          time.Time        `json:"startedAt"`
	CompletedAt        time.Time        `json:"completedAt"`
	DurationMs         int64            `json:"durationMs"`
	MarketSnapshotHash string           `json:"marketSnapshotHash,omitempty"`
	Consensus          string           `json:"consensus,omitempty"`
	Decisions          []DecisionRecord `json:"decisions"`
	Executed           int              `json:"executed"`
	Errors             []string         `json:"errors,omitempty"`
}

// Status reports the trading lock state and the most recent round
type Status struct {
	Running        bool            `json:"running"`
	CurrentRoundID string          `json:"currentRoundId,omitempty"`
	RoundsRun      int             `json:"roundsRun"`
	LastRound      *TriggeredRound `json:"lastRound,omitempty"`
}

// history is a bounded ring of finished rounds. Oldest rounds fall off
// once the ring is full; total keeps counting.
type history struct {
	mu     sync.RWMutex
	size   int
	total  int
	rounds []*TriggeredRound
}

func newHistory(size int) *history {
	if size <= 0 {
		size = 50
	}
	return &history{size: size}
}

func (h *history) add(r *TriggeredRound) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rounds = append(h.rounds, r)
	h.total++
	if len(h.rounds) > h.size {
		h.rounds = h.rounds[1:]
	}
}

// recent returns up to limit rounds, newest first. limit <= 0 returns
// everything retained.
func (h *history) recent(limit int) []*TriggeredRound {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit <= 0 || limit > len(h.rounds) {
		limit = len(h.rounds)
	}
	out := make([]*TriggeredRound, 0, limit)
	for i := len(h.rounds) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.rounds[i])
	}
	return out
}

func (h *history) last() *TriggeredRound {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.rounds) == 0 {
		return nil
	}
	return h.rounds[len(h.rounds)-1]
}

func (h *history) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}
