package risk

import (
	"sync"
	"time"
)

// StatsTracker maintains the rolling per-agent execution stats the
// breakers snapshot. Executions are recorded only for allowed non-hold
// decisions; outcomes feed the loss streak.
type StatsTracker struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time

	executions map[string][]time.Time
	lossStreak map[string]int
	drawdown   map[string]float64
}

// NewStatsTracker creates a tracker with the given velocity window
func NewStatsTracker(window time.Duration) *StatsTracker {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &StatsTracker{
		window:     window,
		now:        time.Now,
		executions: make(map[string][]time.Time),
		lossStreak: make(map[string]int),
		drawdown:   make(map[string]float64),
	}
}

// RecordTradeExecution notes one executed non-hold decision
func (t *StatsTracker) RecordTradeExecution(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	ts := t.pruneLocked(agentID, now)
	t.executions[agentID] = append(ts, now)
}

// RecordOutcome feeds a resolved trade result into the loss streak
func (t *StatsTracker) RecordOutcome(agentID string, win bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if win {
		t.lossStreak[agentID] = 0
	} else {
		t.lossStreak[agentID]++
	}
}

// RecordDrawdown updates the agent's current-round drawdown fraction
func (t *StatsTracker) RecordDrawdown(agentID string, dd float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.drawdown[agentID] = dd
}

// SnapshotFor returns the stats value the breakers evaluate against
func (t *StatsTracker) SnapshotFor(agentID string) ExecStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	ts := t.pruneLocked(agentID, now)
	t.executions[agentID] = ts

	return ExecStats{
		TradesInWindow:    len(ts),
		ConsecutiveLosses: t.lossStreak[agentID],
		RoundDrawdown:     t.drawdown[agentID],
	}
}

// pruneLocked drops executions older than the window. Caller holds mu.
func (t *StatsTracker) pruneLocked(agentID string, now time.Time) []time.Time {
	ts := t.executions[agentID]
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
