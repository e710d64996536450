package arena

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openbench/tradearena/internal/agents"
	"github.com/openbench/tradearena/internal/alerts"
	"github.com/openbench/tradearena/internal/leaderboard"
	"github.com/openbench/tradearena/internal/ledger"
	"github.com/openbench/tradearena/internal/market"
	"github.com/openbench/tradearena/internal/metrics"
	"github.com/openbench/tradearena/internal/news"
	"github.com/openbench/tradearena/internal/portfolio"
	"github.com/openbench/tradearena/internal/risk"
	"github.com/openbench/tradearena/internal/scoring"
	"github.com/openbench/tradearena/internal/stream"
	"github.com/openbench/tradearena/internal/venue"
)

// stragglerGrace bounds how long collection waits past the round
// deadline for runners to deliver their own deadline holds.
const stragglerGrace = 250 * time.Millisecond

// Deps wires the orchestrator's collaborators. Everything is required;
// use alerts.NewManager() with no alerters to silence alerting.
type Deps struct {
	Roster    []agents.AgentConfig
	Provider  market.Provider
	News      *news.Cache
	Runner    *agents.Runner
	Portfolio *portfolio.Tracker
	Stats     *risk.StatsTracker
	Limits    risk.Limits
	Venue     venue.Executor
	Ledger    *ledger.Ledger
	Scoring   *scoring.Bundle
	Board     *leaderboard.Store
	Bus       *stream.Bus
	Alerts    *alerts.Manager

	RoundTimeout time.Duration
	Pacing       time.Duration
	HistorySize  int
}

// Orchestrator runs rounds one at a time under the global trading
// lock. Trigger attempts while a round holds the lock are rejected,
// never queued.
type Orchestrator struct {
	deps Deps
	log  zerolog.Logger

	trading sync.Mutex // the global trading lock
	stateMu sync.RWMutex
	current string // round id holding the lock, "" when idle

	history *history
}

func New(deps Deps) *Orchestrator {
	if deps.RoundTimeout <= 0 {
		deps.RoundTimeout = 30 * time.Second
	}
	if deps.Pacing < 0 {
		deps.Pacing = 0
	}
	return &Orchestrator{
		deps:    deps,
		log:     log.With().Str("component", "orchestrator").Logger(),
		history: newHistory(deps.HistorySize),
	}
}

// TryTrigger runs one complete round if the trading lock is free and
// returns the finished round document. A held lock fails fast with
// RoundInProgressError carrying the holder's round id.
func (o *Orchestrator) TryTrigger(ctx context.Context) (*TriggeredRound, error) {
	if !o.trading.TryLock() {
		o.stateMu.RLock()
		holder := o.current
		o.stateMu.RUnlock()
		metrics.RoundRejections.Inc()
		return nil, &RoundInProgressError{CurrentRoundID: holder}
	}
	defer o.trading.Unlock()

	roundID := uuid.New().String()
	o.setCurrent(roundID)
	defer o.setCurrent("")

	round := o.runRound(ctx, roundID)

	o.history.add(round)
	metrics.RoundsTotal.WithLabelValues(round.Status).Inc()
	metrics.RoundDuration.Observe(float64(round.DurationMs) / 1000)
	return round, nil
}

func (o *Orchestrator) setCurrent(roundID string) {
	o.stateMu.Lock()
	o.current = roundID
	o.stateMu.Unlock()
}

// Status reports the lock state and the most recent finished round
func (o *Orchestrator) Status() Status {
	o.stateMu.RLock()
	current := o.current
	o.stateMu.RUnlock()
	return Status{
		Running:        current != "",
		CurrentRoundID: current,
		RoundsRun:      o.history.count(),
		LastRound:      o.history.last(),
	}
}

// History returns up to limit finished rounds, newest first
func (o *Orchestrator) History(limit int) []*TriggeredRound {
	return o.history.recent(limit)
}

// runRound executes every phase of one round. Failures inside a phase
// degrade the round rather than propagate: the returned document
// always exists and the caller's deferred unlock always runs.
func (o *Orchestrator) runRound(ctx context.Context, roundID string) (round *TriggeredRound) {
	start := time.Now().UTC()
	round = &TriggeredRound{
		RoundID:   roundID,
		Status:    StatusCompleted,
		StartedAt: start,
		Decisions: []DecisionRecord{},
	}

	defer func() {
		if r := recover(); r != nil {
			round.Status = StatusFailed
			round.Errors = append(round.Errors, fmt.Sprintf("round panicked: %v", r))
			o.log.Error().Str("round_id", roundID).Interface("panic", r).Msg("Round panicked")
		}
		round.CompletedAt = time.Now().UTC()
		round.DurationMs = time.Since(start).Milliseconds()
	}()

	roundCtx, cancel := context.WithTimeout(ctx, o.deps.RoundTimeout)
	defer cancel()
	roundEnd := start.Add(o.deps.RoundTimeout)

	o.log.Info().
		Str("round_id", roundID).
		Int("agents", len(o.deps.Roster)).
		Dur("timeout", o.deps.RoundTimeout).
		Msg("Round started")

	snap, err := o.deps.Provider.Snapshot(roundCtx)
	if err != nil {
		round.Status = StatusFailed
		round.Errors = append(round.Errors, fmt.Sprintf("market snapshot: %v", err))
		o.log.Error().Err(err).Str("round_id", roundID).Msg("Round failed before fan-out")
		o.deps.Alerts.RoundFailed(roundCtx, roundID, err)
		o.publishCompleted(round)
		return round
	}
	round.MarketSnapshotHash = snapshotHash(snap)

	// Settle what earlier rounds left open before new positions move
	// the book.
	o.resolveOutcomes(snap)

	o.deps.Bus.Publish(stream.New(stream.TypeRoundStarted, "", stream.RoundStartedPayload{
		RoundID: roundID,
		Agents:  o.agentIDs(),
		Symbols: snap.Symbols(),
	}))

	technicals := market.FormatTechnicalsForPrompt(roundCtx, o.deps.Provider, snap)
	headlines := o.deps.News.GetCachedNews(roundCtx, snap.Symbols())
	newsBlock := news.FormatNewsForPrompt(headlines, snap.Symbols())

	results := o.fanOut(ctx, roundEnd, snap, technicals, newsBlock)

	// Gate, execute and record sequentially so portfolio mutations and
	// ledger ordering stay deterministic within the round.
	for i, res := range results {
		rec := o.executeAndRecord(roundCtx, ctx, roundID, o.deps.Roster[i], res, snap, round)
		round.Decisions = append(round.Decisions, rec)
		if rec.Executed {
			round.Executed++
		}
	}

	finals := make([]agents.TradingDecision, len(round.Decisions))
	for i, rec := range round.Decisions {
		finals[i] = rec.Decision
	}
	round.Consensus = scoring.ClassifyConsensus(finals)

	for i, rec := range round.Decisions {
		o.deps.Scoring.Personality.Record(rec.AgentID, roundID, rec.Decision.Action,
			rec.Decision.Symbol, rec.Decision.Confidence, peerActions(finals, i))
	}

	o.publishCompleted(round)
	o.log.Info().
		Str("round_id", roundID).
		Str("consensus", round.Consensus).
		Int("decisions", len(round.Decisions)).
		Int("executed", round.Executed).
		Dur("elapsed", time.Since(start)).
		Msg("Round completed")
	return round
}

type slot struct {
	idx int
	res agents.RunResult
}

// fanOut launches one goroutine per roster agent with a pacing stagger
// and collects results until the round deadline plus a short grace.
// The parent context, not the round context, goes to the runner: an
// agent that exhausts the round window reports "deadline" while an
// external shutdown reports "cancelled". Agents never cancel each
// other.
func (o *Orchestrator) fanOut(ctx context.Context, roundEnd time.Time, snap *market.Snapshot, technicals, newsBlock string) []agents.RunResult {
	n := len(o.deps.Roster)
	resCh := make(chan slot, n)

	for i, cfg := range o.deps.Roster {
		go func() {
			if wait := time.Duration(i) * o.deps.Pacing; wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					resCh <- slot{i, syntheticResult(ctx, cfg, 0)}
					return
				}
			}
			deadline := time.Until(roundEnd)
			if deadline <= 0 {
				resCh <- slot{i, syntheticResult(ctx, cfg, o.deps.RoundTimeout)}
				return
			}
			pf := o.deps.Portfolio.ContextFor(cfg.ID, snap)
			resCh <- slot{i, o.deps.Runner.Run(ctx, cfg, snap, pf, technicals, newsBlock, deadline)}
		}()
	}

	results := make([]agents.RunResult, n)
	filled := make([]bool, n)
	collected := 0

	watchdog := time.NewTimer(time.Until(roundEnd) + stragglerGrace)
	defer watchdog.Stop()

	for collected < n {
		select {
		case s := <-resCh:
			if !filled[s.idx] {
				results[s.idx] = s.res
				filled[s.idx] = true
				collected++
			}
		case <-watchdog.C:
			// Runners respect their own deadlines; anything still
			// missing is abandoned and stood in for.
			for i := range results {
				if !filled[i] {
					results[i] = syntheticResult(ctx, o.deps.Roster[i], o.deps.RoundTimeout)
					filled[i] = true
					collected++
					o.log.Warn().Str("agent_id", o.deps.Roster[i].ID).Msg("Agent abandoned at round deadline")
				}
			}
		}
	}
	return results
}

// syntheticResult stands in for an agent that never produced a
// decision. elapsed charges the full window on deadline exhaustion so
// efficiency scores zero; external cancellation charges nothing.
func syntheticResult(ctx context.Context, cfg agents.AgentConfig, elapsed time.Duration) agents.RunResult {
	failure := agents.FailureDeadline
	reason := "deadline"
	if ctx.Err() != nil {
		failure = agents.FailureCancelled
		reason = "cancelled"
		elapsed = 0
	}
	return agents.RunResult{
		AgentID:   cfg.ID,
		Decision:  agents.Hold("", reason),
		Elapsed:   elapsed,
		Synthetic: true,
		Failure:   failure,
	}
}

// executeAndRecord gates one decision through the circuit breakers,
// executes what survives and writes the full forensic record. The raw
// agent decision is the decision of record everywhere; the breaker
// verdict only governs what reaches the venue. Venue failures stay
// agent-scoped.
func (o *Orchestrator) executeAndRecord(roundCtx, parent context.Context, roundID string, cfg agents.AgentConfig, res agents.RunResult, snap *market.Snapshot, round *TriggeredRound) DecisionRecord {
	rec := DecisionRecord{
		AgentID:     cfg.ID,
		Decision:    res.Decision,
		Synthetic:   res.Synthetic,
		FailureKind: res.Failure,
		LLMCalls:    res.LLMCalls,
		ElapsedMs:   res.Elapsed.Milliseconds(),
		Activations: []risk.Activation{},
	}

	// A trade that lands after the round window closes is coerced to a
	// hold; nothing executes outside the window. Recording still runs.
	if roundCtx.Err() != nil && !rec.Decision.IsHold() {
		if parent.Err() != nil {
			rec.Decision = agents.Hold(rec.Decision.Symbol, "cancelled")
			rec.FailureKind = agents.FailureCancelled
		} else {
			rec.Decision = agents.Hold(rec.Decision.Symbol, "deadline")
			rec.FailureKind = agents.FailureDeadline
		}
		rec.Synthetic = true
	}

	pf := o.deps.Portfolio.ContextFor(cfg.ID, snap)
	stats := o.deps.Stats.SnapshotFor(cfg.ID)
	assessment := risk.Evaluate(rec.Decision, pf, stats, o.deps.Limits)
	rec.Activations = assessment.Activations

	for _, act := range assessment.Activations {
		o.deps.Bus.Publish(stream.New(stream.TypeCircuitBreaker, cfg.ID, stream.CircuitBreakerPayload{
			AgentID:  cfg.ID,
			RoundID:  roundID,
			Kind:     act.Kind,
			Severity: act.Severity,
			Reason:   act.Reason,
		}))
		if act.Kind == risk.KindLossStreak {
			o.deps.Alerts.LossStreakHalt(roundCtx, cfg.ID, stats.ConsecutiveLosses)
		}
	}

	if !assessment.Allowed {
		for _, act := range assessment.Activations {
			if act.Severity != risk.SeverityBlock {
				continue
			}
			o.deps.Bus.Publish(stream.New(stream.TypeTradeBlocked, cfg.ID, stream.TradeBlockedPayload{
				AgentID: cfg.ID,
				RoundID: roundID,
				Action:  string(rec.Decision.Action),
				Symbol:  rec.Decision.Symbol,
				Kind:    act.Kind,
				Reason:  act.Reason,
			}))
			break
		}
	}

	if assessment.Allowed && !assessment.Decision.IsHold() {
		exec := assessment.Decision // quantity clamps already applied
		details, err := o.deps.Venue.Execute(roundCtx, venue.Order{
			AgentID:  cfg.ID,
			Action:   string(exec.Action),
			Symbol:   exec.Symbol,
			Quantity: exec.Quantity,
			Price:    snap.Price(exec.Symbol),
		})
		if err != nil {
			rec.ExecutionError = err.Error()
			o.log.Warn().Err(err).
				Str("agent_id", cfg.ID).
				Str("round_id", roundID).
				Str("venue", o.deps.Venue.Name()).
				Msg("Venue execution failed")
		} else {
			rec.Executed = true
			rec.ExecutionDetails = details
			o.deps.Stats.RecordTradeExecution(cfg.ID)
			o.applyFill(cfg.ID, exec, details)
			o.deps.Bus.Publish(stream.New(stream.TypeTradeExecuted, cfg.ID, stream.TradeExecutedPayload{
				AgentID:     cfg.ID,
				RoundID:     roundID,
				Action:      string(exec.Action),
				Symbol:      exec.Symbol,
				Quantity:    exec.Quantity,
				TxSignature: details.TxSignature,
				FilledPrice: details.FilledPrice,
				Notional:    details.Notional,
			}))
		}
	}

	ev := o.deps.Scoring.EvaluateDecision(&rec.Decision, pf, snap, res.Elapsed, o.deps.RoundTimeout)
	rec.SubScores = ev.Sub
	rec.ForensicScore = ev.ForensicScore

	entry, err := o.deps.Ledger.Append(ledger.AppendFields{
		AgentID:            cfg.ID,
		RoundID:            roundID,
		Action:             string(rec.Decision.Action),
		Symbol:             rec.Decision.Symbol,
		Quantity:           rec.Decision.Quantity,
		Reasoning:          rec.Decision.Reasoning,
		Confidence:         rec.Decision.Confidence,
		Intent:             ev.Intent,
		Sources:            rec.Decision.Sources,
		PredictedOutcome:   rec.Decision.PredictedOutcome,
		MarketSnapshotHash: round.MarketSnapshotHash,
		PriceAtTrade:       snap.Price(rec.Decision.Symbol),
		CoherenceScore:     ev.Coherence.Score,
		HallucinationFlags: ev.Hallucination.Flags,
		DisciplinePass:     ev.Discipline.Passed,
		DepthScore:         ev.Depth.Score,
		ForensicScore:      ev.ForensicScore,
		EfficiencyScore:    ev.Efficiency,
		Witnesses:          o.witnessesFor(cfg.ID),
		Timestamp:          rec.Decision.Timestamp,
	})
	if err != nil {
		round.Errors = append(round.Errors, fmt.Sprintf("ledger append for %s: %v", cfg.ID, err))
		o.log.Error().Err(err).Str("agent_id", cfg.ID).Msg("Ledger append failed")
	} else {
		rec.LedgerEntryID = entry.EntryID
	}

	o.deps.Board.RecordDecision(cfg.ID, &rec.Decision, ev, rec.Executed)

	o.deps.Bus.Publish(stream.New(stream.TypeAgentDecision, cfg.ID, stream.AgentDecisionPayload{
		AgentID:    cfg.ID,
		RoundID:    roundID,
		Action:     string(rec.Decision.Action),
		Symbol:     rec.Decision.Symbol,
		Quantity:   rec.Decision.Quantity,
		Confidence: rec.Decision.Confidence,
		Intent:     ev.Intent,
		Reasoning:  rec.Decision.Reasoning,
		Composite:  ev.ForensicScore,
	}))

	return rec
}

// applyFill converts venue details into book units. Buy quantities are
// notional, so units come from the fill; sells already carry units.
func (o *Orchestrator) applyFill(agentID string, d agents.TradingDecision, details *venue.ExecutionDetails) {
	units := d.Quantity
	if d.Action == agents.ActionBuy && details.FilledPrice > 0 {
		units = details.Notional / details.FilledPrice
	}
	fill := portfolio.Fill{
		AgentID:   agentID,
		Action:    string(d.Action),
		Symbol:    d.Symbol,
		Quantity:  units,
		Price:     details.FilledPrice,
		Timestamp: time.Now().UTC(),
	}
	if err := o.deps.Portfolio.ApplyFill(fill); err != nil {
		o.log.Warn().Err(err).Str("agent_id", agentID).Msg("Fill did not apply to book")
	}
}

func (o *Orchestrator) publishCompleted(round *TriggeredRound) {
	o.deps.Bus.Publish(stream.New(stream.TypeRoundCompleted, "", stream.RoundCompletedPayload{
		RoundID:    round.RoundID,
		Status:     round.Status,
		Consensus:  round.Consensus,
		DurationMs: time.Since(round.StartedAt).Milliseconds(),
		Decisions:  len(round.Decisions),
		Executed:   round.Executed,
		Errors:     round.Errors,
	}))
}

func (o *Orchestrator) agentIDs() []string {
	ids := make([]string, len(o.deps.Roster))
	for i, cfg := range o.deps.Roster {
		ids[i] = cfg.ID
	}
	return ids
}

func (o *Orchestrator) witnessesFor(agentID string) []string {
	out := make([]string, 0, len(o.deps.Roster))
	for _, cfg := range o.deps.Roster {
		if cfg.ID != agentID {
			out = append(out, cfg.ID)
		}
	}
	return out
}

func peerActions(decisions []agents.TradingDecision, self int) []string {
	out := make([]string, 0, len(decisions))
	for i, d := range decisions {
		if i != self {
			out = append(out, string(d.Action))
		}
	}
	return out
}

func snapshotHash(snap *market.Snapshot) string {
	prices := make(map[string]float64, len(snap.Quotes))
	for _, q := range snap.Quotes {
		prices[q.Symbol] = q.Price
	}
	hash, err := ledger.SnapshotHash(prices)
	if err != nil {
		return ""
	}
	return hash
}
