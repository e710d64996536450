package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openbench/tradearena/internal/llm"
	"github.com/openbench/tradearena/internal/market"
	"github.com/openbench/tradearena/internal/metrics"
	"github.com/openbench/tradearena/internal/portfolio"
)

// maxCompletionAttempts bounds parse-failure reprompts per round,
// independent of the (much larger) call budget.
const maxCompletionAttempts = 3

// Failure kinds attached to synthetic holds
const (
	FailureDeadline  = "deadline"
	FailureCancelled = "cancelled"
	FailureLLM       = "llm"
	FailureParse     = "parse"
	FailureInvalid   = "invalid"
)

// RunResult is one agent's outcome for a round. Decision is always
// usable; failures surface as synthetic holds, never as errors.
type RunResult struct {
	AgentID   string
	Decision  TradingDecision
	Elapsed   time.Duration
	LLMCalls  int
	Synthetic bool
	Failure   string // set when Synthetic, one of the Failure* kinds
}

// Runner turns one agent plus one market snapshot into one decision
type Runner struct {
	client *llm.Client
	log    zerolog.Logger
}

// NewRunner creates a runner over the shared gateway client
func NewRunner(client *llm.Client) *Runner {
	return &Runner{
		client: client,
		log:    log.With().Str("component", "agent_runner").Logger(),
	}
}

// Run executes one agent for one round. The agent gets at most
// deadline to answer; whatever goes wrong (timeout, gateway failure,
// unparseable or invalid output) degrades to a synthetic hold so the
// round always receives a decision.
func (r *Runner) Run(ctx context.Context, cfg AgentConfig, snap *market.Snapshot, pf *portfolio.Context, technicals, news string, deadline time.Duration) RunResult {
	start := time.Now()
	res := RunResult{AgentID: cfg.ID}

	runCtx := ctx
	if deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	system := SystemPrompt(cfg)
	user := BuildDecisionPrompt(cfg, snap, pf, technicals, news)

	budget := cfg.CallBudgetPerRound
	if budget <= 0 {
		budget = DefaultCallBudget
	}

	var decision TradingDecision
	prompt := user
	for {
		if res.LLMCalls >= budget || res.LLMCalls >= maxCompletionAttempts {
			return r.syntheticHold(res, cfg, start, FailureParse, "unparseable completion")
		}

		res.LLMCalls++
		content, err := r.client.Complete(runCtx, cfg.Model, system, prompt)
		if err != nil {
			kind, reason := FailureLLM, fmt.Sprintf("model call failed: %v", err)
			switch {
			case ctx.Err() != nil:
				kind, reason = FailureCancelled, "cancelled"
			case errors.Is(runCtx.Err(), context.DeadlineExceeded):
				kind, reason = FailureDeadline, "deadline"
			}
			return r.syntheticHold(res, cfg, start, kind, reason)
		}

		if err := llm.ParseJSON(content, &decision); err != nil {
			r.log.Warn().Str("agent_id", cfg.ID).Err(err).Msg("Completion did not parse, reprompting")
			prompt = user + "\n\n" + correctionPrompt
			continue
		}
		break
	}

	if reason, ok := normalizeDecision(&decision, snap); !ok {
		return r.syntheticHold(res, cfg, start, FailureInvalid, reason)
	}

	decision.Timestamp = time.Now().UTC()
	res.Decision = decision
	res.Elapsed = time.Since(start)
	metrics.AgentDecisions.WithLabelValues(string(decision.Action)).Inc()
	return res
}

func (r *Runner) syntheticHold(res RunResult, cfg AgentConfig, start time.Time, kind, reason string) RunResult {
	res.Decision = Hold("", reason)
	res.Synthetic = true
	res.Failure = kind
	res.Elapsed = time.Since(start)
	metrics.AgentDecisions.WithLabelValues(string(ActionHold)).Inc()
	r.log.Warn().
		Str("agent_id", cfg.ID).
		Str("kind", kind).
		Str("reason", reason).
		Int("llm_calls", res.LLMCalls).
		Msg("Agent degraded to synthetic hold")
	return res
}

// normalizeDecision cleans up model output in place and reports
// whether the decision is usable. Field casing and confidence range
// are forgiven; a trade against an unknown symbol or without a
// positive quantity is not.
func normalizeDecision(d *TradingDecision, snap *market.Snapshot) (string, bool) {
	d.Action = Action(strings.ToLower(strings.TrimSpace(string(d.Action))))
	d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))
	d.Intent = strings.ToLower(strings.TrimSpace(d.Intent))

	if !d.Action.Valid() {
		return fmt.Sprintf("invalid action %q", d.Action), false
	}

	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 100 {
		d.Confidence = 100
	}

	if d.IsHold() {
		d.Quantity = 0
		return "", true
	}

	if d.Symbol == "" {
		return "trade without symbol", false
	}
	if snap != nil {
		if _, ok := snap.Quote(d.Symbol); !ok {
			return fmt.Sprintf("unknown symbol %q", d.Symbol), false
		}
	}
	if d.Quantity <= 0 {
		return "non-positive quantity", false
	}
	return "", true
}
