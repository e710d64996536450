// Package risk holds the pre-trade circuit breakers, the rolling
// execution stats they read, and the upstream service breakers.
package risk

import (
	"fmt"
	"time"

	"github.com/openbench/tradearena/internal/agents"
	"github.com/openbench/tradearena/internal/metrics"
	"github.com/openbench/tradearena/internal/portfolio"
)

// Activation severities
const (
	SeverityBlock = "block"
	SeverityClamp = "clamp"
)

// Breaker kinds, reused as metric labels
const (
	KindVelocity     = "velocity"
	KindInsufficient = "insufficient_funds"
	KindPositionSize = "position_size"
	KindSelfTrade    = "self_trade"
	KindLossStreak   = "loss_streak"
)

// Limits configures the breaker thresholds
type Limits struct {
	MaxTradesPerWindow   int           // velocity breaker K
	VelocityWindow       time.Duration // velocity breaker W
	MaxPositionRatio     float64       // buy notional cap as fraction of cash
	MaxConsecutiveLosses int           // loss streak halt L
	TreasuryWallet       string        // self-trade destination
}

// DefaultLimits returns the default breaker thresholds
func DefaultLimits() Limits {
	return Limits{
		MaxTradesPerWindow:   5,
		VelocityWindow:       60 * time.Second,
		MaxPositionRatio:     0.25,
		MaxConsecutiveLosses: 3,
		TreasuryWallet:       "ARENA_TREASURY",
	}
}

// Activation describes one breaker that fired
type Activation struct {
	Kind              string `json:"kind"`
	Severity          string `json:"severity"`
	Reason            string `json:"reason"`
	ReplacementAction string `json:"replacementAction,omitempty"`
}

// Assessment is the breaker verdict on one proposed decision
type Assessment struct {
	Allowed     bool                   `json:"allowed"`
	Decision    agents.TradingDecision `json:"decision"`
	Activations []Activation           `json:"activations"`
}

// ExecStats is the rolling per-agent state the breakers read. It is a
// value snapshot so evaluation stays a pure function.
type ExecStats struct {
	TradesInWindow    int
	ConsecutiveLosses int
	RoundDrawdown     float64
}

// Evaluate runs the breaker chain over a proposed decision. Identical
// inputs always produce identical outputs. Breakers fire in a fixed
// order; a clamp rewrites the decision and evaluation continues, a
// block coerces it to hold and stops the chain.
func Evaluate(decision agents.TradingDecision, pf *portfolio.Context, stats ExecStats, limits Limits) Assessment {
	out := Assessment{
		Allowed:     true,
		Decision:    decision,
		Activations: []Activation{},
	}

	if decision.IsHold() {
		return out
	}

	block := func(kind, reason string) {
		out.Activations = append(out.Activations, Activation{
			Kind:              kind,
			Severity:          SeverityBlock,
			Reason:            reason,
			ReplacementAction: string(agents.ActionHold),
		})
		held := out.Decision
		held.Action = agents.ActionHold
		held.Quantity = 0
		out.Decision = held
		out.Allowed = false
		metrics.TradesBlocked.WithLabelValues(metrics.NormalizeBreakerKind(kind)).Inc()
	}

	// 1. Velocity: too many executed trades in the trailing window
	if stats.TradesInWindow >= limits.MaxTradesPerWindow {
		block(KindVelocity, fmt.Sprintf("%d trades in trailing %s (limit %d)",
			stats.TradesInWindow, limits.VelocityWindow, limits.MaxTradesPerWindow))
		return out
	}

	// 2. Insufficient funds or position
	switch out.Decision.Action {
	case agents.ActionBuy:
		if out.Decision.Quantity > pf.CashBalance {
			block(KindInsufficient, fmt.Sprintf("buy notional %.2f exceeds cash %.2f",
				out.Decision.Quantity, pf.CashBalance))
			return out
		}
	case agents.ActionSell:
		pos, held := pf.Position(out.Decision.Symbol)
		if !held || pos.Quantity < out.Decision.Quantity {
			have := 0.0
			if held {
				have = pos.Quantity
			}
			block(KindInsufficient, fmt.Sprintf("sell quantity %.6f exceeds held %.6f of %s",
				out.Decision.Quantity, have, out.Decision.Symbol))
			return out
		}
	}

	// 3. Position size: oversized buys are clamped, not blocked
	if out.Decision.Action == agents.ActionBuy {
		maxNotional := limits.MaxPositionRatio * pf.CashBalance
		if out.Decision.Quantity > maxNotional {
			clamped := out.Decision
			clamped.Quantity = maxNotional
			out.Decision = clamped
			out.Activations = append(out.Activations, Activation{
				Kind:     KindPositionSize,
				Severity: SeverityClamp,
				Reason: fmt.Sprintf("buy notional clamped to %.2f (%.0f%% of cash %.2f)",
					maxNotional, limits.MaxPositionRatio*100, pf.CashBalance),
			})
			metrics.TradesBlocked.WithLabelValues(metrics.BreakerPositionSize).Inc()
		}
	}

	// 4. Self trade: sending to the arena's own wallet
	if out.Decision.Symbol == limits.TreasuryWallet {
		block(KindSelfTrade, fmt.Sprintf("destination %s is the arena treasury", limits.TreasuryWallet))
		return out
	}

	// 5. Loss streak halt: all non-hold actions blocked
	if stats.ConsecutiveLosses >= limits.MaxConsecutiveLosses {
		block(KindLossStreak, fmt.Sprintf("%d consecutive losses (halt at %d)",
			stats.ConsecutiveLosses, limits.MaxConsecutiveLosses))
		return out
	}

	return out
}
