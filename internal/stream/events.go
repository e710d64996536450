// Package stream fans arena events out to live subscribers. A bounded
// ring keeps the recent past for catch-up; delivery to slow consumers
// is at-most-once, newest preferred.
package stream

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminates the closed set of arena event kinds
type Type string

const (
	TypeAgentDecision  Type = "agent_decision"
	TypeTradeExecuted  Type = "trade_executed"
	TypeTradeBlocked   Type = "trade_blocked"
	TypeRoundStarted   Type = "round_started"
	TypeRoundCompleted Type = "round_completed"
	TypeCircuitBreaker Type = "circuit_breaker"
)

// Event is the envelope every subscriber sees
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	AgentID   string    `json:"agentId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New stamps identity and time onto a payload
func New(t Type, agentID string, payload any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		AgentID:   agentID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// AgentDecisionPayload summarizes one agent's round decision
type AgentDecisionPayload struct {
	AgentID    string  `json:"agentId"`
	RoundID    string  `json:"roundId"`
	Action     string  `json:"action"`
	Symbol     string  `json:"symbol"`
	Quantity   float64 `json:"quantity"`
	Confidence float64 `json:"confidence"`
	Intent     string  `json:"intent,omitempty"`
	Reasoning  string  `json:"reasoning"`
	Composite  float64 `json:"compositeScore"`
}

// TradeExecutedPayload reports a venue fill
type TradeExecutedPayload struct {
	AgentID     string  `json:"agentId"`
	RoundID     string  `json:"roundId"`
	Action      string  `json:"action"`
	Symbol      string  `json:"symbol"`
	Quantity    float64 `json:"quantity"`
	TxSignature string  `json:"txSignature"`
	FilledPrice float64 `json:"filledPrice"`
	Notional    float64 `json:"notional"`
}

// TradeBlockedPayload reports a decision stopped before the venue
type TradeBlockedPayload struct {
	AgentID string `json:"agentId"`
	RoundID string `json:"roundId"`
	Action  string `json:"action"`
	Symbol  string `json:"symbol"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
}

// CircuitBreakerPayload reports a single breaker activation
type CircuitBreakerPayload struct {
	AgentID  string `json:"agentId"`
	RoundID  string `json:"roundId"`
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Reason   string `json:"reason"`
}

// RoundStartedPayload opens a round
type RoundStartedPayload struct {
	RoundID string   `json:"roundId"`
	Agents  []string `json:"agents"`
	Symbols []string `json:"symbols"`
}

// RoundCompletedPayload closes a round
type RoundCompletedPayload struct {
	RoundID    string   `json:"roundId"`
	Status     string   `json:"status"`
	Consensus  string   `json:"consensus"`
	DurationMs int64    `json:"durationMs"`
	Decisions  int      `json:"decisions"`
	Executed   int      `json:"executed"`
	Errors     []string `json:"errors,omitempty"`
}
