// Package agents defines the competing LLM agents: their immutable
// configuration, the decision type they emit, and the runner that turns
// a market snapshot into one parsed decision per agent per round.
package agents

import "time"

// Action is what an agent wants to do this round
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Valid reports whether the action is one of buy, sell or hold
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}

// Trading styles an agent can be configured with
const (
	StyleConservative = "conservative"
	StyleAggressive   = "aggressive"
	StyleContrarian   = "contrarian"
)

// Intent taxonomy for classified decision motives
const (
	IntentMomentum    = "momentum"
	IntentValue       = "value"
	IntentHedging     = "hedging"
	IntentRebalance   = "rebalance"
	IntentSpeculation = "speculation"
)

// AgentConfig is immutable for the process lifetime
type AgentConfig struct {
	ID                 string   `yaml:"id" json:"agentId" mapstructure:"id"`
	Name               string   `yaml:"name" json:"name" mapstructure:"name"`
	Provider           string   `yaml:"provider" json:"provider" mapstructure:"provider"`
	Model              string   `yaml:"model" json:"model" mapstructure:"model"`
	TradingStyle       string   `yaml:"trading_style" json:"tradingStyle" mapstructure:"trading_style"`
	RiskTolerance      float64  `yaml:"risk_tolerance" json:"riskTolerance" mapstructure:"risk_tolerance"`
	PreferredSymbols   []string `yaml:"preferred_symbols" json:"preferredSymbols" mapstructure:"preferred_symbols"`
	CallBudgetPerRound int      `yaml:"call_budget_per_round" json:"callBudgetPerRound" mapstructure:"call_budget_per_round"`
}

// TradingDecision is an agent's output for one round. It is never
// mutated after emit; breaker replacements produce a new value.
type TradingDecision struct {
	Action     Action  `json:"action"`
	Symbol     string  `json:"symbol"`
	Quantity   float64 `json:"quantity"` // buy: USDC notional, sell: unit quantity
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"` // 0..100
	Intent     string  `json:"intent"`

	// Sources the agent claims to have used, free-form
	Sources []string `json:"sources,omitempty"`

	// PredictedOutcome is the agent's own forecast, used later for
	// calibration scoring
	PredictedOutcome string `json:"predictedOutcome,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// IsHold reports whether the decision takes no market action
func (d *TradingDecision) IsHold() bool {
	return d.Action == ActionHold
}

// Hold builds a synthetic hold decision carrying the failure or policy
// reason in its reasoning text.
func Hold(symbol, reason string) TradingDecision {
	return TradingDecision{
		Action:     ActionHold,
		Symbol:     symbol,
		Quantity:   0,
		Reasoning:  reason,
		Confidence: 0,
		Timestamp:  time.Now().UTC(),
	}
}
