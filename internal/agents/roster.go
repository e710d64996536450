package agents

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultCallBudget is the per-round LLM call allowance for agents
// whose roster entry does not set one.
const DefaultCallBudget = 50

// rosterFile is the on-disk roster shape
type rosterFile struct {
	Agents []AgentConfig `yaml:"agents"`
}

// LoadRoster reads the competing agents from a YAML file. An empty
// path returns the built-in default roster.
func LoadRoster(path string) ([]AgentConfig, error) {
	if path == "" {
		return DefaultRoster(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}

	var rf rosterFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	if len(rf.Agents) == 0 {
		return nil, fmt.Errorf("roster %s lists no agents", path)
	}

	for i := range rf.Agents {
		normalize(&rf.Agents[i])
	}
	if err := validateRoster(rf.Agents); err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return rf.Agents, nil
}

// DefaultRoster is the built-in four-agent field used when no roster
// file is configured.
func DefaultRoster() []AgentConfig {
	roster := []AgentConfig{
		{
			ID:            "prudence",
			Name:          "Prudence",
			Provider:      "anthropic",
			Model:         "claude-sonnet-4-20250514",
			TradingStyle:  StyleConservative,
			RiskTolerance: 0.2,
		},
		{
			ID:            "maverick",
			Name:          "Maverick",
			Provider:      "openai",
			Model:         "gpt-4o",
			TradingStyle:  StyleAggressive,
			RiskTolerance: 0.8,
		},
		{
			ID:            "fadeur",
			Name:          "Fadeur",
			Provider:      "google",
			Model:         "gemini-1.5-pro",
			TradingStyle:  StyleContrarian,
			RiskTolerance: 0.5,
		},
		{
			ID:            "steady",
			Name:          "Steady",
			Provider:      "meta",
			Model:         "llama-3.1-70b-instruct",
			TradingStyle:  StyleConservative,
			RiskTolerance: 0.35,
		},
	}
	for i := range roster {
		normalize(&roster[i])
	}
	return roster
}

func normalize(cfg *AgentConfig) {
	if cfg.CallBudgetPerRound <= 0 {
		cfg.CallBudgetPerRound = DefaultCallBudget
	}
	if cfg.TradingStyle == "" {
		cfg.TradingStyle = StyleConservative
	}
	if cfg.RiskTolerance < 0 {
		cfg.RiskTolerance = 0
	}
	if cfg.RiskTolerance > 1 {
		cfg.RiskTolerance = 1
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
}

func validateRoster(roster []AgentConfig) error {
	seen := make(map[string]struct{}, len(roster))
	for _, cfg := range roster {
		if cfg.ID == "" {
			return fmt.Errorf("agent with empty id")
		}
		if _, dup := seen[cfg.ID]; dup {
			return fmt.Errorf("duplicate agent id %q", cfg.ID)
		}
		seen[cfg.ID] = struct{}{}

		if cfg.Model == "" {
			return fmt.Errorf("agent %q has no model", cfg.ID)
		}
		switch cfg.TradingStyle {
		case StyleConservative, StyleAggressive, StyleContrarian:
		default:
			return fmt.Errorf("agent %q has unknown trading style %q", cfg.ID, cfg.TradingStyle)
		}
	}
	return nil
}
