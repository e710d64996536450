package agents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultRoster(t *testing.T) {
	roster := DefaultRoster()
	require.Len(t, roster, 4)

	ids := make(map[string]bool)
	for _, cfg := range roster {
		assert.NotEmpty(t, cfg.ID)
		assert.NotEmpty(t, cfg.Model)
		assert.Equal(t, DefaultCallBudget, cfg.CallBudgetPerRound)
		assert.False(t, ids[cfg.ID], "duplicate id %s", cfg.ID)
		ids[cfg.ID] = true
	}
	require.NoError(t, validateRoster(roster))
}

func TestLoadRoster_EmptyPathUsesDefault(t *testing.T) {
	roster, err := LoadRoster("")
	require.NoError(t, err)
	assert.Len(t, roster, 4)
}

func TestLoadRoster_FromYAML(t *testing.T) {
	path := writeRoster(t, `
agents:
  - id: scout
    name: Scout
    provider: openai
    model: gpt-4o-mini
    trading_style: aggressive
    risk_tolerance: 0.9
    preferred_symbols: [BTC, SOL]
    call_budget_per_round: 10
  - id: anchor
    model: claude-sonnet-4-20250514
`)

	roster, err := LoadRoster(path)
	require.NoError(t, err)
	require.Len(t, roster, 2)

	scout := roster[0]
	assert.Equal(t, "Scout", scout.Name)
	assert.Equal(t, StyleAggressive, scout.TradingStyle)
	assert.Equal(t, []string{"BTC", "SOL"}, scout.PreferredSymbols)
	assert.Equal(t, 10, scout.CallBudgetPerRound)

	// Omitted fields take defaults.
	anchor := roster[1]
	assert.Equal(t, "anchor", anchor.Name)
	assert.Equal(t, StyleConservative, anchor.TradingStyle)
	assert.Equal(t, DefaultCallBudget, anchor.CallBudgetPerRound)
}

func TestLoadRoster_DuplicateIDs(t *testing.T) {
	path := writeRoster(t, `
agents:
  - id: twin
    model: gpt-4o
  - id: twin
    model: gpt-4o
`)

	_, err := LoadRoster(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate agent id")
}

func TestLoadRoster_UnknownStyle(t *testing.T) {
	path := writeRoster(t, `
agents:
  - id: odd
    model: gpt-4o
    trading_style: reckless
`)

	_, err := LoadRoster(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown trading style")
}

func TestLoadRoster_MissingFile(t *testing.T) {
	_, err := LoadRoster("/nonexistent/agents.yaml")
	require.Error(t, err)
}

func TestLoadRoster_EmptyRoster(t *testing.T) {
	path := writeRoster(t, "agents: []\n")
	_, err := LoadRoster(path)
	require.Error(t, err)
}
