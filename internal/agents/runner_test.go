package agents_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openbench/tradearena/internal/agents"
	"github.com/openbench/tradearena/internal/llm"
	"github.com/openbench/tradearena/internal/risk"
	"github.com/openbench/tradearena/internal/rpc"
)

func gatewayReply(content string) string {
	body := map[string]interface{}{
		"id":     "cmpl-test",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]interface{}{
			{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	}
	out, _ := json.Marshal(body)
	return string(out)
}

func newTestRunner(t *testing.T, handler http.HandlerFunc) *agents.Runner {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gate := rpc.NewClient(rpc.Options{
		MaxCalls:     100,
		Window:       100 * time.Millisecond,
		Timeout:      2 * time.Second,
		MaxRetries:   0,
		RetryBackoff: time.Millisecond,
	})
	client := llm.NewClient(llm.ClientConfig{GatewayURL: srv.URL + "/v1"}, gate, risk.NewPassthroughUpstreamBreakers().LLM())
	return agents.NewRunner(client)
}

func testAgent() agents.AgentConfig {
	return agents.AgentConfig{
		ID:                 "scout",
		Name:               "Scout",
		Model:              "test-model",
		TradingStyle:       agents.StyleAggressive,
		RiskTolerance:      0.8,
		CallBudgetPerRound: 10,
	}
}

func TestRunner_ParsesAndNormalizesDecision(t *testing.T) {
	runner := newTestRunner(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(gatewayReply(
			`{"action":"BUY","symbol":"btc","quantity":250,"reasoning":"momentum","confidence":150,"intent":"Momentum"}`)))
	})

	res := runner.Run(context.Background(), testAgent(), agents.TestSnapshot(), nil, "", "", 5*time.Second)

	assert.False(t, res.Synthetic)
	assert.Equal(t, 1, res.LLMCalls)
	assert.Equal(t, agents.ActionBuy, res.Decision.Action)
	assert.Equal(t, "BTC", res.Decision.Symbol)
	assert.Equal(t, 100.0, res.Decision.Confidence, "confidence clamped")
	assert.Equal(t, "momentum", res.Decision.Intent)
	assert.False(t, res.Decision.Timestamp.IsZero())
}

func TestRunner_RepromptsAfterParseFailure(t *testing.T) {
	var calls atomic.Int32
	runner := newTestRunner(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(gatewayReply("I think we should buy some BTC!")))
			return
		}
		_, _ = w.Write([]byte(gatewayReply(`{"action":"hold","symbol":"","quantity":0,"reasoning":"waiting for a clearer setup before committing capital","confidence":30}`)))
	})

	res := runner.Run(context.Background(), testAgent(), agents.TestSnapshot(), nil, "", "", 5*time.Second)

	assert.False(t, res.Synthetic)
	assert.Equal(t, 2, res.LLMCalls)
	assert.True(t, res.Decision.IsHold())
}

func TestRunner_GivesUpAfterRepeatedParseFailures(t *testing.T) {
	runner := newTestRunner(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(gatewayReply("never json")))
	})

	res := runner.Run(context.Background(), testAgent(), agents.TestSnapshot(), nil, "", "", 5*time.Second)

	assert.True(t, res.Synthetic)
	assert.Equal(t, agents.FailureParse, res.Failure)
	assert.Equal(t, agents.MaxCompletionAttempts, res.LLMCalls)
	assert.True(t, res.Decision.IsHold())
	assert.Equal(t, "unparseable completion", res.Decision.Reasoning)
}

func TestRunner_BudgetCapsCalls(t *testing.T) {
	runner := newTestRunner(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(gatewayReply("never json")))
	})

	cfg := testAgent()
	cfg.CallBudgetPerRound = 1
	res := runner.Run(context.Background(), cfg, agents.TestSnapshot(), nil, "", "", 5*time.Second)

	assert.True(t, res.Synthetic)
	assert.Equal(t, 1, res.LLMCalls)
}

func TestRunner_DeadlineProducesDeadlineHold(t *testing.T) {
	runner := newTestRunner(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(gatewayReply(`{"action":"hold"}`)))
	})

	res := runner.Run(context.Background(), testAgent(), agents.TestSnapshot(), nil, "", "", 50*time.Millisecond)

	assert.True(t, res.Synthetic)
	assert.Equal(t, agents.FailureDeadline, res.Failure)
	assert.Equal(t, "deadline", res.Decision.Reasoning)
	assert.True(t, res.Decision.IsHold())
}

func TestRunner_CancelledContext(t *testing.T) {
	runner := newTestRunner(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(gatewayReply(`{"action":"hold"}`)))
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := runner.Run(ctx, testAgent(), agents.TestSnapshot(), nil, "", "", 5*time.Second)

	assert.True(t, res.Synthetic)
	assert.Equal(t, agents.FailureCancelled, res.Failure)
	assert.Equal(t, "cancelled", res.Decision.Reasoning)
}

func TestRunner_RejectsUnknownSymbol(t *testing.T) {
	runner := newTestRunner(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(gatewayReply(
			`{"action":"buy","symbol":"DOGE2","quantity":50,"reasoning":"vibes","confidence":90}`)))
	})

	res := runner.Run(context.Background(), testAgent(), agents.TestSnapshot(), nil, "", "", 5*time.Second)

	assert.True(t, res.Synthetic)
	assert.Equal(t, agents.FailureInvalid, res.Failure)
	assert.Contains(t, res.Decision.Reasoning, "unknown symbol")
}

func TestNormalizeDecision(t *testing.T) {
	cases := []struct {
		name string
		d    agents.TradingDecision
		ok   bool
	}{
		{"valid buy", agents.TradingDecision{Action: "buy", Symbol: "BTC", Quantity: 10}, true},
		{"hold zeroes quantity", agents.TradingDecision{Action: "hold", Quantity: 99}, true},
		{"bad action", agents.TradingDecision{Action: "yolo", Symbol: "BTC", Quantity: 10}, false},
		{"missing symbol", agents.TradingDecision{Action: "sell", Quantity: 1}, false},
		{"zero quantity trade", agents.TradingDecision{Action: "buy", Symbol: "BTC"}, false},
	}

	snap := agents.TestSnapshot()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, ok := agents.NormalizeDecision(&tc.d, snap)
			assert.Equal(t, tc.ok, ok, reason)
			if tc.d.Action == agents.ActionHold && ok {
				assert.Zero(t, tc.d.Quantity)
			}
		})
	}
}
