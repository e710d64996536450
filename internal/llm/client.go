// Package llm is the transport to the OpenAI-compatible model gateway.
// One client serves every agent; the per-agent model travels with each
// request. All completions pass through the shared call gate and the
// LLM circuit breaker.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/openbench/tradearena/internal/metrics"
	"github.com/openbench/tradearena/internal/rpc"
)

// ClientConfig configures the gateway client
type ClientConfig struct {
	GatewayURL  string
	APIKey      string
	Temperature float32
	MaxTokens   int
}

// Client sends chat completions to the gateway
type Client struct {
	api         *openai.Client
	temperature float32
	maxTokens   int
	gate        *rpc.Client
	breaker     *gobreaker.CircuitBreaker
	log         zerolog.Logger
}

// NewClient creates a gateway client. Zero config fields fall back to
// defaults; an empty GatewayURL uses the official OpenAI endpoint.
func NewClient(cfg ClientConfig, gate *rpc.Client, breaker *gobreaker.CircuitBreaker) *Client {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.GatewayURL != "" {
		apiCfg.BaseURL = cfg.GatewayURL
	}

	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		gate:        gate,
		breaker:     breaker,
		log:         log.With().Str("component", "llm").Logger(),
	}
}

// Complete sends one system+user completion for the given model and
// returns the raw assistant text. Transient gateway failures are
// retried by the gate; an open breaker fails fast without burning
// retry attempts.
func (c *Client) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()

	content, err := rpc.Do(ctx, c.gate, "llm_complete", func(ctx context.Context) (string, error) {
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.complete(ctx, model, systemPrompt, userPrompt)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return "", rpc.Permanent(fmt.Errorf("llm breaker: %w", err))
			}
			return "", err
		}
		return out.(string), nil
	})

	if err != nil {
		metrics.LLMCalls.WithLabelValues(metrics.NormalizeUpstreamError(err)).Inc()
		return "", err
	}

	metrics.LLMCalls.WithLabelValues("ok").Inc()
	metrics.LLMLatency.Observe(time.Since(start).Seconds())
	return content, nil
}

func (c *Client) complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in completion response")
	}

	c.log.Debug().
		Str("model", model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Completion received")

	return resp.Choices[0].Message.Content, nil
}
