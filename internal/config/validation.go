package config

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Validate performs configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateBenchmark()...)
	errors = append(errors, c.validateRound()...)
	errors = append(errors, c.validateRPC()...)
	errors = append(errors, c.validateStream()...)
	errors = append(errors, c.validateLedger()...)
	errors = append(errors, c.validateBreakers()...)
	errors = append(errors, c.validateMarket()...)
	errors = append(errors, c.validateAPI()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
	if !validEnvs[c.App.Environment] {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("invalid environment %q, must be development, staging, or production", c.App.Environment),
		})
	}

	if c.App.LogFormat != "json" && c.App.LogFormat != "console" {
		errors = append(errors, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("invalid log format %q, must be json or console", c.App.LogFormat),
		})
	}

	return errors
}

func (c *Config) validateBenchmark() ValidationErrors {
	var errors ValidationErrors

	if c.Benchmark.Version == "" {
		errors = append(errors, ValidationError{
			Field:   "benchmark.version",
			Message: "benchmark version is required",
		})
		return errors
	}

	if _, err := semver.NewVersion(c.Benchmark.Version); err != nil {
		errors = append(errors, ValidationError{
			Field:   "benchmark.version",
			Message: fmt.Sprintf("benchmark version %q is not a valid version tag: %v", c.Benchmark.Version, err),
		})
	}

	return errors
}

func (c *Config) validateRound() ValidationErrors {
	var errors ValidationErrors

	if c.Round.TimeoutMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "round.timeout_ms",
			Message: "round timeout must be positive",
		})
	}

	if c.Round.PacingMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "round.pacing_ms",
			Message: "pacing delay cannot be negative",
		})
	}

	if c.Round.HistorySize < 1 {
		errors = append(errors, ValidationError{
			Field:   "round.history_size",
			Message: "history size must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRPC() ValidationErrors {
	var errors ValidationErrors

	if c.RPC.TimeoutMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "rpc.timeout_ms",
			Message: "rpc timeout must be positive",
		})
	}

	if c.RPC.RateLimitMax < 1 {
		errors = append(errors, ValidationError{
			Field:   "rpc.rate_limit_max",
			Message: "rate limit must allow at least 1 operation per window",
		})
	}

	if c.RPC.RateLimitWindowMs < 1 {
		errors = append(errors, ValidationError{
			Field:   "rpc.rate_limit_window_ms",
			Message: "rate limit window must be positive",
		})
	}

	if c.RPC.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "rpc.max_retries",
			Message: "max retries cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateStream() ValidationErrors {
	var errors ValidationErrors

	if c.Stream.MaxEvents < 200 || c.Stream.MaxEvents > 500 {
		errors = append(errors, ValidationError{
			Field:   "stream.max_events",
			Message: fmt.Sprintf("max events %d out of range, must be between 200 and 500", c.Stream.MaxEvents),
		})
	}

	if c.Stream.CatchUp < 0 || c.Stream.CatchUp > c.Stream.MaxEvents {
		errors = append(errors, ValidationError{
			Field:   "stream.catch_up",
			Message: "catch-up count must be between 0 and max events",
		})
	}

	if c.Stream.SubscriberBuffer < 1 {
		errors = append(errors, ValidationError{
			Field:   "stream.subscriber_buffer",
			Message: "subscriber buffer must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateLedger() ValidationErrors {
	var errors ValidationErrors

	if c.Ledger.MaxSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "ledger.max_size",
			Message: "ledger capacity must be at least 1",
		})
	}

	if c.Scoring.MaxDecisionsPerAgent < 1 {
		errors = append(errors, ValidationError{
			Field:   "scoring.max_decisions_per_agent",
			Message: "per-agent decision history must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateBreakers() ValidationErrors {
	var errors ValidationErrors

	if c.Breakers.PositionSizeRatio <= 0 || c.Breakers.PositionSizeRatio > 0.25 {
		errors = append(errors, ValidationError{
			Field:   "breakers.position_size_ratio",
			Message: fmt.Sprintf("position size ratio %v out of range, must be in (0, 0.25]", c.Breakers.PositionSizeRatio),
		})
	}

	if c.Breakers.VelocityMaxTrades < 1 {
		errors = append(errors, ValidationError{
			Field:   "breakers.velocity_max_trades",
			Message: "velocity threshold must be at least 1 trade",
		})
	}

	if c.Breakers.LossStreakHalt < 1 {
		errors = append(errors, ValidationError{
			Field:   "breakers.loss_streak_halt",
			Message: "loss streak halt must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateMarket() ValidationErrors {
	var errors ValidationErrors

	if c.Market.Mode != "sim" && c.Market.Mode != "binance" {
		errors = append(errors, ValidationError{
			Field:   "market.mode",
			Message: fmt.Sprintf("invalid market mode %q, must be sim or binance", c.Market.Mode),
		})
	}

	if len(c.Market.Symbols) == 0 {
		errors = append(errors, ValidationError{
			Field:   "market.symbols",
			Message: "at least one symbol is required",
		})
	}

	if c.Market.Mode == "binance" && c.Market.BinanceAPIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "market.binance_api_key",
			Message: "binance mode requires BINANCE_API_KEY",
		})
	}

	return errors
}

func (c *Config) validateAPI() ValidationErrors {
	var errors ValidationErrors

	if c.API.Port < 1 || c.API.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "api.port",
			Message: fmt.Sprintf("invalid port %d", c.API.Port),
		})
	}

	if c.Monitoring.EnableMetrics && (c.Monitoring.PrometheusPort < 1 || c.Monitoring.PrometheusPort > 65535) {
		errors = append(errors, ValidationError{
			Field:   "monitoring.prometheus_port",
			Message: fmt.Sprintf("invalid metrics port %d", c.Monitoring.PrometheusPort),
		})
	}

	return errors
}
