// Package metrics defines the Prometheus instrumentation for the arena.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
const (
	// Circuit breaker kinds (bounded set)
	BreakerVelocity     = "velocity"
	BreakerInsufficient = "insufficient_funds"
	BreakerPositionSize = "position_size"
	BreakerSelfTrade    = "self_trade"
	BreakerLossStreak   = "loss_streak"
	BreakerOther        = "other"

	// Upstream error categories (bounded set)
	UpstreamErrorTimeout   = "timeout"
	UpstreamErrorRateLimit = "rate_limit"
	UpstreamErrorRejected  = "rejected"
	UpstreamErrorNetwork   = "network"
	UpstreamErrorOpen      = "circuit_open"
	UpstreamErrorOther     = "other"
)

// NormalizeBreakerKind maps arbitrary breaker kinds to the bounded set
func NormalizeBreakerKind(kind string) string {
	switch strings.ToLower(kind) {
	case BreakerVelocity, BreakerInsufficient, BreakerPositionSize, BreakerSelfTrade, BreakerLossStreak:
		return strings.ToLower(kind)
	default:
		return BreakerOther
	}
}

// NormalizeUpstreamError maps arbitrary upstream errors to the bounded set
func NormalizeUpstreamError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return UpstreamErrorTimeout
	case strings.Contains(errStr, "rate") || strings.Contains(errStr, "429"):
		return UpstreamErrorRateLimit
	case strings.Contains(errStr, "circuit") || strings.Contains(errStr, "open state"):
		return UpstreamErrorOpen
	case strings.Contains(errStr, "reject") || strings.Contains(errStr, "invalid"):
		return UpstreamErrorRejected
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection"):
		return UpstreamErrorNetwork
	default:
		return UpstreamErrorOther
	}
}

// Round orchestration metrics
var (
	RoundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_rounds_total",
		Help: "Total trading rounds by terminal status",
	}, []string{"status"})

	RoundRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_round_rejections_total",
		Help: "Trigger attempts rejected because a round was already running",
	})

	RoundDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_round_duration_seconds",
		Help:    "Wall time of a full trading round",
		Buckets: prometheus.DefBuckets,
	})

	AgentDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_agent_decisions_total",
		Help: "Agent decisions recorded by action",
	}, []string{"action"})

	TradesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_trades_executed_total",
		Help: "Decisions executed against the venue",
	})

	TradesBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_trades_blocked_total",
		Help: "Decisions blocked or clamped by circuit breakers, by kind",
	}, []string{"kind"})
)

// Rate-limited RPC gate metrics
var (
	RPCCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_rpc_calls_total",
		Help: "Calls through the rate-limited RPC gate by label and outcome",
	}, []string{"label", "outcome"})

	RPCRateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_rpc_rate_limit_hits_total",
		Help: "Calls that had to queue for a rate limit token",
	})

	RPCQueueWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_rpc_queue_wait_ms",
		Help:    "Milliseconds spent queued for a rate limit token",
		Buckets: []float64{1, 5, 10, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	RPCQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_rpc_queue_depth",
		Help: "Callers currently queued at the RPC gate",
	})

	RPCRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_rpc_retries_total",
		Help: "Retry attempts made by the RPC gate",
	})
)

// LLM metrics
var (
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_llm_calls_total",
		Help: "LLM completions by outcome",
	}, []string{"outcome"})

	LLMLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_llm_latency_seconds",
		Help:    "LLM completion latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	})

	LLMParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_llm_parse_failures_total",
		Help: "Completions whose decision payload failed to parse",
	})
)

// Stream bus metrics
var (
	StreamEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_stream_events_published_total",
		Help: "Events published on the trade stream bus by type",
	}, []string{"type"})

	StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_stream_subscribers",
		Help: "Live trade stream subscribers",
	})

	StreamDroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_stream_dropped_events_total",
		Help: "Events dropped because a subscriber buffer was full",
	})
)

// Ledger metrics
var (
	LedgerEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_ledger_entries_total",
		Help: "Entries appended to the forensic ledger",
	})

	LedgerSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_ledger_size",
		Help: "Entries currently held in the forensic ledger",
	})

	LedgerEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_ledger_evictions_total",
		Help: "Oldest-entry evictions after exceeding ledger capacity",
	})

	LedgerVerifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_ledger_verify_failures_total",
		Help: "Integrity verifications that found a broken chain",
	})

	OutcomesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_outcomes_resolved_total",
		Help: "Ledger outcome resolutions by correctness",
	}, []string{"correct"})
)

// News cache metrics
var (
	NewsCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_news_cache_hits_total",
		Help: "News lookups served from cache",
	})

	NewsCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_news_cache_misses_total",
		Help: "News lookups that went through to the provider",
	})
)

// API metrics
var (
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_api_requests_total",
		Help: "API requests by method, route and status",
	}, []string{"method", "route", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arena_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"method", "route"})
)

// RecordAPIRequest records one served API request
func RecordAPIRequest(method, route, status string, durationMs float64) {
	APIRequests.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(durationMs)
}
