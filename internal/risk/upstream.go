package risk

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Upstream breaker settings per service. LLM gets the longest open
// timeout since provider recovery is slow; news is fastest because a
// degraded feed only costs prompt context.
const (
	llmMinRequests   = 3
	llmFailureRatio  = 0.6
	llmOpenTimeout   = 60 * time.Second
	llmHalfOpenMax   = 2
	llmCountInterval = 10 * time.Second

	venueMinRequests   = 5
	venueFailureRatio  = 0.6
	venueOpenTimeout   = 30 * time.Second
	venueHalfOpenMax   = 3
	venueCountInterval = 10 * time.Second

	newsMinRequests   = 5
	newsFailureRatio  = 0.6
	newsOpenTimeout   = 15 * time.Second
	newsHalfOpenMax   = 5
	newsCountInterval = 10 * time.Second
)

var (
	upstreamMetricsOnce sync.Once
	upstreamStateGauge  *prometheus.GaugeVec
)

func initUpstreamMetrics() {
	upstreamMetricsOnce.Do(func() {
		upstreamStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arena_upstream_breaker_state",
			Help: "Upstream circuit breaker state (0=closed, 1=open, 2=half_open)",
		}, []string{"service"})
	})
}

// ServiceSettings holds breaker configuration for a single upstream
type ServiceSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// UpstreamBreakers wraps the external dependencies so repeated upstream
// failures shed load instead of stalling rounds.
type UpstreamBreakers struct {
	llm   *gobreaker.CircuitBreaker
	venue *gobreaker.CircuitBreaker
	news  *gobreaker.CircuitBreaker
}

func newBreaker(name string, s ServiceSettings, onChange func(string, gobreaker.State)) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenMaxReqs,
		Interval:    s.CountInterval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			onChange(name, to)
		},
	})
}

// NewUpstreamBreakers creates breakers with default settings
func NewUpstreamBreakers() *UpstreamBreakers {
	initUpstreamMetrics()

	update := func(service string, state gobreaker.State) {
		var v float64
		switch state {
		case gobreaker.StateClosed:
			v = 0
		case gobreaker.StateOpen:
			v = 1
		case gobreaker.StateHalfOpen:
			v = 2
		}
		upstreamStateGauge.WithLabelValues(service).Set(v)
	}

	b := &UpstreamBreakers{
		llm: newBreaker("llm", ServiceSettings{
			MinRequests:     llmMinRequests,
			FailureRatio:    llmFailureRatio,
			OpenTimeout:     llmOpenTimeout,
			HalfOpenMaxReqs: llmHalfOpenMax,
			CountInterval:   llmCountInterval,
		}, update),
		venue: newBreaker("venue", ServiceSettings{
			MinRequests:     venueMinRequests,
			FailureRatio:    venueFailureRatio,
			OpenTimeout:     venueOpenTimeout,
			HalfOpenMaxReqs: venueHalfOpenMax,
			CountInterval:   venueCountInterval,
		}, update),
		news: newBreaker("news", ServiceSettings{
			MinRequests:     newsMinRequests,
			FailureRatio:    newsFailureRatio,
			OpenTimeout:     newsOpenTimeout,
			HalfOpenMaxReqs: newsHalfOpenMax,
			CountInterval:   newsCountInterval,
		}, update),
	}

	update("llm", b.llm.State())
	update("venue", b.venue.State())
	update("news", b.news.State())
	return b
}

// NewPassthroughUpstreamBreakers creates breakers that never trip, for
// tests exercising other components.
func NewPassthroughUpstreamBreakers() *UpstreamBreakers {
	initUpstreamMetrics()

	neverTrip := func(counts gobreaker.Counts) bool { return false }
	passthrough := func(name string) *gobreaker.CircuitBreaker {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1000,
			Interval:    0,
			Timeout:     time.Millisecond,
			ReadyToTrip: neverTrip,
		})
	}

	return &UpstreamBreakers{
		llm:   passthrough("llm_passthrough"),
		venue: passthrough("venue_passthrough"),
		news:  passthrough("news_passthrough"),
	}
}

// LLM returns the LLM provider breaker
func (b *UpstreamBreakers) LLM() *gobreaker.CircuitBreaker { return b.llm }

// Venue returns the trading venue breaker
func (b *UpstreamBreakers) Venue() *gobreaker.CircuitBreaker { return b.venue }

// News returns the news provider breaker
func (b *UpstreamBreakers) News() *gobreaker.CircuitBreaker { return b.news }
