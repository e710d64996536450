// Package rpc provides the rate-limited gate every external market and
// venue call goes through. Calls acquire a token from a sliding window
// before running; excess callers queue FIFO and transient failures are
// retried with exponential backoff, re-entering the gate on each attempt.
package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openbench/tradearena/internal/metrics"
)

// Options configures the rate-limited client
type Options struct {
	MaxCalls     int           // Tokens per window
	Window       time.Duration // Sliding window length
	Timeout      time.Duration // Per-attempt timeout
	MaxRetries   int           // Retries after the first attempt
	RetryBackoff time.Duration // Base backoff, doubled per attempt
}

// DefaultOptions returns the default gate configuration
func DefaultOptions() Options {
	return Options{
		MaxCalls:     5,
		Window:       1000 * time.Millisecond,
		Timeout:      10 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// Stats is a point-in-time snapshot of gate counters
type Stats struct {
	TotalCalls        int64   `json:"totalCalls"`
	RateLimitHits     int64   `json:"rateLimitHits"`
	AvgQueueWaitMs    float64 `json:"avgQueueWaitMs"`
	CurrentQueueDepth int     `json:"currentQueueDepth"`
}

// waiter is one queued caller. Its ready channel is signalled when it
// should re-check the window (it became head, or a token may be free).
type waiter struct {
	ready chan struct{}
}

func (w *waiter) signal() {
	select {
	case w.ready <- struct{}{}:
	default:
	}
}

// Client is a sliding-window rate limiter over external operations.
// Tokens are consumed at call start and age out by timestamp, not by
// completion, so long-running calls do not starve the window.
type Client struct {
	opts Options
	log  zerolog.Logger

	mu          sync.Mutex
	timestamps  []time.Time // call starts inside the current window
	queue       []*waiter   // FIFO waiters
	totalCalls  int64
	limitHits   int64
	waitSumMs   float64
	waitSamples int64
}

// NewClient creates a rate-limited client. Zero option fields fall back
// to defaults.
func NewClient(opts Options) *Client {
	def := DefaultOptions()
	if opts.MaxCalls <= 0 {
		opts.MaxCalls = def.MaxCalls
	}
	if opts.Window <= 0 {
		opts.Window = def.Window
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	return &Client{
		opts: opts,
		log:  log.With().Str("component", "rpc_gate").Logger(),
	}
}

// pruneLocked drops timestamps that have aged out of the window.
// Callers must hold c.mu.
func (c *Client) pruneLocked(now time.Time) {
	cutoff := now.Add(-c.opts.Window)
	i := 0
	for i < len(c.timestamps) && !c.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		c.timestamps = append(c.timestamps[:0], c.timestamps[i:]...)
	}
}

// acquire blocks until a window token is available and the caller is at
// the head of the FIFO queue, or ctx is cancelled.
func (c *Client) acquire(ctx context.Context) error {
	start := time.Now()

	c.mu.Lock()
	c.pruneLocked(start)
	if len(c.queue) == 0 && len(c.timestamps) < c.opts.MaxCalls {
		c.timestamps = append(c.timestamps, start)
		c.totalCalls++
		c.waitSamples++
		c.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{}, 1)}
	c.queue = append(c.queue, w)
	c.limitHits++
	metrics.RPCRateLimitHits.Inc()
	metrics.RPCQueueDepth.Set(float64(len(c.queue)))
	c.mu.Unlock()

	for {
		c.mu.Lock()
		now := time.Now()
		c.pruneLocked(now)
		if c.queue[0] == w && len(c.timestamps) < c.opts.MaxCalls {
			c.queue = c.queue[1:]
			c.timestamps = append(c.timestamps, now)
			c.totalCalls++
			waited := float64(now.Sub(start).Milliseconds())
			c.waitSumMs += waited
			c.waitSamples++
			metrics.RPCQueueWait.Observe(waited)
			metrics.RPCQueueDepth.Set(float64(len(c.queue)))
			// Wake the next head so it can take a token or arm its
			// own expiry timer.
			if len(c.queue) > 0 {
				c.queue[0].signal()
			}
			c.mu.Unlock()
			return nil
		}

		// Only the head arms a timer for the oldest token's expiry;
		// everyone behind it waits to be signalled forward.
		var timer *time.Timer
		var expiry <-chan time.Time
		if c.queue[0] == w && len(c.timestamps) > 0 {
			wake := c.timestamps[0].Add(c.opts.Window).Sub(now) + time.Millisecond
			if wake < time.Millisecond {
				wake = time.Millisecond
			}
			timer = time.NewTimer(wake)
			expiry = timer.C
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			c.removeWaiter(w)
			return fmt.Errorf("rate limit wait cancelled: %w", ctx.Err())
		case <-w.ready:
			if timer != nil {
				timer.Stop()
			}
		case <-expiry:
		}
	}
}

// removeWaiter takes a cancelled waiter out of the queue
func (c *Client) removeWaiter(w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, q := range c.queue {
		if q == w {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			if i == 0 && len(c.queue) > 0 {
				c.queue[0].signal()
			}
			metrics.RPCQueueDepth.Set(float64(len(c.queue)))
			return
		}
	}
}

// Execute runs op through the gate. Transient failures are retried with
// exponential backoff and jitter; each retry re-enters the gate and
// consumes a fresh token. The per-attempt timeout applies around op, on
// top of whatever deadline ctx already carries.
func (c *Client) Execute(ctx context.Context, label string, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := backoffWithJitter(c.opts.RetryBackoff, attempt-1)
			c.log.Warn().
				Str("label", label).
				Err(lastErr).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Retrying operation after transient failure")
			metrics.RPCRetries.Inc()

			select {
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled during backoff: %w", label, ctx.Err())
			case <-time.After(backoff):
			}
		}

		if err := c.acquire(ctx); err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		err := op(attemptCtx)
		cancel()

		if err == nil {
			metrics.RPCCalls.WithLabelValues(label, "ok").Inc()
			if attempt > 0 {
				c.log.Info().Str("label", label).Int("attempt", attempt+1).Msg("Operation succeeded after retry")
			}
			return nil
		}

		lastErr = err
		metrics.RPCCalls.WithLabelValues(label, metrics.NormalizeUpstreamError(err)).Inc()

		if !IsTransient(err) {
			c.log.Debug().Str("label", label).Err(err).Msg("Error is not transient, aborting")
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s cancelled: %w", label, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", label, c.opts.MaxRetries+1, lastErr)
}

// Do runs fn through the gate and returns its value. See Execute for
// retry and rate-limit semantics.
func Do[T any](ctx context.Context, c *Client, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := c.Execute(ctx, label, func(ctx context.Context) error {
		var opErr error
		result, opErr = fn(ctx)
		return opErr
	})
	return result, err
}

// Stats returns a snapshot of the gate counters
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	avg := 0.0
	if c.waitSamples > 0 {
		avg = c.waitSumMs / float64(c.waitSamples)
	}
	return Stats{
		TotalCalls:        c.totalCalls,
		RateLimitHits:     c.limitHits,
		AvgQueueWaitMs:    avg,
		CurrentQueueDepth: len(c.queue),
	}
}
