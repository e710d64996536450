package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openbench/tradearena/internal/metrics"
)

const (
	// DefaultMaxEvents bounds the catch-up ring
	DefaultMaxEvents = 300
	// DefaultCatchUp caps the synchronous backlog per subscriber
	DefaultCatchUp = 20
	// DefaultHeartbeat is the per-subscriber keepalive interval
	DefaultHeartbeat = 5 * time.Second
	// DefaultBuffer is the per-subscriber live channel depth
	DefaultBuffer = 64
)

// Filter selects which events a subscriber sees. Empty fields match
// everything; an agent filter never matches events without an agent.
type Filter struct {
	Types    []Type   `json:"types,omitempty"`
	AgentIDs []string `json:"agentIds,omitempty"`
}

func (f *Filter) matches(ev *Event) bool {
	if len(f.Types) > 0 && !containsType(f.Types, ev.Type) {
		return false
	}
	if len(f.AgentIDs) > 0 && !containsString(f.AgentIDs, ev.AgentID) {
		return false
	}
	return true
}

func containsType(set []Type, t Type) bool {
	for _, v := range set {
		if v == t {
			return true
		}
	}
	return false
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Options tunes a Bus; zero fields take the package defaults
type Options struct {
	MaxEvents int
	CatchUp   int
	Heartbeat time.Duration
	Buffer    int
}

// Bus is the in-process fan-out hub. Publishers never block: when a
// subscriber's channel is full the oldest undelivered event is dropped
// in favor of the new one.
type Bus struct {
	mu      sync.Mutex
	ring    []*Event
	ringIDs map[string]struct{}
	subs    map[string]*Subscription

	maxEvents int
	catchUp   int
	heartbeat time.Duration
	buffer    int
	log       zerolog.Logger
}

// NewBus creates a bus with the given options
func NewBus(opts Options) *Bus {
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = DefaultMaxEvents
	}
	if opts.CatchUp <= 0 {
		opts.CatchUp = DefaultCatchUp
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	return &Bus{
		ring:      make([]*Event, 0, opts.MaxEvents),
		ringIDs:   make(map[string]struct{}),
		subs:      make(map[string]*Subscription),
		maxEvents: opts.MaxEvents,
		catchUp:   opts.CatchUp,
		heartbeat: opts.Heartbeat,
		buffer:    opts.Buffer,
		log:       log.With().Str("component", "stream").Logger(),
	}
}

// Publish records the event and fans it out. Re-publishing an id
// already in the ring is a no-op.
func (b *Bus) Publish(ev *Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	if _, dup := b.ringIDs[ev.ID]; dup {
		b.mu.Unlock()
		return
	}

	b.ring = append(b.ring, ev)
	b.ringIDs[ev.ID] = struct{}{}
	if len(b.ring) > b.maxEvents {
		evicted := b.ring[0]
		b.ring = b.ring[1:]
		delete(b.ringIDs, evicted.ID)
	}

	for _, sub := range b.subs {
		if sub.filter.matches(ev) {
			sub.offer(ev)
		}
	}
	b.mu.Unlock()

	metrics.StreamEventsPublished.WithLabelValues(string(ev.Type)).Inc()
}

// Recent returns up to limit ring events matching the filter, newest
// first. A limit of zero or less takes the bus catch-up cap.
func (b *Bus) Recent(filter Filter, limit int) []*Event {
	if limit <= 0 {
		limit = b.catchUp
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recentLocked(filter, limit)
}

func (b *Bus) recentLocked(filter Filter, limit int) []*Event {
	out := make([]*Event, 0, limit)
	for i := len(b.ring) - 1; i >= 0 && len(out) < limit; i-- {
		if filter.matches(b.ring[i]) {
			out = append(out, b.ring[i])
		}
	}
	return out
}

// Subscribe registers a live consumer. The returned backlog holds the
// most recent matching events, newest first, captured atomically with
// registration so the live channel continues exactly where the
// backlog ends.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{
		id:     uuid.New().String(),
		filter: filter,
		ch:     make(chan *Event, b.buffer),
		hb:     make(chan time.Time, 1),
		done:   make(chan struct{}),
		bus:    b,
	}

	b.mu.Lock()
	sub.backlog = b.recentLocked(filter, b.catchUp)
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go sub.heartbeatLoop(b.heartbeat)

	metrics.StreamSubscribers.Inc()
	b.log.Debug().Str("subscription_id", sub.id).Int("backlog", len(sub.backlog)).Msg("Subscriber attached")
	return sub
}

func (b *Bus) remove(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return false
	}
	delete(b.subs, sub.id)
	return true
}

// SubscriberCount reports attached subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscription is one consumer's view of the bus
type Subscription struct {
	id      string
	filter  Filter
	backlog []*Event
	ch      chan *Event
	hb      chan time.Time
	done    chan struct{}
	dropped atomic.Int64
	bus     *Bus
	closeOnce sync.Once
}

// ID identifies the subscription
func (s *Subscription) ID() string { return s.id }

// Backlog is the catch-up snapshot taken at subscribe time, newest first
func (s *Subscription) Backlog() []*Event { return s.backlog }

// Events is the live channel; it closes after Close
func (s *Subscription) Events() <-chan *Event { return s.ch }

// Heartbeats ticks at the bus keepalive interval
func (s *Subscription) Heartbeats() <-chan time.Time { return s.hb }

// Dropped counts events discarded because the consumer fell behind
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// offer delivers without blocking. Caller holds the bus lock, so
// sends here are the only writers and the channel close in Close
// cannot race them.
func (s *Subscription) offer(ev *Event) {
	select {
	case s.ch <- ev:
		return
	default:
	}

	// Full: shed the oldest undelivered event, then retry once.
	select {
	case <-s.ch:
		s.dropped.Add(1)
		metrics.StreamDroppedEvents.Inc()
	default:
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
		metrics.StreamDroppedEvents.Inc()
	}
}

func (s *Subscription) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case t := <-ticker.C:
			select {
			case s.hb <- t:
			default:
			}
		}
	}
}

// Close detaches the subscription and closes its channels. Safe to
// call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		removed := s.bus.remove(s)
		close(s.done)
		if removed {
			close(s.ch)
			metrics.StreamSubscribers.Dec()
			s.bus.log.Debug().
				Str("subscription_id", s.id).
				Int64("dropped", s.dropped.Load()).
				Msg("Subscriber detached")
		}
	})
}
