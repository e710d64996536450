package stream

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decisionEvent(agentID string, n int) *Event {
	return New(TypeAgentDecision, agentID, AgentDecisionPayload{
		AgentID:   agentID,
		RoundID:   "round-1",
		Action:    "buy",
		Symbol:    "BTC",
		Quantity:  float64(n),
		Reasoning: fmt.Sprintf("decision %d", n),
	})
}

func TestBus_CatchUpThenLive(t *testing.T) {
	bus := NewBus(Options{MaxEvents: 300, CatchUp: 20})

	published := make([]*Event, 0, 25)
	for i := 0; i < 25; i++ {
		ev := decisionEvent("alpha", i)
		bus.Publish(ev)
		published = append(published, ev)
	}

	sub := bus.Subscribe(Filter{Types: []Type{TypeAgentDecision}})
	defer sub.Close()

	backlog := sub.Backlog()
	require.Len(t, backlog, 20)

	// Newest first: event 24 down to event 5
	assert.Equal(t, published[24].ID, backlog[0].ID)
	assert.Equal(t, published[5].ID, backlog[19].ID)
	for i := 1; i < len(backlog); i++ {
		assert.False(t, backlog[i].Timestamp.After(backlog[i-1].Timestamp))
	}

	live := decisionEvent("alpha", 25)
	bus.Publish(live)

	select {
	case got := <-sub.Events():
		assert.Equal(t, live.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("live event not delivered")
	}
}

func TestBus_RingEviction(t *testing.T) {
	bus := NewBus(Options{MaxEvents: 10, CatchUp: 20})
	for i := 0; i < 15; i++ {
		bus.Publish(decisionEvent("alpha", i))
	}

	recent := bus.Recent(Filter{}, 100)
	require.Len(t, recent, 10)
	assert.Equal(t, 14.0, recent[0].Payload.(AgentDecisionPayload).Quantity)
	assert.Equal(t, 5.0, recent[9].Payload.(AgentDecisionPayload).Quantity)
}

func TestBus_DuplicateIDIgnored(t *testing.T) {
	bus := NewBus(Options{})
	ev := decisionEvent("alpha", 1)
	bus.Publish(ev)
	bus.Publish(ev)

	assert.Len(t, bus.Recent(Filter{}, 100), 1)
}

func TestBus_FilterByTypeAndAgent(t *testing.T) {
	bus := NewBus(Options{})
	bus.Publish(decisionEvent("alpha", 1))
	bus.Publish(decisionEvent("bravo", 2))
	bus.Publish(New(TypeRoundStarted, "", RoundStartedPayload{RoundID: "round-1"}))
	bus.Publish(New(TypeTradeExecuted, "alpha", TradeExecutedPayload{AgentID: "alpha"}))

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"decisions only", Filter{Types: []Type{TypeAgentDecision}}, 2},
		{"alpha only", Filter{AgentIDs: []string{"alpha"}}, 2},
		{"alpha decisions", Filter{Types: []Type{TypeAgentDecision}, AgentIDs: []string{"alpha"}}, 1},
		{"agent filter excludes agentless events", Filter{AgentIDs: []string{"alpha", "bravo"}}, 3},
		{"two types", Filter{Types: []Type{TypeRoundStarted, TypeTradeExecuted}}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, bus.Recent(tt.filter, 100), tt.want)
		})
	}
}

func TestBus_SubscribeFilterAppliesToBacklogAndLive(t *testing.T) {
	bus := NewBus(Options{})
	bus.Publish(decisionEvent("alpha", 1))
	bus.Publish(decisionEvent("bravo", 2))

	sub := bus.Subscribe(Filter{AgentIDs: []string{"bravo"}})
	defer sub.Close()

	require.Len(t, sub.Backlog(), 1)
	assert.Equal(t, "bravo", sub.Backlog()[0].AgentID)

	bus.Publish(decisionEvent("alpha", 3))
	bus.Publish(decisionEvent("bravo", 4))

	select {
	case got := <-sub.Events():
		assert.Equal(t, "bravo", got.AgentID)
		assert.Equal(t, 4.0, got.Payload.(AgentDecisionPayload).Quantity)
	case <-time.After(time.Second):
		t.Fatal("filtered live event not delivered")
	}
}

func TestBus_SlowSubscriberDropsOldest(t *testing.T) {
	bus := NewBus(Options{Buffer: 2})
	sub := bus.Subscribe(Filter{})
	defer sub.Close()

	for i := 0; i < 5; i++ {
		bus.Publish(decisionEvent("alpha", i))
	}

	assert.Equal(t, int64(3), sub.Dropped())

	first := <-sub.Events()
	second := <-sub.Events()
	assert.Equal(t, 3.0, first.Payload.(AgentDecisionPayload).Quantity)
	assert.Equal(t, 4.0, second.Payload.(AgentDecisionPayload).Quantity)
}

func TestBus_CloseDetachesAndClosesChannel(t *testing.T) {
	bus := NewBus(Options{})
	sub := bus.Subscribe(Filter{})
	assert.Equal(t, 1, bus.SubscriberCount())

	sub.Close()
	sub.Close()

	assert.Equal(t, 0, bus.SubscriberCount())
	_, open := <-sub.Events()
	assert.False(t, open)

	// Publishing after detach must not panic
	bus.Publish(decisionEvent("alpha", 1))
}

func TestBus_Heartbeats(t *testing.T) {
	bus := NewBus(Options{Heartbeat: 20 * time.Millisecond})
	sub := bus.Subscribe(Filter{})
	defer sub.Close()

	select {
	case beat := <-sub.Heartbeats():
		assert.False(t, beat.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no heartbeat received")
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus(Options{MaxEvents: 50})
	sub := bus.Subscribe(Filter{})
	defer sub.Close()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				bus.Publish(decisionEvent(fmt.Sprintf("agent-%d", g), i))
			}
		}(g)
	}

	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-sub.Events():
				received++
			case <-time.After(200 * time.Millisecond):
				return
			}
		}
	}()

	wg.Wait()
	<-done

	assert.LessOrEqual(t, len(bus.Recent(Filter{}, 1000)), 50)
	assert.Equal(t, int64(200), int64(received)+sub.Dropped())
}

func startTestNATSServer(t *testing.T) *server.Server {
	t.Helper()
	opts := &server.Options{
		Host: "127.0.0.1",
		Port: -1, // Random port
	}

	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	return ns
}

func TestNATSBridge_MirrorsEvents(t *testing.T) {
	ns := startTestNATSServer(t)
	defer ns.Shutdown()

	bus := NewBus(Options{})
	bridge, err := NewNATSBridge(ns.ClientURL(), "test.arena.events")
	require.NoError(t, err)
	defer bridge.Close()

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	inbox, err := nc.SubscribeSync("test.arena.events.>")
	require.NoError(t, err)

	bridge.Start(bus)

	published := decisionEvent("alpha", 7)
	bus.Publish(published)

	msg, err := inbox.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "test.arena.events.agent_decision", msg.Subject)

	var mirrored Event
	require.NoError(t, json.Unmarshal(msg.Data, &mirrored))
	assert.Equal(t, published.ID, mirrored.ID)
	assert.Equal(t, TypeAgentDecision, mirrored.Type)
	assert.Equal(t, "alpha", mirrored.AgentID)
}
