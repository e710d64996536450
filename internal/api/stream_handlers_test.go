package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbench/tradearena/internal/stream"
)

type sseFrame struct {
	event   string
	id      string
	data    string
	comment bool
}

func parseSSE(body string) []sseFrame {
	var frames []sseFrame
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if strings.HasPrefix(block, ":") {
			frames = append(frames, sseFrame{comment: true, data: block})
			continue
		}
		var f sseFrame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				f.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "id: "):
				f.id = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "data: "):
				f.data = strings.TrimPrefix(line, "data: ")
			}
		}
		frames = append(frames, f)
	}
	return frames
}

func publishDecisions(bus *stream.Bus, n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ev := stream.New(stream.TypeAgentDecision, "alpha", stream.AgentDecisionPayload{
			AgentID: "alpha",
			RoundID: fmt.Sprintf("r%d", i),
			Action:  "buy",
			Symbol:  "BTC",
		})
		bus.Publish(ev)
		ids = append(ids, ev.ID)
	}
	return ids
}

func TestStreamEvents_NewestFirstWithFilter(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, nil)
	ids := publishDecisions(fx.bus, 25)
	for i := 0; i < 5; i++ {
		fx.bus.Publish(stream.New(stream.TypeTradeExecuted, "bravo", stream.TradeExecutedPayload{AgentID: "bravo"}))
	}

	w := doRequest(fx, http.MethodGet, "/trade-stream/events?types=agent_decision&limit=10")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Events []*stream.Event `json:"events"`
		Count  int             `json:"count"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, 10, resp.Count)
	require.Len(t, resp.Events, 10)
	assert.Equal(t, ids[len(ids)-1], resp.Events[0].ID, "newest first")
	for _, ev := range resp.Events {
		assert.Equal(t, stream.TypeAgentDecision, ev.Type)
	}

	w = doRequest(fx, http.MethodGet, "/trade-stream/events?agentId=bravo")
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &resp)
	assert.Equal(t, 5, resp.Count)
}

func TestStreamEvents_SinceFilter(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, nil)

	publishDecisions(fx.bus, 1)
	time.Sleep(5 * time.Millisecond)
	mid := time.Now().UTC()
	time.Sleep(5 * time.Millisecond)
	late := publishDecisions(fx.bus, 1)

	target := "/trade-stream/events?since=" + mid.Format(time.RFC3339Nano)
	w := doRequest(fx, http.MethodGet, target)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Events []*stream.Event `json:"events"`
		Count  int             `json:"count"`
	}
	decodeBody(t, w, &resp)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, late[0], resp.Events[0].ID)

	w = doRequest(fx, http.MethodGet, "/trade-stream/events?since=yesterday")
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	decodeBody(t, w, &body)
	assert.Equal(t, codeValidation, body.Code)
}

func TestStreamLive_ConnectedThenCatchUp(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, nil)
	ids := publishDecisions(fx.bus, 25)

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/trade-stream/live?types=agent_decision", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	fx.server.router.ServeHTTP(w, req)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	var events []sseFrame
	for _, f := range parseSSE(w.Body.String()) {
		if !f.comment {
			events = append(events, f)
		}
	}
	require.NotEmpty(t, events)
	assert.Equal(t, "connected", events[0].event)
	assert.Contains(t, events[0].data, "subscriberId")

	catchUp := events[1:]
	require.Len(t, catchUp, 20, "catch-up cap")
	for i, f := range catchUp {
		assert.Equal(t, "agent_decision", f.event)
		assert.Equal(t, ids[len(ids)-1-i], f.id, "newest first")
	}
}

func TestStreamLive_DeliversLiveEventsAndHeartbeats(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, nil)

	liveCh := make(chan string, 1)
	timer := time.AfterFunc(80*time.Millisecond, func() {
		ev := stream.New(stream.TypeTradeExecuted, "alpha", stream.TradeExecutedPayload{AgentID: "alpha"})
		fx.bus.Publish(ev)
		liveCh <- ev.ID
	})
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/trade-stream/live", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	fx.server.router.ServeHTTP(w, req)

	liveID := <-liveCh
	frames := parseSSE(w.Body.String())

	var sawLive, sawHeartbeat bool
	for _, f := range frames {
		if f.comment && strings.HasPrefix(f.data, ": heartbeat ") {
			sawHeartbeat = true
		}
		if f.id == liveID && f.event == "trade_executed" {
			sawLive = true
		}
	}
	assert.True(t, sawLive, "live event delivered after subscribe")
	assert.True(t, sawHeartbeat, "heartbeat comments emitted")
}

func TestStreamWS_MirrorsLiveStream(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, nil)

	ts := httptest.NewServer(fx.server.router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/trade-stream/ws?types=agent_decision"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var greeting map[string]any
	require.NoError(t, conn.ReadJSON(&greeting))
	assert.Equal(t, "connected", greeting["type"])
	assert.NotEmpty(t, greeting["subscriberId"])

	published := stream.New(stream.TypeAgentDecision, "alpha", stream.AgentDecisionPayload{
		AgentID: "alpha",
		RoundID: "r1",
		Action:  "buy",
		Symbol:  "BTC",
	})
	fx.bus.Publish(published)

	var ev stream.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, published.ID, ev.ID)
	assert.Equal(t, stream.TypeAgentDecision, ev.Type)
	assert.Equal(t, "alpha", ev.AgentID)
}
