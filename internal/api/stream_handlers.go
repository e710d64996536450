package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openbench/tradearena/internal/stream"
)

// handleStreamLive serves the event bus as SSE: a connected event, the
// catch-up backlog newest first, then live events with heartbeat
// comments until the client disconnects.
func (s *Server) handleStreamLive(c *gin.Context) {
	filter := stream.Filter{
		Types:    parseTypes(c.Query("types")),
		AgentIDs: splitCSV(c.Query("agentIds")),
	}

	sub := s.svc.Bus.Subscribe(filter)
	defer sub.Close()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	greeting, _ := json.Marshal(gin.H{"subscriberId": sub.ID()})
	fmt.Fprintf(c.Writer, "event: connected\nid: %s\ndata: %s\n\n", sub.ID(), greeting)

	for _, ev := range sub.Backlog() {
		writeSSE(c.Writer, ev)
	}
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			writeSSE(c.Writer, ev)
			c.Writer.Flush()
		case hb := <-sub.Heartbeats():
			fmt.Fprintf(c.Writer, ": heartbeat %s\n\n", hb.UTC().Format(time.RFC3339))
			c.Writer.Flush()
		}
	}
}

// handleStreamEvents is the polling fallback, newest first
func (s *Server) handleStreamEvents(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 50)
	if !ok {
		return
	}

	filter := stream.Filter{Types: parseTypes(c.Query("types"))}
	if agentID := c.Query("agentId"); agentID != "" {
		filter.AgentIDs = []string{agentID}
	}

	events := s.svc.Bus.Recent(filter, limit)

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, codeValidation, "since must be an RFC 3339 timestamp")
			return
		}
		kept := events[:0]
		for _, ev := range events {
			if ev.Timestamp.After(since) {
				kept = append(kept, ev)
			}
		}
		events = kept
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

func writeSSE(w io.Writer, ev *stream.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", ev.Type, ev.ID, data)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseTypes(raw string) []stream.Type {
	parts := splitCSV(raw)
	if len(parts) == 0 {
		return nil
	}
	types := make([]stream.Type, 0, len(parts))
	for _, p := range parts {
		types = append(types, stream.Type(p))
	}
	return types
}
