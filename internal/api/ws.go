package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openbench/tradearena/internal/stream"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The stream is read-only broadcast data; origin checks add nothing.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStreamWS mirrors the SSE live stream over a websocket. Each
// event is one JSON message; heartbeats become ping frames.
func (s *Server) handleStreamWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("Websocket upgrade failed")
		return
	}

	filter := stream.Filter{
		Types:    parseTypes(c.Query("types")),
		AgentIDs: splitCSV(c.Query("agentIds")),
	}
	sub := s.svc.Bus.Subscribe(filter)

	done := make(chan struct{})
	go s.writePump(conn, sub, done)

	// Reads only drain control frames; any error means the client left.
	conn.SetReadLimit(wsMaxMessageSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
}

func (s *Server) writePump(conn *websocket.Conn, sub *stream.Subscription, done <-chan struct{}) {
	defer func() {
		sub.Close()
		conn.Close()
	}()

	greeting := gin.H{"type": "connected", "subscriberId": sub.ID()}
	if writeWS(conn, greeting) != nil {
		return
	}

	for _, ev := range sub.Backlog() {
		if writeWS(conn, ev) != nil {
			return
		}
	}

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if writeWS(conn, ev) != nil {
				return
			}
		case <-sub.Heartbeats():
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeWS(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(v)
}
