// Package metrics defines the arena's Prometheus instrumentation and scrape endpoint.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server serves the Prometheus scrape endpoint on its own port, away
// from the public API surface.
type Server struct {
	addr    string
	version string
	server  *http.Server
	log     zerolog.Logger
}

// NewServer creates a scrape server on the given port. version is the
// benchmark version reported by the health endpoint.
func NewServer(port int, version string, log zerolog.Logger) *Server {
	return &Server{
		addr:    fmt.Sprintf(":%d", port),
		version: version,
		log:     log.With().Str("component", "metrics_server").Logger(),
	}
}

// Start binds the scrape port and serves in the background. Bind
// failures return to the caller; anything after that only logs, since
// losing scrapes must never take the arena down.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		Timeout: 10 * time.Second,
	}))
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind metrics port: %w", err)
	}

	s.log.Info().Str("addr", s.addr).Msg("Starting metrics server")

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":           "ok",
		"benchmarkVersion": s.version,
	})
}

// Shutdown drains the scrape server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.log.Info().Msg("Shutting down metrics server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}

	return nil
}
