package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NATSBridge mirrors bus events onto NATS subjects so out-of-process
// consumers (dashboards, recorders) can follow the arena without
// holding an HTTP connection open.
type NATSBridge struct {
	nc     *nats.Conn
	prefix string
	sub    *Subscription
	done   chan struct{}
	log    zerolog.Logger
}

// NewNATSBridge connects to NATS. Subject pattern: {prefix}.{type}.
func NewNATSBridge(url, prefix string) (*NATSBridge, error) {
	nc, err := nats.Connect(
		url,
		nats.Name("tradearena-bridge"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	if prefix == "" {
		prefix = "arena.events"
	}

	return &NATSBridge{
		nc:     nc,
		prefix: prefix,
		done:   make(chan struct{}),
		log:    log.With().Str("component", "nats_bridge").Logger(),
	}, nil
}

// Start attaches to the bus and pumps every event out. Returns
// immediately; mirroring runs until Close.
func (br *NATSBridge) Start(bus *Bus) {
	br.sub = bus.Subscribe(Filter{})
	go br.pump()
	br.log.Info().Str("prefix", br.prefix).Msg("NATS bridge started")
}

func (br *NATSBridge) pump() {
	for {
		select {
		case <-br.done:
			return
		case ev, ok := <-br.sub.Events():
			if !ok {
				return
			}
			br.publish(ev)
		}
	}
}

func (br *NATSBridge) publish(ev *Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		br.log.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to marshal event for NATS")
		return
	}

	subject := fmt.Sprintf("%s.%s", br.prefix, ev.Type)
	if err := br.nc.Publish(subject, data); err != nil {
		br.log.Warn().Err(err).Str("subject", subject).Msg("Failed to mirror event to NATS")
	}
}

// Close detaches from the bus and drains the connection
func (br *NATSBridge) Close() {
	close(br.done)
	if br.sub != nil {
		br.sub.Close()
	}
	if err := br.nc.Drain(); err != nil {
		br.log.Warn().Err(err).Msg("Failed to drain NATS connection")
	}
}
