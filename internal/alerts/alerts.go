// Package alerts fans operational alerts out to configured channels.
// The arena raises them for failed rounds, ledger integrity breaks and
// loss-streak halts; delivery is best effort and never blocks a round.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Severity levels for alerts
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one alert message
type Alert struct {
	Title     string
	Message   string
	Severity  Severity
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Alerter delivers alerts over one channel
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager fans alerts out to every configured channel. A failing
// channel does not stop delivery to the others; the last error is
// returned for logging.
type Manager struct {
	alerters []Alerter
}

// NewManager creates an alert manager over the given channels
func NewManager(alerters ...Alerter) *Manager {
	return &Manager{alerters: alerters}
}

// Send delivers one alert to all channels
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	var lastErr error
	for _, alerter := range m.alerters {
		if err := alerter.Send(ctx, alert); err != nil {
			log.Error().
				Err(err).
				Str("title", alert.Title).
				Msg("Failed to send alert")
			lastErr = err
		}
	}
	return lastErr
}

// SendCritical sends a critical alert
func (m *Manager) SendCritical(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{Title: title, Message: message, Severity: SeverityCritical, Metadata: metadata})
}

// SendWarning sends a warning alert
func (m *Manager) SendWarning(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{Title: title, Message: message, Severity: SeverityWarning, Metadata: metadata})
}

// SendInfo sends an informational alert
func (m *Manager) SendInfo(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{Title: title, Message: message, Severity: SeverityInfo, Metadata: metadata})
}

// RoundFailed alerts that a trading round ended in a failed state
func (m *Manager) RoundFailed(ctx context.Context, roundID string, err error) {
	_ = m.SendCritical(ctx, "Trading Round Failed", fmt.Sprintf(
		"Round %s did not complete: %v", roundID, err,
	), map[string]interface{}{
		"round_id": roundID,
		"error":    err.Error(),
	})
}

// IntegrityBreak alerts that ledger verification found a broken chain
func (m *Manager) IntegrityBreak(ctx context.Context, brokenAt int, latestHash string) {
	_ = m.SendCritical(ctx, "Ledger Integrity Break", fmt.Sprintf(
		"Hash chain verification failed at entry %d", brokenAt,
	), map[string]interface{}{
		"broken_at":   brokenAt,
		"latest_hash": latestHash,
	})
}

// LossStreakHalt alerts that an agent was halted by the loss-streak breaker
func (m *Manager) LossStreakHalt(ctx context.Context, agentID string, losses int) {
	_ = m.SendWarning(ctx, "Agent Halted", fmt.Sprintf(
		"Agent %s halted after %d consecutive losses", agentID, losses,
	), map[string]interface{}{
		"agent_id": agentID,
		"losses":   losses,
	})
}

// LogAlerter writes alerts to the process log
type LogAlerter struct{}

// NewLogAlerter creates a log-backed alerter
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

// Send logs the alert at a level matching its severity
func (l *LogAlerter) Send(ctx context.Context, alert Alert) error {
	event := log.Info()
	switch alert.Severity {
	case SeverityCritical:
		event = log.Error()
	case SeverityWarning:
		event = log.Warn()
	}

	for key, value := range alert.Metadata {
		event = event.Interface(key, value)
	}

	event.
		Str("alert_title", alert.Title).
		Str("alert_severity", string(alert.Severity)).
		Time("alert_time", alert.Timestamp).
		Msg(alert.Message)

	return nil
}
