package ledger

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// csvHeader is the fixed column order for CSV export
var csvHeader = []string{
	"sequenceNumber", "entryId", "timestamp", "agentId", "roundId",
	"action", "symbol", "quantity", "priceAtTrade", "confidence",
	"intent", "reasoning", "coherenceScore", "depthScore",
	"forensicScore", "efficiencyScore", "disciplinePass",
	"hallucinationCount", "outcomeResolved", "outcomeCorrect",
	"pnlPercent", "previousHash", "entryHash",
}

// exportFields is the full canonical map for one entry: the hashed
// fields plus entryHash and whatever outcome fields are set.
func (e *Entry) exportFields() map[string]any {
	m := e.hashFields()
	m["entryHash"] = e.EntryHash
	m["outcomeResolved"] = e.OutcomeResolved
	if e.OutcomeCorrect != nil {
		m["outcomeCorrect"] = *e.OutcomeCorrect
	}
	if e.PnlPercent != nil {
		m["pnlPercent"] = *e.PnlPercent
	}
	if e.OutcomeTimestamp != nil {
		m["outcomeTimestamp"] = *e.OutcomeTimestamp
	}
	return m
}

// ExportJSONL writes entries oldest first, one canonical JSON object
// per line, optionally restricted to one agent.
func (l *Ledger) ExportJSONL(agentID string) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var buf bytes.Buffer
	for _, e := range l.entries {
		if agentID != "" && e.AgentID != agentID {
			continue
		}
		line, err := CanonicalJSON(e.exportFields())
		if err != nil {
			return nil, fmt.Errorf("failed to export ledger entry %s: %w", e.EntryID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// ExportCSV writes entries oldest first under a fixed header,
// optionally restricted to one agent.
func (l *Ledger) ExportCSV(agentID string) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range l.entries {
		if agentID != "" && e.AgentID != agentID {
			continue
		}
		if err := w.Write(e.csvRecord()); err != nil {
			return nil, fmt.Errorf("failed to write CSV row for entry %s: %w", e.EntryID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV export: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Entry) csvRecord() []string {
	outcomeCorrect := ""
	if e.OutcomeCorrect != nil {
		outcomeCorrect = strconv.FormatBool(*e.OutcomeCorrect)
	}
	pnl := ""
	if e.PnlPercent != nil {
		pnl = strconv.FormatFloat(*e.PnlPercent, 'f', -1, 64)
	}
	return []string{
		strconv.FormatInt(e.SequenceNumber, 10),
		e.EntryID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.AgentID,
		e.RoundID,
		e.Action,
		e.Symbol,
		strconv.FormatFloat(e.Quantity, 'f', -1, 64),
		strconv.FormatFloat(e.PriceAtTrade, 'f', -1, 64),
		strconv.FormatFloat(e.Confidence, 'f', -1, 64),
		e.Intent,
		e.Reasoning,
		strconv.FormatFloat(e.CoherenceScore, 'f', -1, 64),
		strconv.FormatFloat(e.DepthScore, 'f', -1, 64),
		strconv.FormatFloat(e.ForensicScore, 'f', -1, 64),
		strconv.FormatFloat(e.EfficiencyScore, 'f', -1, 64),
		strconv.FormatBool(e.DisciplinePass),
		strconv.Itoa(len(e.HallucinationFlags)),
		strconv.FormatBool(e.OutcomeResolved),
		outcomeCorrect,
		pnl,
		e.PreviousHash,
		e.EntryHash,
	}
}
