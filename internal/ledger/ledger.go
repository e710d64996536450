package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openbench/tradearena/internal/metrics"
)

// GenesisHash links the first entry of a chain
const GenesisHash = "genesis"

// DefaultCapacity bounds the in-memory chain
const DefaultCapacity = 5000

// Entry is one immutable ledger record. Only the four outcome fields
// mutate, exactly once, via ResolveOutcome; they are excluded from the
// entry hash so resolution never breaks the chain.
type Entry struct {
	EntryID        string `json:"entryId"`
	SequenceNumber int64  `json:"sequenceNumber"`
	PreviousHash   string `json:"previousHash"`
	EntryHash      string `json:"entryHash"`

	AgentID   string   `json:"agentId"`
	RoundID   string   `json:"roundId"`
	Action    string   `json:"action"`
	Symbol    string   `json:"symbol"`
	Quantity  float64  `json:"quantity"`
	Reasoning string   `json:"reasoning"`

	Confidence       float64  `json:"confidence"`
	Intent           string   `json:"intent"`
	Sources          []string `json:"sources"`
	PredictedOutcome string   `json:"predictedOutcome"`

	MarketSnapshotHash string  `json:"marketSnapshotHash"`
	PriceAtTrade       float64 `json:"priceAtTrade"`

	CoherenceScore     float64  `json:"coherenceScore"`
	HallucinationFlags []string `json:"hallucinationFlags"`
	DisciplinePass     bool     `json:"disciplinePass"`
	DepthScore         float64  `json:"depthScore"`
	ForensicScore      float64  `json:"forensicScore"`
	EfficiencyScore    float64  `json:"efficiencyScore"`

	Witnesses []string `json:"witnesses"`

	OutcomeResolved  bool       `json:"outcomeResolved"`
	OutcomeCorrect   *bool      `json:"outcomeCorrect,omitempty"`
	PnlPercent       *float64   `json:"pnlPercent,omitempty"`
	OutcomeTimestamp *time.Time `json:"outcomeTimestamp,omitempty"`

	Timestamp        time.Time `json:"timestamp"`
	BenchmarkVersion string    `json:"benchmarkVersion"`
}

// hashFields returns the canonical map the entry hash covers: every
// immutable field including previousHash, excluding entryHash and the
// mutable outcome fields.
func (e *Entry) hashFields() map[string]any {
	return map[string]any{
		"entryId":            e.EntryID,
		"sequenceNumber":     e.SequenceNumber,
		"previousHash":       e.PreviousHash,
		"agentId":            e.AgentID,
		"roundId":            e.RoundID,
		"action":             e.Action,
		"symbol":             e.Symbol,
		"quantity":           e.Quantity,
		"reasoning":          e.Reasoning,
		"confidence":         e.Confidence,
		"intent":             e.Intent,
		"sources":            e.Sources,
		"predictedOutcome":   e.PredictedOutcome,
		"marketSnapshotHash": e.MarketSnapshotHash,
		"priceAtTrade":       e.PriceAtTrade,
		"coherenceScore":     e.CoherenceScore,
		"hallucinationFlags": e.HallucinationFlags,
		"disciplinePass":     e.DisciplinePass,
		"depthScore":         e.DepthScore,
		"forensicScore":      e.ForensicScore,
		"efficiencyScore":    e.EfficiencyScore,
		"witnesses":          e.Witnesses,
		"timestamp":          e.Timestamp,
		"benchmarkVersion":   e.BenchmarkVersion,
	}
}

// ComputeHash recomputes the entry hash from current field values
func (e *Entry) ComputeHash() (string, error) {
	return HashJSON(e.hashFields())
}

// AppendFields is everything the caller supplies for a new entry; the
// ledger assigns identity, sequencing and chain linkage itself.
type AppendFields struct {
	AgentID   string
	RoundID   string
	Action    string
	Symbol    string
	Quantity  float64
	Reasoning string

	Confidence       float64
	Intent           string
	Sources          []string
	PredictedOutcome string

	MarketSnapshotHash string
	PriceAtTrade       float64

	CoherenceScore     float64
	HallucinationFlags []string
	DisciplinePass     bool
	DepthScore         float64
	ForensicScore      float64
	EfficiencyScore    float64

	Witnesses []string
	Timestamp time.Time
}

// Ledger is the in-memory hash chain. A single writer appends and
// resolves; readers query, verify and export concurrently.
type Ledger struct {
	mu       sync.RWMutex
	entries  []*Entry
	byID     map[string]*Entry
	nextSeq  int64
	lastHash string
	capacity int
	version  string
	log      zerolog.Logger
}

// New creates a ledger stamping version on every entry
func New(capacity int, version string) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		entries:  make([]*Entry, 0, 128),
		byID:     make(map[string]*Entry),
		lastHash: GenesisHash,
		capacity: capacity,
		version:  version,
		log:      log.With().Str("component", "ledger").Logger(),
	}
}

// Append chains a new entry. Sequence numbers are monotone and never
// reused; exceeding capacity evicts the oldest entry without rewriting
// surviving hashes.
func (l *Ledger) Append(fields AppendFields) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := fields.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	entry := &Entry{
		EntryID:            uuid.New().String(),
		SequenceNumber:     l.nextSeq,
		PreviousHash:       l.lastHash,
		AgentID:            fields.AgentID,
		RoundID:            fields.RoundID,
		Action:             fields.Action,
		Symbol:             fields.Symbol,
		Quantity:           fields.Quantity,
		Reasoning:          fields.Reasoning,
		Confidence:         fields.Confidence,
		Intent:             fields.Intent,
		Sources:            normalized(fields.Sources),
		PredictedOutcome:   fields.PredictedOutcome,
		MarketSnapshotHash: fields.MarketSnapshotHash,
		PriceAtTrade:       fields.PriceAtTrade,
		CoherenceScore:     fields.CoherenceScore,
		HallucinationFlags: normalized(fields.HallucinationFlags),
		DisciplinePass:     fields.DisciplinePass,
		DepthScore:         fields.DepthScore,
		ForensicScore:      fields.ForensicScore,
		EfficiencyScore:    fields.EfficiencyScore,
		Witnesses:          normalized(fields.Witnesses),
		OutcomeResolved:    false,
		Timestamp:          ts,
		BenchmarkVersion:   l.version,
	}

	hash, err := entry.ComputeHash()
	if err != nil {
		return nil, fmt.Errorf("failed to hash ledger entry: %w", err)
	}
	entry.EntryHash = hash

	l.entries = append(l.entries, entry)
	l.byID[entry.EntryID] = entry
	l.nextSeq++
	l.lastHash = hash

	if len(l.entries) > l.capacity {
		evicted := l.entries[0]
		l.entries = l.entries[1:]
		delete(l.byID, evicted.EntryID)
		metrics.LedgerEvictions.Inc()
		l.log.Debug().Int64("seq", evicted.SequenceNumber).Msg("Evicted oldest ledger entry")
	}

	metrics.LedgerEntries.Inc()
	metrics.LedgerSize.Set(float64(len(l.entries)))
	return entry.clone(), nil
}

// ResolveOutcome sets the outcome fields exactly once. The first call
// returns true; later calls are no-ops returning false.
func (l *Ledger) ResolveOutcome(entryID string, pnlPercent float64, correct bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.byID[entryID]
	if !ok || entry.OutcomeResolved {
		return false
	}

	now := time.Now().UTC()
	entry.OutcomeResolved = true
	entry.OutcomeCorrect = &correct
	entry.PnlPercent = &pnlPercent
	entry.OutcomeTimestamp = &now

	metrics.OutcomesResolved.WithLabelValues(fmt.Sprintf("%t", correct)).Inc()
	return true
}

// Unresolved returns copies of entries whose outcome is not yet set,
// oldest first, optionally restricted to a round.
func (l *Ledger) Unresolved(roundID string) []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Entry
	for _, e := range l.entries {
		if e.OutcomeResolved {
			continue
		}
		if roundID != "" && e.RoundID != roundID {
			continue
		}
		out = append(out, e.clone())
	}
	return out
}

// VerifyReport is the integrity check result
type VerifyReport struct {
	Intact       bool   `json:"intact"`
	BrokenAt     *int64 `json:"brokenAt,omitempty"`
	GenesisHash  string `json:"genesisHash"`
	LatestHash   string `json:"latestHash"`
	TotalChecked int    `json:"totalChecked"`
}

// VerifyIntegrity recomputes every surviving entry's hash and checks
// chain linkage. After FIFO eviction only the surviving suffix is
// checked; its first entry anchors the chain.
func (l *Ledger) VerifyIntegrity() VerifyReport {
	l.mu.RLock()
	defer l.mu.RUnlock()

	report := VerifyReport{Intact: true, TotalChecked: len(l.entries)}
	if len(l.entries) == 0 {
		report.GenesisHash = GenesisHash
		report.LatestHash = l.lastHash
		return report
	}

	report.GenesisHash = l.entries[0].EntryHash
	report.LatestHash = l.entries[len(l.entries)-1].EntryHash

	for i, entry := range l.entries {
		recomputed, err := entry.ComputeHash()
		if err != nil || recomputed != entry.EntryHash {
			seq := entry.SequenceNumber
			report.Intact = false
			report.BrokenAt = &seq
			metrics.LedgerVerifyFailures.Inc()
			l.log.Error().Int64("seq", seq).Msg("Ledger hash mismatch detected")
			return report
		}
		if i > 0 && entry.PreviousHash != l.entries[i-1].EntryHash {
			seq := entry.SequenceNumber
			report.Intact = false
			report.BrokenAt = &seq
			metrics.LedgerVerifyFailures.Inc()
			l.log.Error().Int64("seq", seq).Msg("Ledger chain linkage broken")
			return report
		}
	}
	return report
}

// Filter selects entries for Query
type Filter struct {
	AgentID           string
	Symbol            string
	RoundID           string
	Action            string
	MinCoherence      *float64
	MaxHallucinations *int
	OutcomeResolved   *bool
	Offset            int
	Limit             int
}

func (f *Filter) matches(e *Entry) bool {
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.Symbol != "" && e.Symbol != f.Symbol {
		return false
	}
	if f.RoundID != "" && e.RoundID != f.RoundID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.MinCoherence != nil && e.CoherenceScore < *f.MinCoherence {
		return false
	}
	if f.MaxHallucinations != nil && len(e.HallucinationFlags) > *f.MaxHallucinations {
		return false
	}
	if f.OutcomeResolved != nil && e.OutcomeResolved != *f.OutcomeResolved {
		return false
	}
	return true
}

// Query returns matching entries newest first with offset/limit, plus
// the total match count before pagination.
func (l *Ledger) Query(filter Filter) ([]*Entry, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var matched []*Entry
	for i := len(l.entries) - 1; i >= 0; i-- {
		if filter.matches(l.entries[i]) {
			matched = append(matched, l.entries[i])
		}
	}

	total := len(matched)
	if filter.Offset >= total {
		return []*Entry{}, total
	}

	end := filter.Offset + limit
	if end > total {
		end = total
	}

	out := make([]*Entry, 0, end-filter.Offset)
	for _, e := range matched[filter.Offset:end] {
		out = append(out, e.clone())
	}
	return out, total
}

// Get returns a copy of one entry by id
func (l *Ledger) Get(entryID string) (*Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.byID[entryID]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}

// Size returns the number of surviving entries
func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// clone copies an entry so callers never alias internal state
func (e *Entry) clone() *Entry {
	out := *e
	out.Sources = append([]string(nil), e.Sources...)
	out.HallucinationFlags = append([]string(nil), e.HallucinationFlags...)
	out.Witnesses = append([]string(nil), e.Witnesses...)
	if e.OutcomeCorrect != nil {
		v := *e.OutcomeCorrect
		out.OutcomeCorrect = &v
	}
	if e.PnlPercent != nil {
		v := *e.PnlPercent
		out.PnlPercent = &v
	}
	if e.OutcomeTimestamp != nil {
		v := *e.OutcomeTimestamp
		out.OutcomeTimestamp = &v
	}
	return &out
}

// normalized keeps slices non-nil so canonical JSON is stable
func normalized(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
