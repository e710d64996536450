package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbench/tradearena/internal/agents"
	"github.com/openbench/tradearena/internal/alerts"
	"github.com/openbench/tradearena/internal/arena"
	"github.com/openbench/tradearena/internal/config"
	"github.com/openbench/tradearena/internal/leaderboard"
	"github.com/openbench/tradearena/internal/ledger"
	"github.com/openbench/tradearena/internal/market"
	"github.com/openbench/tradearena/internal/news"
	"github.com/openbench/tradearena/internal/portfolio"
	"github.com/openbench/tradearena/internal/risk"
	"github.com/openbench/tradearena/internal/scoring"
	"github.com/openbench/tradearena/internal/stream"
	"github.com/openbench/tradearena/internal/venue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// apiProvider is a canned market feed for router tests
type apiProvider struct {
	snap  *market.Snapshot
	delay time.Duration
}

func (p *apiProvider) Snapshot(ctx context.Context) (*market.Snapshot, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.snap, nil
}

func (p *apiProvider) History(ctx context.Context, symbol string, points int) ([]float64, error) {
	quote, _ := p.snap.Quote(symbol)
	out := make([]float64, points)
	for i := range out {
		out[i] = quote.Price * (0.95 + 0.001*float64(i))
	}
	return out, nil
}

func apiSnapshot() *market.Snapshot {
	return &market.Snapshot{
		CapturedAt: time.Now().UTC(),
		Quotes: []market.Quote{
			{Symbol: "BTC", Price: 100, Change24h: 2.5, Volume24h: 1_000_000},
			{Symbol: "ETH", Price: 2000, Change24h: -1.2, Volume24h: 500_000},
		},
	}
}

func apiRoster() []agents.AgentConfig {
	return []agents.AgentConfig{
		{ID: "alpha", Name: "Alpha", Model: "test-model", TradingStyle: agents.StyleAggressive, RiskTolerance: 0.8, CallBudgetPerRound: 10},
		{ID: "bravo", Name: "Bravo", Model: "test-model", TradingStyle: agents.StyleConservative, RiskTolerance: 0.3, CallBudgetPerRound: 10},
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Benchmark.Version = "24.0.0"
	cfg.API.Host = "127.0.0.1"
	return cfg
}

type apiFixture struct {
	server *Server
	svc    *arena.Services
	book   *ledger.Ledger
	board  *leaderboard.Store
	bus    *stream.Bus
}

func newAPIFixture(t *testing.T, provider market.Provider, roster []agents.AgentConfig) *apiFixture {
	t.Helper()

	bundle := scoring.NewBundle("24.0.0", 500, 500)
	book := ledger.New(1000, "24.0.0")
	board := leaderboard.NewStore(bundle.Weights, bundle)
	for _, cfg := range roster {
		board.Register(cfg)
	}
	bus := stream.NewBus(stream.Options{MaxEvents: 300, CatchUp: 20, Heartbeat: 100 * time.Millisecond, Buffer: 64})
	tracker := portfolio.NewTracker(10_000)
	stats := risk.NewStatsTracker(time.Minute)
	mgr := alerts.NewManager(alerts.NewLogAlerter())

	orch := arena.New(arena.Deps{
		Roster:       roster,
		Provider:     provider,
		News:         news.NewCache(news.NewStaticProvider(), time.Minute, nil),
		Portfolio:    tracker,
		Stats:        stats,
		Limits:       risk.DefaultLimits(),
		Venue:        venue.NewPaper(0),
		Ledger:       book,
		Scoring:      bundle,
		Board:        board,
		Bus:          bus,
		Alerts:       mgr,
		RoundTimeout: 2 * time.Second,
		HistorySize:  5,
	})

	svc := &arena.Services{
		Config:    testConfig(),
		Roster:    roster,
		Provider:  provider,
		Portfolio: tracker,
		Stats:     stats,
		Ledger:    book,
		Scoring:   bundle,
		Board:     board,
		Bus:       bus,
		Alerts:    mgr,
		Orch:      orch,
	}

	return &apiFixture{
		server: New(testConfig(), svc),
		svc:    svc,
		book:   book,
		board:  board,
		bus:    bus,
	}
}

func doRequest(fx *apiFixture, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	fx.server.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func splitLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimRight(raw, "\n"), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func seedEntry(t *testing.T, book *ledger.Ledger, agentID, roundID, action, symbol string) *ledger.Entry {
	t.Helper()
	entry, err := book.Append(ledger.AppendFields{
		AgentID:      agentID,
		RoundID:      roundID,
		Action:       action,
		Symbol:       symbol,
		Quantity:     1,
		Reasoning:    "seed entry",
		Confidence:   0.7,
		Intent:       "momentum",
		PriceAtTrade: 100,
	})
	require.NoError(t, err)
	return entry
}

func TestTriggerEndpoint_ReturnsRound(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, nil)

	w := doRequest(fx, http.MethodPost, "/trigger-round/trigger")
	require.Equal(t, http.StatusOK, w.Code)

	var round arena.TriggeredRound
	decodeBody(t, w, &round)
	assert.Equal(t, arena.StatusCompleted, round.Status)
	assert.NotEmpty(t, round.RoundID)
	assert.Empty(t, round.Decisions)

	w = doRequest(fx, http.MethodGet, "/trigger-round/status")
	require.Equal(t, http.StatusOK, w.Code)

	var status arena.Status
	decodeBody(t, w, &status)
	assert.False(t, status.Running)
	assert.Equal(t, 1, status.RoundsRun)
	require.NotNil(t, status.LastRound)
	assert.Equal(t, round.RoundID, status.LastRound.RoundID)

	w = doRequest(fx, http.MethodGet, "/trigger-round/history")
	require.Equal(t, http.StatusOK, w.Code)

	var history struct {
		Rounds []*arena.TriggeredRound `json:"rounds"`
		Count  int                     `json:"count"`
	}
	decodeBody(t, w, &history)
	assert.Equal(t, 1, history.Count)
}

func TestTriggerEndpoint_BusyReturnsConflict(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot(), delay: 300 * time.Millisecond}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = fx.svc.Orch.TryTrigger(context.Background())
	}()
	require.Eventually(t, func() bool {
		return fx.svc.Orch.Status().Running
	}, time.Second, 10*time.Millisecond)

	w := doRequest(fx, http.MethodPost, "/trigger-round/trigger")
	require.Equal(t, http.StatusConflict, w.Code)

	var body errorBody
	decodeBody(t, w, &body)
	assert.Equal(t, codeConflict, body.Code)
	details, ok := body.Details.(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, details["currentRoundId"])

	wg.Wait()
}

func TestRoundHistory_RejectsBadLimit(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, nil)

	w := doRequest(fx, http.MethodGet, "/trigger-round/history?limit=abc")
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body errorBody
	decodeBody(t, w, &body)
	assert.Equal(t, codeValidation, body.Code)
	assert.Contains(t, body.Error, "limit")
}

func TestLedgerQueryEndpoint(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, nil)
	seedEntry(t, fx.book, "alpha", "r1", "buy", "BTC")
	seedEntry(t, fx.book, "bravo", "r1", "sell", "ETH")
	seedEntry(t, fx.book, "alpha", "r2", "hold", "BTC")

	var resp struct {
		Entries []*ledger.Entry `json:"entries"`
		Total   int             `json:"total"`
	}

	w := doRequest(fx, http.MethodGet, "/ledger/query?agentId=alpha")
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &resp)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "r2", resp.Entries[0].RoundID, "newest first")

	w = doRequest(fx, http.MethodGet, "/ledger/query?action=buy")
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &resp)
	assert.Equal(t, 1, resp.Total)

	w = doRequest(fx, http.MethodGet, "/ledger/query?limit=1&offset=1")
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &resp)
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Entries, 1)

	w = doRequest(fx, http.MethodGet, "/ledger/query?outcomeResolved=maybe")
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	decodeBody(t, w, &body)
	assert.Equal(t, codeValidation, body.Code)
}

func TestLedgerVerifyEndpoint(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, nil)
	seedEntry(t, fx.book, "alpha", "r1", "buy", "BTC")
	seedEntry(t, fx.book, "bravo", "r1", "sell", "ETH")

	w := doRequest(fx, http.MethodGet, "/ledger/verify")
	require.Equal(t, http.StatusOK, w.Code)

	var report ledger.VerifyReport
	decodeBody(t, w, &report)
	assert.True(t, report.Intact)
	assert.Nil(t, report.BrokenAt)
	assert.Equal(t, 2, report.TotalChecked)
}

func TestLedgerExportEndpoint(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, nil)
	seedEntry(t, fx.book, "alpha", "r1", "buy", "BTC")
	seedEntry(t, fx.book, "bravo", "r1", "sell", "ETH")

	w := doRequest(fx, http.MethodGet, "/ledger/export")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "ledger.jsonl")
	assert.Equal(t, 2, len(splitLines(w.Body.String())))

	w = doRequest(fx, http.MethodGet, "/ledger/export?format=csv&agentId=alpha")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, 2, len(splitLines(w.Body.String())), "header plus one row")

	w = doRequest(fx, http.MethodGet, "/ledger/export?format=xml")
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	decodeBody(t, w, &body)
	assert.Equal(t, codeValidation, body.Code)
}

func TestLeaderboardEndpoint(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, apiRoster())

	w := doRequest(fx, http.MethodGet, "/leaderboard")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Leaderboard []leaderboard.Row `json:"leaderboard"`
		Sort        string            `json:"sort"`
		Count       int               `json:"count"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, leaderboard.SortComposite, resp.Sort)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Leaderboard, 2)
	assert.Equal(t, 1, resp.Leaderboard[0].Rank)

	w = doRequest(fx, http.MethodGet, "/leaderboard?sort=altitude")
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	decodeBody(t, w, &body)
	assert.Equal(t, codeValidation, body.Code)

	w = doRequest(fx, http.MethodGet, "/leaderboard/alpha")
	require.Equal(t, http.StatusOK, w.Code)
	var row leaderboard.Row
	decodeBody(t, w, &row)
	assert.Equal(t, "alpha", row.AgentID)

	w = doRequest(fx, http.MethodGet, "/leaderboard/ghost")
	require.Equal(t, http.StatusNotFound, w.Code)
	decodeBody(t, w, &body)
	assert.Equal(t, codeNotFound, body.Code)
}

func TestHeadToHeadEndpoint(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, apiRoster())

	e1 := seedEntry(t, fx.book, "alpha", "r1", "buy", "BTC")
	e2 := seedEntry(t, fx.book, "bravo", "r1", "buy", "BTC")
	e3 := seedEntry(t, fx.book, "alpha", "r2", "sell", "ETH")
	e4 := seedEntry(t, fx.book, "bravo", "r2", "hold", "ETH")
	require.True(t, fx.book.ResolveOutcome(e1.EntryID, 5, true))
	require.True(t, fx.book.ResolveOutcome(e2.EntryID, 3, true))
	require.True(t, fx.book.ResolveOutcome(e3.EntryID, -2, false))
	require.True(t, fx.book.ResolveOutcome(e4.EntryID, 1, true))

	w := doRequest(fx, http.MethodGet, "/analytics/head-to-head?agentA=alpha&agentB=bravo")
	require.Equal(t, http.StatusOK, w.Code)

	var report scoring.HeadToHeadReport
	decodeBody(t, w, &report)
	assert.Equal(t, 2, report.Rounds)
	assert.Equal(t, 1, report.WinsA)
	assert.Equal(t, 1, report.WinsB)
	assert.InDelta(t, 1.5, report.MeanPnlA, 1e-9)
	assert.InDelta(t, 2.0, report.MeanPnlB, 1e-9)

	w = doRequest(fx, http.MethodGet, "/analytics/head-to-head?agentA=alpha")
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	decodeBody(t, w, &body)
	assert.Equal(t, codeValidation, body.Code)
}

func TestHeadToHead_NeedsTwoSharedRounds(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, apiRoster())

	e1 := seedEntry(t, fx.book, "alpha", "r1", "buy", "BTC")
	e2 := seedEntry(t, fx.book, "bravo", "r1", "buy", "BTC")
	require.True(t, fx.book.ResolveOutcome(e1.EntryID, 5, true))
	require.True(t, fx.book.ResolveOutcome(e2.EntryID, 3, true))

	w := doRequest(fx, http.MethodGet, "/analytics/head-to-head?agentA=alpha&agentB=bravo")
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body errorBody
	decodeBody(t, w, &body)
	assert.Equal(t, codeValidation, body.Code)
	assert.Contains(t, body.Error, "at least 2")
}

func TestCalibrationEndpoint(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, apiRoster())
	fx.svc.Scoring.Calibration.Record("alpha", 0.9, true)
	fx.svc.Scoring.Calibration.Record("alpha", 0.8, true)
	fx.svc.Scoring.Calibration.Record("alpha", 0.4, false)

	w := doRequest(fx, http.MethodGet, "/analytics/calibration/alpha")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(fx, http.MethodGet, "/analytics/calibration/ghost")
	require.Equal(t, http.StatusNotFound, w.Code)
	var body errorBody
	decodeBody(t, w, &body)
	assert.Equal(t, codeNotFound, body.Code)
}

func TestPersonalityEndpoint(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, apiRoster())
	for i := 0; i < 20; i++ {
		action := agents.ActionBuy
		if i%3 == 0 {
			action = agents.ActionHold
		}
		fx.svc.Scoring.Personality.Record("alpha", "r1", action, "BTC", 0.6, []string{"buy", "hold"})
	}

	w := doRequest(fx, http.MethodGet, "/analytics/personality/alpha")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Drift     *scoring.DriftReport `json:"drift"`
		Stability float64              `json:"stability"`
	}
	decodeBody(t, w, &resp)
	require.NotNil(t, resp.Drift)

	w = doRequest(fx, http.MethodGet, "/analytics/personality/ghost")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAgentsEndpoint(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, apiRoster())

	w := doRequest(fx, http.MethodGet, "/agents")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Agents []agents.AgentConfig `json:"agents"`
		Count  int                  `json:"count"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Agents, 2)
	assert.Equal(t, "alpha", resp.Agents[0].ID)
}

func TestHealthAndReady(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, apiRoster())

	w := doRequest(fx, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]any
	decodeBody(t, w, &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "24.0.0", health["version"])

	w = doRequest(fx, http.MethodGet, "/ready")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitMiddleware_RejectsBursts(t *testing.T) {
	fx := newAPIFixture(t, &apiProvider{snap: apiSnapshot()}, apiRoster())

	cfg := testConfig()
	cfg.API.RateLimitRPS = 1
	cfg.API.RateLimitBurst = 2
	limited := &apiFixture{server: New(cfg, fx.svc)}

	require.Equal(t, http.StatusOK, doRequest(limited, http.MethodGet, "/health").Code)
	require.Equal(t, http.StatusOK, doRequest(limited, http.MethodGet, "/health").Code)

	w := doRequest(limited, http.MethodGet, "/health")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var body errorBody
	decodeBody(t, w, &body)
	assert.Equal(t, codeRateLimit, body.Code)
}
