package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openbench/tradearena/internal/arena"
	"github.com/openbench/tradearena/internal/leaderboard"
	"github.com/openbench/tradearena/internal/ledger"
	"github.com/openbench/tradearena/internal/scoring"
)

// Error codes carried in the envelope alongside the HTTP status
const (
	codeValidation = "validation_error"
	codeNotFound   = "not_found"
	codeConflict   = "round_in_progress"
	codeRateLimit  = "rate_limited"
	codeInternal   = "internal_error"
)

// errorBody is the envelope every failing route returns
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorBody{Error: message, Code: code})
}

// intQuery parses an optional integer query parameter. On a malformed
// value it writes the validation envelope and reports false.
func intQuery(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, fmt.Sprintf("%s must be an integer", name))
		return 0, false
	}
	return v, true
}

// handleTriggerRound runs one trading round if the lock is free. A
// failed round still returns its partial document with 200; only a
// busy lock or a missing result map to error statuses.
func (s *Server) handleTriggerRound(c *gin.Context) {
	round, err := s.svc.Orch.TryTrigger(c.Request.Context())
	if err != nil {
		var busy *arena.RoundInProgressError
		if errors.As(err, &busy) {
			c.JSON(http.StatusConflict, errorBody{
				Error:   busy.Error(),
				Code:    codeConflict,
				Details: gin.H{"currentRoundId": busy.CurrentRoundID},
			})
			return
		}
		respondError(c, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	if round == nil {
		respondError(c, http.StatusInternalServerError, codeInternal, "round produced no result")
		return
	}

	c.JSON(http.StatusOK, round)
}

func (s *Server) handleRoundStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Orch.Status())
}

func (s *Server) handleRoundHistory(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 10)
	if !ok {
		return
	}

	rounds := s.svc.Orch.History(limit)
	c.JSON(http.StatusOK, gin.H{
		"rounds": rounds,
		"count":  len(rounds),
	})
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}

	sortKey := c.DefaultQuery("sort", leaderboard.SortComposite)
	switch sortKey {
	case leaderboard.SortComposite, leaderboard.SortElo, leaderboard.SortPnl,
		leaderboard.SortWinRate, leaderboard.SortSharpe:
	default:
		respondError(c, http.StatusBadRequest, codeValidation,
			"sort must be one of composite, elo, pnl, win_rate, sharpe")
		return
	}

	rows := s.svc.Board.Top(limit, sortKey)
	c.JSON(http.StatusOK, gin.H{
		"leaderboard": rows,
		"sort":        sortKey,
		"count":       len(rows),
	})
}

func (s *Server) handleLeaderboardRow(c *gin.Context) {
	agentID := c.Param("agentId")

	row, ok := s.svc.Board.Row(agentID)
	if !ok {
		respondError(c, http.StatusNotFound, codeNotFound, fmt.Sprintf("unknown agent %q", agentID))
		return
	}

	c.JSON(http.StatusOK, row)
}

func (s *Server) handleListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"agents": s.svc.Roster,
		"count":  len(s.svc.Roster),
	})
}

// handleHeadToHead compares two agents over the rounds where both have
// a resolved outcome in the ledger.
func (s *Server) handleHeadToHead(c *gin.Context) {
	agentA := c.Query("agentA")
	agentB := c.Query("agentB")
	if agentA == "" || agentB == "" {
		respondError(c, http.StatusBadRequest, codeValidation, "agentA and agentB are required")
		return
	}

	pairs := s.pairedRounds(agentA, agentB)
	report, err := scoring.HeadToHead(agentA, agentB, pairs)
	if err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	c.JSON(http.StatusOK, report)
}

// pairedRounds collects per-round resolved P&L for both agents, oldest
// round first, keeping only rounds where both traded to a verdict.
func (s *Server) pairedRounds(agentA, agentB string) []scoring.PairedRound {
	pnlA, order := s.resolvedPnl(agentA)
	pnlB, _ := s.resolvedPnl(agentB)

	var pairs []scoring.PairedRound
	for _, roundID := range order {
		b, ok := pnlB[roundID]
		if !ok {
			continue
		}
		pairs = append(pairs, scoring.PairedRound{RoundID: roundID, PnlA: pnlA[roundID], PnlB: b})
	}
	return pairs
}

func (s *Server) resolvedPnl(agentID string) (map[string]float64, []string) {
	resolved := true
	entries, _ := s.svc.Ledger.Query(ledger.Filter{
		AgentID:         agentID,
		OutcomeResolved: &resolved,
		Limit:           s.svc.Ledger.Size(),
	})

	byRound := make(map[string]float64, len(entries))
	var order []string
	// Query returns newest first; walk backwards for round order.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.PnlPercent == nil {
			continue
		}
		if _, seen := byRound[e.RoundID]; !seen {
			order = append(order, e.RoundID)
		}
		byRound[e.RoundID] = *e.PnlPercent
	}
	return byRound, order
}

func (s *Server) handleCalibration(c *gin.Context) {
	agentID := c.Param("agentId")

	report, ok := s.svc.Scoring.Calibration.Report(agentID)
	if !ok {
		respondError(c, http.StatusNotFound, codeNotFound,
			fmt.Sprintf("no calibration data for agent %q", agentID))
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) handlePersonality(c *gin.Context) {
	agentID := c.Param("agentId")

	drift, ok := s.svc.Scoring.Personality.Drift(agentID)
	if !ok {
		respondError(c, http.StatusNotFound, codeNotFound,
			fmt.Sprintf("no personality data for agent %q", agentID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"drift":     drift,
		"stability": s.svc.Scoring.Personality.StabilityScore(agentID),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": s.svc.Config.Benchmark.Version,
		"time":    time.Now().UTC(),
	})
}

func (s *Server) handleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"agents": len(s.svc.Roster),
	})
}
