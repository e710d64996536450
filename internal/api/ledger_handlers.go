package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openbench/tradearena/internal/ledger"
)

func (s *Server) handleLedgerQuery(c *gin.Context) {
	filter := ledger.Filter{
		AgentID: c.Query("agentId"),
		Symbol:  c.Query("symbol"),
		RoundID: c.Query("roundId"),
		Action:  c.Query("action"),
	}

	limit, ok := intQuery(c, "limit", 50)
	if !ok {
		return
	}
	offset, ok := intQuery(c, "offset", 0)
	if !ok {
		return
	}
	filter.Limit, filter.Offset = limit, offset

	if raw := c.Query("minCoherence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(c, http.StatusBadRequest, codeValidation, "minCoherence must be a number")
			return
		}
		filter.MinCoherence = &v
	}
	if raw := c.Query("maxHallucinations"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, codeValidation, "maxHallucinations must be an integer")
			return
		}
		filter.MaxHallucinations = &v
	}
	if raw := c.Query("outcomeResolved"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, codeValidation, "outcomeResolved must be a boolean")
			return
		}
		filter.OutcomeResolved = &v
	}

	entries, total := s.svc.Ledger.Query(filter)
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// handleLedgerVerify walks the hash chain. A break is alerted but the
// report is still returned with 200; the caller decides what to do.
func (s *Server) handleLedgerVerify(c *gin.Context) {
	report := s.svc.Ledger.VerifyIntegrity()
	if !report.Intact && report.BrokenAt != nil {
		s.svc.Alerts.IntegrityBreak(c.Request.Context(), int(*report.BrokenAt), report.LatestHash)
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) handleLedgerExport(c *gin.Context) {
	agentID := c.Query("agentId")
	format := c.DefaultQuery("format", "jsonl")

	switch format {
	case "jsonl":
		data, err := s.svc.Ledger.ExportJSONL(agentID)
		if err != nil {
			respondError(c, http.StatusInternalServerError, codeInternal, err.Error())
			return
		}
		c.Header("Content-Disposition", `attachment; filename="ledger.jsonl"`)
		c.Data(http.StatusOK, "application/x-ndjson", data)
	case "csv":
		data, err := s.svc.Ledger.ExportCSV(agentID)
		if err != nil {
			respondError(c, http.StatusInternalServerError, codeInternal, err.Error())
			return
		}
		c.Header("Content-Disposition", `attachment; filename="ledger.csv"`)
		c.Data(http.StatusOK, "text/csv", data)
	default:
		respondError(c, http.StatusBadRequest, codeValidation, "format must be jsonl or csv")
	}
}
