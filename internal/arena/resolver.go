package arena

import (
	"github.com/openbench/tradearena/internal/agents"
	"github.com/openbench/tradearena/internal/leaderboard"
	"github.com/openbench/tradearena/internal/ledger"
	"github.com/openbench/tradearena/internal/market"
)

// resolveOutcomes settles every unresolved ledger entry against the
// fresh snapshot and feeds the graded results to calibration,
// personality, loss-streak stats and the leaderboard. Runs at the top
// of each round so entry N is graded by round N+1's prices.
func (o *Orchestrator) resolveOutcomes(snap *market.Snapshot) {
	entries := o.deps.Ledger.Unresolved("")
	if len(entries) == 0 {
		return
	}

	// Entries arrive oldest first; group per round preserving that
	// order so leaderboard equity curves append chronologically.
	var order []string
	byRound := make(map[string][]leaderboard.Outcome)

	for _, e := range entries {
		pnl, correct := resolveEntry(e, snap)
		if !o.deps.Ledger.ResolveOutcome(e.EntryID, pnl, correct) {
			continue
		}

		o.deps.Scoring.Calibration.Record(e.AgentID, e.Confidence, correct)
		o.deps.Scoring.Personality.ResolveOutcome(e.AgentID, e.RoundID, pnl)

		traded := e.Action != string(agents.ActionHold)
		if traded {
			// Holds never feed the loss streak.
			o.deps.Stats.RecordOutcome(e.AgentID, correct)
		}

		if _, seen := byRound[e.RoundID]; !seen {
			order = append(order, e.RoundID)
		}
		byRound[e.RoundID] = append(byRound[e.RoundID], leaderboard.Outcome{
			AgentID:    e.AgentID,
			PnlPercent: pnl,
			Correct:    correct,
			Traded:     traded,
		})
	}

	for _, roundID := range order {
		o.deps.Board.RecordRoundOutcomes(roundID, byRound[roundID])
	}

	o.log.Debug().Int("entries", len(entries)).Msg("Outcomes resolved")
}

// resolveEntry grades one entry against current prices. A buy is
// correct if the price rose, a sell if it fell; flat is incorrect for
// both. Holds settle neutral, as do entries without usable prices
// (delisted or unknown symbols would otherwise pin the unresolved set
// forever).
func resolveEntry(e *ledger.Entry, snap *market.Snapshot) (pnl float64, correct bool) {
	if e.Action == string(agents.ActionHold) {
		return 0, true
	}
	price := snap.Price(e.Symbol)
	if e.PriceAtTrade <= 0 || price <= 0 {
		return 0, true
	}
	switch e.Action {
	case string(agents.ActionBuy):
		pnl = (price/e.PriceAtTrade - 1) * 100
	case string(agents.ActionSell):
		pnl = (1 - price/e.PriceAtTrade) * 100
	}
	return pnl, pnl > 0
}
