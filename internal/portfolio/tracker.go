// Package portfolio tracks each agent's paper book from executed fills
// and computes the per-round context agents reason over.
package portfolio

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/openbench/tradearena/internal/market"
)

// Position is one held symbol inside a context
type Position struct {
	Symbol               string  `json:"symbol"`
	Quantity             float64 `json:"quantity"`
	AvgCost              float64 `json:"avgCost"`
	CurrentPrice         float64 `json:"currentPrice"`
	UnrealizedPnl        float64 `json:"unrealizedPnl"`
	UnrealizedPnlPercent float64 `json:"unrealizedPnlPercent"`
}

// Context is an agent's portfolio view at round start. It is computed
// freshly from fill history plus live prices and never mutated by the
// round that reads it.
type Context struct {
	AgentID         string     `json:"agentId"`
	CashBalance     float64    `json:"cashBalance"`
	TotalValue      float64    `json:"totalValue"`
	TotalPnl        float64    `json:"totalPnl"`
	TotalPnlPercent float64    `json:"totalPnlPercent"`
	Positions       []Position `json:"positions"`
}

// Position returns the context position for a symbol, if held
func (c *Context) Position(symbol string) (Position, bool) {
	for _, p := range c.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// Fill is one executed trade applied to a book
type Fill struct {
	AgentID   string
	Action    string // buy or sell
	Symbol    string
	Quantity  float64 // units bought or sold
	Price     float64
	Timestamp time.Time
}

// holding is the mutable per-symbol book state
type holding struct {
	quantity float64
	avgCost  float64
}

// book is one agent's mutable paper account
type book struct {
	cash     float64
	holdings map[string]*holding
}

// Tracker owns every agent's paper book. The orchestrator is the only
// writer; HTTP readers take snapshots through Contexts.
type Tracker struct {
	mu           sync.RWMutex
	startingCash float64
	books        map[string]*book
}

// NewTracker creates a tracker; each agent's book starts with
// startingCash USDC and no positions.
func NewTracker(startingCash float64) *Tracker {
	if startingCash <= 0 {
		startingCash = 10000
	}
	return &Tracker{
		startingCash: startingCash,
		books:        make(map[string]*book),
	}
}

func (t *Tracker) bookFor(agentID string) *book {
	b, ok := t.books[agentID]
	if !ok {
		b = &book{cash: t.startingCash, holdings: make(map[string]*holding)}
		t.books[agentID] = b
	}
	return b
}

// ApplyFill mutates the agent's book with one executed trade
func (t *Tracker) ApplyFill(fill Fill) error {
	if fill.Quantity <= 0 || fill.Price <= 0 {
		return fmt.Errorf("invalid fill: quantity=%f price=%f", fill.Quantity, fill.Price)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.bookFor(fill.AgentID)
	h, held := b.holdings[fill.Symbol]

	switch fill.Action {
	case "buy":
		notional := fill.Quantity * fill.Price
		if notional > b.cash+1e-9 {
			return fmt.Errorf("fill exceeds cash: need %.2f, have %.2f", notional, b.cash)
		}
		b.cash -= notional
		if !held {
			b.holdings[fill.Symbol] = &holding{quantity: fill.Quantity, avgCost: fill.Price}
		} else {
			totalCost := h.avgCost*h.quantity + notional
			h.quantity += fill.Quantity
			h.avgCost = totalCost / h.quantity
		}
	case "sell":
		if !held || h.quantity+1e-9 < fill.Quantity {
			return fmt.Errorf("fill exceeds position: selling %.6f of %s", fill.Quantity, fill.Symbol)
		}
		b.cash += fill.Quantity * fill.Price
		h.quantity -= fill.Quantity
		if h.quantity <= 1e-9 {
			delete(b.holdings, fill.Symbol)
		}
	default:
		return fmt.Errorf("unknown fill action: %s", fill.Action)
	}
	return nil
}

// ContextFor values one agent's book against the round snapshot
func (t *Tracker) ContextFor(agentID string, snap *market.Snapshot) *Context {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.books[agentID]
	if !ok {
		return &Context{
			AgentID:     agentID,
			CashBalance: t.startingCash,
			TotalValue:  t.startingCash,
			Positions:   []Position{},
		}
	}

	ctx := &Context{
		AgentID:     agentID,
		CashBalance: b.cash,
		TotalValue:  b.cash,
		Positions:   make([]Position, 0, len(b.holdings)),
	}

	for _, sym := range sortedSymbols(b.holdings) {
		h := b.holdings[sym]
		price := snap.Price(sym)
		if price <= 0 {
			price = h.avgCost
		}
		value := h.quantity * price
		unrealized := value - h.quantity*h.avgCost
		pct := 0.0
		if h.avgCost > 0 {
			pct = (price/h.avgCost - 1) * 100
		}
		ctx.Positions = append(ctx.Positions, Position{
			Symbol:               sym,
			Quantity:             h.quantity,
			AvgCost:              h.avgCost,
			CurrentPrice:         price,
			UnrealizedPnl:        unrealized,
			UnrealizedPnlPercent: pct,
		})
		ctx.TotalValue += value
	}

	ctx.TotalPnl = ctx.TotalValue - t.startingCash
	ctx.TotalPnlPercent = (ctx.TotalValue/t.startingCash - 1) * 100
	return ctx
}

// Contexts values every known agent's book against the snapshot
func (t *Tracker) Contexts(agentIDs []string, snap *market.Snapshot) map[string]*Context {
	out := make(map[string]*Context, len(agentIDs))
	for _, id := range agentIDs {
		out[id] = t.ContextFor(id, snap)
	}
	return out
}

func sortedSymbols(m map[string]*holding) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
