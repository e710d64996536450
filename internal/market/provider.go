// Package market produces the per-round price snapshot shared by all
// agents, plus recent price history for technical indicators.
package market

import (
	"context"
	"fmt"
	"time"

	"github.com/openbench/tradearena/internal/rpc"
)

// Quote is one symbol's state inside a snapshot. Change24h is a signed
// fraction (0.023 = +2.3%).
type Quote struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
	Volume24h float64 `json:"volume24h"`
}

// Snapshot is the point-in-time market view captured once per round and
// shared read-only by every agent in that round.
type Snapshot struct {
	CapturedAt time.Time `json:"capturedAt"`
	Quotes     []Quote   `json:"quotes"`
}

// Quote returns the quote for a symbol, if present
func (s *Snapshot) Quote(symbol string) (Quote, bool) {
	for _, q := range s.Quotes {
		if q.Symbol == symbol {
			return q, true
		}
	}
	return Quote{}, false
}

// Price returns the snapshot price for a symbol, or 0 if absent
func (s *Snapshot) Price(symbol string) float64 {
	q, ok := s.Quote(symbol)
	if !ok {
		return 0
	}
	return q.Price
}

// Symbols lists the snapshot's symbols in capture order
func (s *Snapshot) Symbols() []string {
	out := make([]string, len(s.Quotes))
	for i, q := range s.Quotes {
		out[i] = q.Symbol
	}
	return out
}

// Provider captures market snapshots and serves recent price history.
type Provider interface {
	// Snapshot captures a consistent point-in-time view of all
	// configured symbols.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// History returns up to points recent prices for a symbol,
	// oldest first.
	History(ctx context.Context, symbol string, points int) ([]float64, error)
}

// NewProvider builds a provider for the configured mode
func NewProvider(mode string, symbols []string, seed int64, apiKey, secretKey string, testnet bool, gate *rpc.Client) (Provider, error) {
	switch mode {
	case "sim":
		return NewSimProvider(symbols, seed), nil
	case "binance":
		return NewBinanceProvider(apiKey, secretKey, testnet, symbols, gate), nil
	default:
		return nil, fmt.Errorf("unknown market mode: %s", mode)
	}
}
