// Package venue submits breaker-approved trades to a trading venue.
// The paper venue fills in-process against the round snapshot price;
// the Binance venue places real market orders through the shared call
// gate.
package venue

import (
	"context"
	"fmt"
)

// Order is one approved trade bound for a venue. Quantity follows
// decision semantics: USDC notional for buys, unit quantity for sells.
// Price is the round snapshot reference price for the symbol.
type Order struct {
	AgentID  string
	Action   string // buy or sell
	Symbol   string
	Quantity float64
	Price    float64
}

// ExecutionDetails describes one completed fill
type ExecutionDetails struct {
	TxSignature string  `json:"txSignature"`
	FilledPrice float64 `json:"filledPrice"`
	Notional    float64 `json:"notional"`
}

// Executor submits orders to a venue. Implementations return an error
// for both rejections and transport failures; callers record either as
// an unexecuted decision and move on.
type Executor interface {
	Execute(ctx context.Context, ord Order) (*ExecutionDetails, error)
	Name() string
}

// validate rejects orders no venue could fill. Holds never reach a
// venue, so only buy and sell are legal actions here.
func (o Order) validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("order rejected: symbol is required")
	}
	if o.Action != "buy" && o.Action != "sell" {
		return fmt.Errorf("order rejected: invalid action %q", o.Action)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("order rejected: quantity must be positive")
	}
	if o.Price <= 0 {
		return fmt.Errorf("order rejected: no market price for %s", o.Symbol)
	}
	return nil
}
