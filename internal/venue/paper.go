package venue

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openbench/tradearena/internal/metrics"
)

// DefaultSlippage is the symmetric fill slippage fraction applied by
// the paper venue: buys fill above the reference price, sells below.
const DefaultSlippage = 0.0005

// Paper fills orders instantly at the snapshot reference price plus a
// fixed directional slippage. It is the default deployment venue.
type Paper struct {
	slippage float64
	log      zerolog.Logger
}

// NewPaper creates a paper venue. Negative slippage is treated as zero.
func NewPaper(slippage float64) *Paper {
	if slippage < 0 {
		slippage = 0
	}
	return &Paper{
		slippage: slippage,
		log:      log.With().Str("component", "venue_paper").Logger(),
	}
}

// Name identifies the venue in logs and round records
func (p *Paper) Name() string { return "paper" }

// Execute fills the order deterministically against its reference price
func (p *Paper) Execute(ctx context.Context, ord Order) (*ExecutionDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ord.validate(); err != nil {
		return nil, err
	}

	fillPrice := ord.Price
	var notional float64
	switch ord.Action {
	case "buy":
		fillPrice *= 1 + p.slippage
		notional = ord.Quantity
	case "sell":
		fillPrice *= 1 - p.slippage
		notional = ord.Quantity * fillPrice
	}

	det := &ExecutionDetails{
		TxSignature: "paper-" + uuid.NewString(),
		FilledPrice: fillPrice,
		Notional:    notional,
	}

	metrics.TradesExecuted.Inc()
	p.log.Debug().
		Str("agent_id", ord.AgentID).
		Str("action", ord.Action).
		Str("symbol", ord.Symbol).
		Float64("filled_price", det.FilledPrice).
		Float64("notional", det.Notional).
		Msg("Paper fill")

	return det, nil
}
