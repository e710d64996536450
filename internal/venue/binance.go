package venue

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/openbench/tradearena/internal/metrics"
	"github.com/openbench/tradearena/internal/rpc"
)

// Binance places spot market orders. Calls go through the shared gate
// and the venue circuit breaker; deterministic exchange rejections are
// marked permanent so the gate does not burn retries on them.
type Binance struct {
	client  *binance.Client
	gate    *rpc.Client
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewBinance creates a live venue client
func NewBinance(apiKey, secretKey string, testnet bool, gate *rpc.Client, breaker *gobreaker.CircuitBreaker) *Binance {
	if testnet {
		binance.UseTestnet = true
	}
	return &Binance{
		client:  binance.NewClient(apiKey, secretKey),
		gate:    gate,
		breaker: breaker,
		log:     log.With().Str("component", "venue_binance").Logger(),
	}
}

// Name identifies the venue in logs and round records
func (b *Binance) Name() string { return "binance" }

// pair maps an arena symbol to its Binance spot pair
func pair(symbol string) string {
	return symbol + "USDT"
}

// Execute submits one market order and waits for the fill summary
func (b *Binance) Execute(ctx context.Context, ord Order) (*ExecutionDetails, error) {
	if err := ord.validate(); err != nil {
		return nil, err
	}

	side := binance.SideTypeBuy
	if ord.Action == "sell" {
		side = binance.SideTypeSell
	}

	resp, err := rpc.Do(ctx, b.gate, "venue_order", func(ctx context.Context) (*binance.CreateOrderResponse, error) {
		out, err := b.breaker.Execute(func() (interface{}, error) {
			svc := b.client.NewCreateOrderService().
				Symbol(pair(ord.Symbol)).
				Side(side).
				Type(binance.OrderTypeMarket)
			// Buys are sized in quote currency, sells in base units.
			if ord.Action == "buy" {
				svc = svc.QuoteOrderQty(fmt.Sprintf("%.8f", ord.Quantity))
			} else {
				svc = svc.Quantity(fmt.Sprintf("%.8f", ord.Quantity))
			}
			return svc.Do(ctx)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, rpc.Permanent(fmt.Errorf("venue breaker: %w", err))
			}
			var apiErr *common.APIError
			if errors.As(err, &apiErr) {
				return nil, rpc.Permanent(fmt.Errorf("venue rejected order: %w", err))
			}
			return nil, err
		}
		return out.(*binance.CreateOrderResponse), nil
	})
	if err != nil {
		return nil, err
	}

	det, err := detailsFromResponse(resp)
	if err != nil {
		return nil, err
	}

	metrics.TradesExecuted.Inc()
	b.log.Info().
		Str("agent_id", ord.AgentID).
		Str("action", ord.Action).
		Str("symbol", ord.Symbol).
		Str("tx", det.TxSignature).
		Float64("filled_price", det.FilledPrice).
		Float64("notional", det.Notional).
		Msg("Order filled on Binance")

	return det, nil
}

// detailsFromResponse reduces an exchange fill summary to the recorded
// execution details. Average fill price is derived from the quote and
// base cumulative quantities.
func detailsFromResponse(resp *binance.CreateOrderResponse) (*ExecutionDetails, error) {
	executed, err := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse executed quantity: %w", err)
	}
	notional, err := strconv.ParseFloat(resp.CummulativeQuoteQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quote quantity: %w", err)
	}
	if executed <= 0 || notional <= 0 {
		return nil, fmt.Errorf("order %d reported no fill", resp.OrderID)
	}

	return &ExecutionDetails{
		TxSignature: fmt.Sprintf("binance-%d", resp.OrderID),
		FilledPrice: notional / executed,
		Notional:    notional,
	}, nil
}
