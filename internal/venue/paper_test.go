package venue

import (
	"context"
	"strings"
	"testing"

	binance "github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaper_BuyFillsAtReferencePrice(t *testing.T) {
	p := NewPaper(0)

	det, err := p.Execute(context.Background(), Order{
		AgentID:  "prudence",
		Action:   "buy",
		Symbol:   "BTC",
		Quantity: 1000, // USDC notional
		Price:    50000,
	})
	require.NoError(t, err)

	assert.Equal(t, 50000.0, det.FilledPrice)
	assert.Equal(t, 1000.0, det.Notional)
	assert.True(t, strings.HasPrefix(det.TxSignature, "paper-"))
	assert.Greater(t, len(det.TxSignature), len("paper-"))
}

func TestPaper_SellNotionalFromUnits(t *testing.T) {
	p := NewPaper(0)

	det, err := p.Execute(context.Background(), Order{
		AgentID:  "maverick",
		Action:   "sell",
		Symbol:   "ETH",
		Quantity: 2, // units
		Price:    3400,
	})
	require.NoError(t, err)

	assert.Equal(t, 3400.0, det.FilledPrice)
	assert.Equal(t, 6800.0, det.Notional)
}

func TestPaper_SlippageIsDirectional(t *testing.T) {
	p := NewPaper(0.001)

	buy, err := p.Execute(context.Background(), Order{
		Action: "buy", Symbol: "BTC", Quantity: 1000, Price: 50000,
	})
	require.NoError(t, err)
	assert.InDelta(t, 50050.0, buy.FilledPrice, 1e-9, "buys pay up")

	sell, err := p.Execute(context.Background(), Order{
		Action: "sell", Symbol: "ETH", Quantity: 2, Price: 3400,
	})
	require.NoError(t, err)
	assert.InDelta(t, 3396.6, sell.FilledPrice, 1e-9, "sells receive less")
	assert.InDelta(t, 6793.2, sell.Notional, 1e-9)
}

func TestPaper_RejectsMalformedOrders(t *testing.T) {
	p := NewPaper(0)

	cases := []struct {
		name string
		ord  Order
		want string
	}{
		{"hold action", Order{Action: "hold", Symbol: "BTC", Quantity: 1, Price: 100}, "invalid action"},
		{"missing symbol", Order{Action: "buy", Quantity: 1, Price: 100}, "symbol is required"},
		{"zero quantity", Order{Action: "buy", Symbol: "BTC", Price: 100}, "quantity must be positive"},
		{"no market price", Order{Action: "sell", Symbol: "BTC", Quantity: 1}, "no market price"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Execute(context.Background(), tc.ord)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestPaper_CancelledContext(t *testing.T) {
	p := NewPaper(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Execute(ctx, Order{Action: "buy", Symbol: "BTC", Quantity: 1, Price: 100})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetailsFromResponse(t *testing.T) {
	det, err := detailsFromResponse(&binance.CreateOrderResponse{
		OrderID:                  42,
		ExecutedQuantity:         "0.02000000",
		CummulativeQuoteQuantity: "1000.00000000",
	})
	require.NoError(t, err)

	assert.Equal(t, "binance-42", det.TxSignature)
	assert.InDelta(t, 50000.0, det.FilledPrice, 1e-9)
	assert.Equal(t, 1000.0, det.Notional)
}

func TestDetailsFromResponse_NoFill(t *testing.T) {
	_, err := detailsFromResponse(&binance.CreateOrderResponse{
		OrderID:                  7,
		ExecutedQuantity:         "0",
		CummulativeQuoteQuantity: "0",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fill")
}
