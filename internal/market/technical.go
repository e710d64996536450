package market

import (
	"context"
	"fmt"
	"strings"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
)

const (
	rsiPeriod = 14
	smaPeriod = 20
)

// TechnicalSummary holds indicator values for one symbol
type TechnicalSummary struct {
	Symbol    string  `json:"symbol"`
	RSI       float64 `json:"rsi"`
	RSISignal string  `json:"rsiSignal"`
	SMA       float64 `json:"sma"`
	AboveSMA  bool    `json:"aboveSma"`
}

// computeLast runs prices through a channel-based indicator and keeps
// the final value.
func computeLast(prices []float64, compute func(<-chan float64) <-chan float64) (float64, bool) {
	in := make(chan float64, len(prices))
	for _, p := range prices {
		in <- p
	}
	close(in)

	var last float64
	seen := false
	for v := range compute(in) {
		last = v
		seen = true
	}
	return last, seen
}

// Technicals computes RSI and SMA for a symbol from provider history.
// Errors mean not enough history; callers treat that as no block.
func Technicals(ctx context.Context, provider Provider, symbol string, price float64) (*TechnicalSummary, error) {
	prices, err := provider.History(ctx, symbol, 100)
	if err != nil {
		return nil, err
	}
	if len(prices) <= rsiPeriod {
		return nil, fmt.Errorf("insufficient history for %s: %d points", symbol, len(prices))
	}

	rsi, ok := computeLast(prices, func(in <-chan float64) <-chan float64 {
		return momentum.NewRsiWithPeriod[float64](rsiPeriod).Compute(in)
	})
	if !ok {
		return nil, fmt.Errorf("no RSI values for %s", symbol)
	}

	sma, ok := computeLast(prices, func(in <-chan float64) <-chan float64 {
		return trend.NewSmaWithPeriod[float64](smaPeriod).Compute(in)
	})
	if !ok {
		return nil, fmt.Errorf("no SMA values for %s", symbol)
	}

	signal := "neutral"
	if rsi < 30 {
		signal = "oversold"
	} else if rsi > 70 {
		signal = "overbought"
	}

	return &TechnicalSummary{
		Symbol:    symbol,
		RSI:       rsi,
		RSISignal: signal,
		SMA:       sma,
		AboveSMA:  price > sma,
	}, nil
}

// FormatTechnicalsForPrompt renders the indicator block agents see.
// Symbols without enough history are skipped; an empty result is fine.
func FormatTechnicalsForPrompt(ctx context.Context, provider Provider, snap *Snapshot) string {
	var b strings.Builder
	for _, q := range snap.Quotes {
		t, err := Technicals(ctx, provider, q.Symbol, q.Price)
		if err != nil {
			continue
		}
		rel := "below"
		if t.AboveSMA {
			rel = "above"
		}
		fmt.Fprintf(&b, "%s: RSI(14)=%.1f (%s), price %s SMA(20)=%.2f\n",
			q.Symbol, t.RSI, t.RSISignal, rel, t.SMA)
	}
	if b.Len() == 0 {
		return ""
	}
	return "TECHNICAL INDICATORS:\n" + b.String()
}
