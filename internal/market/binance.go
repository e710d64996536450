package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openbench/tradearena/internal/rpc"
)

// BinanceProvider captures snapshots from Binance spot tickers. Every
// exchange call goes through the rate-limited gate.
type BinanceProvider struct {
	client  *binance.Client
	gate    *rpc.Client
	symbols []string
	log     zerolog.Logger
}

// NewBinanceProvider creates a live market provider
func NewBinanceProvider(apiKey, secretKey string, testnet bool, symbols []string, gate *rpc.Client) *BinanceProvider {
	if testnet {
		binance.UseTestnet = true
	}
	return &BinanceProvider{
		client:  binance.NewClient(apiKey, secretKey),
		gate:    gate,
		symbols: append([]string(nil), symbols...),
		log:     log.With().Str("component", "market_binance").Logger(),
	}
}

// pair maps an arena symbol to its Binance spot pair
func pair(symbol string) string {
	return symbol + "USDT"
}

// Snapshot fetches 24h ticker stats for every configured symbol
func (p *BinanceProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		CapturedAt: time.Now().UTC(),
		Quotes:     make([]Quote, 0, len(p.symbols)),
	}

	for _, sym := range p.symbols {
		stats, err := rpc.Do(ctx, p.gate, "binance_ticker", func(ctx context.Context) ([]*binance.PriceChangeStats, error) {
			return p.client.NewListPriceChangeStatsService().Symbol(pair(sym)).Do(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch ticker for %s: %w", sym, err)
		}
		if len(stats) == 0 {
			return nil, fmt.Errorf("empty ticker response for %s", sym)
		}

		q, err := quoteFromStats(sym, stats[0])
		if err != nil {
			return nil, err
		}
		snap.Quotes = append(snap.Quotes, q)
	}

	p.log.Debug().Int("symbols", len(snap.Quotes)).Msg("Captured market snapshot")
	return snap, nil
}

func quoteFromStats(symbol string, stats *binance.PriceChangeStats) (Quote, error) {
	price, err := strconv.ParseFloat(stats.LastPrice, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to parse last price for %s: %w", symbol, err)
	}
	changePct, err := strconv.ParseFloat(stats.PriceChangePercent, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to parse 24h change for %s: %w", symbol, err)
	}
	volume, err := strconv.ParseFloat(stats.QuoteVolume, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to parse 24h volume for %s: %w", symbol, err)
	}

	return Quote{
		Symbol:    symbol,
		Price:     price,
		Change24h: changePct / 100,
		Volume24h: volume,
	}, nil
}

// History fetches hourly closes, oldest first
func (p *BinanceProvider) History(ctx context.Context, symbol string, points int) ([]float64, error) {
	if points <= 0 {
		points = 50
	}

	klines, err := rpc.Do(ctx, p.gate, "binance_klines", func(ctx context.Context) ([]*binance.Kline, error) {
		return p.client.NewKlinesService().Symbol(pair(symbol)).Interval("1h").Limit(points).Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines for %s: %w", symbol, err)
	}

	closes := make([]float64, 0, len(klines))
	for _, k := range klines {
		c, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse kline close for %s: %w", symbol, err)
		}
		closes = append(closes, c)
	}
	return closes, nil
}
