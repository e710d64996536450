package market

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

const historyCap = 512

// prewarmSteps gives indicators enough history from the first round
const prewarmSteps = 64

// baseline prices and volatilities for well-known symbols; anything
// else gets generic values.
var simBaselines = map[string]struct {
	price      float64
	volatility float64
	volume     float64
}{
	"BTC":  {65000, 0.020, 28_000_000_000},
	"ETH":  {3500, 0.025, 15_000_000_000},
	"SOL":  {150, 0.040, 3_500_000_000},
	"DOGE": {0.12, 0.050, 1_200_000_000},
}

// SimProvider is a deterministic random-walk market. The same seed and
// call sequence always produce the same prices, which keeps paper
// rounds reproducible.
type SimProvider struct {
	mu      sync.Mutex
	rng     *rand.Rand
	symbols []string
	prices  map[string]float64
	history map[string][]float64
	vols    map[string]float64
	volumes map[string]float64
}

// NewSimProvider creates a simulated market over the given symbols
func NewSimProvider(symbols []string, seed int64) *SimProvider {
	p := &SimProvider{
		rng:     rand.New(rand.NewSource(seed)), // #nosec G404 -- reproducible simulation, not crypto
		symbols: append([]string(nil), symbols...),
		prices:  make(map[string]float64, len(symbols)),
		history: make(map[string][]float64, len(symbols)),
		vols:    make(map[string]float64, len(symbols)),
		volumes: make(map[string]float64, len(symbols)),
	}

	for _, sym := range symbols {
		base, ok := simBaselines[sym]
		if !ok {
			base.price = 100
			base.volatility = 0.03
			base.volume = 500_000_000
		}
		p.prices[sym] = base.price
		p.vols[sym] = base.volatility
		p.volumes[sym] = base.volume
		p.history[sym] = []float64{base.price}
	}

	for i := 0; i < prewarmSteps; i++ {
		p.step()
	}
	return p
}

// step advances every symbol one tick of the walk. Caller sequencing is
// handled by the mutex in Snapshot.
func (p *SimProvider) step() {
	for _, sym := range p.symbols {
		ret := p.rng.NormFloat64() * p.vols[sym]
		// Single-tick moves beyond ±10% are clipped
		ret = math.Max(-0.10, math.Min(0.10, ret))
		price := p.prices[sym] * (1 + ret)
		if price <= 0 {
			price = p.prices[sym]
		}
		p.prices[sym] = price

		h := append(p.history[sym], price)
		if len(h) > historyCap {
			h = h[len(h)-historyCap:]
		}
		p.history[sym] = h
	}
}

// Snapshot advances the walk one tick and returns the new state
func (p *SimProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.step()

	snap := &Snapshot{
		CapturedAt: time.Now().UTC(),
		Quotes:     make([]Quote, 0, len(p.symbols)),
	}
	for _, sym := range p.symbols {
		h := p.history[sym]
		ref := h[0]
		if len(h) > 24 {
			ref = h[len(h)-25]
		}
		change := 0.0
		if ref > 0 {
			change = p.prices[sym]/ref - 1
		}
		snap.Quotes = append(snap.Quotes, Quote{
			Symbol:    sym,
			Price:     p.prices[sym],
			Change24h: change,
			Volume24h: p.volumes[sym] * (0.8 + 0.4*p.rng.Float64()),
		})
	}
	return snap, nil
}

// History returns the most recent points of the walk, oldest first
func (p *SimProvider) History(ctx context.Context, symbol string, points int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.history[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol: %s", symbol)
	}
	if points <= 0 || points > len(h) {
		points = len(h)
	}
	out := make([]float64, points)
	copy(out, h[len(h)-points:])
	return out, nil
}
