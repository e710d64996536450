// Package news maintains the per-symbol headline cache agents read
// from. Lookups are read-through with TTL eviction; provider failures
// degrade to an empty news block and never fail a round.
package news

import (
	"context"
	"fmt"
	"time"
)

// Item is one headline shown to agents
type Item struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Provider fetches fresh headlines for one symbol.
type Provider interface {
	Fetch(ctx context.Context, symbol string) ([]Item, error)
}

// StaticProvider serves canned headlines for paper rounds. Real
// deployments swap in an ingestion-backed provider.
type StaticProvider struct{}

// NewStaticProvider creates a provider of canned headlines
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

var staticHeadlines = map[string][]string{
	"BTC": {
		"Bitcoin ETF inflows hit weekly high as institutional demand returns",
		"Miners' reserve outflows slow after difficulty adjustment",
	},
	"ETH": {
		"Ethereum staking ratio crosses 28% of supply",
		"Layer-2 fees fall to yearly low after blob capacity increase",
	},
	"SOL": {
		"Solana DEX volume leads all chains for third straight week",
		"Validator client diversity improves after new release",
	},
	"DOGE": {
		"Dogecoin network activity spikes on social media rally",
	},
}

// Fetch returns the canned headlines for a symbol
func (p *StaticProvider) Fetch(ctx context.Context, symbol string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	titles, ok := staticHeadlines[symbol]
	if !ok {
		return []Item{}, nil
	}

	now := time.Now().UTC()
	items := make([]Item, 0, len(titles))
	for i, title := range titles {
		items = append(items, Item{
			Title:       title,
			Source:      "arena-wire",
			URL:         fmt.Sprintf("https://news.arena.local/%s/%d", symbol, i),
			PublishedAt: now.Add(-time.Duration(i+1) * time.Hour),
		})
	}
	return items, nil
}
