package news

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/openbench/tradearena/internal/metrics"
)

const (
	cacheOpTimeout    = 500 * time.Millisecond
	writeBackTimeout  = 2 * time.Second
	redisKeyPrefix    = "arena:news:"
	defaultedCacheTTL = 6 * time.Hour
)

type cachedEntry struct {
	Items     []Item    `json:"items"`
	FetchedAt time.Time `json:"fetchedAt"`
}

func (e cachedEntry) fresh(ttl time.Duration, now time.Time) bool {
	return now.Sub(e.FetchedAt) < ttl
}

// Cache is the read-through news cache. An in-process map is the first
// tier; an optional Redis client adds a shared second tier so restarts
// and sibling processes reuse fetches. Concurrent misses for one symbol
// collapse into a single provider call.
type Cache struct {
	provider Provider
	ttl      time.Duration
	redis    *redis.Client
	log      zerolog.Logger

	mu      sync.RWMutex
	entries map[string]cachedEntry
	sf      singleflight.Group
}

// NewCache creates a news cache. redisClient may be nil.
func NewCache(provider Provider, ttl time.Duration, redisClient *redis.Client) *Cache {
	if ttl <= 0 {
		ttl = defaultedCacheTTL
	}
	return &Cache{
		provider: provider,
		ttl:      ttl,
		redis:    redisClient,
		log:      log.With().Str("component", "news_cache").Logger(),
		entries:  make(map[string]cachedEntry),
	}
}

// GetCachedNews returns headlines for each symbol. Missing or expired
// symbols are fetched once; fetch failures yield an empty slice for
// that symbol and are never fatal.
func (c *Cache) GetCachedNews(ctx context.Context, symbols []string) map[string][]Item {
	out := make(map[string][]Item, len(symbols))
	for _, sym := range symbols {
		out[sym] = c.get(ctx, sym)
	}
	return out
}

func (c *Cache) get(ctx context.Context, symbol string) []Item {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.entries[symbol]
	c.mu.RUnlock()
	if ok && entry.fresh(c.ttl, now) {
		metrics.NewsCacheHits.Inc()
		return entry.Items
	}

	metrics.NewsCacheMisses.Inc()

	v, err, _ := c.sf.Do(symbol, func() (interface{}, error) {
		// Another waiter may have refilled while we queued
		c.mu.RLock()
		entry, ok := c.entries[symbol]
		c.mu.RUnlock()
		if ok && entry.fresh(c.ttl, time.Now()) {
			return entry.Items, nil
		}

		if items, ok := c.fromRedis(ctx, symbol); ok {
			return items, nil
		}

		items, err := c.provider.Fetch(ctx, symbol)
		if err != nil {
			return nil, err
		}

		c.store(symbol, items)
		return items, nil
	})
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("News fetch failed, returning empty block")
		return []Item{}
	}
	return v.([]Item)
}

// store fills the memory tier and asynchronously writes back to Redis
func (c *Cache) store(symbol string, items []Item) {
	entry := cachedEntry{Items: items, FetchedAt: time.Now()}

	c.mu.Lock()
	c.entries[symbol] = entry
	c.mu.Unlock()

	if c.redis == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeBackTimeout)
		defer cancel()

		data, err := json.Marshal(entry)
		if err != nil {
			return
		}
		if err := c.redis.Set(ctx, redisKeyPrefix+symbol, data, c.ttl).Err(); err != nil {
			c.log.Debug().Err(err).Str("symbol", symbol).Msg("News write-back failed")
		}
	}()
}

// fromRedis tries the shared tier. Any error counts as a miss.
func (c *Cache) fromRedis(ctx context.Context, symbol string) ([]Item, bool) {
	if c.redis == nil {
		return nil, false
	}

	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	raw, err := c.redis.Get(opCtx, redisKeyPrefix+symbol).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug().Err(err).Str("symbol", symbol).Msg("Redis news get failed, treating as miss")
		}
		return nil, false
	}

	var entry cachedEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("Corrupt cached news entry")
		return nil, false
	}
	if !entry.fresh(c.ttl, time.Now()) {
		return nil, false
	}

	c.mu.Lock()
	c.entries[symbol] = entry
	c.mu.Unlock()
	return entry.Items, true
}

// FormatNewsForPrompt renders cached headlines into the text block
// agents see. Symbols with no items are omitted; with nothing at all
// the block is empty.
func FormatNewsForPrompt(bySymbol map[string][]Item, symbols []string) string {
	var b strings.Builder
	for _, sym := range symbols {
		items := bySymbol[sym]
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", sym)
		for _, item := range items {
			fmt.Fprintf(&b, "- %s (%s, %s)\n", item.Title, item.Source, item.PublishedAt.Format("2006-01-02 15:04"))
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "RECENT NEWS:\n" + b.String()
}
