package news

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls int32
	err   error
	items []Item
}

func (p *countingProvider) Fetch(ctx context.Context, symbol string) ([]Item, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return nil, p.err
	}
	if p.items != nil {
		return p.items, nil
	}
	return []Item{{
		Title:       "headline for " + symbol,
		Source:      "test-wire",
		PublishedAt: time.Now(),
	}}, nil
}

func TestCache_ReadThroughAndHit(t *testing.T) {
	provider := &countingProvider{}
	cache := NewCache(provider, time.Hour, nil)
	ctx := context.Background()

	first := cache.GetCachedNews(ctx, []string{"BTC"})
	require.Len(t, first["BTC"], 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))

	second := cache.GetCachedNews(ctx, []string{"BTC"})
	require.Len(t, second["BTC"], 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls), "fresh entry must not refetch")
}

func TestCache_TTLEviction(t *testing.T) {
	provider := &countingProvider{}
	cache := NewCache(provider, 50*time.Millisecond, nil)
	ctx := context.Background()

	cache.GetCachedNews(ctx, []string{"ETH"})
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))

	time.Sleep(80 * time.Millisecond)

	cache.GetCachedNews(ctx, []string{"ETH"})
	assert.Equal(t, int32(2), atomic.LoadInt32(&provider.calls), "expired entry must refetch")
}

func TestCache_SingleFetchPerSymbol(t *testing.T) {
	provider := &countingProvider{}
	cache := NewCache(provider, time.Hour, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.GetCachedNews(context.Background(), []string{"SOL"})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls), "concurrent misses must collapse to one fetch")
}

func TestCache_ProviderFailureYieldsEmptyBlock(t *testing.T) {
	provider := &countingProvider{err: errors.New("feed unavailable")}
	cache := NewCache(provider, time.Hour, nil)

	got := cache.GetCachedNews(context.Background(), []string{"BTC", "ETH"})
	assert.Empty(t, got["BTC"])
	assert.Empty(t, got["ETH"])

	block := FormatNewsForPrompt(got, []string{"BTC", "ETH"})
	assert.Empty(t, block)
}

func TestCache_RedisSecondTier(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	entry := cachedEntry{
		Items:     []Item{{Title: "seeded headline", Source: "test-wire", PublishedAt: time.Now()}},
		FetchedAt: time.Now(),
	}
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, mr.Set(redisKeyPrefix+"BTC", string(data)))

	provider := &countingProvider{}
	cache := NewCache(provider, time.Hour, client)

	got := cache.GetCachedNews(context.Background(), []string{"BTC"})
	require.Len(t, got["BTC"], 1)
	assert.Equal(t, "seeded headline", got["BTC"][0].Title)
	assert.Equal(t, int32(0), atomic.LoadInt32(&provider.calls), "redis hit must not reach the provider")
}

func TestCache_RedisWriteBack(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	provider := &countingProvider{}
	cache := NewCache(provider, time.Hour, client)

	cache.GetCachedNews(context.Background(), []string{"ETH"})

	require.Eventually(t, func() bool {
		return mr.Exists(redisKeyPrefix + "ETH")
	}, time.Second, 10*time.Millisecond, "fetched news should be written back to redis")
}

func TestCache_StaleRedisEntryIgnored(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	stale := cachedEntry{
		Items:     []Item{{Title: "ancient headline"}},
		FetchedAt: time.Now().Add(-24 * time.Hour),
	}
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, mr.Set(redisKeyPrefix+"BTC", string(data)))

	provider := &countingProvider{}
	cache := NewCache(provider, time.Hour, client)

	got := cache.GetCachedNews(context.Background(), []string{"BTC"})
	require.Len(t, got["BTC"], 1)
	assert.NotEqual(t, "ancient headline", got["BTC"][0].Title)
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))
}

func TestFormatNewsForPrompt(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	bySymbol := map[string][]Item{
		"BTC": {{Title: "Bitcoin climbs", Source: "wire", PublishedAt: now}},
		"ETH": {},
	}

	block := FormatNewsForPrompt(bySymbol, []string{"BTC", "ETH"})
	assert.Contains(t, block, "RECENT NEWS:")
	assert.Contains(t, block, "BTC:")
	assert.Contains(t, block, "Bitcoin climbs")
	assert.Contains(t, block, "2026-02-10 09:30")
	assert.NotContains(t, block, "ETH:")
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider()

	items, err := p.Fetch(context.Background(), "BTC")
	require.NoError(t, err)
	assert.NotEmpty(t, items)

	unknown, err := p.Fetch(context.Background(), "XYZ")
	require.NoError(t, err)
	assert.Empty(t, unknown)
}
