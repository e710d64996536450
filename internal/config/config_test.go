package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tradearena", cfg.App.Name)
	assert.Equal(t, "v24", cfg.Benchmark.Version)
	assert.Equal(t, 30000, cfg.Round.TimeoutMs)
	assert.Equal(t, 100, cfg.Round.PacingMs)
	assert.Equal(t, 5, cfg.RPC.RateLimitMax)
	assert.Equal(t, 1000, cfg.RPC.RateLimitWindowMs)
	assert.Equal(t, 300, cfg.Stream.MaxEvents)
	assert.Equal(t, 20, cfg.Stream.CatchUp)
	assert.Equal(t, 5000, cfg.Ledger.MaxSize)
	assert.Equal(t, 500, cfg.Scoring.MaxDecisionsPerAgent)
	assert.Equal(t, 0.25, cfg.Breakers.PositionSizeRatio)
	assert.Equal(t, "sim", cfg.Market.Mode)
	assert.Equal(t, []string{"BTC", "ETH", "SOL", "DOGE"}, cfg.Market.Symbols)
	assert.Equal(t, 8090, cfg.API.Port)
	assert.Equal(t, 9100, cfg.Monitoring.PrometheusPort)
}

func TestLoad_CanonicalEnvOverrides(t *testing.T) {
	t.Setenv("BENCHMARK_VERSION", "12.0.0")
	t.Setenv("T_ROUND_MS", "5000")
	t.Setenv("T_RPC_MS", "2000")
	t.Setenv("RATE_LIMIT_MAX", "7")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "500")
	t.Setenv("MAX_EVENTS", "250")
	t.Setenv("MAX_LEDGER_SIZE", "100")
	t.Setenv("MAX_DECISIONS_PER_AGENT", "50")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "12.0.0", cfg.Benchmark.Version)
	assert.Equal(t, 5000, cfg.Round.TimeoutMs)
	assert.Equal(t, 2000, cfg.RPC.TimeoutMs)
	assert.Equal(t, 7, cfg.RPC.RateLimitMax)
	assert.Equal(t, 500, cfg.RPC.RateLimitWindowMs)
	assert.Equal(t, 250, cfg.Stream.MaxEvents)
	assert.Equal(t, 100, cfg.Ledger.MaxSize)
	assert.Equal(t, 50, cfg.Scoring.MaxDecisionsPerAgent)
}

func TestLoad_PrefixedEnvOverrides(t *testing.T) {
	t.Setenv("ARENA_APP_LOG_LEVEL", "debug")
	t.Setenv("ARENA_APP_LOG_FORMAT", "console")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "console", cfg.App.LogFormat)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
benchmark:
  version: "3.1.4"
round:
  timeout_ms: 12000
market:
  symbols: ["BTC"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "3.1.4", cfg.Benchmark.Version)
	assert.Equal(t, 12000, cfg.Round.TimeoutMs)
	assert.Equal(t, []string{"BTC"}, cfg.Market.Symbols)

	// defaults backfill keys the file does not set
	assert.Equal(t, 5, cfg.RPC.RateLimitMax)
	assert.Equal(t, "sim", cfg.Market.Mode)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("benchmark:\n  version: \"9.9.9\"\n"), 0o644))
	t.Setenv("BENCHMARK_VERSION", "12.0.0")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "12.0.0", cfg.Benchmark.Version)
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stream:\n  max_events: 10\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream.max_events")
}

func TestDurationHelpers(t *testing.T) {
	round := RoundConfig{TimeoutMs: 30000, PacingMs: 100}
	assert.Equal(t, 30*time.Second, round.RoundTimeout())
	assert.Equal(t, 100*time.Millisecond, round.Pacing())

	rpc := RPCConfig{TimeoutMs: 10000, RateLimitWindowMs: 1000, RetryBackoffMs: 500}
	assert.Equal(t, 10*time.Second, rpc.Timeout())
	assert.Equal(t, time.Second, rpc.Window())
	assert.Equal(t, 500*time.Millisecond, rpc.RetryBackoff())

	stream := StreamConfig{HeartbeatSeconds: 5}
	assert.Equal(t, 5*time.Second, stream.Heartbeat())

	news := NewsConfig{TTLHours: 6}
	assert.Equal(t, 6*time.Hour, news.TTL())

	breakers := BreakerConfig{VelocityWindowSec: 60}
	assert.Equal(t, time.Minute, breakers.VelocityWindow())

	api := APIConfig{Host: "127.0.0.1", Port: 8090}
	assert.Equal(t, "127.0.0.1:8090", api.Addr())
}
