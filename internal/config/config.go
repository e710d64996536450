package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all arena configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Benchmark  BenchmarkConfig  `mapstructure:"benchmark"`
	Round      RoundConfig      `mapstructure:"round"`
	RPC        RPCConfig        `mapstructure:"rpc"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Breakers   BreakerConfig    `mapstructure:"breakers"`
	Market     MarketConfig     `mapstructure:"market"`
	News       NewsConfig       `mapstructure:"news"`
	Portfolio  PortfolioConfig  `mapstructure:"portfolio"`
	LLM        LLMConfig        `mapstructure:"llm"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Alerts     AlertConfig      `mapstructure:"alerts"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// BenchmarkConfig carries the benchmark version tag stamped on every
// ledger entry. The tag selects the composite weight vector.
type BenchmarkConfig struct {
	Version string `mapstructure:"version"`
}

// RoundConfig bounds a single trading round
type RoundConfig struct {
	TimeoutMs   int `mapstructure:"timeout_ms"`   // T_round
	PacingMs    int `mapstructure:"pacing_ms"`    // inter-agent stagger
	HistorySize int `mapstructure:"history_size"` // triggered-round ring
}

// RPCConfig bounds external venue/market calls
type RPCConfig struct {
	TimeoutMs         int `mapstructure:"timeout_ms"` // T_rpc
	RateLimitMax      int `mapstructure:"rate_limit_max"`
	RateLimitWindowMs int `mapstructure:"rate_limit_window_ms"`
	MaxRetries        int `mapstructure:"max_retries"`
	RetryBackoffMs    int `mapstructure:"retry_backoff_ms"`
}

// StreamConfig shapes the trade stream bus
type StreamConfig struct {
	MaxEvents        int `mapstructure:"max_events"`
	CatchUp          int `mapstructure:"catch_up"`
	HeartbeatSeconds int `mapstructure:"heartbeat_seconds"`
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

// LedgerConfig shapes the forensic ledger
type LedgerConfig struct {
	MaxSize int `mapstructure:"max_size"`
}

// ScoringConfig shapes the analyzer pool
type ScoringConfig struct {
	MaxDecisionsPerAgent int `mapstructure:"max_decisions_per_agent"`
}

// BreakerConfig parameterizes the pre-trade circuit breakers
type BreakerConfig struct {
	VelocityMaxTrades int     `mapstructure:"velocity_max_trades"`
	VelocityWindowSec int     `mapstructure:"velocity_window_sec"`
	PositionSizeRatio float64 `mapstructure:"position_size_ratio"`
	LossStreakHalt    int     `mapstructure:"loss_streak_halt"`
	DestinationWallet string  `mapstructure:"destination_wallet"`
}

// MarketConfig selects the market data provider
type MarketConfig struct {
	Mode          string   `mapstructure:"mode"` // "sim" or "binance"
	Symbols       []string `mapstructure:"symbols"`
	SimSeed       int64    `mapstructure:"sim_seed"`
	BinanceAPIKey string   `mapstructure:"binance_api_key"`
	BinanceSecret string   `mapstructure:"binance_secret"`
	Testnet       bool     `mapstructure:"testnet"`
}

// NewsConfig shapes the news cache
type NewsConfig struct {
	TTLHours     int    `mapstructure:"ttl_hours"`
	Provider     string `mapstructure:"provider"` // "static" or "http"
	ProviderURL  string `mapstructure:"provider_url"`
	RedisEnabled bool   `mapstructure:"redis_enabled"`
}

// PortfolioConfig seeds per-agent paper accounting
type PortfolioConfig struct {
	StartingCash float64 `mapstructure:"starting_cash"`
}

// LLMConfig contains LLM gateway settings
type LLMConfig struct {
	Endpoint    string  `mapstructure:"endpoint"` // OpenAI-compatible base URL
	APIKey      string  `mapstructure:"api_key"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TimeoutMs   int     `mapstructure:"timeout_ms"`
	MaxRetries  int     `mapstructure:"max_retries"`
}

// APIConfig contains REST API settings
type APIConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
}

// MonitoringConfig contains metrics settings
type MonitoringConfig struct {
	EnableMetrics  bool `mapstructure:"enable_metrics"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// NATSConfig contains the optional event bridge settings
type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// RedisConfig contains the optional news cache tier settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AlertConfig contains alert channel settings
type AlertConfig struct {
	TelegramEnabled bool    `mapstructure:"telegram_enabled"`
	TelegramToken   string  `mapstructure:"telegram_token"`
	TelegramChatIDs []int64 `mapstructure:"telegram_chat_ids"`
}

// Load loads configuration from file and environment variables.
// The canonical environment names (BENCHMARK_VERSION, T_ROUND_MS, T_RPC_MS,
// RATE_LIMIT_MAX, RATE_LIMIT_WINDOW_MS, MAX_EVENTS, MAX_LEDGER_SIZE,
// MAX_DECISIONS_PER_AGENT) override file values; everything else is
// reachable under the ARENA_ prefix.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindCanonicalEnv(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindCanonicalEnv maps the unprefixed environment names onto config keys.
func bindCanonicalEnv(v *viper.Viper) {
	// Benchmark inputs
	_ = v.BindEnv("benchmark.version", "BENCHMARK_VERSION")
	_ = v.BindEnv("round.timeout_ms", "T_ROUND_MS")
	_ = v.BindEnv("rpc.timeout_ms", "T_RPC_MS")
	_ = v.BindEnv("rpc.rate_limit_max", "RATE_LIMIT_MAX")
	_ = v.BindEnv("rpc.rate_limit_window_ms", "RATE_LIMIT_WINDOW_MS")
	_ = v.BindEnv("stream.max_events", "MAX_EVENTS")
	_ = v.BindEnv("ledger.max_size", "MAX_LEDGER_SIZE")
	_ = v.BindEnv("scoring.max_decisions_per_agent", "MAX_DECISIONS_PER_AGENT")

	// Service credentials and endpoints
	_ = v.BindEnv("llm.endpoint", "LLM_GATEWAY_URL")
	_ = v.BindEnv("llm.api_key", "LLM_GATEWAY_API_KEY")
	_ = v.BindEnv("market.binance_api_key", "BINANCE_API_KEY")
	_ = v.BindEnv("market.binance_secret", "BINANCE_SECRET_KEY")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("nats.url", "NATS_URL")
	_ = v.BindEnv("alerts.telegram_token", "TELEGRAM_BOT_TOKEN")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "tradearena")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Benchmark defaults
	v.SetDefault("benchmark.version", "v24")

	// Round defaults
	v.SetDefault("round.timeout_ms", 30000)
	v.SetDefault("round.pacing_ms", 100)
	v.SetDefault("round.history_size", 50)

	// RPC defaults
	v.SetDefault("rpc.timeout_ms", 10000)
	v.SetDefault("rpc.rate_limit_max", 5)
	v.SetDefault("rpc.rate_limit_window_ms", 1000)
	v.SetDefault("rpc.max_retries", 3)
	v.SetDefault("rpc.retry_backoff_ms", 500)

	// Stream defaults
	v.SetDefault("stream.max_events", 300)
	v.SetDefault("stream.catch_up", 20)
	v.SetDefault("stream.heartbeat_seconds", 5)
	v.SetDefault("stream.subscriber_buffer", 64)

	// Ledger defaults
	v.SetDefault("ledger.max_size", 5000)

	// Scoring defaults
	v.SetDefault("scoring.max_decisions_per_agent", 500)

	// Breaker defaults
	v.SetDefault("breakers.velocity_max_trades", 5)
	v.SetDefault("breakers.velocity_window_sec", 60)
	v.SetDefault("breakers.position_size_ratio", 0.25)
	v.SetDefault("breakers.loss_streak_halt", 3)
	v.SetDefault("breakers.destination_wallet", "ARENA_TREASURY")

	// Market defaults
	v.SetDefault("market.mode", "sim")
	v.SetDefault("market.symbols", []string{"BTC", "ETH", "SOL", "DOGE"})
	v.SetDefault("market.sim_seed", 42)
	v.SetDefault("market.testnet", true)

	// News defaults
	v.SetDefault("news.ttl_hours", 6)
	v.SetDefault("news.provider", "static")
	v.SetDefault("news.redis_enabled", false)

	// Portfolio defaults
	v.SetDefault("portfolio.starting_cash", 10000.0)

	// LLM defaults
	v.SetDefault("llm.endpoint", "http://localhost:8080/v1")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout_ms", 25000)
	v.SetDefault("llm.max_retries", 2)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8090)
	v.SetDefault("api.allowed_origins", []string{"*"})
	v.SetDefault("api.rate_limit_rps", 20.0)
	v.SetDefault("api.rate_limit_burst", 40)

	// Monitoring defaults
	v.SetDefault("monitoring.enable_metrics", true)
	v.SetDefault("monitoring.prometheus_port", 9100)

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "arena.events")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Alert defaults
	v.SetDefault("alerts.telegram_enabled", false)
}

// RoundTimeout returns T_round as a duration
func (c *RoundConfig) RoundTimeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Pacing returns the inter-agent stagger as a duration
func (c *RoundConfig) Pacing() time.Duration {
	return time.Duration(c.PacingMs) * time.Millisecond
}

// Timeout returns T_rpc as a duration
func (c *RPCConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Window returns the rate limit window as a duration
func (c *RPCConfig) Window() time.Duration {
	return time.Duration(c.RateLimitWindowMs) * time.Millisecond
}

// RetryBackoff returns the base retry backoff as a duration
func (c *RPCConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// Heartbeat returns the subscriber heartbeat interval
func (c *StreamConfig) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// TTL returns the news cache TTL
func (c *NewsConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// Timeout returns the per-completion LLM timeout
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Addr returns the API listen address
func (c *APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// VelocityWindow returns the breaker velocity window
func (c *BreakerConfig) VelocityWindow() time.Duration {
	return time.Duration(c.VelocityWindowSec) * time.Second
}
