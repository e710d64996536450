package arena

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/openbench/tradearena/internal/agents"
	"github.com/openbench/tradearena/internal/alerts"
	"github.com/openbench/tradearena/internal/config"
	"github.com/openbench/tradearena/internal/leaderboard"
	"github.com/openbench/tradearena/internal/ledger"
	"github.com/openbench/tradearena/internal/llm"
	"github.com/openbench/tradearena/internal/market"
	"github.com/openbench/tradearena/internal/news"
	"github.com/openbench/tradearena/internal/portfolio"
	"github.com/openbench/tradearena/internal/risk"
	"github.com/openbench/tradearena/internal/rpc"
	"github.com/openbench/tradearena/internal/scoring"
	"github.com/openbench/tradearena/internal/stream"
	"github.com/openbench/tradearena/internal/venue"
)

// Services is the fully wired arena: every collaborator plus the
// orchestrator driving them. The API layer reads from here.
type Services struct {
	Config    *config.Config
	Roster    []agents.AgentConfig
	Provider  market.Provider
	News      *news.Cache
	Runner    *agents.Runner
	Portfolio *portfolio.Tracker
	Stats     *risk.StatsTracker
	Venue     venue.Executor
	Ledger    *ledger.Ledger
	Scoring   *scoring.Bundle
	Board     *leaderboard.Store
	Bus       *stream.Bus
	Alerts    *alerts.Manager
	Upstream  *risk.UpstreamBreakers
	Gate      *rpc.Client
	Orch      *Orchestrator
}

// Overrides swaps live collaborators for doubles. Nil fields use the
// configured implementation.
type Overrides struct {
	Provider market.Provider
	Venue    venue.Executor
	LLM      *llm.Client
	News     news.Provider
	Redis    *redis.Client
}

// NewServices wires the whole arena from config. One shared call gate
// covers every live upstream; in-process collaborators bypass it.
func NewServices(cfg *config.Config, roster []agents.AgentConfig, ov Overrides) (*Services, error) {
	gate := rpc.NewClient(rpc.Options{
		MaxCalls:     cfg.RPC.RateLimitMax,
		Window:       cfg.RPC.Window(),
		Timeout:      cfg.RPC.Timeout(),
		MaxRetries:   cfg.RPC.MaxRetries,
		RetryBackoff: cfg.RPC.RetryBackoff(),
	})
	upstream := risk.NewUpstreamBreakers()

	provider := ov.Provider
	if provider == nil {
		var err error
		provider, err = market.NewProvider(cfg.Market.Mode, cfg.Market.Symbols, cfg.Market.SimSeed,
			cfg.Market.BinanceAPIKey, cfg.Market.BinanceSecret, cfg.Market.Testnet, gate)
		if err != nil {
			return nil, fmt.Errorf("market provider: %w", err)
		}
	}

	llmClient := ov.LLM
	if llmClient == nil {
		llmClient = llm.NewClient(llm.ClientConfig{
			GatewayURL:  cfg.LLM.Endpoint,
			APIKey:      cfg.LLM.APIKey,
			Temperature: float32(cfg.LLM.Temperature),
			MaxTokens:   cfg.LLM.MaxTokens,
		}, gate, upstream.LLM())
	}

	exec := ov.Venue
	if exec == nil {
		if cfg.Market.Mode == "binance" {
			exec = venue.NewBinance(cfg.Market.BinanceAPIKey, cfg.Market.BinanceSecret,
				cfg.Market.Testnet, gate, upstream.Venue())
		} else {
			exec = venue.NewPaper(venue.DefaultSlippage)
		}
	}

	newsProvider := ov.News
	if newsProvider == nil {
		if cfg.News.Provider == "http" && cfg.News.ProviderURL != "" {
			newsProvider = news.NewHTTPProvider(cfg.News.ProviderURL, gate, upstream.News())
		} else {
			newsProvider = news.NewStaticProvider()
		}
	}

	redisClient := ov.Redis
	if redisClient == nil && cfg.News.RedisEnabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	cache := news.NewCache(newsProvider, cfg.News.TTL(), redisClient)

	tracker := portfolio.NewTracker(cfg.Portfolio.StartingCash)
	stats := risk.NewStatsTracker(cfg.Breakers.VelocityWindow())
	limits := risk.Limits{
		MaxTradesPerWindow:   cfg.Breakers.VelocityMaxTrades,
		VelocityWindow:       cfg.Breakers.VelocityWindow(),
		MaxPositionRatio:     cfg.Breakers.PositionSizeRatio,
		MaxConsecutiveLosses: cfg.Breakers.LossStreakHalt,
		TreasuryWallet:       cfg.Breakers.DestinationWallet,
	}

	book := ledger.New(cfg.Ledger.MaxSize, cfg.Benchmark.Version)
	bundle := scoring.NewBundle(cfg.Benchmark.Version,
		cfg.Scoring.MaxDecisionsPerAgent, cfg.Scoring.MaxDecisionsPerAgent)
	board := leaderboard.NewStore(bundle.Weights, bundle)
	for _, a := range roster {
		board.Register(a)
	}

	bus := stream.NewBus(stream.Options{
		MaxEvents: cfg.Stream.MaxEvents,
		CatchUp:   cfg.Stream.CatchUp,
		Heartbeat: cfg.Stream.Heartbeat(),
		Buffer:    cfg.Stream.SubscriberBuffer,
	})

	alerters := []alerts.Alerter{alerts.NewLogAlerter()}
	if cfg.Alerts.TelegramEnabled && cfg.Alerts.TelegramToken != "" {
		tg, err := alerts.NewTelegramAlerter(cfg.Alerts.TelegramToken, cfg.Alerts.TelegramChatIDs)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram alerter unavailable, alerts go to logs only")
		} else {
			alerters = append(alerters, tg)
		}
	}
	manager := alerts.NewManager(alerters...)

	runner := agents.NewRunner(llmClient)

	orch := New(Deps{
		Roster:       roster,
		Provider:     provider,
		News:         cache,
		Runner:       runner,
		Portfolio:    tracker,
		Stats:        stats,
		Limits:       limits,
		Venue:        exec,
		Ledger:       book,
		Scoring:      bundle,
		Board:        board,
		Bus:          bus,
		Alerts:       manager,
		RoundTimeout: cfg.Round.RoundTimeout(),
		Pacing:       cfg.Round.Pacing(),
		HistorySize:  cfg.Round.HistorySize,
	})

	return &Services{
		Config:    cfg,
		Roster:    roster,
		Provider:  provider,
		News:      cache,
		Runner:    runner,
		Portfolio: tracker,
		Stats:     stats,
		Venue:     exec,
		Ledger:    book,
		Scoring:   bundle,
		Board:     board,
		Bus:       bus,
		Alerts:    manager,
		Upstream:  upstream,
		Gate:      gate,
		Orch:      orch,
	}, nil
}
