package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openbench/tradearena/internal/agents"
	"github.com/openbench/tradearena/internal/api"
	"github.com/openbench/tradearena/internal/arena"
	"github.com/openbench/tradearena/internal/config"
	"github.com/openbench/tradearena/internal/metrics"
	"github.com/openbench/tradearena/internal/stream"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: search ./configs)")
	rosterPath := flag.String("roster", "", "path to agent roster YAML (default: built-in roster)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	log.Info().
		Str("environment", cfg.App.Environment).
		Str("benchmark_version", cfg.Benchmark.Version).
		Str("market_mode", cfg.Market.Mode).
		Msg("Starting trade arena")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := config.LoadSecretsFromVault(ctx, cfg, config.GetVaultConfigFromEnv()); err != nil {
		log.Warn().Err(err).Msg("Vault secrets unavailable, relying on environment")
	}

	roster, err := agents.LoadRoster(*rosterPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load agent roster")
	}
	log.Info().Int("agents", len(roster)).Msg("Roster loaded")

	svc, err := arena.NewServices(cfg, roster, arena.Overrides{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build arena services")
	}

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, cfg.Benchmark.Version, log.Logger)
		if err := metricsServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start metrics server")
		}
	}

	var bridge *stream.NATSBridge
	if cfg.NATS.Enabled {
		bridge, err = stream.NewNATSBridge(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			log.Error().Err(err).Msg("NATS bridge unavailable, events stay in-process")
			bridge = nil
		} else {
			bridge.Start(svc.Bus)
		}
	}

	server := api.New(cfg, svc)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		log.Error().Err(err).Msg("Server error")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	log.Info().Msg("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop API server gracefully")
	}

	if bridge != nil {
		bridge.Close()
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to stop metrics server gracefully")
		}
	}

	log.Info().Msg("Arena stopped")
}
