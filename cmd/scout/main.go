// Package main runs the scout service: the pair-creation feed, the analysis
// queue and the HTTP API with websocket push.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bsc-token-scout/internal/app"
	"bsc-token-scout/internal/config"
	"bsc-token-scout/internal/logging"
)

func main() {
	// Load .env file if exists
	_ = config.LoadEnvFile(".env")

	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.Setup("bsc-token-scout", "info", "json")
		bootLogger.Fatal().Err(err).Msg("load config")
	}

	// Flags override the environment.
	flag.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	flag.StringVar(&cfg.FeedMode, "feed", cfg.FeedMode, "Event feed: websocket or polling")
	flag.StringVar(&cfg.Storage, "storage", cfg.Storage, "Storage backend: memory, redis or postgres")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	flag.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis address or URL")
	flag.StringVar(&cfg.ClickhouseDSN, "clickhouse-dsn", cfg.ClickhouseDSN, "ClickHouse DSN for score history (optional)")
	flag.IntVar(&cfg.QueueConcurrency, "concurrency", cfg.QueueConcurrency, "Concurrent analyses")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json or text")
	flag.Parse()

	logger := logging.Setup("bsc-token-scout", cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	// Channel to signal completion
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	logger.Info().
		Str("feed", cfg.FeedMode).
		Str("storage", cfg.Storage).
		Int("rpc_endpoints", len(cfg.RPCURLs)).
		Msg("scout starting")

	err = a.Run(ctx)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("scout stopped with error")
		a.Close()
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}
