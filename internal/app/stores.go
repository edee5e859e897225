package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"bsc-token-scout/internal/config"
	"bsc-token-scout/internal/storage"
	chstore "bsc-token-scout/internal/storage/clickhouse"
	"bsc-token-scout/internal/storage/memory"
	"bsc-token-scout/internal/storage/migrations"
	pgstore "bsc-token-scout/internal/storage/postgres"
	redisstore "bsc-token-scout/internal/storage/redis"
)

// Stores holds every persistence dependency.
type Stores struct {
	Tokens   storage.TokenStore
	Cache    storage.AnalysisCacheRepository
	Progress storage.FeedProgressStore
	History  storage.ScoreHistoryStore

	closers []func()
}

// Close releases store connections in reverse order.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// OpenStores creates the stores selected by cfg.Storage. Score history goes to
// ClickHouse when a DSN is configured and stays in memory otherwise.
func OpenStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Stores, error) {
	s := &Stores{}

	switch cfg.Storage {
	case config.StorageMemory:
		s.Tokens = memory.NewTokenStore()
		s.Cache = memory.NewCacheRepository()
		s.Progress = memory.NewFeedProgressStore()

	case config.StorageRedis:
		cli, err := redisstore.NewClient(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		s.closers = append(s.closers, func() { _ = cli.Close() })
		s.Tokens = redisstore.NewTokenStore(cli, redisstore.DefaultTokensKey)
		s.Cache = redisstore.NewCacheRepository(cli, redisstore.DefaultCacheKey)
		s.Progress = memory.NewFeedProgressStore()

	case config.StoragePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := migrations.RunPostgres(ctx, pool); err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.Tokens = pgstore.NewTokenStore(pool)
		s.Cache = pgstore.NewCacheRepository(pool)
		s.Progress = pgstore.NewFeedProgressStore(pool)

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidStorage, cfg.Storage)
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouse(ctx, cfg.ClickhouseDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		s.History = chstore.NewScoreHistoryStore(conn)
	} else {
		s.History = memory.NewScoreHistoryStore()
	}

	logger.Info().
		Str("storage", cfg.Storage).
		Bool("clickhouse_history", cfg.ClickhouseDSN != "").
		Msg("stores ready")
	return s, nil
}
