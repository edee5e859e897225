// Package app wires the scout pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"bsc-token-scout/internal/analysis"
	"bsc-token-scout/internal/config"
	"bsc-token-scout/internal/discovery"
	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/events"
	"bsc-token-scout/internal/evm"
	"bsc-token-scout/internal/explorer"
	"bsc-token-scout/internal/httpapi"
	"bsc-token-scout/internal/ingestion"
	"bsc-token-scout/internal/logging"
	"bsc-token-scout/internal/metadata"
	"bsc-token-scout/internal/observability"
	"bsc-token-scout/internal/pricefeed"
	"bsc-token-scout/internal/queue"
	"bsc-token-scout/internal/retry"
	"bsc-token-scout/internal/scout"
)

// heavyAttempts is the retry ceiling for holder and lock-scan reads.
const heavyAttempts = 5

// shutdownTimeout bounds the wait for in-flight analyses and HTTP requests.
const shutdownTimeout = 30 * time.Second

// App is a fully wired pipeline.
type App struct {
	Config   config.Config
	Stores   *Stores
	Metrics  *observability.Metrics
	Bus      *events.Bus
	Pool     *evm.Pool
	Analyzer *analysis.Analyzer
	Metadata *metadata.Fetcher
	Queue    *queue.Queue
	Resolver *discovery.Resolver
	Poller   *ingestion.PollingPairSource
	Runner   *ingestion.Runner
	Service  *scout.Service

	ws  *evm.WSClient
	log zerolog.Logger
}

// New builds every component. Startup fails only for configuration and
// storage errors; a push feed that cannot connect degrades to polling.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	chain := cfg.Chain

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(observability.DefaultNamespace, reg)

	stores, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	policy := retry.DefaultPolicy()
	policy.Attempts = cfg.RetryAttempts
	policy.BaseDelay = cfg.RetryBaseDelay
	policy.Timeout = cfg.RPCTimeout

	pool, err := evm.NewPool(cfg.RPCURLs,
		evm.WithRetryPolicy(policy),
		evm.WithObserver(metrics),
		evm.WithLogger(logger),
	)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("rpc pool: %w", err)
	}
	contracts := evm.NewContracts(pool, chain.Factory, chain.Multicall3)

	explorerClient := explorer.NewHTTPClient(cfg.ExplorerURL, cfg.ExplorerAPIKey,
		explorer.WithRetryPolicy(policy),
		explorer.WithObserver(metrics),
		explorer.WithLogger(logger),
	)
	heavy := explorerClient.WithPolicy(policy.WithAttempts(heavyAttempts))

	var holderSource explorer.HolderSource = explorer.ExplorerHolderSource{Client: heavy}
	if cfg.HolderSource == config.HolderSourceIndexer {
		holderSource = explorer.NewIndexerHolderSource(cfg.IndexerURL, nil, policy.WithAttempts(heavyAttempts))
	}

	fetcher := metadata.NewFetcher(contracts, metadata.Options{TTL: cfg.MetadataTTL, Logger: logger})
	price := pricefeed.NewBinance(cfg.PriceURL, chain.PriceSymbol, pricefeed.WithRetryPolicy(policy))
	liquidity := analysis.NewLiquidityAnalyzer(contracts, price, heavy, analysis.LiquidityOptions{
		BaseToken: chain.BaseToken,
		Lockers:   cfg.Lockers,
		Logger:    logger,
	})
	holders := analysis.NewHolderAnalyzer(holderSource, chain.DeadAddress, logger)

	var distribution analysis.DistributionAnalyzer
	if cfg.HolderDistribution {
		distribution = analysis.HolderDistributionAnalyzer{}
	}
	analyzer := analysis.NewAnalyzer(fetcher, liquidity, holders, analysis.Options{
		Distribution: distribution,
		Logger:       logger,
	})

	bus := events.NewBus()
	cache := queue.NewCache(stores.Cache, cfg.CacheTTL, logger)
	if err := cache.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("analysis cache not loaded, starting empty")
	}
	q := queue.New(analyzer, fetcher, stores.Tokens, cache, queue.Options{
		Chain:         chain.Name,
		MaxConcurrent: cfg.QueueConcurrency,
		Delay:         cfg.QueueDelay,
		Tradeable:     analyzer,
		History:       stores.History,
		Bus:           bus,
		Observer:      metrics,
		Logger:        logger,
	})

	resolver := discovery.NewResolver(chain, discovery.ResolverOptions{Logger: logger})
	if n, err := resolver.Warm(ctx, stores.Progress); err != nil {
		logger.Warn().Err(err).Msg("resolver not warmed")
	} else if n > 0 {
		logger.Info().Int("txs", n).Msg("resolver warmed from seen transactions")
	}

	poller := ingestion.NewPollingPairSource(explorerClient, chain.Factory, ingestion.PollSourceOptions{
		Interval: cfg.PollInterval,
		PageSize: cfg.PollPageSize,
		Progress: stores.Progress,
		Observer: metrics,
		Logger:   logger,
	})

	a := &App{
		Config:   cfg,
		Stores:   stores,
		Metrics:  metrics,
		Bus:      bus,
		Pool:     pool,
		Analyzer: analyzer,
		Metadata: fetcher,
		Queue:    q,
		Resolver: resolver,
		Poller:   poller,
		log:      logging.Component(logger, "app"),
	}

	var source ingestion.PairSource = poller
	feedMode := config.FeedPolling
	if cfg.FeedMode == config.FeedWebsocket {
		if ws, err := a.dialWS(ctx); err != nil {
			a.log.Warn().Err(err).Str("url", cfg.WSURL).Msg("websocket feed unavailable, falling back to polling")
		} else {
			a.ws = ws
			feedMode = config.FeedWebsocket
			source = ingestion.NewWSPairSource(ws, chain.Factory, ingestion.WSSourceOptions{
				Headers:  pool,
				Observer: metrics,
				Logger:   logger,
			})
		}
	}

	a.Runner = ingestion.NewRunner(source, resolver, q, ingestion.RunnerOptions{
		Progress: stores.Progress,
		Observer: metrics,
		Logger:   logger,
	})

	opts := scout.Options{
		Chain:    chain.Name,
		FeedMode: feedMode,
		Poller:   poller,
		Resolver: resolver,
		History:  stores.History,
		Progress: stores.Progress,
		Bus:      bus,
		Feed:     a.Runner,
		Logger:   logger,
	}
	if a.ws != nil {
		opts.Connection = a.ws
	}
	a.Service = scout.NewService(analyzer, fetcher, q, stores.Tokens, opts)
	return a, nil
}

func (a *App) dialWS(ctx context.Context) (*evm.WSClient, error) {
	if a.Config.WSURL == "" {
		return nil, errors.New("no websocket url configured")
	}
	wsCfg := evm.DefaultWSConfig()
	wsCfg.MaxReconnectAttempts = a.Config.MaxReconnects
	wsCfg.Logger = a.log
	wsCfg.OnStateChange = func(s domain.ConnectionState) {
		a.Metrics.ObserveConnection(s)
		a.Bus.Connection.Publish(s)
	}
	return evm.NewWSClient(ctx, a.Config.WSURL, &wsCfg)
}

// Run starts the queue, the feed runner and the HTTP server and blocks until
// ctx is cancelled. Shutdown waits for in-flight analyses.
func (a *App) Run(ctx context.Context) error {
	hub := httpapi.NewHub(a.log)
	server := &http.Server{
		Addr: a.Config.HTTPAddr,
		Handler: httpapi.NewServer(a.Service, httpapi.ServerOptions{
			Hub:     hub,
			Metrics: a.Metrics.Handler(),
			Logger:  a.log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Queue.Start(gctx)
	})
	g.Go(func() error {
		return ignoreCanceled(a.Runner.Run(gctx))
	})
	g.Go(func() error {
		hub.Run(gctx, a.Bus)
		return nil
	})
	g.Go(func() error {
		a.trackTokenCount(gctx)
		return nil
	})
	g.Go(func() error {
		a.log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("http shutdown")
		}
		if err := a.Queue.Stop(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("queue shutdown")
		}
		return nil
	})
	return g.Wait()
}

// trackTokenCount refreshes the stored-token gauge.
func (a *App) trackTokenCount(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		n, err := a.Stores.Tokens.Count(ctx)
		if err != nil {
			a.Metrics.ObserveStoreError("tokens", "count", err)
		} else {
			a.Metrics.SetTokens(n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close releases connections.
func (a *App) Close() {
	if a.ws != nil {
		_ = a.ws.Close()
	}
	a.Bus.Close()
	a.Pool.Close()
	a.Stores.Close()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
