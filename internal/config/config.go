package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration errors. Any of them is fatal at startup.
var (
	ErrMissingAPIKey    = errors.New("explorer api key is required")
	ErrMissingRPC       = errors.New("at least one rpc url is required")
	ErrInvalidFeedMode  = errors.New("feed mode must be websocket or polling")
	ErrInvalidStorage   = errors.New("storage must be memory, redis or postgres")
	ErrInvalidHolderSrc = errors.New("holder source must be explorer or indexer")
)

// Feed modes.
const (
	FeedWebsocket = "websocket"
	FeedPolling   = "polling"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Holder sources.
const (
	HolderSourceExplorer = "explorer"
	HolderSourceIndexer  = "indexer"
)

// Config is the process configuration.
type Config struct {
	Chain Chain

	RPCURLs        []string
	RPCTimeout     time.Duration
	WSURL          string
	ExplorerURL    string
	ExplorerAPIKey string
	PriceURL       string
	IndexerURL     string
	HolderSource   string
	Lockers        []string

	FeedMode      string
	PollInterval  time.Duration
	PollPageSize  int
	MaxReconnects int

	QueueDelay       time.Duration
	QueueConcurrency int
	CacheTTL         time.Duration
	MetadataTTL      time.Duration
	RetryAttempts    int
	RetryBaseDelay   time.Duration

	HolderDistribution bool

	Storage       string
	RedisURL      string
	RedisPassword string
	RedisDB       int
	PostgresDSN   string
	ClickhouseDSN string

	HTTPAddr  string
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. Defaults target BSC mainnet.
func Load() (Config, error) {
	chain := BSC

	var err error
	cfg := Config{
		Chain:          chain,
		RPCURLs:        splitList(getEnv("SCOUT_RPC_URLS", strings.Join(chain.DefaultRPCURLs, ","))),
		WSURL:          getEnv("SCOUT_WS_URL", chain.DefaultWSURL),
		ExplorerURL:    getEnv("SCOUT_EXPLORER_URL", chain.DefaultExplorer),
		ExplorerAPIKey: getEnv("SCOUT_EXPLORER_API_KEY", ""),
		PriceURL:       getEnv("SCOUT_PRICE_URL", "https://api.binance.com/api/v3/ticker/price"),
		IndexerURL:     getEnv("SCOUT_INDEXER_URL", ""),
		HolderSource:   getEnv("SCOUT_HOLDER_SOURCE", HolderSourceExplorer),
		Lockers:        splitList(getEnv("SCOUT_LOCKERS", strings.Join(chain.DefaultLockers, ","))),
		FeedMode:       getEnv("SCOUT_FEED_MODE", FeedWebsocket),
		Storage:        getEnv("SCOUT_STORAGE", StorageMemory),
		RedisURL:       getEnv("SCOUT_REDIS_URL", "localhost:6379"),
		RedisPassword:  getEnv("SCOUT_REDIS_PASSWORD", ""),
		PostgresDSN:    getEnv("SCOUT_POSTGRES_DSN", ""),
		ClickhouseDSN:  getEnv("SCOUT_CLICKHOUSE_DSN", ""),
		HTTPAddr:       getEnv("SCOUT_HTTP_ADDR", ":8080"),
		LogLevel:       getEnv("SCOUT_LOG_LEVEL", "info"),
		LogFormat:      getEnv("SCOUT_LOG_FORMAT", "json"),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"SCOUT_RPC_TIMEOUT", "15s", &cfg.RPCTimeout},
		{"SCOUT_POLL_INTERVAL", "3s", &cfg.PollInterval},
		{"SCOUT_QUEUE_DELAY", "2s", &cfg.QueueDelay},
		{"SCOUT_CACHE_TTL", "5m", &cfg.CacheTTL},
		{"SCOUT_METADATA_TTL", "5m", &cfg.MetadataTTL},
		{"SCOUT_RETRY_BASE_DELAY", "1s", &cfg.RetryBaseDelay},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.key, getEnv(d.key, d.def)); err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		key string
		def string
		dst *int
	}{
		{"SCOUT_POLL_PAGE_SIZE", "10", &cfg.PollPageSize},
		{"SCOUT_MAX_RECONNECTS", "5", &cfg.MaxReconnects},
		{"SCOUT_QUEUE_CONCURRENCY", "1", &cfg.QueueConcurrency},
		{"SCOUT_RETRY_ATTEMPTS", "3", &cfg.RetryAttempts},
		{"SCOUT_REDIS_DB", "0", &cfg.RedisDB},
	}
	for _, i := range ints {
		if *i.dst, err = atoi(i.key, getEnv(i.key, i.def)); err != nil {
			return Config{}, err
		}
	}

	cfg.HolderDistribution = getEnvBool("SCOUT_HOLDER_DISTRIBUTION", false)

	return cfg, nil
}

// Validate checks required settings.
func (c Config) Validate() error {
	if c.ExplorerAPIKey == "" {
		return ErrMissingAPIKey
	}
	if len(c.RPCURLs) == 0 {
		return ErrMissingRPC
	}
	switch c.FeedMode {
	case FeedWebsocket, FeedPolling:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFeedMode, c.FeedMode)
	}
	switch c.Storage {
	case StorageMemory, StorageRedis:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres storage requires SCOUT_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStorage, c.Storage)
	}
	switch c.HolderSource {
	case HolderSourceExplorer:
	case HolderSourceIndexer:
		if c.IndexerURL == "" {
			return errors.New("indexer holder source requires SCOUT_INDEXER_URL")
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidHolderSrc, c.HolderSource)
	}
	if c.QueueConcurrency < 1 {
		return errors.New("queue concurrency must be >= 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func atoi(key, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
