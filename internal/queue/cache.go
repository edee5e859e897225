package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/storage"
)

// DefaultCacheTTL is how long a completed analysis stays fresh.
const DefaultCacheTTL = 5 * time.Minute

// Cache holds the latest analysis per address. Every Put is persisted
// best-effort through the repository; a failed save is logged and the
// in-memory entry stays authoritative.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]domain.CacheEntry
	ttl     time.Duration
	repo    storage.AnalysisCacheRepository
	saveMu  sync.Mutex
	log     zerolog.Logger
}

// NewCache creates an empty cache. repo may be nil.
func NewCache(repo storage.AnalysisCacheRepository, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries: make(map[string]domain.CacheEntry),
		ttl:     ttl,
		repo:    repo,
		log:     logger.With().Str("component", "analysis_cache").Logger(),
	}
}

// Load replaces the in-memory entries with the persisted cache.
func (c *Cache) Load(ctx context.Context) error {
	if c.repo == nil {
		return nil
	}
	entries, err := c.repo.Load(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]domain.CacheEntry, len(entries))
	for addr, e := range entries {
		c.entries[domain.CanonicalAddress(addr)] = e
	}
	return nil
}

// Fresh returns the cached analysis if it is younger than the TTL at now.
func (c *Cache) Fresh(address string, now time.Time) (*domain.Analysis, bool) {
	c.mu.RLock()
	e, ok := c.entries[domain.CanonicalAddress(address)]
	c.mu.RUnlock()
	if !ok || now.UnixMilli()-e.Timestamp >= c.ttl.Milliseconds() {
		return nil, false
	}
	return e.Analysis.Clone(), true
}

// TTL returns how long an entry stays fresh.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Put stores an analysis taken at now and persists the cache.
func (c *Cache) Put(ctx context.Context, address string, a *domain.Analysis, now time.Time) {
	if a == nil {
		return
	}
	c.mu.Lock()
	c.entries[domain.CanonicalAddress(address)] = domain.CacheEntry{
		Timestamp: now.UnixMilli(),
		Analysis:  *a.Clone(),
	}
	c.mu.Unlock()

	c.persist(ctx)
}

// Snapshot returns a deep copy of every entry.
func (c *Cache) Snapshot() map[string]domain.CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.CacheEntry, len(c.entries))
	for k, v := range c.entries {
		out[k] = domain.CacheEntry{Timestamp: v.Timestamp, Analysis: *v.Analysis.Clone()}
	}
	return out
}

// Len returns the number of entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) persist(ctx context.Context) {
	if c.repo == nil {
		return
	}
	// Saves are serialized so an older snapshot never overwrites a newer one.
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if err := c.repo.Save(ctx, c.Snapshot()); err != nil {
		c.log.Warn().Err(err).Msg("persist analysis cache")
	}
}
