package memory

import (
	"context"
	"sync"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/storage"
)

// CacheRepository is an in-memory implementation of storage.AnalysisCacheRepository.
type CacheRepository struct {
	mu      sync.RWMutex
	entries map[string]domain.CacheEntry
	saves   int
}

// NewCacheRepository creates a new in-memory cache repository.
func NewCacheRepository() *CacheRepository {
	return &CacheRepository{entries: make(map[string]domain.CacheEntry)}
}

// Compile-time interface check.
var _ storage.AnalysisCacheRepository = (*CacheRepository)(nil)

// Load returns a copy of the saved cache.
func (r *CacheRepository) Load(_ context.Context) (map[string]domain.CacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyEntries(r.entries), nil
}

// Save replaces the saved cache.
func (r *CacheRepository) Save(_ context.Context, entries map[string]domain.CacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = copyEntries(entries)
	r.saves++
	return nil
}

// Saves returns how many times Save was called.
func (r *CacheRepository) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}

func copyEntries(in map[string]domain.CacheEntry) map[string]domain.CacheEntry {
	out := make(map[string]domain.CacheEntry, len(in))
	for k, v := range in {
		out[k] = domain.CacheEntry{Timestamp: v.Timestamp, Analysis: *v.Analysis.Clone()}
	}
	return out
}
