package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/storage"
)

// CacheRepository implements storage.AnalysisCacheRepository as one JSON
// object mapping address to {timestamp, data}.
type CacheRepository struct {
	cli *goredis.Client
	key string
}

// NewCacheRepository creates a repository under key. An empty key uses
// DefaultCacheKey.
func NewCacheRepository(cli *goredis.Client, key string) *CacheRepository {
	if key == "" {
		key = DefaultCacheKey
	}
	return &CacheRepository{cli: cli, key: key}
}

// Compile-time interface check.
var _ storage.AnalysisCacheRepository = (*CacheRepository)(nil)

// Load returns the persisted cache; a missing key is an empty map.
func (r *CacheRepository) Load(ctx context.Context) (map[string]domain.CacheEntry, error) {
	data, err := r.cli.Get(ctx, r.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return map[string]domain.CacheEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r.key, err)
	}

	entries := map[string]domain.CacheEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.key, err)
	}
	return entries, nil
}

// Save replaces the persisted cache.
func (r *CacheRepository) Save(ctx context.Context, entries map[string]domain.CacheEntry) error {
	if entries == nil {
		entries = map[string]domain.CacheEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	if err := r.cli.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", r.key, err)
	}
	return nil
}
