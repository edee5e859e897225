package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/storage"
)

// CacheRepository is a PostgreSQL implementation of storage.AnalysisCacheRepository.
type CacheRepository struct {
	pool *Pool
}

// NewCacheRepository creates a new PostgreSQL cache repository.
func NewCacheRepository(pool *Pool) *CacheRepository {
	return &CacheRepository{pool: pool}
}

// Compile-time interface check.
var _ storage.AnalysisCacheRepository = (*CacheRepository)(nil)

// Load returns the persisted cache.
func (r *CacheRepository) Load(ctx context.Context) (map[string]domain.CacheEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT address, cached_at, analysis FROM analysis_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make(map[string]domain.CacheEntry)
	for rows.Next() {
		var (
			address string
			entry   domain.CacheEntry
			data    []byte
		)
		if err := rows.Scan(&address, &entry.Timestamp, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &entry.Analysis); err != nil {
			return nil, fmt.Errorf("unmarshal cached analysis %s: %w", address, err)
		}
		entries[address] = entry
	}
	return entries, rows.Err()
}

// Save replaces the persisted cache in one transaction.
func (r *CacheRepository) Save(ctx context.Context, entries map[string]domain.CacheEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM analysis_cache`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	for address, entry := range entries {
		data, err := json.Marshal(entry.Analysis)
		if err != nil {
			return fmt.Errorf("marshal cached analysis %s: %w", address, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO analysis_cache (address, cached_at, analysis)
			VALUES ($1, $2, $3)
		`, domain.CanonicalAddress(address), entry.Timestamp, data)
		if err != nil {
			return fmt.Errorf("insert cached analysis %s: %w", address, err)
		}
	}

	return tx.Commit(ctx)
}
