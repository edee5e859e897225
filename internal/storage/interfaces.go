package storage

import (
	"context"

	"bsc-token-scout/internal/domain"
)

// TokenStore is the de-duplicated token collection. Addresses are matched in
// canonical lowercase form.
type TokenStore interface {
	// Upsert inserts t or merges it into the existing record with the same
	// (chain, address). Returns true if a new record was created.
	Upsert(ctx context.Context, t *domain.Token) (bool, error)

	// GetByAddress retrieves a token. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, chain, address string) (*domain.Token, error)

	// LoadAll returns every token, most recently created first.
	LoadAll(ctx context.Context) ([]*domain.Token, error)

	// Count returns the number of stored tokens.
	Count(ctx context.Context) (int, error)
}

// AnalysisCacheRepository persists the analysis cache as a whole map keyed by
// canonical address.
type AnalysisCacheRepository interface {
	// Load returns the persisted cache. A missing cache is an empty map.
	Load(ctx context.Context) (map[string]domain.CacheEntry, error)

	// Save replaces the persisted cache.
	Save(ctx context.Context, entries map[string]domain.CacheEntry) error
}

// ScoreHistoryStore is an append-only log of score snapshots.
type ScoreHistoryStore interface {
	// Append records one snapshot.
	Append(ctx context.Context, s domain.ScoreSnapshot) error

	// GetByAddress returns a token's snapshots ordered by AnalyzedAt ASC.
	GetByAddress(ctx context.Context, chain, address string) ([]domain.ScoreSnapshot, error)
}
