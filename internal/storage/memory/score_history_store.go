package memory

import (
	"context"
	"sort"
	"sync"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/storage"
)

// ScoreHistoryStore is an in-memory implementation of storage.ScoreHistoryStore.
type ScoreHistoryStore struct {
	mu      sync.RWMutex
	history map[string][]domain.ScoreSnapshot // keyed by chain|address
}

// NewScoreHistoryStore creates a new in-memory score history store.
func NewScoreHistoryStore() *ScoreHistoryStore {
	return &ScoreHistoryStore{history: make(map[string][]domain.ScoreSnapshot)}
}

// Compile-time interface check.
var _ storage.ScoreHistoryStore = (*ScoreHistoryStore)(nil)

// Append records one snapshot.
func (s *ScoreHistoryStore) Append(_ context.Context, snap domain.ScoreSnapshot) error {
	if snap.Chain == "" || snap.Address == "" {
		return storage.ErrInvalidInput
	}
	snap.Address = domain.CanonicalAddress(snap.Address)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := tokenKey(snap.Chain, snap.Address)
	s.history[key] = append(s.history[key], snap)
	return nil
}

// GetByAddress returns snapshots ordered by AnalyzedAt ASC.
func (s *ScoreHistoryStore) GetByAddress(_ context.Context, chain, address string) ([]domain.ScoreSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.history[tokenKey(chain, address)]
	result := make([]domain.ScoreSnapshot, len(src))
	copy(result, src)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].AnalyzedAt < result[j].AnalyzedAt
	})
	return result, nil
}
