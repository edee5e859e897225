package memory

import (
	"context"
	"sync"

	"bsc-token-scout/internal/storage"
)

// FeedProgressStore is an in-memory implementation of storage.FeedProgressStore.
type FeedProgressStore struct {
	mu       sync.RWMutex
	progress *storage.FeedProgress
	seenTxs  map[string]bool
}

// NewFeedProgressStore creates a new in-memory feed progress store.
func NewFeedProgressStore() *FeedProgressStore {
	return &FeedProgressStore{
		seenTxs: make(map[string]bool),
	}
}

// Compile-time interface check.
var _ storage.FeedProgressStore = (*FeedProgressStore)(nil)

// GetLastProcessed returns the last processed block and tx hash.
func (s *FeedProgressStore) GetLastProcessed(_ context.Context) (*storage.FeedProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.progress == nil {
		return nil, storage.ErrNotFound
	}

	p := *s.progress
	return &p, nil
}

// SetLastProcessed saves the last processed block and tx hash.
func (s *FeedProgressStore) SetLastProcessed(_ context.Context, progress *storage.FeedProgress) error {
	if progress == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := *progress
	s.progress = &p
	return nil
}

// IsTxSeen checks if a transaction has been processed.
func (s *FeedProgressStore) IsTxSeen(_ context.Context, txHash string) (bool, error) {
	if txHash == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.seenTxs[txHash], nil
}

// MarkTxSeen records that a transaction has been processed.
func (s *FeedProgressStore) MarkTxSeen(_ context.Context, txHash string) error {
	if txHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seenTxs[txHash] = true
	return nil
}

// LoadSeenTxs returns all seen tx hashes.
func (s *FeedProgressStore) LoadSeenTxs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]string, 0, len(s.seenTxs))
	for tx := range s.seenTxs {
		txs = append(txs, tx)
	}
	return txs, nil
}
