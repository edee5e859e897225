package memory

import (
	"context"
	"sync"
	"time"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu     sync.RWMutex
	tokens []*domain.Token // insertion order, oldest first
	index  map[string]int  // chain|address -> position in tokens
	now    func() time.Time
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		index: make(map[string]int),
		now:   time.Now,
	}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

func tokenKey(chain, address string) string {
	return chain + "|" + domain.CanonicalAddress(address)
}

// Upsert inserts or merges a token.
func (s *TokenStore) Upsert(_ context.Context, t *domain.Token) (bool, error) {
	if err := storage.ValidateToken(t); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := s.now().UnixMilli()
	key := tokenKey(t.Chain, t.Address)
	if i, ok := s.index[key]; ok {
		s.tokens[i] = storage.MergeToken(s.tokens[i], t, nowMs)
		return false, nil
	}

	s.index[key] = len(s.tokens)
	s.tokens = append(s.tokens, storage.MergeToken(nil, t, nowMs))
	return true, nil
}

// GetByAddress retrieves a token. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(_ context.Context, chain, address string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[tokenKey(chain, address)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.tokens[i].Clone(), nil
}

// LoadAll returns every token, most recently created first.
func (s *TokenStore) LoadAll(_ context.Context) ([]*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.tokens)
	result := make([]*domain.Token, n)
	for i, t := range s.tokens {
		result[n-1-i] = t.Clone()
	}
	return result, nil
}

// Count returns the number of stored tokens.
func (s *TokenStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens), nil
}
