package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/storage"
)

// TokenStore implements storage.TokenStore over a single key holding the
// whole collection as a JSON array, newest first. Writes are read-modify-write
// inside WATCH/MULTI.
type TokenStore struct {
	cli *goredis.Client
	key string
	now func() time.Time
}

// NewTokenStore creates a store under key. An empty key uses DefaultTokensKey.
func NewTokenStore(cli *goredis.Client, key string) *TokenStore {
	if key == "" {
		key = DefaultTokensKey
	}
	return &TokenStore{cli: cli, key: key, now: time.Now}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Upsert inserts or merges a token.
func (s *TokenStore) Upsert(ctx context.Context, t *domain.Token) (bool, error) {
	if err := storage.ValidateToken(t); err != nil {
		return false, err
	}

	var created bool
	txf := func(tx *goredis.Tx) error {
		tokens, err := s.read(ctx, tx)
		if err != nil {
			return err
		}

		addr := domain.CanonicalAddress(t.Address)
		idx := -1
		for i, existing := range tokens {
			if existing.Chain == t.Chain && existing.Address == addr {
				idx = i
				break
			}
		}

		nowMs := s.now().UnixMilli()
		if idx >= 0 {
			tokens[idx] = storage.MergeToken(tokens[idx], t, nowMs)
			created = false
		} else {
			tokens = append([]*domain.Token{storage.MergeToken(nil, t, nowMs)}, tokens...)
			created = true
		}

		data, err := json.Marshal(tokens)
		if err != nil {
			return fmt.Errorf("marshal tokens: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, s.key, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.cli.Watch(ctx, txf, s.key)
		if err == nil {
			return created, nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return false, fmt.Errorf("upsert token: %w", err)
	}
	return false, fmt.Errorf("upsert token: %w", storage.ErrConflict)
}

// GetByAddress retrieves a token by canonical address.
func (s *TokenStore) GetByAddress(ctx context.Context, chain, address string) (*domain.Token, error) {
	tokens, err := s.read(ctx, s.cli)
	if err != nil {
		return nil, err
	}
	addr := domain.CanonicalAddress(address)
	for _, t := range tokens {
		if t.Chain == chain && t.Address == addr {
			return t, nil
		}
	}
	return nil, storage.ErrNotFound
}

// LoadAll returns the collection, newest first.
func (s *TokenStore) LoadAll(ctx context.Context) ([]*domain.Token, error) {
	return s.read(ctx, s.cli)
}

// Count returns the collection size.
func (s *TokenStore) Count(ctx context.Context) (int, error) {
	tokens, err := s.read(ctx, s.cli)
	if err != nil {
		return 0, err
	}
	return len(tokens), nil
}

// getter is satisfied by both *goredis.Client and *goredis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func (s *TokenStore) read(ctx context.Context, cmd getter) ([]*domain.Token, error) {
	data, err := cmd.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return []*domain.Token{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.key, err)
	}

	tokens := []*domain.Token{}
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	for _, t := range tokens {
		t.Address = domain.CanonicalAddress(t.Address)
	}
	return tokens, nil
}
