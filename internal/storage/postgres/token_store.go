package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/storage"
)

// TokenStore is a PostgreSQL implementation of storage.TokenStore.
// Analysis and Score are stored as JSONB in the tokens table.
type TokenStore struct {
	pool *Pool
	now  func() time.Time
}

// NewTokenStore creates a new PostgreSQL token store.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool, now: time.Now}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

const tokenColumns = `chain, address, name, symbol, decimals, total_supply, created_at, updated_at, analysis, score`

// Upsert merges t into the existing row under a row lock.
func (s *TokenStore) Upsert(ctx context.Context, t *domain.Token) (bool, error) {
	if err := storage.ValidateToken(t); err != nil {
		return false, err
	}
	address := domain.CanonicalAddress(t.Address)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := scanToken(tx.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE chain = $1 AND address = $2
		FOR UPDATE
	`, t.Chain, address))
	if err != nil && !isNotFoundError(err) {
		return false, fmt.Errorf("select token: %w", err)
	}

	merged := storage.MergeToken(existing, t, s.now().UnixMilli())
	analysis, score, err := marshalAnalysis(merged)
	if err != nil {
		return false, err
	}
	var scoreTotal *float64
	if merged.Score != nil {
		scoreTotal = &merged.Score.Total
	}

	var created bool
	err = tx.QueryRow(ctx, `
		INSERT INTO tokens (
			chain, address, name, symbol, decimals, total_supply,
			created_at, updated_at, analysis, score, score_total
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (chain, address) DO UPDATE
		SET name = EXCLUDED.name,
		    symbol = EXCLUDED.symbol,
		    decimals = EXCLUDED.decimals,
		    total_supply = EXCLUDED.total_supply,
		    updated_at = EXCLUDED.updated_at,
		    analysis = COALESCE(EXCLUDED.analysis, tokens.analysis),
		    score = COALESCE(EXCLUDED.score, tokens.score),
		    score_total = COALESCE(EXCLUDED.score_total, tokens.score_total)
		RETURNING (xmax = 0)
	`,
		merged.Chain, merged.Address, merged.Name, merged.Symbol, int16(merged.Decimals), merged.TotalSupply,
		merged.CreatedAt, merged.UpdatedAt, analysis, score, scoreTotal,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// GetByAddress retrieves a token. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(ctx context.Context, chain, address string) (*domain.Token, error) {
	t, err := scanToken(s.pool.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE chain = $1 AND address = $2
	`, chain, domain.CanonicalAddress(address)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// LoadAll returns every token, most recently created first.
func (s *TokenStore) LoadAll(ctx context.Context) ([]*domain.Token, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		ORDER BY created_at DESC, address ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// Count returns the number of stored tokens.
func (s *TokenStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tokens`).Scan(&n)
	return n, err
}

func scanToken(row pgx.Row) (*domain.Token, error) {
	var (
		t        domain.Token
		decimals int16
		analysis []byte
		score    []byte
	)
	err := row.Scan(
		&t.Chain, &t.Address, &t.Name, &t.Symbol, &decimals, &t.TotalSupply,
		&t.CreatedAt, &t.UpdatedAt, &analysis, &score,
	)
	if err != nil {
		return nil, err
	}
	t.Decimals = uint8(decimals)

	if analysis != nil {
		t.Analysis = &domain.Analysis{}
		if err := json.Unmarshal(analysis, t.Analysis); err != nil {
			return nil, fmt.Errorf("unmarshal analysis: %w", err)
		}
	}
	if score != nil {
		t.Score = &domain.Score{}
		if err := json.Unmarshal(score, t.Score); err != nil {
			return nil, fmt.Errorf("unmarshal score: %w", err)
		}
	}
	return &t, nil
}

func marshalAnalysis(t *domain.Token) (analysis, score []byte, err error) {
	if t.Analysis != nil {
		if analysis, err = json.Marshal(t.Analysis); err != nil {
			return nil, nil, fmt.Errorf("marshal analysis: %w", err)
		}
	}
	if t.Score != nil {
		if score, err = json.Marshal(t.Score); err != nil {
			return nil, nil, fmt.Errorf("marshal score: %w", err)
		}
	}
	return analysis, score, nil
}
