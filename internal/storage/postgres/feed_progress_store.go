package postgres

import (
	"context"

	"bsc-token-scout/internal/storage"
)

// FeedProgressStore is a PostgreSQL implementation of storage.FeedProgressStore.
// Uses two tables:
//   - feed_progress: single row with (block_number, tx_hash)
//   - feed_seen_txs: set of processed pair-creation tx hashes
type FeedProgressStore struct {
	pool *Pool
}

// NewFeedProgressStore creates a new PostgreSQL feed progress store.
func NewFeedProgressStore(pool *Pool) *FeedProgressStore {
	return &FeedProgressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeedProgressStore = (*FeedProgressStore)(nil)

// GetLastProcessed returns the last processed block and tx hash.
func (s *FeedProgressStore) GetLastProcessed(ctx context.Context) (*storage.FeedProgress, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT block_number, tx_hash
		FROM feed_progress
		WHERE id = 1
	`)

	var (
		progress storage.FeedProgress
		block    int64
	)
	err := row.Scan(&block, &progress.TxHash)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	progress.BlockNumber = uint64(block)

	return &progress, nil
}

// SetLastProcessed saves the last processed block and tx hash.
// Uses upsert to handle initial insert and subsequent updates.
func (s *FeedProgressStore) SetLastProcessed(ctx context.Context, progress *storage.FeedProgress) error {
	if progress == nil {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_progress (id, block_number, tx_hash, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET block_number = EXCLUDED.block_number,
		    tx_hash = EXCLUDED.tx_hash,
		    updated_at = NOW()
	`, int64(progress.BlockNumber), progress.TxHash)

	return err
}

// IsTxSeen checks if a transaction has been processed.
func (s *FeedProgressStore) IsTxSeen(ctx context.Context, txHash string) (bool, error) {
	if txHash == "" {
		return false, storage.ErrInvalidInput
	}

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM feed_seen_txs WHERE tx_hash = $1)
	`, txHash).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// MarkTxSeen records that a transaction has been processed.
func (s *FeedProgressStore) MarkTxSeen(ctx context.Context, txHash string) error {
	if txHash == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_seen_txs (tx_hash, seen_at)
		VALUES ($1, NOW())
		ON CONFLICT (tx_hash) DO NOTHING
	`, txHash)

	return err
}

// LoadSeenTxs returns all seen tx hashes.
func (s *FeedProgressStore) LoadSeenTxs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash FROM feed_seen_txs
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []string
	for rows.Next() {
		var tx string
		if err := rows.Scan(&tx); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}
