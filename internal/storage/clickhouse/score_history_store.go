package clickhouse

import (
	"context"
	"fmt"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/storage"
)

// ScoreHistoryStore implements storage.ScoreHistoryStore using ClickHouse.
type ScoreHistoryStore struct {
	conn *Conn
}

// NewScoreHistoryStore creates a new ScoreHistoryStore.
func NewScoreHistoryStore(conn *Conn) *ScoreHistoryStore {
	return &ScoreHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ScoreHistoryStore = (*ScoreHistoryStore)(nil)

// Append records one snapshot.
func (s *ScoreHistoryStore) Append(ctx context.Context, snap domain.ScoreSnapshot) error {
	if snap.Chain == "" || snap.Address == "" {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO score_history (
			chain, address, analyzed_at, security, liquidity, community, total,
			liquidity_usd, market_cap, price, holder_count
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		snap.Chain, domain.CanonicalAddress(snap.Address), uint64(snap.AnalyzedAt),
		snap.Security, snap.Liquidity, snap.Community, snap.Total,
		snap.LiquidityUSD, snap.MarketCap, snap.Price, uint32(snap.HolderCount),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByAddress returns a token's snapshots ordered by analyzed_at ASC.
func (s *ScoreHistoryStore) GetByAddress(ctx context.Context, chain, address string) ([]domain.ScoreSnapshot, error) {
	query := `
		SELECT chain, address, analyzed_at, security, liquidity, community, total,
			liquidity_usd, market_cap, price, holder_count
		FROM score_history
		WHERE chain = ? AND address = ?
		ORDER BY analyzed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, chain, domain.CanonicalAddress(address))
	if err != nil {
		return nil, fmt.Errorf("query score history: %w", err)
	}
	defer rows.Close()

	return scanScoreHistory(rows)
}

func scanScoreHistory(rows chRows) ([]domain.ScoreSnapshot, error) {
	snaps := []domain.ScoreSnapshot{}

	for rows.Next() {
		var (
			sn          domain.ScoreSnapshot
			analyzedAt  uint64
			holderCount uint32
		)
		err := rows.Scan(
			&sn.Chain, &sn.Address, &analyzedAt,
			&sn.Security, &sn.Liquidity, &sn.Community, &sn.Total,
			&sn.LiquidityUSD, &sn.MarketCap, &sn.Price, &holderCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan score history row: %w", err)
		}
		sn.AnalyzedAt = int64(analyzedAt)
		sn.HolderCount = int(holderCount)
		snaps = append(snaps, sn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score history rows: %w", err)
	}
	return snaps, nil
}
