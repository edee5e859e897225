package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-token-scout/internal/storage"
)

const pairTx = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

func TestFeedProgressStore_Cursor(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFeedProgressStore(pool)

	_, err := store.GetLastProcessed(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SetLastProcessed(ctx, &storage.FeedProgress{BlockNumber: 38_000_000, TxHash: pairTx}))
	require.NoError(t, store.SetLastProcessed(ctx, &storage.FeedProgress{BlockNumber: 38_000_042, TxHash: "0xnext"}))

	got, err := store.GetLastProcessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(38_000_042), got.BlockNumber)
	assert.Equal(t, "0xnext", got.TxHash)

	assert.ErrorIs(t, store.SetLastProcessed(ctx, nil), storage.ErrInvalidInput)
}

func TestFeedProgressStore_SeenTxs(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFeedProgressStore(pool)

	seen, err := store.IsTxSeen(ctx, pairTx)
	require.NoError(t, err)
	assert.False(t, seen)

	// Marking twice is a no-op.
	require.NoError(t, store.MarkTxSeen(ctx, pairTx))
	require.NoError(t, store.MarkTxSeen(ctx, pairTx))

	seen, err = store.IsTxSeen(ctx, pairTx)
	require.NoError(t, err)
	assert.True(t, seen)

	for i := 0; i < 50; i++ {
		require.NoError(t, store.MarkTxSeen(ctx, fmt.Sprintf("0x%064x", i)))
	}
	txs, err := store.LoadSeenTxs(ctx)
	require.NoError(t, err)
	assert.Len(t, txs, 51)
	assert.Contains(t, txs, pairTx)

	_, err = store.IsTxSeen(ctx, "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	assert.ErrorIs(t, store.MarkTxSeen(ctx, ""), storage.ErrInvalidInput)
}
