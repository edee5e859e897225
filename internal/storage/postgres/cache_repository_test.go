package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-token-scout/internal/domain"
)

func TestCacheRepository_SaveReplacesAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewCacheRepository(pool)

	empty, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	first := map[string]domain.CacheEntry{
		"0x1111111111111111111111111111111111111111": {Timestamp: 1000, Analysis: domain.Analysis{LiquidityUSD: 1, Price: "0"}},
		"0x2222222222222222222222222222222222222222": {Timestamp: 2000, Analysis: domain.Analysis{LiquidityUSD: 2, Price: "0"}},
	}
	require.NoError(t, repo.Save(ctx, first))

	second := map[string]domain.CacheEntry{
		"0x2222222222222222222222222222222222222222": {Timestamp: 3000, Analysis: domain.Analysis{LiquidityUSD: 3, Price: "1.5"}},
	}
	require.NoError(t, repo.Save(ctx, second))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}
