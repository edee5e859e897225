package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-token-scout/internal/config"
	"bsc-token-scout/internal/storage/memory"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("SCOUT_EXPLORER_API_KEY", "KEY")
	t.Setenv("SCOUT_FEED_MODE", config.FeedPolling)
	t.Setenv("SCOUT_STORAGE", config.StorageMemory)
	t.Setenv("SCOUT_CLICKHOUSE_DSN", "")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestOpenStores_Memory(t *testing.T) {
	stores, err := OpenStores(context.Background(), testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer stores.Close()

	assert.IsType(t, &memory.TokenStore{}, stores.Tokens)
	assert.IsType(t, &memory.CacheRepository{}, stores.Cache)
	assert.IsType(t, &memory.ScoreHistoryStore{}, stores.History)
}

func TestOpenStores_Unknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage = "sqlite"
	_, err := OpenStores(context.Background(), cfg, zerolog.Nop())
	assert.ErrorIs(t, err, config.ErrInvalidStorage)
}

func TestNew_PollingWiring(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	st, err := a.Service.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, config.FeedPolling, st.FeedMode)
	assert.Empty(t, st.Connection)
	assert.Zero(t, st.Tokens)

	ok, err := a.Service.QueueTokenAnalysis("0x1234567890abcdef1234567890abcdef12345678")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, a.Queue.Len())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.ExplorerAPIKey = ""
	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
}
