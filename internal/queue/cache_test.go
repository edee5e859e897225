package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/storage/memory"
)

type failingRepo struct{}

func (failingRepo) Load(context.Context) (map[string]domain.CacheEntry, error) {
	return nil, errors.New("unavailable")
}

func (failingRepo) Save(context.Context, map[string]domain.CacheEntry) error {
	return errors.New("unavailable")
}

func TestCache_TTL(t *testing.T) {
	c := NewCache(nil, time.Minute, zerolog.Nop())
	t0 := time.UnixMilli(1_000_000)

	_, ok := c.Fresh(addrA, t0)
	assert.False(t, ok)

	c.Put(context.Background(), addrA, &domain.Analysis{LiquidityUSD: 1}, t0)

	got, ok := c.Fresh("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", t0.Add(59*time.Second))
	require.True(t, ok)
	assert.Equal(t, 1.0, got.LiquidityUSD)

	_, ok = c.Fresh(addrA, t0.Add(time.Minute))
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := NewCache(nil, 0, zerolog.Nop())
	now := time.Now()
	c.Put(context.Background(), addrA, &domain.Analysis{Holders: []domain.Holder{{Address: "0x1"}}}, now)

	got, _ := c.Fresh(addrA, now)
	got.Holders[0].Address = "mutated"

	again, _ := c.Fresh(addrA, now)
	assert.Equal(t, "0x1", again.Holders[0].Address)
	assert.Equal(t, "0x1", c.Snapshot()[addrA].Analysis.Holders[0].Address)
}

func TestCache_LoadAndPersist(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCacheRepository()
	require.NoError(t, repo.Save(ctx, map[string]domain.CacheEntry{
		"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA": {Timestamp: 1000, Analysis: domain.Analysis{Price: "1"}},
	}))

	c := NewCache(repo, time.Minute, zerolog.Nop())
	require.NoError(t, c.Load(ctx))
	_, ok := c.Fresh(addrA, time.UnixMilli(2000))
	assert.True(t, ok)

	c.Put(ctx, addrB, &domain.Analysis{Price: "2"}, time.UnixMilli(3000))
	saved, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, saved, 2)
	assert.Equal(t, "2", saved[addrB].Analysis.Price)
}

func TestCache_PersistFailureKeepsMemory(t *testing.T) {
	c := NewCache(failingRepo{}, time.Minute, zerolog.Nop())
	assert.Error(t, c.Load(context.Background()))

	now := time.Now()
	c.Put(context.Background(), addrA, &domain.Analysis{}, now)
	_, ok := c.Fresh(addrA, now)
	assert.True(t, ok)
}
