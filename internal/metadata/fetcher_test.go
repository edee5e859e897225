package metadata

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-token-scout/internal/evm"
	"bsc-token-scout/internal/evm/stub"
)

const (
	factory   = "0xca143ce32fe78f1f7019d7d551a6402fc5350c73"
	multicall = "0xca11bde05977b3631167028862be2a173976ca11"
	tokenAddr = "0x1111111111111111111111111111111111111111"
)

func newChain() *stub.Chain {
	chain := stub.NewChain(factory, multicall)
	chain.AddToken(tokenAddr, &stub.Token{
		Name: "Foo", Symbol: "FOO", Decimals: 9,
		TotalSupply: big.NewInt(1_000_000_000),
	})
	return chain
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newFetcher(chain *stub.Chain, clk *clock) *Fetcher {
	opts := Options{}
	if clk != nil {
		opts.Now = clk.Now
	}
	return NewFetcher(evm.NewContracts(chain, factory, multicall), opts)
}

func TestFetch_Multicall(t *testing.T) {
	chain := newChain()
	f := newFetcher(chain, nil)

	m, err := f.Fetch(context.Background(), "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, "Foo", m.Name)
	assert.Equal(t, "FOO", m.Symbol)
	assert.Equal(t, 9, m.Decimals)
	assert.Equal(t, "1000000000", m.TotalSupply)
	assert.True(t, m.IsValid())
	assert.Equal(t, 1, chain.Calls("aggregate3"))
}

func TestFetch_MulticallFailureFallsBack(t *testing.T) {
	chain := newChain()
	chain.MulticallErr = errors.New("multicall unavailable")
	f := newFetcher(chain, nil)

	m, err := f.Fetch(context.Background(), tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, "Foo", m.Name)
	assert.Equal(t, "1000000000", m.TotalSupply)
	assert.Equal(t, 1, chain.Calls("name"))
	assert.Equal(t, 1, chain.Calls("totalSupply"))
}

func TestFetch_TotalSupplyFailureDefaultsToZero(t *testing.T) {
	chain := newChain()
	chain.Tokens[common.HexToAddress(tokenAddr)].Revert = map[string]bool{"totalSupply": true}
	f := newFetcher(chain, nil)

	m, err := f.Fetch(context.Background(), tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, "0", m.TotalSupply)
	assert.True(t, m.IsValid())
}

func TestFetch_NotAToken(t *testing.T) {
	chain := newChain()
	chain.Tokens[common.HexToAddress(tokenAddr)].Revert = map[string]bool{"symbol": true}
	f := newFetcher(chain, nil)

	_, err := f.Fetch(context.Background(), tokenAddr)
	assert.ErrorIs(t, err, ErrNotAToken)

	// no code at all
	_, err = f.Fetch(context.Background(), "0x9999999999999999999999999999999999999999")
	assert.ErrorIs(t, err, ErrNotAToken)
}

func TestFetch_DecimalsOutOfRange(t *testing.T) {
	chain := newChain()
	chain.Tokens[common.HexToAddress(tokenAddr)].Decimals = 24
	f := newFetcher(chain, nil)

	_, err := f.Fetch(context.Background(), tokenAddr)
	assert.ErrorIs(t, err, ErrNotAToken)
}

func TestFetch_InvalidAddress(t *testing.T) {
	f := newFetcher(newChain(), nil)
	_, err := f.Fetch(context.Background(), "0x123")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestFetch_CacheTTL(t *testing.T) {
	chain := newChain()
	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
	f := newFetcher(chain, clk)
	ctx := context.Background()

	_, err := f.Fetch(ctx, tokenAddr)
	require.NoError(t, err)
	_, err = f.Fetch(ctx, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, 1, chain.Calls("aggregate3"), "second read served from cache")

	clk.Advance(DefaultTTL)
	_, err = f.Fetch(ctx, tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, 2, chain.Calls("aggregate3"), "expired entry refetched")
}

func TestFetch_ReturnsCopies(t *testing.T) {
	f := newFetcher(newChain(), nil)
	m, err := f.Fetch(context.Background(), tokenAddr)
	require.NoError(t, err)
	m.Name = "changed"

	again, err := f.Fetch(context.Background(), tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, "Foo", again.Name)
}

func TestFetch_Concurrent(t *testing.T) {
	chain := newChain()
	f := newFetcher(chain, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := f.Fetch(context.Background(), tokenAddr)
			assert.NoError(t, err)
			assert.Equal(t, "FOO", m.Symbol)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, chain.Calls("aggregate3"), 16)
	assert.GreaterOrEqual(t, chain.Calls("aggregate3"), 1)
}
