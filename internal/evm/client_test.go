package evm_test

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-token-scout/internal/evm"
	"bsc-token-scout/internal/evm/stub"
	"bsc-token-scout/internal/retry"
)

const (
	factory   = "0xca143ce32fe78f1f7019d7d551a6402fc5350c73"
	multicall = "0xca11bde05977b3631167028862be2a173976ca11"
	wbnb      = "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c"
	tokenAddr = "0x1111111111111111111111111111111111111111"
	pairAddr  = "0x2222222222222222222222222222222222222222"
)

func fastPolicy() retry.Policy {
	return retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newStubChain() *stub.Chain {
	chain := stub.NewChain(factory, multicall)
	chain.AddToken(tokenAddr, &stub.Token{
		Name: "Foo", Symbol: "FOO", Decimals: 18,
		TotalSupply: new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18)),
	})
	chain.AddPair(pairAddr, &stub.Pair{
		Token0:   common.HexToAddress(wbnb),
		Token1:   common.HexToAddress(tokenAddr),
		Reserve0: big.NewInt(5e18),
		Reserve1: big.NewInt(1e18),
	})
	return chain
}

func TestContracts_Reads(t *testing.T) {
	chain := newStubChain()
	c := evm.NewContracts(chain, factory, multicall)
	ctx := context.Background()
	token := common.HexToAddress(tokenAddr)

	name, err := c.Name(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "Foo", name)

	dec, err := c.Decimals(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), dec)

	supply, err := c.TotalSupply(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000", supply.String())

	pair, err := c.GetPair(ctx, token, common.HexToAddress(wbnb))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(pairAddr), pair)

	none, err := c.GetPair(ctx, common.HexToAddress("0x9999999999999999999999999999999999999999"), common.HexToAddress(wbnb))
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, none)

	res, err := c.GetReserves(ctx, pair)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5e18), res.Reserve0)
	assert.Equal(t, big.NewInt(1e18), res.Reserve1)

	t0, err := c.Token0(ctx, pair)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(wbnb), t0)
}

func TestContracts_NoCodeIsEmptyResult(t *testing.T) {
	c := evm.NewContracts(newStubChain(), factory, multicall)
	_, err := c.Name(context.Background(), common.HexToAddress("0x9999999999999999999999999999999999999999"))
	assert.ErrorIs(t, err, evm.ErrEmptyResult)
}

func TestContracts_Aggregate3(t *testing.T) {
	chain := newStubChain()
	chain.Tokens[common.HexToAddress(tokenAddr)].Revert = map[string]bool{"totalSupply": true}
	c := evm.NewContracts(chain, factory, multicall)

	token := common.HexToAddress(tokenAddr)
	calls := []evm.Call3{
		{Target: token, AllowFailure: true, CallData: evm.Calldata(evm.ERC20ABI, "symbol")},
		{Target: token, AllowFailure: true, CallData: evm.Calldata(evm.ERC20ABI, "totalSupply")},
	}
	results, err := c.Aggregate3(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Success)
	vals, err := evm.Unpack(evm.ERC20ABI, "symbol", results[0].ReturnData)
	require.NoError(t, err)
	assert.Equal(t, "FOO", vals[0])

	assert.False(t, results[1].Success)
}

// flakyClient fails the first n calls with err, then delegates.
type flakyClient struct {
	*stub.Chain
	mu    sync.Mutex
	fails int
	err   error
}

func (f *flakyClient) next() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return f.err
	}
	return nil
}

func (f *flakyClient) BlockNumber(ctx context.Context) (uint64, error) {
	if err := f.next(); err != nil {
		return 0, err
	}
	return f.Chain.BlockNumber(ctx)
}

func TestPool_RotatesAndRetries(t *testing.T) {
	chains := map[string]*flakyClient{
		"a": {Chain: newStubChain(), fails: 10, err: errors.New("429 too many requests")},
		"b": {Chain: newStubChain()},
	}
	chains["b"].BlockNumberValue = 77

	var dialed []string
	pool, err := evm.NewPool([]string{"a", "b"},
		evm.WithRetryPolicy(fastPolicy()),
		evm.WithClientFactory(func(_ context.Context, url string) (evm.EthClient, error) {
			dialed = append(dialed, url)
			return chains[url], nil
		}),
	)
	require.NoError(t, err)

	n, err := pool.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(77), n)
	assert.Equal(t, []string{"a", "b"}, dialed)
}

func TestPool_RedialsOnlyOnConnectionErrors(t *testing.T) {
	client := &flakyClient{Chain: newStubChain(), fails: 1, err: io.EOF}
	dials := 0
	pool, err := evm.NewPool([]string{"a"},
		evm.WithRetryPolicy(fastPolicy()),
		evm.WithClientFactory(func(_ context.Context, _ string) (evm.EthClient, error) {
			dials++
			return client, nil
		}),
	)
	require.NoError(t, err)

	_, err = pool.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dials, "EOF should force a re-dial")

	client.mu.Lock()
	client.fails, client.err = 1, errors.New("header not found")
	client.mu.Unlock()

	_, err = pool.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dials, "non-connection errors reuse the client")
}

func TestPool_RevertIsNotRetried(t *testing.T) {
	chain := newStubChain()
	chain.Tokens[common.HexToAddress(tokenAddr)].Revert = map[string]bool{"name": true}

	pool, err := evm.NewPool([]string{"a"},
		evm.WithRetryPolicy(fastPolicy()),
		evm.WithClientFactory(func(_ context.Context, _ string) (evm.EthClient, error) {
			return chain, nil
		}),
	)
	require.NoError(t, err)

	c := evm.NewContracts(pool, factory, multicall)
	_, err = c.Name(context.Background(), common.HexToAddress(tokenAddr))
	require.Error(t, err)
	assert.Equal(t, 1, chain.Calls("name"))
}

func TestPool_CircuitBreakerTrips(t *testing.T) {
	down := &flakyClient{Chain: newStubChain(), fails: 100, err: errors.New("503")}
	pool, err := evm.NewPool([]string{"a"},
		evm.WithRetryPolicy(fastPolicy()),
		evm.WithCircuitBreaker(2, time.Hour),
		evm.WithClientFactory(func(_ context.Context, _ string) (evm.EthClient, error) {
			return down, nil
		}),
	)
	require.NoError(t, err)

	_, err = pool.BlockNumber(context.Background())
	assert.ErrorIs(t, err, evm.ErrNoEndpoints)

	states := pool.States()
	require.Len(t, states, 1)
	assert.True(t, states[0].TrippedUntil.After(time.Now()))
}

func TestNewPool_NoEndpoints(t *testing.T) {
	_, err := evm.NewPool(nil)
	assert.ErrorIs(t, err, evm.ErrNoEndpoints)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, evm.IsRevert(errors.New("execution reverted: foo")))
	assert.False(t, evm.IsRevert(errors.New("timeout")))
	assert.True(t, evm.IsConnectionError(io.EOF))
	assert.True(t, evm.IsConnectionError(errors.New("read tcp: connection reset by peer")))
	assert.False(t, evm.IsConnectionError(errors.New("429 too many requests")))
}
