package analysis_test

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-token-scout/internal/analysis"
	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/evm"
	"bsc-token-scout/internal/evm/stub"
	"bsc-token-scout/internal/explorer"
	"bsc-token-scout/internal/pricefeed"
	"bsc-token-scout/internal/retry"
)

const (
	factory   = "0xca143ce32fe78f1f7019d7d551a6402fc5350c73"
	multicall = "0xca11bde05977b3631167028862be2a173976ca11"
	wbnb      = "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c"
	dead      = "0x000000000000000000000000000000000000dead"
	pinkLock  = "0x407993575c91ce7643a4d4ccacc9a98c36ee1bbe"
	tokenAddr = "0x1111111111111111111111111111111111111111"
	pairAddr  = "0x2222222222222222222222222222222222222222"
)

var now = time.Unix(1_700_000_000, 0)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newChain() *stub.Chain {
	chain := stub.NewChain(factory, multicall)
	chain.AddToken(tokenAddr, &stub.Token{Name: "Foo", Symbol: "FOO", Decimals: 18, TotalSupply: ether(1000)})
	chain.AddPair(pairAddr, &stub.Pair{
		Token0:   common.HexToAddress(wbnb),
		Token1:   common.HexToAddress(tokenAddr),
		Reserve0: ether(10),
		Reserve1: ether(1000),
	})
	return chain
}

type fakeMetadata struct {
	meta *domain.TokenMetadata
	err  error
}

func (f fakeMetadata) Fetch(context.Context, string) (*domain.TokenMetadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	m := *f.meta
	return &m, nil
}

type fakeTransfers struct {
	transfers []explorer.TokenTransfer
	err       error
}

func (f fakeTransfers) TokenTransfers(context.Context, string) ([]explorer.TokenTransfer, error) {
	return f.transfers, f.err
}

type fakeHolders struct {
	holders []explorer.RawHolder
	err     error
}

func (f fakeHolders) Holders(context.Context, string, int) ([]explorer.RawHolder, error) {
	return f.holders, f.err
}

func lockTransfer(age time.Duration) explorer.TokenTransfer {
	return explorer.TokenTransfer{
		Hash:            "0xlock",
		From:            pairAddr,
		To:              pinkLock,
		ContractAddress: pairAddr,
		Value:           "1000",
		Timestamp:       now.Add(-age).Unix(),
	}
}

func newLiquidity(chain *stub.Chain, transfers analysis.TransferLister) *analysis.LiquidityAnalyzer {
	return analysis.NewLiquidityAnalyzer(
		evm.NewContracts(chain, factory, multicall),
		pricefeed.Static(decimal.NewFromInt(600)),
		transfers,
		analysis.LiquidityOptions{
			BaseToken: wbnb,
			Lockers:   []string{pinkLock, domain.ZeroAddress},
			Now:       func() time.Time { return now },
		},
	)
}

func validMeta() *domain.TokenMetadata {
	return &domain.TokenMetadata{Address: tokenAddr, Name: "Foo", Symbol: "FOO", Decimals: 18, TotalSupply: ether(1000).String()}
}

func TestLiquidity_IsTradeable(t *testing.T) {
	liq := newLiquidity(newChain(), nil)
	assert.True(t, liq.IsTradeable(context.Background(), tokenAddr))
	assert.False(t, liq.IsTradeable(context.Background(), "0x9999999999999999999999999999999999999999"))
}

func TestLiquidity_GetLiquidity(t *testing.T) {
	liq := newLiquidity(newChain(), fakeTransfers{transfers: []explorer.TokenTransfer{lockTransfer(165 * 24 * time.Hour)}})

	info := liq.GetLiquidity(context.Background(), tokenAddr)
	require.True(t, info.HasLiquidity)
	assert.Equal(t, pairAddr, info.PairAddress)
	assert.Equal(t, ether(1000), info.TokenReserve)
	assert.Equal(t, ether(10), info.BaseReserve)
	assert.InDelta(t, 12000.0, info.LiquidityUSD, 1e-9)
	assert.True(t, info.Locked)
	assert.Equal(t, "PinkSale", info.LockPlatform)
	assert.Equal(t, float64(analysis.DefaultLockPercentage), info.Lock.Percentage)

	price := info.Price(18)
	assert.True(t, price.Equal(decimal.NewFromInt(6)), price.String())
}

func TestLiquidity_NoPair(t *testing.T) {
	liq := newLiquidity(newChain(), nil)
	info := liq.GetLiquidity(context.Background(), "0x9999999999999999999999999999999999999999")
	assert.False(t, info.HasLiquidity)
	assert.Zero(t, info.LiquidityUSD)
}

func TestLiquidity_RPCFailureIsZero(t *testing.T) {
	chain := newChain()
	chain.CallErr = errors.New("connection refused")
	liq := newLiquidity(chain, nil)

	info := liq.GetLiquidity(context.Background(), tokenAddr)
	assert.Equal(t, analysis.LiquidityInfo{}, info)
}

func TestLockStatus_IgnoresMintsAndRemovals(t *testing.T) {
	mint := explorer.TokenTransfer{From: domain.ZeroAddress, To: domain.ZeroAddress, ContractAddress: pairAddr, Timestamp: now.Unix()}
	removal := explorer.TokenTransfer{From: pairAddr, To: domain.ZeroAddress, ContractAddress: pairAddr, Timestamp: now.Unix()}
	otherToken := lockTransfer(time.Hour)
	otherToken.ContractAddress = tokenAddr

	liq := newLiquidity(newChain(), fakeTransfers{transfers: []explorer.TokenTransfer{mint, removal, otherToken}})
	locked, _, _ := liq.LockStatus(context.Background(), pairAddr)
	assert.False(t, locked)
}

func TestLockStatus_PoolTransferToLockerViaExplorer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "tokentx", q.Get("action"))
		assert.Equal(t, pairAddr, q.Get("address"))
		// Every row involves the queried pool as sender or receiver.
		w.Write([]byte(`{"status":"1","message":"OK","result":[
			{"hash":"0xswap","from":"` + pairAddr + `","to":"0x4444444444444444444444444444444444444444","contractAddress":"` + wbnb + `","value":"5","timeStamp":"1699990000"},
			{"hash":"0xburn","from":"` + pairAddr + `","to":"` + domain.ZeroAddress + `","contractAddress":"` + pairAddr + `","value":"7","timeStamp":"1699995000"},
			{"hash":"0xlock","from":"0x2222222222222222222222222222222222222222","to":"0x407993575C91ce7643a4d4cCACc9A98c36eE1BBE","contractAddress":"` + pairAddr + `","value":"1000","timeStamp":"1699900000"},
			{"hash":"0xadd","from":"` + domain.ZeroAddress + `","to":"` + pairAddr + `","contractAddress":"` + pairAddr + `","value":"1","timeStamp":"1699800000"}
		]}`))
	}))
	defer server.Close()

	client := explorer.NewHTTPClient(server.URL, "KEY", explorer.WithRetryPolicy(retry.Policy{Attempts: 1}))
	liq := newLiquidity(newChain(), client)

	locked, lock, platform := liq.LockStatus(context.Background(), pairAddr)
	require.True(t, locked)
	assert.Equal(t, "PinkSale", platform)
	assert.True(t, lock.Verified)
	assert.Equal(t, time.Unix(1699900000, 0).Add(analysis.DefaultLockPeriod).UnixMilli(), lock.Until)
}

func TestLockStatus_UpstreamFailure(t *testing.T) {
	liq := newLiquidity(newChain(), fakeTransfers{err: errors.New("status 0")})
	locked, lock, platform := liq.LockStatus(context.Background(), pairAddr)
	assert.False(t, locked)
	assert.Zero(t, lock)
	assert.Empty(t, platform)
}

func TestHolders(t *testing.T) {
	src := fakeHolders{holders: []explorer.RawHolder{
		{Address: "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", Balance: "100000000000000000000"},
		{Address: dead, Balance: "500000000000000000000"},
		{Address: domain.ZeroAddress, Balance: "1"},
		{Address: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Balance: "333333333333333333333"},
		{Address: "0xcccccccccccccccccccccccccccccccccccccccc", Balance: "not-a-number"},
	}}
	h := analysis.NewHolderAnalyzer(src, dead, zerolog.Nop())

	holders := h.GetHolders(context.Background(), tokenAddr, ether(1000))
	require.Len(t, holders, 2)
	assert.Equal(t, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", holders[0].Address)
	assert.Equal(t, 33.33, holders[0].Percentage)
	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", holders[1].Address)
	assert.Equal(t, 10.0, holders[1].Percentage)
}

func TestHolders_ZeroSupply(t *testing.T) {
	h := analysis.NewHolderAnalyzer(fakeHolders{holders: []explorer.RawHolder{{Address: "0xaa", Balance: "5"}}}, dead, zerolog.Nop())
	holders := h.GetHolders(context.Background(), tokenAddr, nil)
	require.Len(t, holders, 1)
	assert.Zero(t, holders[0].Percentage)
}

func TestHolders_HTTP500IsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := explorer.NewHTTPClient(server.URL, "KEY",
		explorer.WithRetryPolicy(retry.Policy{Attempts: 2, BaseDelay: time.Millisecond}))
	h := analysis.NewHolderAnalyzer(explorer.ExplorerHolderSource{Client: client}, dead, zerolog.Nop())

	holders := h.GetHolders(context.Background(), tokenAddr, ether(1000))
	assert.NotNil(t, holders)
	assert.Empty(t, holders)
}

func TestHolderDistributionAnalyzer(t *testing.T) {
	var holders []domain.Holder
	for i := 0; i < 12; i++ {
		holders = append(holders, domain.Holder{Percentage: float64(12 - i)})
	}
	d := analysis.HolderDistributionAnalyzer{}.AnalyzeDistribution(context.Background(), tokenAddr, holders)
	assert.Equal(t, 12.0, d.MaxWalletPercentage)
	assert.Equal(t, 75.0, d.Top10HoldersPercentage) // 12+11+...+3
	assert.Zero(t, d.TeamWalletPercentage)
}

func TestAnalyze_Complete(t *testing.T) {
	liq := newLiquidity(newChain(), fakeTransfers{transfers: []explorer.TokenTransfer{lockTransfer(165 * 24 * time.Hour)}})
	holders := analysis.NewHolderAnalyzer(fakeHolders{holders: []explorer.RawHolder{
		{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Balance: ether(50).String()},
	}}, dead, zerolog.Nop())

	a := analysis.NewAnalyzer(fakeMetadata{meta: validMeta()}, liq, holders, analysis.Options{
		Now: func() time.Time { return now },
	})

	got, err := a.Analyze(context.Background(), "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.InDelta(t, 12000.0, got.LiquidityUSD, 1e-9)
	assert.Equal(t, "6.000000000000000000", got.Price)
	assert.InDelta(t, 6000.0, got.MarketCap, 1e-9)
	assert.True(t, got.LiquidityLocked)
	assert.Equal(t, 200, got.LiquidityLockDays)
	assert.Equal(t, "PinkSale", got.LiquidityLockPlatform)
	require.Len(t, got.Holders, 1)
	assert.Equal(t, 5.0, got.Holders[0].Percentage)
	assert.Equal(t, now.UnixMilli(), got.AnalyzedAt)
	assert.Equal(t, domain.ContractRisk{}, got.Contract)
	assert.Equal(t, domain.Distribution{}, got.Distribution)
}

func TestAnalyze_DegradesOnFailures(t *testing.T) {
	chain := newChain()
	chain.CallErr = errors.New("503")
	liq := newLiquidity(chain, nil)
	holders := analysis.NewHolderAnalyzer(fakeHolders{err: errors.New("boom")}, dead, zerolog.Nop())

	a := analysis.NewAnalyzer(fakeMetadata{err: errors.New("not a token")}, liq, holders, analysis.Options{
		Now: func() time.Time { return now },
	})

	got, err := a.Analyze(context.Background(), tokenAddr)
	require.NoError(t, err)
	assert.Zero(t, got.LiquidityUSD)
	assert.Equal(t, "0", got.Price)
	assert.Empty(t, got.Holders)
	assert.NotNil(t, got.Holders)
	assert.False(t, got.LiquidityLocked)
}

func TestAnalyze_InvalidAddress(t *testing.T) {
	a := analysis.NewAnalyzer(fakeMetadata{meta: validMeta()}, newLiquidity(newChain(), nil),
		analysis.NewHolderAnalyzer(fakeHolders{}, dead, zerolog.Nop()), analysis.Options{})

	_, err := a.Analyze(context.Background(), "not-an-address")
	assert.ErrorIs(t, err, analysis.ErrInvalidAddress)
}

func TestAnalyze_CancelledContext(t *testing.T) {
	a := analysis.NewAnalyzer(fakeMetadata{meta: validMeta()}, newLiquidity(newChain(), nil),
		analysis.NewHolderAnalyzer(fakeHolders{}, dead, zerolog.Nop()), analysis.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Analyze(ctx, tokenAddr)
	assert.ErrorIs(t, err, context.Canceled)
}
