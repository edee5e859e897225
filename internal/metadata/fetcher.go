// Package metadata reads ERC-20 metadata with a Multicall3 fast path and a
// per-call fallback, cached by address.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/evm"
)

// DefaultTTL is how long fetched metadata is served from cache.
const DefaultTTL = 5 * time.Minute

var (
	// ErrNotAToken is returned when name, symbol or decimals cannot be read.
	ErrNotAToken = errors.New("not an ERC-20 token")
	// ErrInvalidAddress is returned for malformed addresses.
	ErrInvalidAddress = errors.New("invalid address")
)

// Options configures Fetcher.
type Options struct {
	TTL    time.Duration
	Now    func() time.Time
	Logger zerolog.Logger
}

type cached struct {
	meta    domain.TokenMetadata
	expires time.Time
}

// Fetcher resolves token metadata.
type Fetcher struct {
	contracts *evm.Contracts
	ttl       time.Duration
	now       func() time.Time
	log       zerolog.Logger

	mu    sync.Mutex
	cache map[string]cached
	group singleflight.Group
}

// NewFetcher creates a metadata fetcher over contract reads.
func NewFetcher(contracts *evm.Contracts, opts Options) *Fetcher {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Fetcher{
		contracts: contracts,
		ttl:       opts.TTL,
		now:       opts.Now,
		log:       opts.Logger.With().Str("component", "metadata").Logger(),
		cache:     make(map[string]cached),
	}
}

// Fetch returns metadata for address, from cache when fresh. Concurrent calls
// for one address share a single upstream read.
func (f *Fetcher) Fetch(ctx context.Context, address string) (*domain.TokenMetadata, error) {
	addr := domain.CanonicalAddress(address)
	if !domain.IsValidAddress(addr) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	if m, ok := f.lookup(addr); ok {
		return m, nil
	}

	v, err, _ := f.group.Do(addr, func() (interface{}, error) {
		if m, ok := f.lookup(addr); ok {
			return m, nil
		}
		m, err := f.fetch(ctx, addr)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.cache[addr] = cached{meta: *m, expires: f.now().Add(f.ttl)}
		f.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	m := *v.(*domain.TokenMetadata)
	return &m, nil
}

func (f *Fetcher) lookup(addr string) (*domain.TokenMetadata, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cache[addr]
	if !ok {
		return nil, false
	}
	if !f.now().Before(c.expires) {
		delete(f.cache, addr)
		return nil, false
	}
	m := c.meta
	return &m, true
}

// fields collects the four reads; nil means unavailable.
type fields struct {
	name     *string
	symbol   *string
	decimals *uint8
	supply   *big.Int
}

func (f *Fetcher) fetch(ctx context.Context, addr string) (*domain.TokenMetadata, error) {
	token := common.HexToAddress(addr)

	fs, err := f.batch(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.log.Debug().Err(err).Str("address", addr).Msg("multicall failed, falling back to individual calls")
		fs = f.individual(ctx, token)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if fs.name == nil || fs.symbol == nil || fs.decimals == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotAToken, addr)
	}
	m := &domain.TokenMetadata{
		Address:     addr,
		Name:        *fs.name,
		Symbol:      *fs.symbol,
		Decimals:    int(*fs.decimals),
		TotalSupply: "0",
	}
	if fs.supply != nil {
		m.TotalSupply = fs.supply.String()
	}
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrNotAToken, addr)
	}
	return m, nil
}

var metadataMethods = []string{"name", "symbol", "decimals", "totalSupply"}

// batch reads all fields in one aggregate3 call. Any sub-call failure or
// undecodable field fails the batch.
func (f *Fetcher) batch(ctx context.Context, token common.Address) (fields, error) {
	calls := make([]evm.Call3, len(metadataMethods))
	for i, m := range metadataMethods {
		calls[i] = evm.Call3{Target: token, AllowFailure: true, CallData: evm.Calldata(evm.ERC20ABI, m)}
	}
	results, err := f.contracts.Aggregate3(ctx, calls)
	if err != nil {
		return fields{}, err
	}

	vals := make([]interface{}, len(results))
	for i, r := range results {
		if !r.Success {
			return fields{}, fmt.Errorf("%s failed in batch", metadataMethods[i])
		}
		out, err := evm.Unpack(evm.ERC20ABI, metadataMethods[i], r.ReturnData)
		if err != nil {
			return fields{}, err
		}
		vals[i] = out[0]
	}

	name, err := evm.As[string](vals[0], "name")
	if err != nil {
		return fields{}, err
	}
	symbol, err := evm.As[string](vals[1], "symbol")
	if err != nil {
		return fields{}, err
	}
	decimals, err := evm.As[uint8](vals[2], "decimals")
	if err != nil {
		return fields{}, err
	}
	supply, err := evm.As[*big.Int](vals[3], "totalSupply")
	if err != nil {
		return fields{}, err
	}
	return fields{name: &name, symbol: &symbol, decimals: &decimals, supply: supply}, nil
}

// individual issues the four reads concurrently, tolerating each failure.
func (f *Fetcher) individual(ctx context.Context, token common.Address) fields {
	var fs fields
	var g errgroup.Group
	g.Go(func() error {
		if v, err := f.contracts.Name(ctx, token); err == nil {
			fs.name = &v
		}
		return nil
	})
	g.Go(func() error {
		if v, err := f.contracts.Symbol(ctx, token); err == nil {
			fs.symbol = &v
		}
		return nil
	})
	g.Go(func() error {
		if v, err := f.contracts.Decimals(ctx, token); err == nil {
			fs.decimals = &v
		}
		return nil
	})
	g.Go(func() error {
		if v, err := f.contracts.TotalSupply(ctx, token); err == nil {
			fs.supply = v
		}
		return nil
	})
	_ = g.Wait()
	return fs
}
