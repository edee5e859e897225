package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrEmptyResult is returned when a call returns no data, usually because the
// target has no code.
var ErrEmptyResult = errors.New("empty call result")

// Call3 is one Multicall3 aggregate3 sub-call.
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result is one Multicall3 aggregate3 sub-result.
type Result struct {
	Success    bool
	ReturnData []byte
}

// Reserves is a pair's getReserves output.
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// Contracts issues typed reads against ERC-20, factory, pair and Multicall3
// contracts.
type Contracts struct {
	caller    Caller
	factory   common.Address
	multicall common.Address
}

// NewContracts binds contract reads to a caller and fixed addresses.
func NewContracts(caller Caller, factory, multicall string) *Contracts {
	return &Contracts{
		caller:    caller,
		factory:   common.HexToAddress(factory),
		multicall: common.HexToAddress(multicall),
	}
}

func (c *Contracts) call(ctx context.Context, to common.Address, a abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return Unpack(a, method, out)
}

// Unpack decodes return data for method, rejecting empty output.
func Unpack(a abi.ABI, method string, data []byte) ([]interface{}, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", method, ErrEmptyResult)
	}
	vals, err := a.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%s: %w", method, ErrEmptyResult)
	}
	return vals, nil
}

// Calldata packs a no-argument call for method.
func Calldata(a abi.ABI, method string) []byte {
	data, err := a.Pack(method)
	if err != nil {
		panic(fmt.Sprintf("pack %s: %v", method, err))
	}
	return data
}

// Name reads ERC-20 name().
func (c *Contracts) Name(ctx context.Context, token common.Address) (string, error) {
	vals, err := c.call(ctx, token, ERC20ABI, "name")
	if err != nil {
		return "", err
	}
	return As[string](vals[0], "name")
}

// Symbol reads ERC-20 symbol().
func (c *Contracts) Symbol(ctx context.Context, token common.Address) (string, error) {
	vals, err := c.call(ctx, token, ERC20ABI, "symbol")
	if err != nil {
		return "", err
	}
	return As[string](vals[0], "symbol")
}

// Decimals reads ERC-20 decimals().
func (c *Contracts) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	vals, err := c.call(ctx, token, ERC20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	return As[uint8](vals[0], "decimals")
}

// TotalSupply reads ERC-20 totalSupply().
func (c *Contracts) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	vals, err := c.call(ctx, token, ERC20ABI, "totalSupply")
	if err != nil {
		return nil, err
	}
	return As[*big.Int](vals[0], "totalSupply")
}

// GetPair reads factory getPair(tokenA, tokenB). A zero address means no pool.
func (c *Contracts) GetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	vals, err := c.call(ctx, c.factory, FactoryABI, "getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	return As[common.Address](vals[0], "getPair")
}

// GetReserves reads pair getReserves().
func (c *Contracts) GetReserves(ctx context.Context, pair common.Address) (Reserves, error) {
	vals, err := c.call(ctx, pair, PairABI, "getReserves")
	if err != nil {
		return Reserves{}, err
	}
	if len(vals) != 3 {
		return Reserves{}, fmt.Errorf("getReserves: %d outputs", len(vals))
	}
	r0, err := As[*big.Int](vals[0], "reserve0")
	if err != nil {
		return Reserves{}, err
	}
	r1, err := As[*big.Int](vals[1], "reserve1")
	if err != nil {
		return Reserves{}, err
	}
	ts, err := As[uint32](vals[2], "blockTimestampLast")
	if err != nil {
		return Reserves{}, err
	}
	return Reserves{Reserve0: r0, Reserve1: r1, BlockTimestampLast: ts}, nil
}

// Token0 reads pair token0().
func (c *Contracts) Token0(ctx context.Context, pair common.Address) (common.Address, error) {
	vals, err := c.call(ctx, pair, PairABI, "token0")
	if err != nil {
		return common.Address{}, err
	}
	return As[common.Address](vals[0], "token0")
}

// Aggregate3 batches calls through Multicall3. The result has one entry per call.
func (c *Contracts) Aggregate3(ctx context.Context, calls []Call3) ([]Result, error) {
	vals, err := c.call(ctx, c.multicall, Multicall3ABI, "aggregate3", calls)
	if err != nil {
		return nil, err
	}
	results := *abi.ConvertType(vals[0], new([]Result)).(*[]Result)
	if len(results) != len(calls) {
		return nil, fmt.Errorf("aggregate3: %d results for %d calls", len(results), len(calls))
	}
	return results, nil
}

// As converts a single unpacked value, reporting a type mismatch as an error.
func As[T any](v interface{}, field string) (T, error) {
	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: unexpected type %T", field, v)
	}
	return out, nil
}
