// Package stub provides an in-memory chain that answers the contract reads the
// scout issues, for tests.
package stub

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"bsc-token-scout/internal/evm"
)

// ErrReverted mimics a node's revert error.
var ErrReverted = errors.New("execution reverted")

// Token is an ERC-20 deployed on the stub chain.
type Token struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
	// Revert lists methods that revert for this token.
	Revert map[string]bool
}

// Pair is a constant-product pool deployed on the stub chain.
type Pair struct {
	Token0   common.Address
	Token1   common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// Chain implements evm.EthClient against in-memory contracts.
type Chain struct {
	mu sync.Mutex

	Factory   common.Address
	Multicall common.Address
	Tokens    map[common.Address]*Token
	Pairs     map[common.Address]*Pair

	// MulticallErr fails every aggregate3 call when set.
	MulticallErr error
	// CallErr fails every call when set.
	CallErr error

	BlockNumberValue uint64
	BlockTimes       map[uint64]uint64

	calls  map[string]int
	closed bool
}

// NewChain creates an empty stub chain.
func NewChain(factory, multicall string) *Chain {
	return &Chain{
		Factory:    common.HexToAddress(factory),
		Multicall:  common.HexToAddress(multicall),
		Tokens:     make(map[common.Address]*Token),
		Pairs:      make(map[common.Address]*Pair),
		BlockTimes: make(map[uint64]uint64),
		calls:      make(map[string]int),
	}
}

// AddToken deploys a token.
func (c *Chain) AddToken(addr string, t *Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Tokens[common.HexToAddress(addr)] = t
}

// AddPair deploys a pair.
func (c *Chain) AddPair(addr string, p *Pair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Pairs[common.HexToAddress(addr)] = p
}

// Calls returns how many times method was executed, including inside multicalls.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// CallContract dispatches an eth_call by target and selector.
func (c *Chain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.CallErr != nil {
		return nil, c.CallErr
	}
	if msg.To == nil {
		return nil, errors.New("missing target")
	}
	if *msg.To == c.Multicall {
		return c.aggregate3(msg.Data)
	}
	return c.dispatch(*msg.To, msg.Data)
}

func (c *Chain) aggregate3(data []byte) ([]byte, error) {
	c.calls["aggregate3"]++
	if c.MulticallErr != nil {
		return nil, c.MulticallErr
	}
	method := evm.Multicall3ABI.Methods["aggregate3"]
	vals, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	calls := *abi.ConvertType(vals[0], new([]evm.Call3)).(*[]evm.Call3)

	results := make([]evm.Result, len(calls))
	for i, call := range calls {
		out, err := c.dispatch(call.Target, call.CallData)
		if err != nil {
			if !call.AllowFailure {
				return nil, ErrReverted
			}
			continue
		}
		results[i] = evm.Result{Success: true, ReturnData: out}
	}
	return method.Outputs.Pack(results)
}

func (c *Chain) dispatch(to common.Address, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrReverted
	}

	if token, ok := c.Tokens[to]; ok {
		m, err := evm.ERC20ABI.MethodById(data[:4])
		if err != nil {
			return nil, ErrReverted
		}
		c.calls[m.Name]++
		if token.Revert[m.Name] {
			return nil, ErrReverted
		}
		switch m.Name {
		case "name":
			return m.Outputs.Pack(token.Name)
		case "symbol":
			return m.Outputs.Pack(token.Symbol)
		case "decimals":
			return m.Outputs.Pack(token.Decimals)
		case "totalSupply":
			return m.Outputs.Pack(token.TotalSupply)
		}
	}

	if to == c.Factory {
		m, err := evm.FactoryABI.MethodById(data[:4])
		if err != nil || m.Name != "getPair" {
			return nil, ErrReverted
		}
		c.calls[m.Name]++
		args, err := m.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		a, b := args[0].(common.Address), args[1].(common.Address)
		for addr, p := range c.Pairs {
			if (p.Token0 == a && p.Token1 == b) || (p.Token0 == b && p.Token1 == a) {
				return m.Outputs.Pack(addr)
			}
		}
		return m.Outputs.Pack(common.Address{})
	}

	if pair, ok := c.Pairs[to]; ok {
		m, err := evm.PairABI.MethodById(data[:4])
		if err != nil {
			return nil, ErrReverted
		}
		c.calls[m.Name]++
		switch m.Name {
		case "getReserves":
			return m.Outputs.Pack(pair.Reserve0, pair.Reserve1, uint32(0))
		case "token0":
			return m.Outputs.Pack(pair.Token0)
		}
	}

	// no code at address
	return nil, nil
}

// HeaderByNumber returns a header carrying the configured block time.
func (c *Chain) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CallErr != nil {
		return nil, c.CallErr
	}
	n := c.BlockNumberValue
	if number != nil {
		n = number.Uint64()
	}
	ts, ok := c.BlockTimes[n]
	if !ok {
		return nil, fmt.Errorf("block %d not found", n)
	}
	return &types.Header{Number: new(big.Int).SetUint64(n), Time: ts}, nil
}

// BlockNumber returns the configured head.
func (c *Chain) BlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CallErr != nil {
		return 0, c.CallErr
	}
	return c.BlockNumberValue, nil
}

// Close marks the chain closed.
func (c *Chain) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Closed reports whether Close was called.
func (c *Chain) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
