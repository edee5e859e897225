package evm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"bsc-token-scout/internal/retry"
)

// Circuit breaker defaults.
const (
	defaultMaxFailures  = 3
	defaultTripDuration = 5 * time.Minute
)

// ErrNoEndpoints is returned when the pool has no usable endpoint.
var ErrNoEndpoints = errors.New("no rpc endpoints available")

// EthClient is the subset of ethclient.Client used by the pool.
type EthClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// Caller issues read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ClientFactory dials an endpoint.
type ClientFactory func(ctx context.Context, url string) (EthClient, error)

// Observer receives per-call telemetry. Nil-safe.
type Observer interface {
	ObserveRPC(method, endpoint string, d time.Duration, err error)
	ObserveTrip(endpoint string)
}

// RPCState tracks one endpoint's connection and circuit breaker.
type RPCState struct {
	URL          string
	FailureCount int
	TrippedUntil time.Time

	client EthClient
	lock   sync.Mutex
}

// Pool rotates read calls across several JSON-RPC endpoints. An endpoint that
// fails MaxFailures times in a row is skipped for TripDuration. A client is
// re-dialed only after a connection-level failure.
type Pool struct {
	states       []*RPCState
	next         atomic.Uint64
	factory      ClientFactory
	policy       retry.Policy
	maxFailures  int
	tripDuration time.Duration
	observer     Observer
	log          zerolog.Logger
	now          func() time.Time
}

// Option configures the Pool.
type Option func(*Pool)

// WithClientFactory overrides how endpoints are dialed.
func WithClientFactory(f ClientFactory) Option {
	return func(p *Pool) {
		p.factory = f
	}
}

// WithRetryPolicy sets the retry policy applied to every call.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *Pool) {
		p.policy = policy
	}
}

// WithCircuitBreaker sets the failure threshold and trip duration.
func WithCircuitBreaker(maxFailures int, trip time.Duration) Option {
	return func(p *Pool) {
		p.maxFailures = maxFailures
		p.tripDuration = trip
	}
}

// WithObserver attaches a telemetry sink.
func WithObserver(o Observer) Option {
	return func(p *Pool) {
		p.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pool) {
		p.log = l.With().Str("component", "rpc").Logger()
	}
}

// NewPool creates a pool over the given endpoint URLs. Endpoints are dialed
// lazily on first use.
func NewPool(urls []string, opts ...Option) (*Pool, error) {
	if len(urls) == 0 {
		return nil, ErrNoEndpoints
	}

	p := &Pool{
		factory: func(ctx context.Context, url string) (EthClient, error) {
			return ethclient.DialContext(ctx, url)
		},
		policy:       retry.DefaultPolicy(),
		maxFailures:  defaultMaxFailures,
		tripDuration: defaultTripDuration,
		log:          zerolog.Nop(),
		now:          time.Now,
	}
	for _, url := range urls {
		p.states = append(p.states, &RPCState{URL: url})
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// CallContract executes eth_call against the next healthy endpoint.
func (p *Pool) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return withClient(ctx, p, "eth_call", func(ctx context.Context, c EthClient) ([]byte, error) {
		return c.CallContract(ctx, msg, blockNumber)
	})
}

// HeaderByNumber returns a block header. nil number means latest.
func (p *Pool) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return withClient(ctx, p, "eth_getBlockByNumber", func(ctx context.Context, c EthClient) (*types.Header, error) {
		return c.HeaderByNumber(ctx, number)
	})
}

// BlockNumber returns the latest block number.
func (p *Pool) BlockNumber(ctx context.Context) (uint64, error) {
	return withClient(ctx, p, "eth_blockNumber", func(ctx context.Context, c EthClient) (uint64, error) {
		return c.BlockNumber(ctx)
	})
}

// Close closes all dialed clients.
func (p *Pool) Close() {
	for _, s := range p.states {
		s.lock.Lock()
		if s.client != nil {
			s.client.Close()
			s.client = nil
		}
		s.lock.Unlock()
	}
}

// States returns a snapshot of endpoint health.
func (p *Pool) States() []RPCState {
	out := make([]RPCState, 0, len(p.states))
	for _, s := range p.states {
		s.lock.Lock()
		out = append(out, RPCState{URL: s.URL, FailureCount: s.FailureCount, TrippedUntil: s.TrippedUntil})
		s.lock.Unlock()
	}
	return out
}

func withClient[T any](ctx context.Context, p *Pool, method string, call func(context.Context, EthClient) (T, error)) (T, error) {
	return retry.DoValue(ctx, p.policy, func(ctx context.Context) (T, error) {
		var zero T

		state, err := p.pick()
		if err != nil {
			return zero, err
		}
		client, err := p.clientFor(ctx, state)
		if err != nil {
			p.recordFailure(state, err)
			return zero, err
		}

		start := p.now()
		out, err := call(ctx, client)
		if p.observer != nil {
			p.observer.ObserveRPC(method, state.URL, p.now().Sub(start), err)
		}
		if err != nil {
			if IsRevert(err) {
				p.recordSuccess(state)
				return zero, retry.Permanent(err)
			}
			if IsConnectionError(err) {
				p.resetClient(state, client)
			}
			p.recordFailure(state, err)
			return zero, fmt.Errorf("%s via %s: %w", method, state.URL, err)
		}
		p.recordSuccess(state)
		return out, nil
	})
}

// pick returns the next endpoint whose breaker is closed.
func (p *Pool) pick() (*RPCState, error) {
	now := p.now()
	n := len(p.states)
	for i := 0; i < n; i++ {
		s := p.states[int(p.next.Add(1)-1)%n]
		s.lock.Lock()
		tripped := now.Before(s.TrippedUntil)
		s.lock.Unlock()
		if !tripped {
			return s, nil
		}
	}
	return nil, ErrNoEndpoints
}

func (p *Pool) clientFor(ctx context.Context, s *RPCState) (EthClient, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	c, err := p.factory(ctx, s.URL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.URL, err)
	}
	s.client = c
	return c, nil
}

// resetClient drops the client so the next call re-dials.
func (p *Pool) resetClient(s *RPCState, c EthClient) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.client == c {
		s.client.Close()
		s.client = nil
	}
}

func (p *Pool) recordSuccess(s *RPCState) {
	s.lock.Lock()
	s.FailureCount = 0
	s.lock.Unlock()
}

func (p *Pool) recordFailure(s *RPCState, err error) {
	s.lock.Lock()
	s.FailureCount++
	tripped := false
	if s.FailureCount >= p.maxFailures {
		s.TrippedUntil = p.now().Add(p.tripDuration)
		s.FailureCount = 0
		tripped = true
	}
	s.lock.Unlock()

	p.log.Debug().Err(err).Str("endpoint", s.URL).Msg("rpc call failed")
	if tripped {
		p.log.Warn().Str("endpoint", s.URL).Dur("for", p.tripDuration).Msg("circuit breaker tripped")
		if p.observer != nil {
			p.observer.ObserveTrip(s.URL)
		}
	}
}

// IsRevert reports whether err is an EVM execution revert. Reverts are
// deterministic and never retried.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "invalid opcode")
}

// IsConnectionError reports whether err indicates a broken transport, in
// which case the client is re-dialed.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe")
}
