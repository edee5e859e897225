// Package queue serializes token analyses behind an idempotent FIFO with
// bounded concurrency and a TTL result cache.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/events"
	"bsc-token-scout/internal/metadata"
	"bsc-token-scout/internal/scoring"
	"bsc-token-scout/internal/storage"
)

// Defaults.
const (
	DefaultMaxConcurrent = 1
	DefaultDelay         = 2 * time.Second
)

// Analysis outcome labels reported to the Observer.
const (
	StatusOK           = "ok"
	StatusFailed       = "failed"
	StatusPanicked     = "panicked"
	StatusNotTradeable = "not_tradeable"
)

var (
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("queue stopped")

	// ErrNotTradeable is returned by a job whose token has no base-asset pool.
	ErrNotTradeable = errors.New("token not tradeable")
)

// Analyzer produces an analysis for one address.
type Analyzer interface {
	Analyze(ctx context.Context, address string) (*domain.Analysis, error)
}

// TradeableChecker reports whether a token has a base-asset pool.
type TradeableChecker interface {
	IsTradeable(ctx context.Context, address string) bool
}

// MetadataSource resolves token metadata.
type MetadataSource interface {
	Fetch(ctx context.Context, address string) (*domain.TokenMetadata, error)
}

// Observer receives queue telemetry. Nil-safe.
type Observer interface {
	ObserveQueueDepth(depth int)
	ObserveAnalysis(status string, d time.Duration)
}

type state int

const (
	stateQueued state = iota + 1
	stateInProgress
)

// Options configures a Queue.
type Options struct {
	Chain         string
	MaxConcurrent int
	Delay         time.Duration
	Tradeable     TradeableChecker          // optional gate run by the worker
	History       storage.ScoreHistoryStore // optional
	Bus           *events.Bus               // optional
	Observer      Observer                  // optional
	Now           func() time.Time
	Logger        zerolog.Logger
}

// Queue is an ordered, idempotent analysis work queue. An address is never
// queued twice nor processed by two workers at once.
type Queue struct {
	analyzer Analyzer
	metadata MetadataSource
	tokens   storage.TokenStore
	cache    *Cache

	chain    string
	delay    time.Duration
	sem      *semaphore.Weighted
	gate     TradeableChecker
	history  storage.ScoreHistoryStore
	bus      *events.Bus
	observer Observer
	now      func() time.Time
	log      zerolog.Logger

	mu       sync.Mutex
	pending  []string
	states   map[string]state
	rejected map[string]time.Time // not tradeable, until the cache TTL passes
	stopped  bool
	notify   chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a queue. Call Start to begin processing.
func New(analyzer Analyzer, md MetadataSource, tokens storage.TokenStore, cache *Cache, opts Options) *Queue {
	if opts.Chain == "" {
		opts.Chain = domain.ChainBSC
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		analyzer: analyzer,
		metadata: md,
		tokens:   tokens,
		cache:    cache,
		chain:    opts.Chain,
		delay:    opts.Delay,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		gate:     opts.Tradeable,
		history:  opts.History,
		bus:      opts.Bus,
		observer: opts.Observer,
		now:      opts.Now,
		log:      opts.Logger.With().Str("component", "queue").Logger(),
		states:   make(map[string]state),
		rejected: make(map[string]time.Time),
		notify:   make(chan struct{}, 1),
	}
}

// Cache returns the queue's analysis cache.
func (q *Queue) Cache() *Cache {
	return q.cache
}

// Enqueue schedules an analysis. It returns false without effect when the
// address is invalid, already queued, in progress, freshly cached or
// recently found not tradeable, or when the queue is stopped.
func (q *Queue) Enqueue(address string) bool {
	addr := domain.CanonicalAddress(address)
	if !domain.IsValidAddress(addr) {
		return false
	}
	now := q.now()
	if _, fresh := q.cache.Fresh(addr, now); fresh {
		return false
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	if at, ok := q.rejected[addr]; ok {
		if now.Sub(at) < q.cache.TTL() {
			q.mu.Unlock()
			return false
		}
		delete(q.rejected, addr)
	}
	if _, busy := q.states[addr]; busy {
		q.mu.Unlock()
		return false
	}
	q.states[addr] = stateQueued
	q.pending = append(q.pending, addr)
	depth := len(q.pending)
	q.mu.Unlock()

	if q.observer != nil {
		q.observer.ObserveQueueDepth(depth)
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of queued addresses.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InProgress returns the number of addresses being analyzed.
func (q *Queue) InProgress() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, s := range q.states {
		if s == stateInProgress {
			n++
		}
	}
	return n
}

// Start runs the dispatcher until ctx is cancelled or Stop is called.
// It blocks.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrStopped
	}
	ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()

	q.log.Info().Msg("queue started")
	for {
		if q.Len() == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-q.notify:
				continue
			}
		}

		if err := q.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		addr, ok := q.next()
		if !ok {
			q.sem.Release(1)
			continue
		}
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			defer q.sem.Release(1)
			q.process(ctx, addr)
			q.pause(ctx)
		}()
	}
}

// Stop stops accepting work, cancels the dispatcher and waits for in-flight
// analyses until ctx expires. Queued addresses are abandoned.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.stopped = true
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for in-flight analyses: %w", ctx.Err())
	}
}

func (q *Queue) next() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return "", false
	}
	addr := q.pending[0]
	q.pending = q.pending[1:]
	q.states[addr] = stateInProgress
	return addr, true
}

func (q *Queue) done(addr string) {
	q.mu.Lock()
	delete(q.states, addr)
	depth := len(q.pending)
	q.mu.Unlock()
	if q.observer != nil {
		q.observer.ObserveQueueDepth(depth)
	}
}

func (q *Queue) pause(ctx context.Context) {
	if q.delay == 0 {
		return
	}
	t := time.NewTimer(q.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// process runs one job. Errors and panics are logged and never escape.
func (q *Queue) process(ctx context.Context, addr string) {
	start := q.now()
	status := StatusOK
	defer func() {
		if r := recover(); r != nil {
			status = StatusPanicked
			q.log.Error().Interface("panic", r).Str("address", addr).Msg("analysis panicked")
		}
		q.done(addr)
		if q.observer != nil {
			q.observer.ObserveAnalysis(status, q.now().Sub(start))
		}
	}()

	switch err := q.run(ctx, addr); {
	case err == nil:
	case errors.Is(err, ErrNotTradeable):
		status = StatusNotTradeable
		q.log.Debug().Str("address", addr).Msg("not tradeable, skipped")
	default:
		status = StatusFailed
		q.log.Warn().Err(err).Str("address", addr).Msg("analysis failed")
	}
}

func (q *Queue) run(ctx context.Context, addr string) error {
	if q.gate != nil && !q.gate.IsTradeable(ctx, addr) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		q.mu.Lock()
		q.rejected[addr] = q.now()
		q.mu.Unlock()
		return ErrNotTradeable
	}

	analysis, err := q.analyzer.Analyze(ctx, addr)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	score := scoring.Score(analysis)
	q.cache.Put(ctx, addr, analysis, q.now())

	tok := &domain.Token{Address: addr, Chain: q.chain, Analysis: analysis, Score: &score}
	meta, err := q.metadata.Fetch(ctx, addr)
	switch {
	case err == nil:
		tok.Name, tok.Symbol = meta.Name, meta.Symbol
		tok.Decimals, tok.TotalSupply = uint8(meta.Decimals), meta.TotalSupply
	case errors.Is(err, metadata.ErrNotAToken):
		q.log.Debug().Str("address", addr).Msg("not a token, analysis not stored")
		return nil
	default:
		// Without metadata only an existing record is updated.
		if _, gerr := q.tokens.GetByAddress(ctx, q.chain, addr); gerr != nil {
			return fmt.Errorf("metadata: %w", err)
		}
	}

	created, err := q.tokens.Upsert(ctx, tok)
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	stored, err := q.tokens.GetByAddress(ctx, q.chain, addr)
	if err != nil {
		return fmt.Errorf("reload token: %w", err)
	}

	if q.history != nil {
		if err := q.history.Append(ctx, domain.NewScoreSnapshot(stored)); err != nil {
			q.log.Warn().Err(err).Str("address", addr).Msg("append score history")
		}
	}
	if q.bus != nil {
		if created {
			q.bus.NewToken.Publish(stored)
		}
		q.bus.TokenUpdated.Publish(stored)
	}
	q.log.Info().Str("address", addr).Float64("score", score.Total).Msg("analysis stored")
	return nil
}
