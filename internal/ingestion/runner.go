package ingestion

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"bsc-token-scout/internal/discovery"
	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/storage"
)

// Enqueuer schedules a candidate for analysis. Satisfied by *queue.Queue,
// which also runs the tradeability check. Enqueue must not block on I/O.
type Enqueuer interface {
	Enqueue(address string) bool
}

// Stats is a snapshot of feed counters.
type Stats struct {
	Events      uint64 `json:"events"`
	Skipped     uint64 `json:"skipped"`
	Candidates  uint64 `json:"candidates"`
	Enqueued    uint64 `json:"enqueued"`
	LastEventAt int64  `json:"lastEventAt,omitempty"`
	LastBlock   uint64 `json:"lastBlock,omitempty"`
}

// Runner drains a PairSource through the resolver into the analysis queue.
// It never calls the chain itself.
type Runner struct {
	source   PairSource
	resolver *discovery.Resolver
	queue    Enqueuer
	progress storage.FeedProgressStore
	observer Observer
	log      zerolog.Logger

	events     atomic.Uint64
	skipped    atomic.Uint64
	candidates atomic.Uint64
	enqueued   atomic.Uint64

	mu          sync.Mutex
	lastEventAt int64
	lastBlock   uint64
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Progress storage.FeedProgressStore // optional seen-tx persistence
	Observer Observer
	Logger   zerolog.Logger
}

// NewRunner creates a feed runner.
func NewRunner(source PairSource, resolver *discovery.Resolver, queue Enqueuer, opts RunnerOptions) *Runner {
	return &Runner{
		source:   source,
		resolver: resolver,
		queue:    queue,
		progress: opts.Progress,
		observer: opts.Observer,
		log:      opts.Logger.With().Str("component", "feed_runner").Logger(),
	}
}

// Run blocks until ctx is cancelled or the source closes.
func (r *Runner) Run(ctx context.Context) error {
	events, err := r.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	r.log.Info().Msg("feed runner started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("feed runner stopped")
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.log.Warn().Msg("event source closed")
				return nil
			}
			r.Handle(ctx, ev)
		}
	}
}

// Handle processes one event and returns the enqueued candidate, if any.
func (r *Runner) Handle(ctx context.Context, ev *domain.PairCreatedEvent) (string, bool) {
	r.events.Add(1)
	if ev != nil {
		r.mu.Lock()
		r.lastEventAt = ev.Timestamp
		if ev.BlockNumber > r.lastBlock {
			r.lastBlock = ev.BlockNumber
		}
		r.mu.Unlock()
	}

	d := r.resolver.Decide(ev)
	if d.Candidate == "" {
		r.skip(d.Reason)
		if d.Reason == discovery.SkipEstablished {
			r.markSeen(ctx, ev.TxHash)
		}
		return "", false
	}
	r.markSeen(ctx, ev.TxHash)

	r.candidates.Add(1)
	if r.observer != nil {
		r.observer.ObserveCandidate()
	}
	logger := r.log.With().Str("token", d.Candidate).Str("pair", ev.PairAddress).Uint64("block", ev.BlockNumber).Logger()

	if !r.queue.Enqueue(d.Candidate) {
		logger.Debug().Msg("candidate already queued or fresh")
		return d.Candidate, false
	}
	r.enqueued.Add(1)
	logger.Info().Str("source", string(ev.Source)).Msg("new token queued")
	return d.Candidate, true
}

// Stats returns the current counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Events:      r.events.Load(),
		Skipped:     r.skipped.Load(),
		Candidates:  r.candidates.Load(),
		Enqueued:    r.enqueued.Load(),
		LastEventAt: r.lastEventAt,
		LastBlock:   r.lastBlock,
	}
}

func (r *Runner) skip(reason string) {
	r.skipped.Add(1)
	if r.observer != nil {
		r.observer.ObserveSkip(reason)
	}
}

func (r *Runner) markSeen(ctx context.Context, txHash string) {
	if r.progress == nil || txHash == "" {
		return
	}
	if err := r.progress.MarkTxSeen(ctx, txHash); err != nil {
		r.log.Warn().Err(err).Str("tx", txHash).Msg("persist seen tx")
	}
}

// Since reports how long ago the last event arrived.
func (s Stats) Since(now time.Time) time.Duration {
	if s.LastEventAt == 0 {
		return 0
	}
	return now.Sub(time.UnixMilli(s.LastEventAt))
}
