package ingestion

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/evm"
	"bsc-token-scout/internal/explorer"
	"bsc-token-scout/internal/storage"
)

// Polling defaults.
const (
	DefaultPollInterval = 3 * time.Second
	DefaultPageSize     = 10
)

// LogFetcher queries historical logs. Satisfied by *explorer.HTTPClient.
type LogFetcher interface {
	GetLogs(ctx context.Context, q explorer.LogQuery) ([]evm.RawLog, error)
}

// PollingPairSource polls an explorer getLogs endpoint for the most recent
// PairCreated events above a block cursor.
type PollingPairSource struct {
	logs     LogFetcher
	progress storage.FeedProgressStore
	factory  string
	interval time.Duration
	pageSize int
	observer Observer
	log      zerolog.Logger

	mu        sync.Mutex
	lastBlock uint64
	loaded    bool
}

// PollSourceOptions configures a PollingPairSource.
type PollSourceOptions struct {
	Interval time.Duration
	PageSize int
	Progress storage.FeedProgressStore // optional cursor persistence
	Observer Observer
	Logger   zerolog.Logger
}

// NewPollingPairSource creates a pull source for factory.
func NewPollingPairSource(logs LogFetcher, factory string, opts PollSourceOptions) *PollingPairSource {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &PollingPairSource{
		logs:     logs,
		progress: opts.Progress,
		factory:  factory,
		interval: opts.Interval,
		pageSize: opts.PageSize,
		observer: opts.Observer,
		log:      opts.Logger.With().Str("component", "poll_feed").Logger(),
	}
}

// Subscribe implements PairSource. The first poll runs immediately; an
// upstream error is logged and the next tick retries.
func (s *PollingPairSource) Subscribe(ctx context.Context) (<-chan *domain.PairCreatedEvent, error) {
	out := make(chan *domain.PairCreatedEvent, 100)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			events, err := s.Poll(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn().Err(err).Msg("poll failed")
			}
			for _, ev := range events {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out, nil
}

// Poll fetches one page of events above the cursor, oldest first, and
// advances the cursor past them.
func (s *PollingPairSource) Poll(ctx context.Context) ([]*domain.PairCreatedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.loadCursor(ctx)
	}

	var from uint64
	if s.lastBlock > 0 {
		from = s.lastBlock + 1
	}
	raws, err := s.logs.GetLogs(ctx, explorer.LogQuery{
		Address:   s.factory,
		Topic0:    evm.PairCreatedTopic.Hex(),
		FromBlock: from,
		Page:      1,
		Offset:    s.pageSize,
		Desc:      true,
	})
	if err != nil {
		return nil, err
	}

	events := make([]*domain.PairCreatedEvent, 0, len(raws))
	var last *domain.PairCreatedEvent
	// Newest first from upstream; emit oldest first.
	for i := len(raws) - 1; i >= 0; i-- {
		ev, err := DecodePairCreated(raws[i], domain.FeedSourcePolling)
		if err != nil {
			s.log.Warn().Err(err).Str("tx", raws[i].TxHash).Msg("skipping log")
			if s.observer != nil {
				s.observer.ObserveMalformed(domain.FeedSourcePolling)
			}
			continue
		}
		if s.observer != nil {
			s.observer.ObserveEvent(domain.FeedSourcePolling)
		}
		events = append(events, ev)
		if ev.BlockNumber > s.lastBlock {
			s.lastBlock = ev.BlockNumber
			last = ev
		}
	}

	if last != nil && s.progress != nil {
		err := s.progress.SetLastProcessed(ctx, &storage.FeedProgress{BlockNumber: last.BlockNumber, TxHash: last.TxHash})
		if err != nil {
			s.log.Warn().Err(err).Msg("persist feed cursor")
		}
	}
	return events, nil
}

// LastBlock returns the cursor.
func (s *PollingPairSource) LastBlock() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBlock
}

func (s *PollingPairSource) loadCursor(ctx context.Context) {
	s.loaded = true
	if s.progress == nil {
		return
	}
	p, err := s.progress.GetLastProcessed(ctx)
	switch {
	case err == nil:
		s.lastBlock = p.BlockNumber
		s.log.Info().Uint64("block", p.BlockNumber).Msg("resuming from cursor")
	case errors.Is(err, storage.ErrNotFound):
	default:
		s.log.Warn().Err(err).Msg("load feed cursor")
	}
}
