package ingestion

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/evm"
)

// LogSubscriber opens a log subscription. Satisfied by *evm.WSClient.
type LogSubscriber interface {
	SubscribeLogs(ctx context.Context, filter evm.LogFilter) (<-chan evm.RawLog, error)
}

// HeaderSource looks up block headers. Satisfied by *evm.Pool.
type HeaderSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// headerTimeout bounds a single block timestamp lookup.
const headerTimeout = 5 * time.Second

// WSPairSource streams PairCreated events from a node subscription.
type WSPairSource struct {
	ws       LogSubscriber
	headers  HeaderSource
	factory  string
	observer Observer
	now      func() time.Time
	log      zerolog.Logger

	lastBlock uint64
	lastTime  int64
}

// WSSourceOptions configures a WSPairSource.
type WSSourceOptions struct {
	Headers  HeaderSource // optional; without it events carry receipt time
	Observer Observer
	Now      func() time.Time
	Logger   zerolog.Logger
}

// NewWSPairSource creates a push source for factory.
func NewWSPairSource(ws LogSubscriber, factory string, opts WSSourceOptions) *WSPairSource {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &WSPairSource{
		ws:       ws,
		headers:  opts.Headers,
		factory:  factory,
		observer: opts.Observer,
		now:      opts.Now,
		log:      opts.Logger.With().Str("component", "ws_feed").Logger(),
	}
}

// Subscribe implements PairSource.
func (s *WSPairSource) Subscribe(ctx context.Context) (<-chan *domain.PairCreatedEvent, error) {
	logs, err := s.ws.SubscribeLogs(ctx, evm.LogFilter{
		Addresses: []string{s.factory},
		Topics:    []string{evm.PairCreatedTopic.Hex()},
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("factory", s.factory).Msg("subscribed to pair creation logs")

	out := make(chan *domain.PairCreatedEvent, 100)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-logs:
				if !ok {
					s.log.Warn().Msg("log subscription closed")
					return
				}
				ev, err := DecodePairCreated(raw, domain.FeedSourceWebsocket)
				if err != nil {
					s.log.Warn().Err(err).Str("tx", raw.TxHash).Msg("skipping log")
					if s.observer != nil {
						s.observer.ObserveMalformed(domain.FeedSourceWebsocket)
					}
					continue
				}
				ev.Timestamp = s.blockTime(ctx, ev.BlockNumber)
				if s.observer != nil {
					s.observer.ObserveEvent(domain.FeedSourceWebsocket)
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// blockTime returns the block timestamp in Unix ms, falling back to now.
func (s *WSPairSource) blockTime(ctx context.Context, block uint64) int64 {
	if block != 0 && block == s.lastBlock {
		return s.lastTime
	}
	if s.headers == nil || block == 0 {
		return s.now().UnixMilli()
	}

	hctx, cancel := context.WithTimeout(ctx, headerTimeout)
	defer cancel()
	h, err := s.headers.HeaderByNumber(hctx, new(big.Int).SetUint64(block))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Debug().Err(err).Uint64("block", block).Msg("block header unavailable")
		}
		return s.now().UnixMilli()
	}
	s.lastBlock = block
	s.lastTime = int64(h.Time) * 1000
	return s.lastTime
}
