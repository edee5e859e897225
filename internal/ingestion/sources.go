// Package ingestion feeds pair-creation events from a node subscription or an
// explorer poller into the resolver and the analysis queue.
package ingestion

import (
	"context"
	"errors"
	"fmt"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/evm"
)

// ErrMalformedLog is returned by DecodePairCreated for logs that are not a
// well-formed PairCreated event.
var ErrMalformedLog = errors.New("malformed pair created log")

// PairSource produces pair-creation events. The channel is closed when ctx is
// cancelled.
type PairSource interface {
	Subscribe(ctx context.Context) (<-chan *domain.PairCreatedEvent, error)
}

// Observer receives feed telemetry. Nil-safe.
type Observer interface {
	ObserveEvent(source domain.FeedSource)
	ObserveMalformed(source domain.FeedSource)
	ObserveSkip(reason string)
	ObserveCandidate()
}

// DecodePairCreated decodes a factory PairCreated log:
// topics [sig, token0, token1], data [pair, index].
func DecodePairCreated(raw evm.RawLog, source domain.FeedSource) (*domain.PairCreatedEvent, error) {
	if len(raw.Topics) < 3 {
		return nil, fmt.Errorf("%w: %d topics", ErrMalformedLog, len(raw.Topics))
	}
	if !equalHex(raw.Topics[0], evm.PairCreatedTopic.Hex()) {
		return nil, fmt.Errorf("%w: topic0 %s", ErrMalformedLog, raw.Topics[0])
	}
	token0, err := evm.TopicAddress(raw.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("%w: token0: %v", ErrMalformedLog, err)
	}
	token1, err := evm.TopicAddress(raw.Topics[2])
	if err != nil {
		return nil, fmt.Errorf("%w: token1: %v", ErrMalformedLog, err)
	}
	pair, err := evm.WordAddress(raw.Data, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: pair: %v", ErrMalformedLog, err)
	}
	if raw.TxHash == "" {
		return nil, fmt.Errorf("%w: missing tx hash", ErrMalformedLog)
	}

	return &domain.PairCreatedEvent{
		Token0:      evm.Lower(token0),
		Token1:      evm.Lower(token1),
		PairAddress: evm.Lower(pair),
		BlockNumber: raw.BlockNumber,
		TxHash:      domain.CanonicalAddress(raw.TxHash),
		Timestamp:   raw.Timestamp * 1000,
		Source:      source,
	}, nil
}

func equalHex(a, b string) bool {
	return domain.CanonicalAddress(a) == domain.CanonicalAddress(b)
}
