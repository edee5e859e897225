package ingestion

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/evm"
)

const (
	factory = "0xca143ce32fe78f1f7019d7d551a6402fc5350c73"
	wbnb    = "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c"
	busd    = "0xe9e7cea3dedca5984780bafc599bd69add087d56"
	newTok  = "0x1234567890abcdef1234567890abcdef12345678"
	pair    = "0x00000000000000000000000000000000000000aa"
)

func topic(addr string) string {
	return "0x" + strings.Repeat("0", 24) + strings.TrimPrefix(addr, "0x")
}

func word(addr string) string {
	return strings.Repeat("0", 24) + strings.TrimPrefix(addr, "0x")
}

func pairLog(token0, token1 string, block uint64, tx string) evm.RawLog {
	return evm.RawLog{
		Address:     factory,
		Topics:      []string{evm.PairCreatedTopic.Hex(), topic(token0), topic(token1)},
		Data:        "0x" + word(pair) + fmt.Sprintf("%064x", 7),
		BlockNumber: block,
		TxHash:      tx,
	}
}

type recordingObserver struct {
	mu         sync.Mutex
	events     map[domain.FeedSource]int
	malformed  int
	skips      map[string]int
	candidates int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{events: map[domain.FeedSource]int{}, skips: map[string]int{}}
}

func (o *recordingObserver) ObserveEvent(s domain.FeedSource) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events[s]++
}

func (o *recordingObserver) ObserveMalformed(domain.FeedSource) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.malformed++
}

func (o *recordingObserver) ObserveSkip(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skips[reason]++
}

func (o *recordingObserver) ObserveCandidate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.candidates++
}

type fakeSubscriber struct {
	ch     chan evm.RawLog
	filter evm.LogFilter
	err    error
}

func (f *fakeSubscriber) SubscribeLogs(_ context.Context, filter evm.LogFilter) (<-chan evm.RawLog, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.filter = filter
	return f.ch, nil
}
