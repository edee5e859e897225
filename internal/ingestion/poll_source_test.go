package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/evm"
	"bsc-token-scout/internal/explorer"
	"bsc-token-scout/internal/retry"
	"bsc-token-scout/internal/storage"
	"bsc-token-scout/internal/storage/memory"
)

type fakeExplorer struct {
	mu      sync.Mutex
	logs    []evm.RawLog // newest first
	queries []seenQuery
	failing bool
}

type seenQuery struct {
	from   string
	offset string
}

func (f *fakeExplorer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		q := r.URL.Query()
		assert.Equal(t, "getLogs", q.Get("action"))
		assert.Equal(t, "desc", q.Get("sort"))
		f.queries = append(f.queries, seenQuery{from: q.Get("fromBlock"), offset: q.Get("offset")})

		if f.failing {
			w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Invalid API Key"}`))
			return
		}

		var from uint64
		fmt.Sscan(q.Get("fromBlock"), &from)
		var entries []map[string]any
		for _, l := range f.logs {
			if l.BlockNumber < from {
				continue
			}
			entries = append(entries, map[string]any{
				"address":         l.Address,
				"topics":          l.Topics,
				"data":            l.Data,
				"blockNumber":     fmt.Sprintf("0x%x", l.BlockNumber),
				"timeStamp":       "1700000000",
				"transactionHash": l.TxHash,
			})
		}
		if len(entries) == 0 {
			w.Write([]byte(`{"status":"0","message":"No records found","result":[]}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "1", "message": "OK", "result": entries})
	}
}

func newPollSource(t *testing.T, f *fakeExplorer, progress storage.FeedProgressStore) *PollingPairSource {
	t.Helper()
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)
	client := explorer.NewHTTPClient(server.URL, "KEY",
		explorer.WithRetryPolicy(retry.Policy{Attempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))
	return NewPollingPairSource(client, factory, PollSourceOptions{
		Interval: 10 * time.Millisecond,
		Progress: progress,
		Logger:   zerolog.Nop(),
	})
}

func TestPollingPairSource_OldestFirstAndCursor(t *testing.T) {
	ctx := context.Background()
	progress := memory.NewFeedProgressStore()
	f := &fakeExplorer{logs: []evm.RawLog{
		pairLog(wbnb, busd, 12, "0xc"),
		pairLog(newTok, wbnb, 11, "0xb"),
		pairLog(wbnb, newTok, 10, "0xa"),
	}}
	src := newPollSource(t, f, progress)

	events, err := src.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "0xa", events[0].TxHash)
	assert.Equal(t, "0xc", events[2].TxHash)
	assert.Equal(t, int64(1_700_000_000_000), events[0].Timestamp)
	assert.Equal(t, domain.FeedSourcePolling, events[0].Source)
	assert.Equal(t, uint64(12), src.LastBlock())

	p, err := progress.GetLastProcessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), p.BlockNumber)
	assert.Equal(t, "0xc", p.TxHash)

	events, err = src.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)

	f.mu.Lock()
	assert.Equal(t, "0", f.queries[0].from)
	assert.Equal(t, "10", f.queries[0].offset)
	assert.Equal(t, "13", f.queries[1].from)
	f.mu.Unlock()
}

func TestPollingPairSource_ResumesFromStoredCursor(t *testing.T) {
	ctx := context.Background()
	progress := memory.NewFeedProgressStore()
	require.NoError(t, progress.SetLastProcessed(ctx, &storage.FeedProgress{BlockNumber: 11, TxHash: "0xb"}))

	f := &fakeExplorer{logs: []evm.RawLog{
		pairLog(wbnb, busd, 12, "0xc"),
		pairLog(newTok, wbnb, 11, "0xb"),
	}}
	src := newPollSource(t, f, progress)

	events, err := src.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "0xc", events[0].TxHash)
}

func TestPollingPairSource_UpstreamErrorKeepsPolling(t *testing.T) {
	f := &fakeExplorer{failing: true}
	src := newPollSource(t, f, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out, err := src.Subscribe(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.queries) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	f.mu.Lock()
	f.failing = false
	f.logs = []evm.RawLog{pairLog(wbnb, newTok, 5, "0xa")}
	f.mu.Unlock()

	ev := receive(t, out)
	assert.Equal(t, "0xa", ev.TxHash)

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-out
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}
