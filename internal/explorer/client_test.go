package explorer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-token-scout/internal/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return NewHTTPClient(server.URL, "KEY", WithRetryPolicy(fastPolicy())), &calls
}

func TestGetLogs(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "logs", q.Get("module"))
		assert.Equal(t, "getLogs", q.Get("action"))
		assert.Equal(t, "KEY", q.Get("apikey"))
		assert.Equal(t, "101", q.Get("fromBlock"))
		assert.Equal(t, "latest", q.Get("toBlock"))
		assert.Equal(t, "desc", q.Get("sort"))
		assert.Equal(t, "10", q.Get("offset"))
		w.Write([]byte(`{"status":"1","message":"OK","result":[
			{"address":"0xf","topics":["0xa","0xb","0xc"],"data":"0x01","blockNumber":"0x66","timeStamp":"0x5f5e100","transactionHash":"0xt"}
		]}`))
	})

	logs, err := client.GetLogs(context.Background(), LogQuery{
		Address: "0xf", Topic0: "0xa", FromBlock: 101, Page: 1, Offset: 10, Desc: true,
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, uint64(102), logs[0].BlockNumber)
	assert.Equal(t, int64(100000000), logs[0].Timestamp)
	assert.Equal(t, "0xt", logs[0].TxHash)
	assert.Len(t, logs[0].Topics, 3)
}

func TestGetLogs_NoRecordsIsEmpty(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0","message":"No records found","result":[]}`))
	})

	logs, err := client.GetLogs(context.Background(), LogQuery{Address: "0xf"})
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_RateLimitIsRetried(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`))
	})

	_, err := client.GetLogs(context.Background(), LogQuery{Address: "0xf"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_ErrorStatusIsPermanent(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Invalid API Key"}`))
	})

	_, err := client.GetLogs(context.Background(), LogQuery{Address: "0xf"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamStatus))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_ServerErrorRetriesThenSucceeds(t *testing.T) {
	var n atomic.Int32
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"status":"1","message":"OK","result":[]}`))
	})

	_, err := client.GetLogs(context.Background(), LogQuery{Address: "0xf"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_ClientErrorIsPermanent(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.GetLogs(context.Background(), LogQuery{Address: "0xf"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTokenTransfers(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "account", q.Get("module"))
		assert.Equal(t, "tokentx", q.Get("action"))
		assert.Equal(t, "0xpair", q.Get("address"))
		w.Write([]byte(`{"status":"1","message":"OK","result":[
			{"hash":"0x1","from":"0xAB","to":"0xCD","contractAddress":"0xPAIR","value":"5","timeStamp":"1700000000"},
			{"hash":"0x2","from":"0xAB","to":"0xCD","contractAddress":"0xPAIR","value":"5","timeStamp":"bogus"}
		]}`))
	})

	transfers, err := client.TokenTransfers(context.Background(), "0xpair")
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "0xcd", transfers[0].To)
	assert.Equal(t, "0xpair", transfers[0].ContractAddress)
	assert.Equal(t, int64(1700000000), transfers[0].Timestamp)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"0x10", 16, false},
		{"16", 16, false},
		{"", 0, true},
		{"0xzz", 0, true},
	}
	for _, tt := range tests {
		got, err := parseNumber(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
