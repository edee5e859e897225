package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-token-scout/internal/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestBinance_BasePrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BNBUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"symbol":"BNBUSDT","price":"612.34000000"}`))
	}))
	defer server.Close()

	b := NewBinance(server.URL, "BNBUSDT", WithRetryPolicy(fastPolicy()))
	price, err := b.BasePrice(context.Background())
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("612.34")))
}

func TestBinance_BadPrice(t *testing.T) {
	for _, body := range []string{`{"price":"abc"}`, `{"price":"0"}`, `{}`} {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Write([]byte(body))
		}))

		b := NewBinance(server.URL, "BNBUSDT", WithRetryPolicy(fastPolicy()))
		_, err := b.BasePrice(context.Background())
		assert.ErrorIs(t, err, ErrBadPrice, body)
		assert.Equal(t, 1, calls, body)
		server.Close()
	}
}

func TestBinance_ServerErrorRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	b := NewBinance(server.URL, "BNBUSDT", WithRetryPolicy(fastPolicy()))
	_, err := b.BasePrice(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestStatic(t *testing.T) {
	p, err := Static(decimal.NewFromInt(300)).BasePrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "300", p.String())
}
