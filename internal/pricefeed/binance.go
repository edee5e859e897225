// Package pricefeed reads the USD price of the chain's base asset.
package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"bsc-token-scout/internal/retry"
)

// DefaultURL is the Binance spot ticker endpoint.
const DefaultURL = "https://api.binance.com/api/v3/ticker/price"

// ErrBadPrice is returned for a missing, unparsable or non-positive price.
var ErrBadPrice = errors.New("invalid price")

// Source returns the current USD price of the base asset.
type Source interface {
	BasePrice(ctx context.Context) (decimal.Decimal, error)
}

// Binance reads a symbol price from the Binance ticker.
type Binance struct {
	endpoint string
	symbol   string
	client   *http.Client
	policy   retry.Policy
}

// Option configures Binance.
type Option func(*Binance)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Binance) {
		b.client = c
	}
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(b *Binance) {
		b.policy = p
	}
}

// NewBinance creates a ticker reader for symbol (e.g. BNBUSDT).
func NewBinance(endpoint, symbol string, opts ...Option) *Binance {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	b := &Binance{
		endpoint: endpoint,
		symbol:   symbol,
		client:   &http.Client{Timeout: 10 * time.Second},
		policy:   retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// BasePrice implements Source.
func (b *Binance) BasePrice(ctx context.Context) (decimal.Decimal, error) {
	return retry.DoValue(ctx, b.policy, b.fetch)
}

func (b *Binance) fetch(ctx context.Context) (decimal.Decimal, error) {
	u := b.endpoint + "?symbol=" + url.QueryEscape(b.symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("http request: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return decimal.Zero, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var ticker tickerResponse
	if err := json.Unmarshal(body, &ticker); err != nil {
		return decimal.Zero, retry.Permanent(fmt.Errorf("unmarshal ticker: %w", err))
	}
	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Zero, retry.Permanent(fmt.Errorf("%w: %q", ErrBadPrice, ticker.Price))
	}
	if !price.IsPositive() {
		return decimal.Zero, retry.Permanent(fmt.Errorf("%w: %s", ErrBadPrice, price))
	}
	return price, nil
}

// Static is a fixed price source.
type Static decimal.Decimal

// BasePrice implements Source.
func (s Static) BasePrice(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(s), nil
}
