// Package explorer is a client for BscScan-compatible explorer APIs.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bsc-token-scout/internal/retry"
)

// Default configuration values.
const (
	DefaultTimeout = 15 * time.Second
)

// Explorer errors.
var (
	// ErrUpstreamStatus is returned for a status "0" envelope that is neither
	// an empty result nor a rate limit.
	ErrUpstreamStatus = errors.New("explorer returned error status")
	// ErrRateLimited is returned when the explorer throttles the caller.
	ErrRateLimited = errors.New("explorer rate limited")
)

// Observer receives per-request telemetry. Nil-safe.
type Observer interface {
	ObserveExplorer(action string, d time.Duration, err error)
}

// HTTPClient implements the explorer API over HTTP GET.
type HTTPClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
	policy   retry.Policy
	observer Observer
	log      zerolog.Logger
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p retry.Policy) ClientOption {
	return func(c *HTTPClient) {
		c.policy = p
	}
}

// WithObserver attaches a telemetry sink.
func WithObserver(o Observer) ClientOption {
	return func(c *HTTPClient) {
		c.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *HTTPClient) {
		c.log = l.With().Str("component", "explorer").Logger()
	}
}

// NewHTTPClient creates a new explorer client.
func NewHTTPClient(endpoint, apiKey string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: DefaultTimeout},
		policy:   retry.DefaultPolicy(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithPolicy returns a client sharing c's transport but retrying under p.
func (c *HTTPClient) WithPolicy(p retry.Policy) *HTTPClient {
	cp := *c
	cp.policy = p
	return &cp
}

// envelope is the common response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// get performs a GET with retries. An empty-result envelope leaves result untouched.
func (c *HTTPClient) get(ctx context.Context, params url.Values, result interface{}) error {
	params.Set("apikey", c.apiKey)
	action := params.Get("action")

	start := time.Now()
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		return c.getOnce(ctx, params, result)
	})
	if c.observer != nil {
		c.observer.ObserveExplorer(action, time.Since(start), err)
	}
	if err != nil {
		c.log.Debug().Err(err).Str("action", action).Msg("explorer request failed")
	}
	return err
}

func (c *HTTPClient) getOnce(ctx context.Context, params url.Values, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return retry.Permanent(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body)))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return retry.Permanent(fmt.Errorf("unmarshal response: %w", err))
	}

	if env.Status != "1" {
		detail := strings.ToLower(env.Message + " " + string(env.Result))
		switch {
		case strings.Contains(detail, "no records found"),
			strings.Contains(detail, "no transactions found"),
			strings.Contains(detail, "no token holders"):
			return nil
		case strings.Contains(detail, "rate limit"):
			return ErrRateLimited
		default:
			return retry.Permanent(fmt.Errorf("%w: %s", ErrUpstreamStatus, truncate([]byte(env.Message+" "+string(env.Result)))))
		}
	}

	if result != nil {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return retry.Permanent(fmt.Errorf("unmarshal result: %w", err))
		}
	}
	return nil
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
