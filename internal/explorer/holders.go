package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bsc-token-scout/internal/retry"
)

// DefaultHolderPageSize is the number of holders requested per call.
const DefaultHolderPageSize = 100

// RawHolder is a holder row normalized across upstream variants.
type RawHolder struct {
	Address string
	Balance string
}

// HolderSource lists the top holders of a token.
type HolderSource interface {
	Holders(ctx context.Context, token string, limit int) ([]RawHolder, error)
}

type holderListEntry struct {
	TokenHolderAddress  string `json:"TokenHolderAddress"`
	TokenHolderQuantity string `json:"TokenHolderQuantity"`
}

// TokenHolderList calls module=token&action=tokenholderlist for the first page.
func (c *HTTPClient) TokenHolderList(ctx context.Context, token string, limit int) ([]RawHolder, error) {
	if limit <= 0 {
		limit = DefaultHolderPageSize
	}
	params := url.Values{}
	params.Set("module", "token")
	params.Set("action", "tokenholderlist")
	params.Set("contractaddress", token)
	params.Set("page", "1")
	params.Set("offset", strconv.Itoa(limit))

	var entries []holderListEntry
	if err := c.get(ctx, params, &entries); err != nil {
		return nil, fmt.Errorf("tokenholderlist: %w", err)
	}

	out := make([]RawHolder, 0, len(entries))
	for _, e := range entries {
		out = append(out, RawHolder{
			Address: strings.ToLower(e.TokenHolderAddress),
			Balance: e.TokenHolderQuantity,
		})
	}
	return out, nil
}

// ExplorerHolderSource adapts the BscScan holder list.
type ExplorerHolderSource struct {
	Client *HTTPClient
}

// Holders implements HolderSource.
func (s ExplorerHolderSource) Holders(ctx context.Context, token string, limit int) ([]RawHolder, error) {
	return s.Client.TokenHolderList(ctx, token, limit)
}

// IndexerHolderSource adapts an indexer exposing
// GET {endpoint}/tokens/{address}/holders?limit=N → [{address, balance}].
// A wrapped {"result": [...]} body is accepted as well.
type IndexerHolderSource struct {
	endpoint string
	client   *http.Client
	policy   retry.Policy
}

// NewIndexerHolderSource creates an indexer adapter.
func NewIndexerHolderSource(endpoint string, client *http.Client, policy retry.Policy) *IndexerHolderSource {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &IndexerHolderSource{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
		policy:   policy,
	}
}

type indexerHolder struct {
	Address string          `json:"address"`
	Balance json.RawMessage `json:"balance"`
}

// Holders implements HolderSource.
func (s *IndexerHolderSource) Holders(ctx context.Context, token string, limit int) ([]RawHolder, error) {
	if limit <= 0 {
		limit = DefaultHolderPageSize
	}
	u := fmt.Sprintf("%s/tokens/%s/holders?limit=%d", s.endpoint, url.PathEscape(token), limit)

	rows, err := retry.DoValue(ctx, s.policy, func(ctx context.Context) ([]indexerHolder, error) {
		return s.fetch(ctx, u)
	})
	if err != nil {
		return nil, fmt.Errorf("indexer holders: %w", err)
	}

	out := make([]RawHolder, 0, len(rows))
	for _, r := range rows {
		out = append(out, RawHolder{
			Address: strings.ToLower(r.Address),
			Balance: balanceString(r.Balance),
		})
	}
	return out, nil
}

func (s *IndexerHolderSource) fetch(ctx context.Context, u string) ([]indexerHolder, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, retry.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var rows []indexerHolder
	if err := json.Unmarshal(body, &rows); err == nil {
		return rows, nil
	}
	var wrapped struct {
		Result []indexerHolder `json:"result"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, retry.Permanent(fmt.Errorf("unmarshal holders: %w", err))
	}
	return wrapped.Result, nil
}

// balanceString accepts a JSON string or number.
func balanceString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
