package explorer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// TokenTransfer is one row of the account tokentx listing.
type TokenTransfer struct {
	Hash            string
	From            string
	To              string
	ContractAddress string
	Value           string
	// Timestamp is Unix seconds.
	Timestamp int64
}

type transferEntry struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
	Value           string `json:"value"`
	TimeStamp       string `json:"timeStamp"`
}

// TokenTransfers lists BEP-20 transfers involving address, newest first.
// Addresses in the result are lowercase. Rows with an unparsable timestamp are skipped.
func (c *HTTPClient) TokenTransfers(ctx context.Context, address string) ([]TokenTransfer, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "tokentx")
	params.Set("address", address)
	params.Set("sort", "desc")

	var entries []transferEntry
	if err := c.get(ctx, params, &entries); err != nil {
		return nil, fmt.Errorf("tokentx: %w", err)
	}

	out := make([]TokenTransfer, 0, len(entries))
	for _, e := range entries {
		ts, err := parseNumber(e.TimeStamp)
		if err != nil {
			c.log.Debug().Str("tx", e.Hash).Str("timestamp", e.TimeStamp).Msg("skip transfer with bad timestamp")
			continue
		}
		out = append(out, TokenTransfer{
			Hash:            e.Hash,
			From:            strings.ToLower(e.From),
			To:              strings.ToLower(e.To),
			ContractAddress: strings.ToLower(e.ContractAddress),
			Value:           e.Value,
			Timestamp:       int64(ts),
		})
	}
	return out, nil
}
