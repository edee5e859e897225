package explorer

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"bsc-token-scout/internal/evm"
)

// LogQuery selects logs from the explorer getLogs endpoint.
type LogQuery struct {
	Address   string
	Topic0    string
	FromBlock uint64
	// ToBlock of zero means "latest".
	ToBlock uint64
	Page    int
	Offset  int
	// Desc sorts newest first.
	Desc bool
}

type logEntry struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TimeStamp       string   `json:"timeStamp"`
	TransactionHash string   `json:"transactionHash"`
}

// GetLogs fetches logs matching q. Entries with unparsable numbers are rejected
// as a whole response since the cursor depends on them.
func (c *HTTPClient) GetLogs(ctx context.Context, q LogQuery) ([]evm.RawLog, error) {
	params := url.Values{}
	params.Set("module", "logs")
	params.Set("action", "getLogs")
	params.Set("address", q.Address)
	if q.Topic0 != "" {
		params.Set("topic0", q.Topic0)
	}
	params.Set("fromBlock", strconv.FormatUint(q.FromBlock, 10))
	if q.ToBlock == 0 {
		params.Set("toBlock", "latest")
	} else {
		params.Set("toBlock", strconv.FormatUint(q.ToBlock, 10))
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Desc {
		params.Set("sort", "desc")
	} else {
		params.Set("sort", "asc")
	}

	var entries []logEntry
	if err := c.get(ctx, params, &entries); err != nil {
		return nil, fmt.Errorf("getLogs: %w", err)
	}

	logs := make([]evm.RawLog, 0, len(entries))
	for _, e := range entries {
		block, err := parseNumber(e.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("getLogs: block number %q: %w", e.BlockNumber, err)
		}
		var ts uint64
		if e.TimeStamp != "" {
			ts, err = parseNumber(e.TimeStamp)
			if err != nil {
				return nil, fmt.Errorf("getLogs: timestamp %q: %w", e.TimeStamp, err)
			}
		}
		logs = append(logs, evm.RawLog{
			Address:     e.Address,
			Topics:      e.Topics,
			Data:        e.Data,
			BlockNumber: block,
			TxHash:      e.TransactionHash,
			Timestamp:   int64(ts),
		})
	}
	return logs, nil
}

// parseNumber accepts both hex ("0x1a") and decimal quantities; explorers mix them.
func parseNumber(s string) (uint64, error) {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return hexutil.DecodeUint64(s)
	}
	return strconv.ParseUint(s, 10, 64)
}
