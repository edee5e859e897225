package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RawLog is a log entry as delivered by either a node subscription or an
// explorer getLogs response, before event-specific decoding.
type RawLog struct {
	Address     string
	Topics      []string
	Data        string
	BlockNumber uint64
	TxHash      string
	Timestamp   int64 // Unix seconds, 0 when the source does not carry it
}

// wsLog is the JSON shape of a log inside an eth_subscription notification.
type wsLog struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	Removed         bool     `json:"removed"`
}

func (l wsLog) toRaw() (RawLog, error) {
	raw := RawLog{
		Address: l.Address,
		Topics:  l.Topics,
		Data:    l.Data,
		TxHash:  l.TransactionHash,
	}
	if l.BlockNumber != "" {
		n, err := hexutil.DecodeUint64(l.BlockNumber)
		if err != nil {
			return RawLog{}, fmt.Errorf("block number %q: %w", l.BlockNumber, err)
		}
		raw.BlockNumber = n
	}
	return raw, nil
}

// TopicAddress extracts the address packed into an indexed topic.
func TopicAddress(topic string) (common.Address, error) {
	b, err := hexutil.Decode(topic)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode topic: %w", err)
	}
	if len(b) != common.HashLength {
		return common.Address{}, fmt.Errorf("topic length %d", len(b))
	}
	return common.BytesToAddress(b[12:]), nil
}

// WordAddress extracts the address packed into the n-th 32-byte word of data.
func WordAddress(data string, n int) (common.Address, error) {
	b, err := hexutil.Decode(data)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode data: %w", err)
	}
	end := (n + 1) * 32
	if len(b) < end {
		return common.Address{}, fmt.Errorf("data length %d, need %d", len(b), end)
	}
	return common.BytesToAddress(b[end-20 : end]), nil
}

// Lower renders an address in canonical lowercase hex.
func Lower(a common.Address) string {
	return strings.ToLower(a.Hex())
}
