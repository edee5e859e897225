package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/evm"
)

func TestDecodePairCreated(t *testing.T) {
	raw := pairLog(wbnb, newTok, 38_000_001, "0xABC")
	raw.Timestamp = 1_700_000_000

	ev, err := DecodePairCreated(raw, domain.FeedSourcePolling)
	require.NoError(t, err)
	assert.Equal(t, wbnb, ev.Token0)
	assert.Equal(t, newTok, ev.Token1)
	assert.Equal(t, pair, ev.PairAddress)
	assert.Equal(t, uint64(38_000_001), ev.BlockNumber)
	assert.Equal(t, "0xabc", ev.TxHash)
	assert.Equal(t, int64(1_700_000_000_000), ev.Timestamp)
	assert.Equal(t, domain.FeedSourcePolling, ev.Source)
}

func TestDecodePairCreated_Malformed(t *testing.T) {
	tests := map[string]func(l *evm.RawLog){
		"too few topics": func(l *evm.RawLog) { l.Topics = l.Topics[:2] },
		"wrong event":    func(l *evm.RawLog) { l.Topics[0] = topic(wbnb) },
		"bad topic":      func(l *evm.RawLog) { l.Topics[1] = "0xzz" },
		"short data":     func(l *evm.RawLog) { l.Data = "0x01" },
		"missing tx":     func(l *evm.RawLog) { l.TxHash = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			raw := pairLog(wbnb, newTok, 1, "0x1")
			mutate(&raw)
			_, err := DecodePairCreated(raw, domain.FeedSourceWebsocket)
			assert.ErrorIs(t, err, ErrMalformedLog)
		})
	}
}
