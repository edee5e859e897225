package domain

// FeedSource identifies which event feed strategy produced an event.
type FeedSource string

const (
	FeedSourceWebsocket FeedSource = "websocket"
	FeedSourcePolling   FeedSource = "polling"
)

// String returns the string representation of FeedSource.
func (s FeedSource) String() string {
	return string(s)
}

// IsValid checks if the source is a valid value.
func (s FeedSource) IsValid() bool {
	return s == FeedSourceWebsocket || s == FeedSourcePolling
}

// ConnectionState is the lifecycle state of a push feed connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// PairCreatedEvent is a decoded factory PairCreated log.
type PairCreatedEvent struct {
	Token0      string
	Token1      string
	PairAddress string
	BlockNumber uint64
	TxHash      string
	Timestamp   int64 // Unix ms
	Source      FeedSource
}

// CacheEntry is one analysis cache record.
type CacheEntry struct {
	Timestamp int64    `json:"timestamp"` // Unix ms
	Analysis  Analysis `json:"data"`
}
