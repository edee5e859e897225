package storage

import "context"

// FeedProgress is the last block the polling feed has consumed.
type FeedProgress struct {
	BlockNumber uint64 // last processed block
	TxHash      string // last processed transaction hash in that block
}

// FeedProgressStore persists event feed state so a restart neither replays
// nor skips pair-creation events.
type FeedProgressStore interface {
	// GetLastProcessed returns the last processed block and tx hash.
	// Returns ErrNotFound if no progress has been saved yet.
	GetLastProcessed(ctx context.Context) (*FeedProgress, error)

	// SetLastProcessed saves the last processed block and tx hash.
	SetLastProcessed(ctx context.Context, progress *FeedProgress) error

	// IsTxSeen checks if a pair-creation transaction has been processed.
	IsTxSeen(ctx context.Context, txHash string) (bool, error)

	// MarkTxSeen records that a pair-creation transaction has been processed.
	MarkTxSeen(ctx context.Context, txHash string) error

	// LoadSeenTxs returns all seen tx hashes (for warming the resolver).
	LoadSeenTxs(ctx context.Context) ([]string, error)
}
