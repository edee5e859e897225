// Package discovery turns pair-creation events into candidate token addresses.
package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"bsc-token-scout/internal/config"
	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/storage"
)

// Skip reasons reported by Decide.
const (
	SkipDuplicateTx  = "duplicate_tx"
	SkipEstablished  = "established_pair"
	SkipInvalidEvent = "invalid_event"
)

// Decision is the outcome of resolving one event.
type Decision struct {
	Candidate string // empty when skipped
	Reason    string // skip reason, empty for a candidate
}

// Resolver picks the new token out of a pair. It is safe for concurrent use.
type Resolver struct {
	chain config.Chain
	dedup *TxDedup
	log   zerolog.Logger
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	DedupCapacity     int
	FalsePositiveRate float64
	Logger            zerolog.Logger
}

// NewResolver creates a resolver for chain.
func NewResolver(chain config.Chain, opts ResolverOptions) *Resolver {
	return &Resolver{
		chain: chain,
		dedup: NewTxDedup(opts.DedupCapacity, opts.FalsePositiveRate),
		log:   opts.Logger.With().Str("component", "resolver").Logger(),
	}
}

// Warm marks every transaction already recorded in progress as seen.
func (r *Resolver) Warm(ctx context.Context, progress storage.FeedProgressStore) (int, error) {
	txs, err := progress.LoadSeenTxs(ctx)
	if err != nil {
		return 0, fmt.Errorf("load seen txs: %w", err)
	}
	for _, tx := range txs {
		r.dedup.Add(strings.ToLower(tx))
	}
	return len(txs), nil
}

// Resolve returns the candidate address for ev, or false to skip it.
func (r *Resolver) Resolve(ev *domain.PairCreatedEvent) (string, bool) {
	d := r.Decide(ev)
	return d.Candidate, d.Candidate != ""
}

// Decide resolves ev and reports why it was skipped. A transaction hash is
// consumed on first sight whatever the outcome.
func (r *Resolver) Decide(ev *domain.PairCreatedEvent) Decision {
	if ev == nil || ev.TxHash == "" ||
		!domain.IsValidAddress(ev.Token0) || !domain.IsValidAddress(ev.Token1) {
		return Decision{Reason: SkipInvalidEvent}
	}
	if !r.dedup.Add(strings.ToLower(ev.TxHash)) {
		return Decision{Reason: SkipDuplicateTx}
	}

	token0 := domain.CanonicalAddress(ev.Token0)
	token1 := domain.CanonicalAddress(ev.Token1)

	if r.known(token0) && r.known(token1) {
		r.log.Debug().Str("token0", token0).Str("token1", token1).Msg("established pair skipped")
		return Decision{Reason: SkipEstablished}
	}

	var candidate string
	switch {
	case r.chain.IsBase(token0):
		candidate = token1
	case r.chain.IsBase(token1):
		candidate = token0
	case r.chain.IsEstablished(token0):
		candidate = token1
	default:
		candidate = token0
	}
	return Decision{Candidate: candidate}
}

// DedupStats reports the transaction dedup set.
func (r *Resolver) DedupStats() DedupStats {
	return r.dedup.Stats()
}

func (r *Resolver) known(addr string) bool {
	return r.chain.IsBase(addr) || r.chain.IsEstablished(addr)
}
