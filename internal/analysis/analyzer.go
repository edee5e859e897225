// Package analysis assembles a token Analysis from liquidity, holder,
// contract, distribution and social sub-analyzers.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"bsc-token-scout/internal/domain"
)

// ErrInvalidAddress is returned for malformed addresses.
var ErrInvalidAddress = errors.New("invalid address")

// MetadataSource resolves token metadata.
type MetadataSource interface {
	Fetch(ctx context.Context, address string) (*domain.TokenMetadata, error)
}

// Analyzer runs every sub-analyzer for one token. Sub-analyzer failures
// degrade to zero values and never fail the analysis.
type Analyzer struct {
	metadata     MetadataSource
	liquidity    *LiquidityAnalyzer
	holders      *HolderAnalyzer
	contract     ContractAnalyzer
	distribution DistributionAnalyzer
	social       SocialAnalyzer
	now          func() time.Time
	log          zerolog.Logger
}

// Options configures Analyzer. Nil analyzers fall back to placeholders.
type Options struct {
	Contract     ContractAnalyzer
	Distribution DistributionAnalyzer
	Social       SocialAnalyzer
	Now          func() time.Time
	Logger       zerolog.Logger
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(metadata MetadataSource, liquidity *LiquidityAnalyzer, holders *HolderAnalyzer, opts Options) *Analyzer {
	if opts.Contract == nil {
		opts.Contract = PlaceholderContractAnalyzer{}
	}
	if opts.Distribution == nil {
		opts.Distribution = PlaceholderDistributionAnalyzer{}
	}
	if opts.Social == nil {
		opts.Social = StubSocialAnalyzer{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Analyzer{
		metadata:     metadata,
		liquidity:    liquidity,
		holders:      holders,
		contract:     opts.Contract,
		distribution: opts.Distribution,
		social:       opts.Social,
		now:          opts.Now,
		log:          opts.Logger.With().Str("component", "analyzer").Logger(),
	}
}

// IsTradeable reports whether the token has a pool against the base asset.
func (a *Analyzer) IsTradeable(ctx context.Context, address string) bool {
	return a.liquidity.IsTradeable(ctx, domain.CanonicalAddress(address))
}

// Analyze produces a complete Analysis. It fails only for an invalid address
// or a cancelled context.
func (a *Analyzer) Analyze(ctx context.Context, address string) (*domain.Analysis, error) {
	addr := domain.CanonicalAddress(address)
	if !domain.IsValidAddress(addr) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	var (
		liq     LiquidityInfo
		meta    *domain.TokenMetadata
		holders []domain.Holder
		risk    domain.ContractRisk
		owner   domain.Ownership
		social  domain.Social
	)

	var g errgroup.Group
	g.Go(func() error {
		liq = a.liquidity.GetLiquidity(ctx, addr)
		return nil
	})
	g.Go(func() error {
		m, err := a.metadata.Fetch(ctx, addr)
		if err != nil {
			a.log.Debug().Err(err).Str("address", addr).Msg("metadata unavailable")
		} else {
			meta = m
		}
		var supply *big.Int
		if meta != nil {
			supply = meta.Supply()
		}
		holders = a.holders.GetHolders(ctx, addr, supply)
		return nil
	})
	g.Go(func() error {
		risk, owner = a.contract.AnalyzeContract(ctx, addr)
		return nil
	})
	g.Go(func() error {
		social = a.social.AnalyzeSocial(ctx, addr)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := a.now()
	out := &domain.Analysis{
		LiquidityUSD: liq.LiquidityUSD,
		Holders:      holders,
		Price:        "0",
		Ownership:    owner,
		Contract:     risk,
		Distribution: a.distribution.AnalyzeDistribution(ctx, addr, holders),
		Social:       social,
		AnalyzedAt:   now.UnixMilli(),
	}

	if meta != nil && liq.HasLiquidity {
		price := liq.Price(meta.Decimals)
		out.Price = price.StringFixed(18)
		out.MarketCap = MarketCap(price, meta.Supply(), meta.Decimals)
	}

	if liq.Locked {
		out.LockedLiquidity = liq.Lock
		out.LiquidityLocked = true
		out.LiquidityLockPlatform = liq.LockPlatform
		remaining := time.UnixMilli(liq.Lock.Until).Sub(now)
		if remaining > 0 {
			out.LiquidityLockDays = int(remaining / (24 * time.Hour))
		}
	}

	return out, nil
}
