// Package scoring computes the composite token score from an Analysis.
// All functions are pure.
package scoring

import (
	"math"

	"bsc-token-scout/internal/domain"
)

// Sub-score weights in the total.
const (
	SecurityWeight  = 0.4
	LiquidityWeight = 0.3
	CommunityWeight = 0.3
)

// Score maps an analysis to security, liquidity and community sub-scores and
// their weighted total.
func Score(a *domain.Analysis) domain.Score {
	if a == nil {
		return domain.Score{}
	}
	security := Security(a.Contract)
	liquidity := Liquidity(a)
	community := Community(a.Social)
	return domain.Score{
		Security:  security,
		Liquidity: liquidity,
		Community: community,
		Total:     security*SecurityWeight + liquidity*LiquidityWeight + community*CommunityWeight,
	}
}

// Security awards up to 40 points for a clean contract profile.
func Security(c domain.ContractRisk) float64 {
	var s float64
	if c.Verified {
		s += 15
	}
	if !c.HasHoneypot {
		s += 10
	}
	if !c.HasUnlimitedMint {
		s += 5
	}
	if !c.HasTradingPause {
		s += 5
	}
	if c.MaxTaxPercentage <= 5 {
		s += 5
	}
	return s
}

// Liquidity awards up to 15 points for pool depth and 15 for a long lock.
func Liquidity(a *domain.Analysis) float64 {
	s := math.Min(a.LiquidityUSD/10000, 15)
	if s < 0 {
		s = 0
	}
	if a.LiquidityLocked {
		s += 10
		if a.LiquidityLockDays > 180 {
			s += 5
		}
	}
	return s
}

// Community awards up to 30 points for links and engagement.
func Community(s domain.Social) float64 {
	var c float64
	if s.Telegram != "" {
		c += 5
	}
	if s.Twitter != "" {
		c += 5
	}
	if s.Website != "" {
		c += 5
	}
	if s.Followers > 1000 {
		c += 5
	}
	if s.Engagement > 0.1 {
		c += 5
	}
	return c
}

// Screening thresholds for IsPromising.
const (
	MinLiquidityUSD     = 5000
	MinLockedPercentage = 80
	MaxWalletPercentage = 2
	MaxTeamPercentage   = 5
	MaxTop10Percentage  = 30
	MaxTaxPercentage    = 10
)

// IsPromising screens a freshly launched token: adequate locked liquidity,
// no dominant wallets and no dangerous contract features.
func IsPromising(a *domain.Analysis) bool {
	if a == nil {
		return false
	}
	return a.LiquidityUSD >= MinLiquidityUSD &&
		a.LockedLiquidity.Percentage >= MinLockedPercentage &&
		a.Distribution.MaxWalletPercentage <= MaxWalletPercentage &&
		a.Distribution.TeamWalletPercentage <= MaxTeamPercentage &&
		a.Distribution.Top10HoldersPercentage <= MaxTop10Percentage &&
		a.Contract.MaxTaxPercentage <= MaxTaxPercentage &&
		!a.Contract.HasHoneypot &&
		!a.Contract.HasUnlimitedMint &&
		!a.Contract.HasTradingPause
}
