package analysis

import (
	"context"

	"bsc-token-scout/internal/domain"
)

// ContractAnalyzer inspects a token contract for risk flags.
type ContractAnalyzer interface {
	AnalyzeContract(ctx context.Context, address string) (domain.ContractRisk, domain.Ownership)
}

// DistributionAnalyzer derives wallet concentration metrics.
type DistributionAnalyzer interface {
	AnalyzeDistribution(ctx context.Context, address string, holders []domain.Holder) domain.Distribution
}

// SocialAnalyzer looks up project links and engagement.
type SocialAnalyzer interface {
	AnalyzeSocial(ctx context.Context, address string) domain.Social
}

// PlaceholderContractAnalyzer reports an unverified contract with no flags raised.
type PlaceholderContractAnalyzer struct{}

// AnalyzeContract implements ContractAnalyzer.
func (PlaceholderContractAnalyzer) AnalyzeContract(context.Context, string) (domain.ContractRisk, domain.Ownership) {
	return domain.ContractRisk{}, domain.Ownership{}
}

// PlaceholderDistributionAnalyzer reports zeroed metrics.
type PlaceholderDistributionAnalyzer struct{}

// AnalyzeDistribution implements DistributionAnalyzer.
func (PlaceholderDistributionAnalyzer) AnalyzeDistribution(context.Context, string, []domain.Holder) domain.Distribution {
	return domain.Distribution{}
}

// HolderDistributionAnalyzer computes max-wallet and top-10 shares from the
// holder list. Team wallets are not identified and stay zero.
type HolderDistributionAnalyzer struct{}

// AnalyzeDistribution implements DistributionAnalyzer. holders must be sorted
// by balance, largest first.
func (HolderDistributionAnalyzer) AnalyzeDistribution(_ context.Context, _ string, holders []domain.Holder) domain.Distribution {
	var d domain.Distribution
	for i, h := range holders {
		if h.Percentage > d.MaxWalletPercentage {
			d.MaxWalletPercentage = h.Percentage
		}
		if i < 10 {
			d.Top10HoldersPercentage += h.Percentage
		}
	}
	return d
}

// StubSocialAnalyzer returns no links and zero engagement.
type StubSocialAnalyzer struct{}

// AnalyzeSocial implements SocialAnalyzer.
func (StubSocialAnalyzer) AnalyzeSocial(context.Context, string) domain.Social {
	return domain.Social{}
}
