package analysis

import (
	"context"
	"math/big"
	"sort"

	"github.com/rs/zerolog"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/explorer"
)

// HolderAnalyzer turns an upstream holder list into percentage-of-supply rows.
type HolderAnalyzer struct {
	source   explorer.HolderSource
	limit    int
	excluded map[string]bool
	log      zerolog.Logger
}

// NewHolderAnalyzer creates a holder analyzer. dead is the chain's burn address.
func NewHolderAnalyzer(source explorer.HolderSource, dead string, logger zerolog.Logger) *HolderAnalyzer {
	return &HolderAnalyzer{
		source: source,
		limit:  explorer.DefaultHolderPageSize,
		excluded: map[string]bool{
			domain.CanonicalAddress(dead): true,
			domain.ZeroAddress:            true,
		},
		log: logger.With().Str("component", "holders").Logger(),
	}
}

var tenThousand = big.NewInt(10000)

// GetHolders returns holders sorted by balance, largest first. Upstream failures
// yield an empty list and unparsable rows are skipped.
func (h *HolderAnalyzer) GetHolders(ctx context.Context, address string, totalSupply *big.Int) []domain.Holder {
	raw, err := h.source.Holders(ctx, domain.CanonicalAddress(address), h.limit)
	if err != nil {
		h.log.Debug().Err(err).Str("address", address).Msg("holder list unavailable")
		return []domain.Holder{}
	}

	type row struct {
		holder  domain.Holder
		balance *big.Int
	}
	rows := make([]row, 0, len(raw))
	for _, r := range raw {
		addr := domain.CanonicalAddress(r.Address)
		if addr == "" || h.excluded[addr] {
			continue
		}
		balance, ok := new(big.Int).SetString(r.Balance, 10)
		if !ok || balance.Sign() < 0 {
			h.log.Debug().Str("address", address).Str("holder", addr).Str("balance", r.Balance).Msg("skip holder with bad balance")
			continue
		}
		rows = append(rows, row{
			holder: domain.Holder{
				Address:    addr,
				Balance:    balance.String(),
				Percentage: percentage(balance, totalSupply),
			},
			balance: balance,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].balance.Cmp(rows[j].balance) > 0
	})

	holders := make([]domain.Holder, len(rows))
	for i, r := range rows {
		holders[i] = r.holder
	}
	return holders
}

// percentage computes balance/supply*100 in whole basis points.
func percentage(balance, supply *big.Int) float64 {
	if supply == nil || supply.Sign() <= 0 {
		return 0
	}
	bps := new(big.Int).Mul(balance, tenThousand)
	bps.Quo(bps, supply)
	if !bps.IsInt64() {
		return 0
	}
	return float64(bps.Int64()) / 100
}
