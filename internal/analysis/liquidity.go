package analysis

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/evm"
	"bsc-token-scout/internal/explorer"
	"bsc-token-scout/internal/pricefeed"
)

// DefaultLockPeriod is assumed when a locker transfer carries no unlock time.
const DefaultLockPeriod = 365 * 24 * time.Hour

// DefaultLockPercentage is reported for a detected lock until real percentages are read.
const DefaultLockPercentage = 100

const pinkLockV2 = "0x407993575c91ce7643a4d4ccacc9a98c36ee1bbe"

// TransferLister lists token transfers involving an address, newest first.
type TransferLister interface {
	TokenTransfers(ctx context.Context, address string) ([]explorer.TokenTransfer, error)
}

// LiquidityInfo is the pool state of a token against the base asset.
type LiquidityInfo struct {
	HasLiquidity bool
	PairAddress  string
	TokenReserve *big.Int
	BaseReserve  *big.Int
	BasePrice    decimal.Decimal
	LiquidityUSD float64
	Locked       bool
	Lock         domain.LockedLiquidity
	LockPlatform string
}

// LiquidityAnalyzer reads pool reserves and lock status.
type LiquidityAnalyzer struct {
	contracts *evm.Contracts
	price     pricefeed.Source
	transfers TransferLister
	base      common.Address
	lockers   map[string]bool
	now       func() time.Time
	log       zerolog.Logger
}

// LiquidityOptions configures LiquidityAnalyzer.
type LiquidityOptions struct {
	BaseToken string
	Lockers   []string
	Now       func() time.Time
	Logger    zerolog.Logger
}

// NewLiquidityAnalyzer creates a liquidity analyzer.
func NewLiquidityAnalyzer(contracts *evm.Contracts, price pricefeed.Source, transfers TransferLister, opts LiquidityOptions) *LiquidityAnalyzer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	lockers := make(map[string]bool, len(opts.Lockers))
	for _, l := range opts.Lockers {
		lockers[domain.CanonicalAddress(l)] = true
	}
	return &LiquidityAnalyzer{
		contracts: contracts,
		price:     price,
		transfers: transfers,
		base:      common.HexToAddress(opts.BaseToken),
		lockers:   lockers,
		now:       opts.Now,
		log:       opts.Logger.With().Str("component", "liquidity").Logger(),
	}
}

// IsTradeable reports whether a pool against the base asset exists.
func (l *LiquidityAnalyzer) IsTradeable(ctx context.Context, address string) bool {
	pair, err := l.contracts.GetPair(ctx, common.HexToAddress(address), l.base)
	if err != nil {
		l.log.Debug().Err(err).Str("address", address).Msg("getPair failed")
		return false
	}
	return pair != (common.Address{})
}

// GetLiquidity reads reserves, values the pool in USD and scans for a lock.
// Failures yield a zero-valued result.
func (l *LiquidityAnalyzer) GetLiquidity(ctx context.Context, address string) LiquidityInfo {
	token := common.HexToAddress(address)
	pair, err := l.contracts.GetPair(ctx, token, l.base)
	if err != nil {
		l.log.Debug().Err(err).Str("address", address).Msg("getPair failed")
		return LiquidityInfo{}
	}
	if pair == (common.Address{}) {
		return LiquidityInfo{}
	}

	reserves, err := l.contracts.GetReserves(ctx, pair)
	if err != nil {
		l.log.Debug().Err(err).Str("pair", pair.Hex()).Msg("getReserves failed")
		return LiquidityInfo{PairAddress: evm.Lower(pair)}
	}
	token0, err := l.contracts.Token0(ctx, pair)
	if err != nil {
		l.log.Debug().Err(err).Str("pair", pair.Hex()).Msg("token0 failed")
		return LiquidityInfo{PairAddress: evm.Lower(pair)}
	}

	info := LiquidityInfo{PairAddress: evm.Lower(pair)}
	if token0 == token {
		info.TokenReserve, info.BaseReserve = reserves.Reserve0, reserves.Reserve1
	} else {
		info.TokenReserve, info.BaseReserve = reserves.Reserve1, reserves.Reserve0
	}
	if info.BaseReserve.Sign() == 0 || info.TokenReserve.Sign() == 0 {
		return info
	}
	info.HasLiquidity = true

	price, err := l.price.BasePrice(ctx)
	if err != nil {
		l.log.Debug().Err(err).Msg("base price unavailable")
	} else {
		info.BasePrice = price
		// Both sides of a constant-product pool carry equal value.
		baseUSD := decimal.NewFromBigInt(info.BaseReserve, -18).Mul(price)
		info.LiquidityUSD = baseUSD.Mul(decimal.NewFromInt(2)).InexactFloat64()
	}

	info.Locked, info.Lock, info.LockPlatform = l.LockStatus(ctx, info.PairAddress)
	return info
}

// LockStatus scans the pair's LP transfers for one the pool sent to a known
// locker. Mints from the zero address and LP burns from the pool to the zero
// address are not locks.
func (l *LiquidityAnalyzer) LockStatus(ctx context.Context, pair string) (bool, domain.LockedLiquidity, string) {
	if l.transfers == nil || len(l.lockers) == 0 {
		return false, domain.LockedLiquidity{}, ""
	}
	pair = domain.CanonicalAddress(pair)
	transfers, err := l.transfers.TokenTransfers(ctx, pair)
	if err != nil {
		l.log.Debug().Err(err).Str("pair", pair).Msg("lock scan failed")
		return false, domain.LockedLiquidity{}, ""
	}

	for _, tr := range transfers {
		if tr.ContractAddress != pair || !l.lockers[tr.To] {
			continue
		}
		if tr.From == domain.ZeroAddress {
			continue
		}
		if tr.From == pair && tr.To == domain.ZeroAddress {
			continue
		}
		until := time.Unix(tr.Timestamp, 0).Add(DefaultLockPeriod)
		return true, domain.LockedLiquidity{
			Percentage: DefaultLockPercentage,
			Until:      until.UnixMilli(),
			Verified:   true,
		}, lockerPlatform(tr.To)
	}
	return false, domain.LockedLiquidity{}, ""
}

func lockerPlatform(addr string) string {
	switch addr {
	case pinkLockV2:
		return "PinkSale"
	case domain.ZeroAddress:
		return "Burn"
	default:
		return "Locker"
	}
}

// Price values one whole token in USD from the pool reserves.
func (i LiquidityInfo) Price(decimals int) decimal.Decimal {
	if !i.HasLiquidity || i.BasePrice.IsZero() {
		return decimal.Zero
	}
	baseUSD := decimal.NewFromBigInt(i.BaseReserve, -18).Mul(i.BasePrice)
	tokens := decimal.NewFromBigInt(i.TokenReserve, -int32(decimals))
	if tokens.IsZero() {
		return decimal.Zero
	}
	return baseUSD.DivRound(tokens, 18)
}

// MarketCap values the whole supply at price.
func MarketCap(price decimal.Decimal, supply *big.Int, decimals int) float64 {
	if supply == nil || supply.Sign() == 0 {
		return 0
	}
	return price.Mul(decimal.NewFromBigInt(supply, -int32(decimals))).InexactFloat64()
}
