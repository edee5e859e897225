package domain

import "math/big"

// MaxDecimals is the largest decimals value accepted for an ERC-20 token.
const MaxDecimals = 18

// TokenMetadata is the ERC-20 metadata read from chain.
type TokenMetadata struct {
	Address     string
	Name        string
	Symbol      string
	Decimals    int
	TotalSupply string // base units, decimal string
}

// IsValid reports whether the metadata is complete enough to track the token.
func (m *TokenMetadata) IsValid() bool {
	if m == nil {
		return false
	}
	if m.Name == "" || m.Symbol == "" {
		return false
	}
	if m.Decimals < 0 || m.Decimals > MaxDecimals {
		return false
	}
	return m.TotalSupply != ""
}

// Supply parses TotalSupply. Unparsable values yield zero.
func (m *TokenMetadata) Supply() *big.Int {
	v, ok := new(big.Int).SetString(m.TotalSupply, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// NewToken builds a token record from metadata.
func (m *TokenMetadata) NewToken(chain string, nowMs int64) *Token {
	return &Token{
		Address:     CanonicalAddress(m.Address),
		Name:        m.Name,
		Symbol:      m.Symbol,
		Decimals:    uint8(m.Decimals),
		TotalSupply: m.TotalSupply,
		Chain:       chain,
		CreatedAt:   nowMs,
		UpdatedAt:   nowMs,
	}
}
