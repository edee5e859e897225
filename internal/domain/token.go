package domain

import (
	"regexp"
	"strings"
)

// ChainBSC is the chain identifier stored on every token.
const ChainBSC = "bsc"

var addressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// Token is a discovered token together with its latest analysis and score.
// Identity is (Chain, Address) with Address in canonical lowercase form.
type Token struct {
	Address     string    `json:"address"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	Decimals    uint8     `json:"decimals"`
	TotalSupply string    `json:"totalSupply"` // base units, decimal string
	Chain       string    `json:"chain"`
	CreatedAt   int64     `json:"createdAt"` // Unix ms
	UpdatedAt   int64     `json:"updatedAt"` // Unix ms
	Analysis    *Analysis `json:"analysis,omitempty"`
	Score       *Score    `json:"score,omitempty"`
}

// Clone returns a deep copy of the token.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	if t.Analysis != nil {
		c.Analysis = t.Analysis.Clone()
	}
	if t.Score != nil {
		s := *t.Score
		c.Score = &s
	}
	return &c
}

// CanonicalAddress lowercases and trims an address.
func CanonicalAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// IsValidAddress reports whether addr is a 20-byte hex address (any case).
func IsValidAddress(addr string) bool {
	return addressPattern.MatchString(CanonicalAddress(addr))
}

// ZeroAddress is the all-zero address.
const ZeroAddress = "0x0000000000000000000000000000000000000000"
