package domain

// Analysis is a point-in-time snapshot of a token's on-chain and off-chain data.
// It is replaced wholesale on every re-analysis.
type Analysis struct {
	LiquidityUSD    float64         `json:"liquidityUSD"`
	Holders         []Holder        `json:"holders"`
	BuyCount        int             `json:"buyCount"`
	SellCount       int             `json:"sellCount"`
	MarketCap       float64         `json:"marketCap"`
	Price           string          `json:"price"` // decimal string in USD
	LockedLiquidity LockedLiquidity `json:"lockedLiquidity"`
	Ownership       Ownership       `json:"ownership"`
	Contract        ContractRisk    `json:"contract"`
	Distribution    Distribution    `json:"distribution"`
	Social          Social          `json:"social"`

	LiquidityLocked       bool   `json:"liquidityLocked"`
	LiquidityLockDays     int    `json:"liquidityLockDuration"`
	LiquidityLockPlatform string `json:"liquidityLockPlatform,omitempty"`

	AnalyzedAt int64 `json:"analyzedAt"` // Unix ms
}

// LockedLiquidity describes LP tokens held by a locker contract.
type LockedLiquidity struct {
	Percentage float64 `json:"percentage"`
	Until      int64   `json:"until"` // Unix ms, 0 if unknown
	Verified   bool    `json:"verified"`
}

// Ownership flags for the token contract.
type Ownership struct {
	Renounced  bool `json:"renounced"`
	IsMultisig bool `json:"isMultisig"`
}

// ContractRisk holds contract-level risk flags.
type ContractRisk struct {
	Verified              bool    `json:"verified"`
	HasHoneypot           bool    `json:"hasHoneypot"`
	HasUnlimitedMint      bool    `json:"hasUnlimitedMint"`
	HasTradingPause       bool    `json:"hasTradingPause"`
	MaxTaxPercentage      float64 `json:"maxTaxPercentage"`
	HasDangerousFunctions bool    `json:"hasDangerousFunctions"`
}

// Distribution holds wallet concentration metrics in percent.
type Distribution struct {
	MaxWalletPercentage    float64 `json:"maxWalletPercentage"`
	TeamWalletPercentage   float64 `json:"teamWalletPercentage"`
	Top10HoldersPercentage float64 `json:"top10HoldersPercentage"`
}

// Social holds project links and engagement numbers.
type Social struct {
	Telegram   string  `json:"telegram,omitempty"`
	Twitter    string  `json:"twitter,omitempty"`
	Website    string  `json:"website,omitempty"`
	Followers  int     `json:"followers"`
	Engagement float64 `json:"engagement"`
}

// Holder is one row of a token's holder distribution.
type Holder struct {
	Address    string  `json:"address"`
	Balance    string  `json:"balance"`    // base units, decimal string
	Percentage float64 `json:"percentage"` // of total supply at computation time
}

// Clone returns a deep copy of the analysis.
func (a *Analysis) Clone() *Analysis {
	if a == nil {
		return nil
	}
	c := *a
	if a.Holders != nil {
		c.Holders = make([]Holder, len(a.Holders))
		copy(c.Holders, a.Holders)
	}
	return &c
}
