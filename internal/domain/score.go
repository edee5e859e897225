package domain

// Score is derived from an Analysis by the scoring engine.
type Score struct {
	Security  float64 `json:"security"`  // 0..40
	Liquidity float64 `json:"liquidity"` // 0..30
	Community float64 `json:"community"` // 0..30
	Total     float64 `json:"total"`     // weighted, 0..40
}

// ScoreSnapshot is one entry of a token's score history.
// Corresponds to score_history table in ClickHouse.
type ScoreSnapshot struct {
	Chain        string
	Address      string
	Security     float64
	Liquidity    float64
	Community    float64
	Total        float64
	LiquidityUSD float64
	MarketCap    float64
	Price        string
	HolderCount  int
	AnalyzedAt   int64 // Unix ms
}

// NewScoreSnapshot builds a history entry from a token's latest analysis.
func NewScoreSnapshot(t *Token) ScoreSnapshot {
	s := ScoreSnapshot{Chain: t.Chain, Address: t.Address}
	if t.Score != nil {
		s.Security = t.Score.Security
		s.Liquidity = t.Score.Liquidity
		s.Community = t.Score.Community
		s.Total = t.Score.Total
	}
	if t.Analysis != nil {
		s.LiquidityUSD = t.Analysis.LiquidityUSD
		s.MarketCap = t.Analysis.MarketCap
		s.Price = t.Analysis.Price
		s.HolderCount = len(t.Analysis.Holders)
		s.AnalyzedAt = t.Analysis.AnalyzedAt
	}
	return s
}
