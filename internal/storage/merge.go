package storage

import "bsc-token-scout/internal/domain"

// MergeToken applies an upsert of incoming onto existing and returns the new
// record. existing keeps its CreatedAt; metadata fields are overwritten when
// incoming carries them; Analysis and Score are replaced wholesale when set.
// UpdatedAt becomes nowMs and strictly increases. Neither argument is modified.
func MergeToken(existing, incoming *domain.Token, nowMs int64) *domain.Token {
	if existing == nil {
		t := incoming.Clone()
		t.Address = domain.CanonicalAddress(t.Address)
		if t.CreatedAt == 0 {
			t.CreatedAt = nowMs
		}
		t.UpdatedAt = nowMs
		return t
	}

	t := existing.Clone()
	if incoming.Name != "" {
		t.Name = incoming.Name
	}
	if incoming.Symbol != "" {
		t.Symbol = incoming.Symbol
	}
	if incoming.Decimals != 0 {
		t.Decimals = incoming.Decimals
	}
	if incoming.TotalSupply != "" {
		t.TotalSupply = incoming.TotalSupply
	}
	if incoming.Analysis != nil {
		t.Analysis = incoming.Analysis.Clone()
	}
	if incoming.Score != nil {
		s := *incoming.Score
		t.Score = &s
	}
	if nowMs <= existing.UpdatedAt {
		nowMs = existing.UpdatedAt + 1
	}
	t.UpdatedAt = nowMs
	return t
}

// ValidateToken checks the fields every backend keys on.
func ValidateToken(t *domain.Token) error {
	if t == nil || t.Chain == "" || !domain.IsValidAddress(t.Address) {
		return ErrInvalidInput
	}
	return nil
}
