package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Position tracks a holder's share balances in one market. Positions are
// created lazily on first trade and never deleted; a zeroed position remains
// as a record of participation. Claimed is monotonic: once true it never
// reverts.
type Position struct {
	MarketID  uint32
	Holder    common.Address
	YesShares *big.Int
	NoShares  *big.Int
	Claimed   bool
	UpdatedAt time.Time
}

// Shares returns the balance for the requested side.
func (p Position) Shares(isYes bool) *big.Int {
	if isYes {
		return p.YesShares
	}
	return p.NoShares
}

// WinningShares returns the balance on the side matching the outcome.
// It returns zero for OutcomeUnset.
func (p Position) WinningShares(out Outcome) *big.Int {
	switch out {
	case OutcomeYes:
		return p.YesShares
	case OutcomeNo:
		return p.NoShares
	default:
		return new(big.Int)
	}
}

// ParseAddress validates and parses a hex address string.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, ErrInvalidAddress
	}
	return common.HexToAddress(s), nil
}
