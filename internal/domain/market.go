// Package domain defines the core types shared across the settlement engine:
// markets, positions, price updates, the error taxonomy, and the interfaces
// implemented by the durable ledger and cache layers.
package domain

import (
	"math/big"
	"time"
)

// Price bounds and fixed-point scale. All prices are integers in basis
// points; 10000 bp = 100% probability. Settlement math never leaves the
// integer domain.
const (
	PriceScaleBp   int64 = 10000
	MinPriceBp     int64 = 100
	MaxPriceBp     int64 = 9900
	DefaultPriceBp int64 = 5000

	// SellFeeBp is the fixed fee charged on sell proceeds (0.3%).
	SellFeeBp int64 = 30
)

// MarketState represents the lifecycle state of a market. The only legal
// transition is Active -> Resolved.
type MarketState string

const (
	MarketStateActive   MarketState = "active"
	MarketStateResolved MarketState = "resolved"
)

// Outcome is the terminal result of a binary market. It stays Unset until
// resolution and is never changed afterwards.
type Outcome string

const (
	OutcomeUnset Outcome = "unset"
	OutcomeYes   Outcome = "yes"
	OutcomeNo    Outcome = "no"
)

// Market is the canonical record for a binary prediction market. IDs are
// sequential, assigned once, and never reused.
type Market struct {
	ID          uint32
	Question    string
	Slug        string // external feed identifier, optional
	ConditionID string // external feed identifier, optional
	EndTime     time.Time
	State       MarketState
	Outcome     Outcome
	YesPrice    int64    // basis points, always within [MinPriceBp, MaxPriceBp]
	YesReserve  *big.Int // pooled liquidity backing the Yes side
	NoReserve   *big.Int // pooled liquidity backing the No side
	TotalVolume *big.Int // monotonically non-decreasing sum of buy amounts

	// Settlement snapshot, populated at resolution. Pool is the remaining
	// claimable stake; WinningShares is the remaining unclaimed winning-side
	// share count. Both are decremented as claims pay out.
	Pool          *big.Int
	WinningShares *big.Int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NoPrice returns the implied No-side price in basis points.
func (m Market) NoPrice() int64 {
	return PriceScaleBp - m.YesPrice
}

// Ended reports whether the market's trading window has closed at the given
// instant. A market past its end time rejects orders even before resolution.
func (m Market) Ended(now time.Time) bool {
	return !now.Before(m.EndTime)
}

// SidePrice returns the basis-point price of the requested side.
func (m Market) SidePrice(isYes bool) int64 {
	if isYes {
		return m.YesPrice
	}
	return m.NoPrice()
}

// ValidPrice reports whether p lies within the tradable price bounds.
func ValidPrice(p int64) bool {
	return p >= MinPriceBp && p <= MaxPriceBp
}

// ClampPrice bounds p to [MinPriceBp, MaxPriceBp].
func ClampPrice(p int64) int64 {
	if p < MinPriceBp {
		return MinPriceBp
	}
	if p > MaxPriceBp {
		return MaxPriceBp
	}
	return p
}
