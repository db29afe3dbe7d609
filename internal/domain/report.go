package domain

import (
	"math/big"
	"time"
)

// SettlementReport is the archival record written when a market resolves:
// the terminal outcome, the snapshot pool, and every position at resolution
// time. It is written once to cold storage and never read on a hot path.
type SettlementReport struct {
	MarketID   uint32
	Question   string
	Outcome    Outcome
	Pool       *big.Int
	ResolvedAt time.Time
	Positions  []Position
}
