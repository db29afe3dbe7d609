package domain

import "time"

// PriceSource identifies who proposed a price update.
type PriceSource string

const (
	PriceSourceOracle      PriceSource = "oracle"
	PriceSourceFluctuation PriceSource = "fluctuation"
)

// PriceUpdate is an ephemeral proposal to move a market's Yes price. It is
// not persisted; only the committed result is journaled.
type PriceUpdate struct {
	MarketID  uint32
	Price     int64 // basis points
	Source    PriceSource
	Timestamp time.Time
}

// BatchResult reports the outcome of one element of a batch price update.
// A batch is always best-effort: one element failing never blocks the rest.
type BatchResult struct {
	MarketID uint32
	Err      error
}
