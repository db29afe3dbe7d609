package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore durably persists market snapshots. The engine's in-memory
// state is authoritative; the store is its write-behind ledger view.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id uint32) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// PositionStore durably persists position snapshots. UpsertBatch serves
// resolution, which snapshots every position in the market at once.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	UpsertBatch(ctx context.Context, positions []Position) error
	Get(ctx context.Context, marketID uint32, holder common.Address) (Position, error)
	ListByMarket(ctx context.Context, marketID uint32) ([]Position, error)
	ListByHolder(ctx context.Context, holder common.Address) ([]Position, error)
}

// JournalEntry is one committed mutation. Ref is the settlement reference
// assigned by the journal; it is surfaced for logging only and never drives
// control flow.
type JournalEntry struct {
	Ref       string
	Op        string
	MarketID  uint32
	Holder    *common.Address
	Detail    map[string]any
	CreatedAt time.Time
}

// Journal is the append-only record of committed engine mutations.
type Journal interface {
	Append(ctx context.Context, entry JournalEntry) (ref string, err error)
	List(ctx context.Context, opts ListOpts) ([]JournalEntry, error)
}

// PriceCache provides fast access to the latest committed basis-point price
// per market for read paths.
type PriceCache interface {
	SetPrice(ctx context.Context, marketID uint32, priceBp int64, ts time.Time) error
	GetPrice(ctx context.Context, marketID uint32) (int64, time.Time, error)
	GetPrices(ctx context.Context, marketIDs []uint32) (map[uint32]int64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SettlementStream is the durable ordered stream carrying every settlement
// event; consumers replay it from a stream id of their choosing.
const SettlementStream = "stream:settlements"

// StreamMessage represents a single entry from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub fan-out of committed engine events and a
// durable, ordered stream of settlement events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
