// Package engine implements the settlement core for binary-outcome
// prediction markets: market lifecycle, reserve-backed positions, oracle
// price application, resolution, and pro-rata claims.
//
// The engine is a synchronous, in-memory state machine. Every mutating
// operation runs to completion under a single write lock, so all mutations
// against a market are totally ordered and no partial write is ever
// observable. Read operations take the read lock and always see the last
// committed state. All settlement arithmetic is integer basis-point math;
// floating point never touches state.
package engine

import (
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

// marketState is the authoritative record for one market plus the running
// share aggregates needed to settle claims.
type marketState struct {
	market   domain.Market
	totalYes *big.Int // outstanding Yes shares across all holders
	totalNo  *big.Int // outstanding No shares across all holders
}

type posKey struct {
	marketID uint32
	holder   common.Address
}

// Engine owns all market and position state. The zero value is not usable;
// construct with New.
type Engine struct {
	mu sync.RWMutex

	owner    common.Address
	updaters map[common.Address]bool

	markets   []*marketState
	positions map[posKey]*domain.Position

	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source. Tests use this to control
// end-time and resolution checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine owned by the given address. Only the owner may
// authorize oracle updaters.
func New(owner common.Address, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		owner:     owner,
		updaters:  make(map[common.Address]bool),
		positions: make(map[posKey]*domain.Position),
		now:       time.Now,
		logger:    logger.With(slog.String("component", "engine")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MarketCount returns the number of market ids ever assigned.
func (e *Engine) MarketCount() uint32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint32(len(e.markets))
}

// GetMarketInfo returns a snapshot of the market record.
func (e *Engine) GetMarketInfo(id uint32) (domain.Market, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ms, err := e.get(id)
	if err != nil {
		return domain.Market{}, err
	}
	return cloneMarket(ms.market), nil
}

// GetPosition returns a snapshot of the holder's position in a market. A
// holder that never traded gets a zeroed position, not an error.
func (e *Engine) GetPosition(id uint32, holder common.Address) (domain.Position, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, err := e.get(id); err != nil {
		return domain.Position{}, err
	}
	pos, ok := e.positions[posKey{marketID: id, holder: holder}]
	if !ok {
		return domain.Position{
			MarketID:  id,
			Holder:    holder,
			YesShares: new(big.Int),
			NoShares:  new(big.Int),
		}, nil
	}
	return clonePosition(*pos), nil
}

// ListMarkets returns snapshots of every market in id order.
func (e *Engine) ListMarkets() []domain.Market {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.Market, 0, len(e.markets))
	for _, ms := range e.markets {
		out = append(out, cloneMarket(ms.market))
	}
	return out
}

// PositionsByMarket returns snapshots of every position ever opened in the
// market, including zeroed ones.
func (e *Engine) PositionsByMarket(id uint32) ([]domain.Position, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, err := e.get(id); err != nil {
		return nil, err
	}
	var out []domain.Position
	for k, pos := range e.positions {
		if k.marketID == id {
			out = append(out, clonePosition(*pos))
		}
	}
	return out, nil
}

// get returns the live market state for id. Callers must hold e.mu.
func (e *Engine) get(id uint32) (*marketState, error) {
	if int(id) >= len(e.markets) {
		return nil, domain.ErrNotFound
	}
	return e.markets[id], nil
}

// lookup returns the live position for (id, holder), or nil when the holder
// never traded the market. Callers must hold e.mu. Rejected operations go
// through lookup so they leave no phantom position behind.
func (e *Engine) lookup(id uint32, holder common.Address) *domain.Position {
	return e.positions[posKey{marketID: id, holder: holder}]
}

// position returns the live position for (id, holder), creating it on first
// trade. Callers must hold the write lock and must have passed every
// validation check first.
func (e *Engine) position(id uint32, holder common.Address) *domain.Position {
	key := posKey{marketID: id, holder: holder}
	pos, ok := e.positions[key]
	if !ok {
		pos = &domain.Position{
			MarketID:  id,
			Holder:    holder,
			YesShares: new(big.Int),
			NoShares:  new(big.Int),
		}
		e.positions[key] = pos
	}
	return pos
}

func cloneMarket(m domain.Market) domain.Market {
	m.YesReserve = cloneInt(m.YesReserve)
	m.NoReserve = cloneInt(m.NoReserve)
	m.TotalVolume = cloneInt(m.TotalVolume)
	m.Pool = cloneInt(m.Pool)
	m.WinningShares = cloneInt(m.WinningShares)
	return m
}

func clonePosition(p domain.Position) domain.Position {
	p.YesShares = cloneInt(p.YesShares)
	p.NoShares = cloneInt(p.NoShares)
	return p
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
