package engine

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

// AuthorizeUpdater grants addr the right to push oracle price updates.
// Only the engine owner may authorize updaters.
func (e *Engine) AuthorizeUpdater(caller, addr common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.owner {
		return domain.ErrUnauthorized
	}
	e.updaters[addr] = true
	e.logger.Info("oracle updater authorized", slog.String("address", addr.Hex()))
	return nil
}

// IsAuthorizedUpdater reports whether addr may push price updates.
func (e *Engine) IsAuthorizedUpdater(addr common.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.updaters[addr]
}

// UpdatePrice replaces the market's Yes price with the oracle's value. The
// oracle is authoritative: no smoothing is applied here. The price must lie
// within [100, 9900] basis points and the market must still be active.
func (e *Engine) UpdatePrice(caller common.Address, id uint32, newPrice int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updatePriceLocked(caller, id, newPrice)
}

// BatchUpdatePrices applies UpdatePrice semantics per element. The batch is
// best-effort: one element failing never prevents processing of the others.
// The whole batch runs under a single lock acquisition so its elements are
// committed as one ordered block.
func (e *Engine) BatchUpdatePrices(caller common.Address, ids []uint32, prices []int64) ([]domain.BatchResult, error) {
	if len(ids) != len(prices) {
		return nil, domain.ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	results := make([]domain.BatchResult, 0, len(ids))
	for i, id := range ids {
		err := e.updatePriceLocked(caller, id, prices[i])
		if err != nil {
			e.logger.Warn("batch price update element failed",
				slog.Uint64("market_id", uint64(id)),
				slog.Int64("price_bp", prices[i]),
				slog.String("error", err.Error()),
			)
		}
		results = append(results, domain.BatchResult{MarketID: id, Err: err})
	}
	return results, nil
}

func (e *Engine) updatePriceLocked(caller common.Address, id uint32, newPrice int64) error {
	if !e.updaters[caller] {
		return domain.ErrUnauthorized
	}
	if !domain.ValidPrice(newPrice) {
		return domain.ErrOutOfBounds
	}
	ms, err := e.get(id)
	if err != nil {
		return err
	}
	if ms.market.State != domain.MarketStateActive {
		return domain.ErrInvalidState
	}

	ms.market.YesPrice = newPrice
	ms.market.UpdatedAt = e.now()
	return nil
}
