package engine

import (
	"log/slog"
	"math/big"

	"github.com/openpredict/marketd/internal/domain"
)

// ResolveMarket transitions a market to its terminal outcome. Resolution is
// only possible once the trading window has closed, and is permanent: a
// second attempt always fails with ErrInvalidState regardless of outcome.
//
// At resolution the engine snapshots the settlement pool (both reserves)
// and the outstanding winning-side share count; claims settle pro-rata
// against that snapshot.
func (e *Engine) ResolveMarket(id uint32, outcome domain.Outcome) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if outcome != domain.OutcomeYes && outcome != domain.OutcomeNo {
		return domain.ErrInvalidOutcome
	}
	ms, err := e.get(id)
	if err != nil {
		return err
	}
	if ms.market.State != domain.MarketStateActive {
		return domain.ErrInvalidState
	}
	if e.now().Before(ms.market.EndTime) {
		return domain.ErrTooEarly
	}

	ms.market.State = domain.MarketStateResolved
	ms.market.Outcome = outcome
	ms.market.Pool = new(big.Int).Add(ms.market.YesReserve, ms.market.NoReserve)
	if outcome == domain.OutcomeYes {
		ms.market.WinningShares = new(big.Int).Set(ms.totalYes)
	} else {
		ms.market.WinningShares = new(big.Int).Set(ms.totalNo)
	}
	ms.market.UpdatedAt = e.now()

	e.logger.Info("market resolved",
		slog.Uint64("market_id", uint64(id)),
		slog.String("outcome", string(outcome)),
		slog.String("pool", ms.market.Pool.String()),
		slog.String("winning_shares", ms.market.WinningShares.String()),
	)

	return nil
}
