package engine

import (
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

// ClaimRewards pays the caller their pro-rata slice of the settlement pool:
// payout = pool * winningShares / totalWinningShares, in integer math
// against the remaining pool so the pooled stake is conserved across all
// claimants. Both share balances are zeroed and the position is marked
// claimed; the zeroing, not just the claimed flag, guards against payout
// re-derivation on later reads.
func (e *Engine) ClaimRewards(holder common.Address, id uint32) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ms, err := e.get(id)
	if err != nil {
		return nil, err
	}
	if ms.market.State != domain.MarketStateResolved {
		return nil, domain.ErrInvalidState
	}

	pos := e.lookup(id, holder)
	if pos == nil {
		return nil, domain.ErrNoPosition
	}
	if pos.Claimed {
		return nil, domain.ErrAlreadyClaimed
	}
	winning := new(big.Int).Set(pos.WinningShares(ms.market.Outcome))
	if winning.Sign() == 0 {
		return nil, domain.ErrNoPosition
	}

	// Settle against the remaining pool and remaining unclaimed winning
	// shares. The last claimant takes whatever is left of their slice, which
	// absorbs integer-division dust.
	payout := new(big.Int).Mul(ms.market.Pool, winning)
	payout.Quo(payout, ms.market.WinningShares)

	ms.market.Pool.Sub(ms.market.Pool, payout)
	ms.market.WinningShares.Sub(ms.market.WinningShares, winning)

	pos.Claimed = true
	pos.YesShares.SetInt64(0)
	pos.NoShares.SetInt64(0)
	now := e.now()
	pos.UpdatedAt = now
	ms.market.UpdatedAt = now

	e.logger.Info("rewards claimed",
		slog.Uint64("market_id", uint64(id)),
		slog.String("holder", holder.Hex()),
		slog.String("payout", payout.String()),
		slog.String("pool_remaining", ms.market.Pool.String()),
	)

	return payout, nil
}
