package engine

import (
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

var priceScale = big.NewInt(domain.PriceScaleBp)

// sharesFor converts a buy amount into shares at the given side price:
// shares = amount * 10000 / priceBp. Each winning share settles toward one
// liquidity unit, matching the payout formula payout = amount / probability.
func sharesFor(amount *big.Int, priceBp int64) *big.Int {
	shares := new(big.Int).Mul(amount, priceScale)
	return shares.Quo(shares, big.NewInt(priceBp))
}

// sellProceeds applies the fixed 0.3% fee: proceeds = shares * 9970 / 10000,
// floor-rounded so the fee never rounds in the seller's favour.
func sellProceeds(shareAmount *big.Int) *big.Int {
	p := new(big.Int).Mul(shareAmount, big.NewInt(domain.PriceScaleBp-domain.SellFeeBp))
	return p.Quo(p, priceScale)
}

// PlaceOrder buys shares on one side of an active market. expectedPrice is
// the price the caller quoted against; it must lie within the tradable
// bounds. The order amount is credited to totalVolume and the bought side's
// reserve, and the granted shares are returned.
func (e *Engine) PlaceOrder(holder common.Address, id uint32, isYes bool, amount *big.Int, expectedPrice int64) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ms, err := e.get(id)
	if err != nil {
		return nil, err
	}
	if ms.market.State != domain.MarketStateActive || ms.market.Ended(e.now()) {
		return nil, domain.ErrInvalidState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !domain.ValidPrice(expectedPrice) {
		return nil, domain.ErrInvalidPrice
	}

	price := ms.market.SidePrice(isYes)
	shares := sharesFor(amount, price)

	pos := e.position(id, holder)
	if isYes {
		pos.YesShares.Add(pos.YesShares, shares)
		ms.totalYes.Add(ms.totalYes, shares)
		ms.market.YesReserve.Add(ms.market.YesReserve, amount)
	} else {
		pos.NoShares.Add(pos.NoShares, shares)
		ms.totalNo.Add(ms.totalNo, shares)
		ms.market.NoReserve.Add(ms.market.NoReserve, amount)
	}
	ms.market.TotalVolume.Add(ms.market.TotalVolume, amount)
	now := e.now()
	ms.market.UpdatedAt = now
	pos.UpdatedAt = now

	e.logger.Debug("order filled",
		slog.Uint64("market_id", uint64(id)),
		slog.String("holder", holder.Hex()),
		slog.Bool("yes", isYes),
		slog.String("amount", amount.String()),
		slog.Int64("price_bp", price),
		slog.String("shares", shares.String()),
	)

	return shares, nil
}

// SellShares sells shares back on one side of an active market. A fixed
// 0.3% fee is charged on proceeds. totalVolume is unchanged; the net
// proceeds are returned.
func (e *Engine) SellShares(holder common.Address, id uint32, isYes bool, shareAmount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ms, err := e.get(id)
	if err != nil {
		return nil, err
	}
	if ms.market.State != domain.MarketStateActive {
		return nil, domain.ErrInvalidState
	}
	if shareAmount == nil || shareAmount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	pos := e.lookup(id, holder)
	if pos == nil {
		return nil, domain.ErrInsufficientShares
	}
	balance := pos.Shares(isYes)
	if balance.Cmp(shareAmount) < 0 {
		return nil, domain.ErrInsufficientShares
	}

	proceeds := sellProceeds(shareAmount)

	balance.Sub(balance, shareAmount)
	if isYes {
		ms.totalYes.Sub(ms.totalYes, shareAmount)
	} else {
		ms.totalNo.Sub(ms.totalNo, shareAmount)
	}
	now := e.now()
	ms.market.UpdatedAt = now
	pos.UpdatedAt = now

	e.logger.Debug("shares sold",
		slog.Uint64("market_id", uint64(id)),
		slog.String("holder", holder.Hex()),
		slog.Bool("yes", isYes),
		slog.String("shares", shareAmount.String()),
		slog.String("proceeds", proceeds.String()),
	)

	return proceeds, nil
}
