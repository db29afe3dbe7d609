package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/engine"
)

// TradeService handles order placement, share sales, and reward claims.
type TradeService struct {
	engine *engine.Engine
	rec    *Recorder
	logger *slog.Logger
}

// NewTradeService creates a TradeService.
func NewTradeService(eng *engine.Engine, rec *Recorder, logger *slog.Logger) *TradeService {
	return &TradeService{
		engine: eng,
		rec:    rec,
		logger: logger.With(slog.String("component", "trade_service")),
	}
}

// PlaceOrder buys shares on one side of a market and returns the shares
// granted.
func (s *TradeService) PlaceOrder(ctx context.Context, holder common.Address, id uint32, isYes bool, amount *big.Int, expectedPrice int64) (*big.Int, error) {
	shares, err := s.engine.PlaceOrder(holder, id, isYes, amount, expectedPrice)
	if err != nil {
		return nil, fmt.Errorf("trade_service: place order: %w", err)
	}

	s.recordTrade(ctx, "place_order", holder, id, map[string]any{
		"yes":    isYes,
		"amount": amount.String(),
		"shares": shares.String(),
	})
	s.rec.publish(ctx, ChannelOrders, map[string]any{
		"event":     "order_filled",
		"market_id": id,
		"holder":    holder.Hex(),
		"yes":       isYes,
		"amount":    amount.String(),
		"shares":    shares.String(),
	})
	return shares, nil
}

// SellShares sells shares back and returns the net proceeds after the fixed
// 0.3% fee.
func (s *TradeService) SellShares(ctx context.Context, holder common.Address, id uint32, isYes bool, shareAmount *big.Int) (*big.Int, error) {
	proceeds, err := s.engine.SellShares(holder, id, isYes, shareAmount)
	if err != nil {
		return nil, fmt.Errorf("trade_service: sell shares: %w", err)
	}

	s.recordTrade(ctx, "sell_shares", holder, id, map[string]any{
		"yes":      isYes,
		"shares":   shareAmount.String(),
		"proceeds": proceeds.String(),
	})
	s.rec.publish(ctx, ChannelOrders, map[string]any{
		"event":     "shares_sold",
		"market_id": id,
		"holder":    holder.Hex(),
		"yes":       isYes,
		"shares":    shareAmount.String(),
		"proceeds":  proceeds.String(),
	})
	return proceeds, nil
}

// ClaimRewards settles the holder's winning position and returns the
// payout.
func (s *TradeService) ClaimRewards(ctx context.Context, holder common.Address, id uint32) (*big.Int, error) {
	payout, err := s.engine.ClaimRewards(holder, id)
	if err != nil {
		return nil, fmt.Errorf("trade_service: claim rewards: %w", err)
	}

	s.recordTrade(ctx, "claim_rewards", holder, id, map[string]any{
		"payout": payout.String(),
	})
	s.rec.publish(ctx, ChannelSettlements, map[string]any{
		"event":     "rewards_claimed",
		"market_id": id,
		"holder":    holder.Hex(),
		"payout":    payout.String(),
	})
	return payout, nil
}

// recordTrade journals a trade-path mutation together with the market and
// position snapshots it touched.
func (s *TradeService) recordTrade(ctx context.Context, op string, holder common.Address, id uint32, detail map[string]any) {
	m, err := s.engine.GetMarketInfo(id)
	if err != nil {
		return
	}
	pos, err := s.engine.GetPosition(id, holder)
	if err != nil {
		return
	}
	s.rec.record(ctx, op, m, &holder, detail, pos)
}
