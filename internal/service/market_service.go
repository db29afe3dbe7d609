package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/engine"
)

// MarketService handles market creation and read access.
type MarketService struct {
	engine *engine.Engine
	rec    *Recorder
	logger *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(eng *engine.Engine, rec *Recorder, logger *slog.Logger) *MarketService {
	return &MarketService{
		engine: eng,
		rec:    rec,
		logger: logger.With(slog.String("component", "market_service")),
	}
}

// CreateMarket registers a new market with default pricing and no seeded
// liquidity.
func (s *MarketService) CreateMarket(ctx context.Context, question string, endTime time.Time) (uint32, error) {
	id, err := s.engine.CreateMarket(question, endTime)
	if err != nil {
		return 0, fmt.Errorf("market_service: create market: %w", err)
	}
	s.afterCreate(ctx, id)
	return id, nil
}

// CreateMarketWithLiquidity registers a new market seeded with reserves and
// a base price, optionally bound to external feed identifiers.
func (s *MarketService) CreateMarketWithLiquidity(ctx context.Context, question string, endTime time.Time, yesReserve, noReserve *big.Int, basePrice int64, conditionID, slug string) (uint32, error) {
	id, err := s.engine.CreateMarketWithLiquidity(question, endTime, yesReserve, noReserve, basePrice)
	if err != nil {
		return 0, fmt.Errorf("market_service: create market with liquidity: %w", err)
	}
	if conditionID != "" || slug != "" {
		if err := s.engine.SetFeedIdentifiers(id, conditionID, slug); err != nil {
			return 0, fmt.Errorf("market_service: set feed identifiers: %w", err)
		}
	}
	s.afterCreate(ctx, id)
	return id, nil
}

func (s *MarketService) afterCreate(ctx context.Context, id uint32) {
	m, err := s.engine.GetMarketInfo(id)
	if err != nil {
		return
	}
	s.rec.record(ctx, "create_market", m, nil, map[string]any{
		"question":      m.Question,
		"end_time":      m.EndTime.UTC().Format(time.RFC3339),
		"base_price_bp": m.YesPrice,
	})
	s.rec.publish(ctx, ChannelMarkets, map[string]any{
		"event":     "market_created",
		"market_id": m.ID,
		"question":  m.Question,
		"price_bp":  m.YesPrice,
	})
}

// GetMarket returns the market record for id.
func (s *MarketService) GetMarket(ctx context.Context, id uint32) (domain.Market, error) {
	m, err := s.engine.GetMarketInfo(id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %d: %w", id, err)
	}
	return m, nil
}

// ListMarkets returns every market in id order. It also satisfies the sync
// driver's market lister.
func (s *MarketService) ListMarkets(_ context.Context) ([]domain.Market, error) {
	return s.engine.ListMarkets(), nil
}

// MarketCount returns the number of market ids ever assigned.
func (s *MarketService) MarketCount(_ context.Context) uint32 {
	return s.engine.MarketCount()
}

// GetPosition returns the holder's position in a market.
func (s *MarketService) GetPosition(ctx context.Context, id uint32, holder common.Address) (domain.Position, error) {
	pos, err := s.engine.GetPosition(id, holder)
	if err != nil {
		return domain.Position{}, fmt.Errorf("market_service: get position %d/%s: %w", id, holder.Hex(), err)
	}
	return pos, nil
}
