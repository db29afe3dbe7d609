package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/engine"
)

// OracleService handles updater authorization and price updates. It submits
// on behalf of a single configured oracle address, which lets it serve as
// the price submitter and reader for the sync and fluctuation drivers.
type OracleService struct {
	engine     *engine.Engine
	rec        *Recorder
	oracleAddr common.Address
	logger     *slog.Logger
}

// NewOracleService creates an OracleService submitting as oracleAddr.
func NewOracleService(eng *engine.Engine, rec *Recorder, oracleAddr common.Address, logger *slog.Logger) *OracleService {
	return &OracleService{
		engine:     eng,
		rec:        rec,
		oracleAddr: oracleAddr,
		logger:     logger.With(slog.String("component", "oracle_service")),
	}
}

// AuthorizeUpdater grants addr the right to push prices. Only the engine
// owner may call it.
func (s *OracleService) AuthorizeUpdater(ctx context.Context, caller, addr common.Address) error {
	if err := s.engine.AuthorizeUpdater(caller, addr); err != nil {
		return fmt.Errorf("oracle_service: authorize updater: %w", err)
	}
	s.logger.InfoContext(ctx, "updater authorized",
		slog.String("updater", addr.Hex()),
	)
	return nil
}

// IsAuthorizedUpdater reports whether addr may push prices.
func (s *OracleService) IsAuthorizedUpdater(addr common.Address) bool {
	return s.engine.IsAuthorizedUpdater(addr)
}

// UpdatePrice sets a market's yes price on behalf of caller.
func (s *OracleService) UpdatePrice(ctx context.Context, caller common.Address, id uint32, priceBp int64) error {
	if err := s.engine.UpdatePrice(caller, id, priceBp); err != nil {
		return fmt.Errorf("oracle_service: update price: %w", err)
	}
	s.afterUpdate(ctx, id)
	return nil
}

// BatchUpdatePrices applies several price updates in one pass. Each element
// succeeds or fails on its own; the per-element outcomes are returned.
func (s *OracleService) BatchUpdatePrices(ctx context.Context, caller common.Address, ids []uint32, prices []int64) ([]domain.BatchResult, error) {
	results, err := s.engine.BatchUpdatePrices(caller, ids, prices)
	if err != nil {
		return nil, fmt.Errorf("oracle_service: batch update prices: %w", err)
	}
	for _, res := range results {
		if res.Err == nil {
			s.afterUpdate(ctx, res.MarketID)
		}
	}
	return results, nil
}

// SubmitPrice pushes a price as the configured oracle address. It satisfies
// the drivers' price submitter interface.
func (s *OracleService) SubmitPrice(ctx context.Context, id uint32, priceBp int64) error {
	return s.UpdatePrice(ctx, s.oracleAddr, id, priceBp)
}

// CurrentPrice returns a market's current yes price. It satisfies the
// drivers' price reader interface.
func (s *OracleService) CurrentPrice(_ context.Context, id uint32) (int64, error) {
	m, err := s.engine.GetMarketInfo(id)
	if err != nil {
		return 0, fmt.Errorf("oracle_service: current price: %w", err)
	}
	return m.YesPrice, nil
}

func (s *OracleService) afterUpdate(ctx context.Context, id uint32) {
	m, err := s.engine.GetMarketInfo(id)
	if err != nil {
		return
	}
	s.rec.record(ctx, "update_price", m, nil, map[string]any{
		"price_bp": m.YesPrice,
	})
	s.rec.publish(ctx, ChannelPrices, map[string]any{
		"event":     "price_updated",
		"market_id": m.ID,
		"price_bp":  m.YesPrice,
		"no_bp":     m.NoPrice(),
	})
}
