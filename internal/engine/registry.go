package engine

import (
	"log/slog"
	"math/big"
	"time"

	"github.com/openpredict/marketd/internal/domain"
)

// CreateMarket registers a new market with the default 50% price and empty
// reserves. The id is the next sequential value, starting at 0.
func (e *Engine) CreateMarket(question string, endTime time.Time) (uint32, error) {
	return e.CreateMarketWithLiquidity(question, endTime, new(big.Int), new(big.Int), domain.DefaultPriceBp)
}

// CreateMarketWithLiquidity registers a new market seeded with initial
// reserves and a starting price. Used to bootstrap markets against an
// external base price.
func (e *Engine) CreateMarketWithLiquidity(question string, endTime time.Time, yesReserve, noReserve *big.Int, basePrice int64) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if !endTime.After(now) {
		return 0, domain.ErrInvalidSchedule
	}
	if !domain.ValidPrice(basePrice) {
		return 0, domain.ErrInvalidPrice
	}
	if yesReserve == nil {
		yesReserve = new(big.Int)
	}
	if noReserve == nil {
		noReserve = new(big.Int)
	}
	if yesReserve.Sign() < 0 || noReserve.Sign() < 0 {
		return 0, domain.ErrInvalidAmount
	}

	id := uint32(len(e.markets))
	e.markets = append(e.markets, &marketState{
		market: domain.Market{
			ID:          id,
			Question:    question,
			EndTime:     endTime,
			State:       domain.MarketStateActive,
			Outcome:     domain.OutcomeUnset,
			YesPrice:    basePrice,
			YesReserve:  new(big.Int).Set(yesReserve),
			NoReserve:   new(big.Int).Set(noReserve),
			TotalVolume: new(big.Int),
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		totalYes: new(big.Int),
		totalNo:  new(big.Int),
	})

	e.logger.Info("market created",
		slog.Uint64("market_id", uint64(id)),
		slog.String("question", question),
		slog.Int64("base_price_bp", basePrice),
		slog.Time("end_time", endTime),
	)

	return id, nil
}

// SetFeedIdentifiers attaches the external feed condition id and slug used
// to match this market against price-feed records.
func (e *Engine) SetFeedIdentifiers(id uint32, conditionID, slug string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ms, err := e.get(id)
	if err != nil {
		return err
	}
	ms.market.ConditionID = conditionID
	ms.market.Slug = slug
	return nil
}
