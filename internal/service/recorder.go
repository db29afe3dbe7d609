// Package service coordinates the settlement engine with the durable ledger
// layers: committed mutations are journaled, market and position snapshots
// are persisted write-behind, prices are cached, and events are published on
// the signal bus. The in-memory engine state stays authoritative; ledger
// write failures are logged and never affect a committed mutation.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

// Signal bus channels for committed engine events.
const (
	ChannelPrices      = "prices"
	ChannelOrders      = "orders"
	ChannelSettlements = "settlements"
	ChannelMarkets     = "markets"
)

// Recorder is the shared write-behind sink used by all services. Any of its
// dependencies may be nil (engine-only mode), in which case the
// corresponding write is skipped.
type Recorder struct {
	journal   domain.Journal
	markets   domain.MarketStore
	positions domain.PositionStore
	prices    domain.PriceCache
	bus       domain.SignalBus
	logger    *slog.Logger
}

// NewRecorder creates the shared write-behind recorder.
func NewRecorder(
	journal domain.Journal,
	markets domain.MarketStore,
	positions domain.PositionStore,
	prices domain.PriceCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *Recorder {
	return &Recorder{
		journal:   journal,
		markets:   markets,
		positions: positions,
		prices:    prices,
		bus:       bus,
		logger:    logger.With(slog.String("component", "recorder")),
	}
}

// record journals one committed mutation and persists the affected
// snapshots. The returned settlement reference is for logging only.
func (r *Recorder) record(ctx context.Context, op string, market domain.Market, holder *common.Address, detail map[string]any, positions ...domain.Position) {
	if r == nil {
		return
	}

	var ref string
	if r.journal != nil {
		var err error
		ref, err = r.journal.Append(ctx, domain.JournalEntry{
			Op:        op,
			MarketID:  market.ID,
			Holder:    holder,
			Detail:    detail,
			CreatedAt: time.Now(),
		})
		if err != nil {
			r.logger.WarnContext(ctx, "journal append failed",
				slog.String("op", op),
				slog.Uint64("market_id", uint64(market.ID)),
				slog.String("error", err.Error()),
			)
		}
	}

	if r.markets != nil {
		if err := r.markets.Upsert(ctx, market); err != nil {
			r.logger.WarnContext(ctx, "market snapshot persist failed",
				slog.Uint64("market_id", uint64(market.ID)),
				slog.String("error", err.Error()),
			)
		}
	}
	if r.positions != nil && len(positions) > 0 {
		var err error
		if len(positions) == 1 {
			err = r.positions.Upsert(ctx, positions[0])
		} else {
			// Resolution snapshots every position in the market at once.
			err = r.positions.UpsertBatch(ctx, positions)
		}
		if err != nil {
			r.logger.WarnContext(ctx, "position snapshot persist failed",
				slog.Uint64("market_id", uint64(market.ID)),
				slog.Int("positions", len(positions)),
				slog.String("error", err.Error()),
			)
		}
	}
	if r.prices != nil {
		if err := r.prices.SetPrice(ctx, market.ID, market.YesPrice, market.UpdatedAt); err != nil {
			r.logger.WarnContext(ctx, "price cache write failed",
				slog.Uint64("market_id", uint64(market.ID)),
				slog.String("error", err.Error()),
			)
		}
	}

	if ref != "" {
		r.logger.DebugContext(ctx, "mutation committed",
			slog.String("op", op),
			slog.Uint64("market_id", uint64(market.ID)),
			slog.String("settlement_ref", ref),
		)
	}
}

// publish sends a JSON event on the signal bus; settlement-channel events
// are additionally appended to the durable settlement stream.
func (r *Recorder) publish(ctx context.Context, channel string, event map[string]any) {
	if r == nil || r.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, channel, payload); err != nil {
		r.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	if channel == ChannelSettlements {
		if err := r.bus.StreamAppend(ctx, domain.SettlementStream, payload); err != nil {
			r.logger.WarnContext(ctx, "settlement stream append failed",
				slog.String("error", err.Error()),
			)
		}
	}
}
