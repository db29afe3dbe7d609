// Package driver implements the periodic oracle drivers: the external-feed
// price syncer and the fluctuation generator. Both are single-threaded
// polling loops with a reentrancy guard (an overlapping tick is skipped, not
// queued) and graceful shutdown: a tick in flight always runs to completion
// before the loop honours cancellation.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/openpredict/marketd/internal/domain"
)

// PriceReader reads the last committed basis-point price of a market.
type PriceReader interface {
	CurrentPrice(ctx context.Context, marketID uint32) (int64, error)
}

// PriceSubmitter submits a price update through the commit layer. A
// domain.ErrResourceExhausted return is fatal to the calling driver; any
// other error is logged and skipped.
type PriceSubmitter interface {
	SubmitPrice(ctx context.Context, marketID uint32, priceBp int64) error
}

// BaseMarket pins the fluctuation anchor for one market.
type BaseMarket struct {
	MarketID  uint32
	BasePrice int64 // basis points
}

// FluctuatorConfig holds the tuning knobs for the fluctuation driver.
type FluctuatorConfig struct {
	Interval       time.Duration
	FluctuationPct float64 // target wander range around the base price, in percent
	MaxStepBp      int64   // per-tick smoothing cap
	MinDeltaBp     int64   // updates smaller than this are not emitted
}

// DefaultFluctuatorConfig matches the production driver: ±5% wander, 200 bp
// smoothing step, 50 bp emission floor, 30 s ticks.
func DefaultFluctuatorConfig() FluctuatorConfig {
	return FluctuatorConfig{
		Interval:       30 * time.Second,
		FluctuationPct: 5,
		MaxStepBp:      200,
		MinDeltaBp:     50,
	}
}

// Fluctuator drifts market prices around per-market base prices to keep
// quiet markets alive. It is a driver, not an oracle: every price it emits
// goes through the authoritative update path and may be rejected there.
type Fluctuator struct {
	reader    PriceReader
	submitter PriceSubmitter
	cfg       FluctuatorConfig

	// Per-instance run context: base prices and tick counter. Nothing here
	// is shared beyond the driver instance.
	markets  []BaseMarket
	tickSeq  uint64
	rng      *rand.Rand
	inFlight atomic.Bool

	logger *slog.Logger
}

// NewFluctuator creates a fluctuation driver over the given markets. rng is
// the fluctuation source; pass a seeded rand.New(rand.NewSource(seed)) for
// reproducible runs.
func NewFluctuator(markets []BaseMarket, reader PriceReader, submitter PriceSubmitter, rng *rand.Rand, cfg FluctuatorConfig, logger *slog.Logger) *Fluctuator {
	return &Fluctuator{
		reader:    reader,
		submitter: submitter,
		cfg:       cfg,
		markets:   markets,
		rng:       rng,
		logger:    logger.With(slog.String("component", "fluctuator")),
	}
}

// Tick runs one fluctuation pass over all configured markets. It returns a
// non-nil error only for fatal conditions (resource exhaustion); per-market
// rejections are logged and skipped.
func (f *Fluctuator) Tick(ctx context.Context) error {
	if !f.inFlight.CompareAndSwap(false, true) {
		f.logger.Warn("previous tick still in flight, skipping")
		return nil
	}
	defer f.inFlight.Store(false)

	f.tickSeq++
	updated, skipped := 0, 0

	for _, bm := range f.markets {
		current, err := f.reader.CurrentPrice(ctx, bm.MarketID)
		if err != nil {
			f.logger.Warn("read current price failed",
				slog.Uint64("market_id", uint64(bm.MarketID)),
				slog.String("error", err.Error()),
			)
			continue
		}

		target := f.target(bm.BasePrice)
		next := smooth(current, target, f.cfg.MaxStepBp)
		if abs64(next-current) < f.cfg.MinDeltaBp {
			skipped++
			continue
		}

		if err := f.submitter.SubmitPrice(ctx, bm.MarketID, next); err != nil {
			if errors.Is(err, domain.ErrResourceExhausted) {
				return fmt.Errorf("driver: fluctuator halted: %w", err)
			}
			f.logger.Warn("price update rejected",
				slog.Uint64("market_id", uint64(bm.MarketID)),
				slog.Int64("price_bp", next),
				slog.String("error", err.Error()),
			)
			continue
		}

		f.logger.Debug("price fluctuated",
			slog.Uint64("market_id", uint64(bm.MarketID)),
			slog.Int64("from_bp", current),
			slog.Int64("to_bp", next),
			slog.Int64("target_bp", target),
		)
		updated++
	}

	f.logger.Info("fluctuation tick complete",
		slog.Uint64("tick", f.tickSeq),
		slog.Int("updated", updated),
		slog.Int("skipped", skipped),
	)
	return nil
}

// RunLoop runs ticks on the configured interval until the context is
// cancelled. A fatal tick error stops the loop; the current tick always
// finishes before cancellation is honoured.
func (f *Fluctuator) RunLoop(ctx context.Context) error {
	// Run immediately on start.
	if err := f.Tick(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("fluctuator loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := f.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// target generates the tick's aim price: a uniform ±FluctuationPct wander
// around the base price, clamped to the tradable bounds.
func (f *Fluctuator) target(basePrice int64) int64 {
	fluctuation := (f.rng.Float64() - 0.5) * 2 * f.cfg.FluctuationPct
	raw := float64(basePrice) * (1 + fluctuation/100)
	return domain.ClampPrice(int64(math.Round(raw)))
}

// smooth moves current toward target by at most maxStep basis points.
func smooth(current, target, maxStep int64) int64 {
	diff := target - current
	if diff > maxStep {
		diff = maxStep
	}
	if diff < -maxStep {
		diff = -maxStep
	}
	return current + diff
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
