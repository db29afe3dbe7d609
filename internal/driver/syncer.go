package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/feed"
)

// RecordFetcher retrieves price records from the external feed.
type RecordFetcher interface {
	GetMarkets(ctx context.Context, limit int) ([]feed.Record, error)
}

// MarketLister lists the local markets eligible for feed sync.
type MarketLister interface {
	ListMarkets(ctx context.Context) ([]domain.Market, error)
}

// SyncerConfig holds the tuning knobs for the feed sync driver.
type SyncerConfig struct {
	Interval   time.Duration
	FetchLimit int
	MinDeltaBp int64
	// MaxFailures is the number of consecutive feed failures tolerated
	// before the driver halts.
	MaxFailures int
}

// DefaultSyncerConfig matches the production driver: 30 s polls, 100-record
// pages, 50 bp emission floor, halt after 5 consecutive feed failures.
func DefaultSyncerConfig() SyncerConfig {
	return SyncerConfig{
		Interval:    30 * time.Second,
		FetchLimit:  100,
		MinDeltaBp:  50,
		MaxFailures: 5,
	}
}

// Syncer mirrors external feed prices onto local markets. Records are
// matched by condition id or slug; unmatched or malformed records are
// logged and skipped without affecting the rest of the tick.
type Syncer struct {
	fetcher   RecordFetcher
	markets   MarketLister
	submitter PriceSubmitter
	cfg       SyncerConfig

	tickSeq     uint64
	consecutive int // consecutive feed failures
	inFlight    atomic.Bool
	logger      *slog.Logger
}

// NewSyncer creates a feed sync driver.
func NewSyncer(fetcher RecordFetcher, markets MarketLister, submitter PriceSubmitter, cfg SyncerConfig, logger *slog.Logger) *Syncer {
	return &Syncer{
		fetcher:   fetcher,
		markets:   markets,
		submitter: submitter,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "feed_syncer")),
	}
}

// Tick runs one sync pass. Transient feed errors are tolerated up to
// MaxFailures consecutive occurrences; resource exhaustion from the commit
// layer is immediately fatal.
func (s *Syncer) Tick(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn("previous tick still in flight, skipping")
		return nil
	}
	defer s.inFlight.Store(false)

	s.tickSeq++

	records, err := s.fetcher.GetMarkets(ctx, s.cfg.FetchLimit)
	if err != nil {
		s.consecutive++
		s.logger.Error("feed request failed",
			slog.Int("consecutive_failures", s.consecutive),
			slog.String("error", err.Error()),
		)
		if s.consecutive > s.cfg.MaxFailures {
			return fmt.Errorf("driver: %d consecutive feed failures: %w", s.consecutive, err)
		}
		return nil
	}
	s.consecutive = 0

	locals, err := s.markets.ListMarkets(ctx)
	if err != nil {
		s.logger.Error("list local markets failed", slog.String("error", err.Error()))
		return nil
	}

	synced, skipped := 0, 0
	for _, local := range locals {
		rec, ok := match(records, local)
		if !ok {
			s.logger.Debug("no remote record for market",
				slog.Uint64("market_id", uint64(local.ID)),
				slog.String("condition_id", local.ConditionID),
			)
			continue
		}

		priceBp := domain.ClampPrice(int64(math.Round(rec.YesPrice * float64(domain.PriceScaleBp))))
		if abs64(priceBp-local.YesPrice) < s.cfg.MinDeltaBp {
			skipped++
			continue
		}

		if err := s.submitter.SubmitPrice(ctx, local.ID, priceBp); err != nil {
			if errors.Is(err, domain.ErrResourceExhausted) {
				return fmt.Errorf("driver: syncer halted: %w", err)
			}
			s.logger.Warn("price update rejected",
				slog.Uint64("market_id", uint64(local.ID)),
				slog.Int64("price_bp", priceBp),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.logger.Debug("market synced",
			slog.Uint64("market_id", uint64(local.ID)),
			slog.Int64("from_bp", local.YesPrice),
			slog.Int64("to_bp", priceBp),
		)
		synced++
	}

	s.logger.Info("sync tick complete",
		slog.Uint64("tick", s.tickSeq),
		slog.Int("synced", synced),
		slog.Int("skipped", skipped),
	)
	return nil
}

// RunLoop runs ticks on the configured interval until the context is
// cancelled or a fatal condition stops the driver.
func (s *Syncer) RunLoop(ctx context.Context) error {
	if err := s.Tick(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("syncer loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// match finds the remote record for a local market by condition id first,
// then slug.
func match(records []feed.Record, local domain.Market) (feed.Record, bool) {
	for _, r := range records {
		if local.ConditionID != "" && r.ConditionID == local.ConditionID {
			return r, true
		}
		if local.Slug != "" && r.Slug == local.Slug {
			return r, true
		}
	}
	return feed.Record{}, false
}
