package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/engine"
)

// Archiver writes a settlement report to cold storage.
type Archiver interface {
	ArchiveSettlement(ctx context.Context, report domain.SettlementReport) error
}

// Notifier delivers operator-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// ResolutionService handles market resolution: committing the terminal
// outcome, archiving the settlement report, and notifying operators. The
// archiver and notifier may be nil.
type ResolutionService struct {
	engine   *engine.Engine
	rec      *Recorder
	archiver Archiver
	notifier Notifier
	logger   *slog.Logger
}

// NewResolutionService creates a ResolutionService.
func NewResolutionService(eng *engine.Engine, rec *Recorder, archiver Archiver, notifier Notifier, logger *slog.Logger) *ResolutionService {
	return &ResolutionService{
		engine:   eng,
		rec:      rec,
		archiver: archiver,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "resolution_service")),
	}
}

// ResolveMarket fixes a market's terminal outcome, snapshots its payout
// pool, and fans the settlement out to the archive and notifiers. The
// resolution itself is committed before any side effect runs; side-effect
// failures are logged only.
func (s *ResolutionService) ResolveMarket(ctx context.Context, id uint32, outcome domain.Outcome) error {
	if err := s.engine.ResolveMarket(id, outcome); err != nil {
		return fmt.Errorf("resolution_service: resolve market: %w", err)
	}

	m, err := s.engine.GetMarketInfo(id)
	if err != nil {
		return nil
	}
	positions, err := s.engine.PositionsByMarket(id)
	if err != nil {
		positions = nil
	}

	s.rec.record(ctx, "resolve_market", m, nil, map[string]any{
		"outcome": string(outcome),
		"pool":    m.Pool.String(),
	}, positions...)
	s.rec.publish(ctx, ChannelSettlements, map[string]any{
		"event":     "market_resolved",
		"market_id": m.ID,
		"outcome":   string(outcome),
		"pool":      m.Pool.String(),
	})

	report := domain.SettlementReport{
		MarketID:   m.ID,
		Question:   m.Question,
		Outcome:    outcome,
		Pool:       m.Pool,
		ResolvedAt: time.Now().UTC(),
		Positions:  positions,
	}
	if s.archiver != nil {
		if err := s.archiver.ArchiveSettlement(ctx, report); err != nil {
			s.logger.WarnContext(ctx, "settlement archive failed",
				slog.Uint64("market_id", uint64(m.ID)),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.notifier != nil {
		subject := fmt.Sprintf("Market %d resolved %s", m.ID, outcome)
		body := fmt.Sprintf("%q resolved %s with a payout pool of %s across %d positions.",
			m.Question, outcome, m.Pool.String(), len(positions))
		if err := s.notifier.Notify(ctx, subject, body); err != nil {
			s.logger.WarnContext(ctx, "resolution notification failed",
				slog.Uint64("market_id", uint64(m.ID)),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "market resolved",
		slog.Uint64("market_id", uint64(m.ID)),
		slog.String("outcome", string(outcome)),
		slog.String("pool", m.Pool.String()),
	)
	return nil
}
