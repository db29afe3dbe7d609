package driver

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the configured drivers as concurrent loops. Either
// driver may be nil, in which case it is not started.
type Orchestrator struct {
	syncer     *Syncer
	fluctuator *Fluctuator
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the given drivers.
func NewOrchestrator(syncer *Syncer, fluctuator *Fluctuator, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		syncer:     syncer,
		fluctuator: fluctuator,
		logger:     logger.With(slog.String("component", "driver_orchestrator")),
	}
}

// Run starts the driver loops under an errgroup and blocks until the
// context is cancelled or a driver halts fatally. A fatal driver error
// cancels the sibling loop as well.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if o.syncer != nil {
		g.Go(func() error {
			o.logger.Info("starting feed sync loop")
			err := o.syncer.RunLoop(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("feed syncer: %w", err)
		})
	}

	if o.fluctuator != nil {
		g.Go(func() error {
			o.logger.Info("starting fluctuation loop")
			err := o.fluctuator.RunLoop(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("fluctuator: %w", err)
		})
	}

	return g.Wait()
}
