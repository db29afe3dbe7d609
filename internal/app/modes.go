package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/openpredict/marketd/internal/driver"
	"github.com/openpredict/marketd/internal/engine"
	"github.com/openpredict/marketd/internal/feed"
	"github.com/openpredict/marketd/internal/notify"
	"github.com/openpredict/marketd/internal/server"
	"github.com/openpredict/marketd/internal/server/handler"
	"github.com/openpredict/marketd/internal/server/ws"
	"github.com/openpredict/marketd/internal/service"
)

// core bundles the settlement engine and the services built on top of it.
// Every mode shares the same core; modes differ only in which drivers and
// surfaces they start around it.
type core struct {
	engine     *engine.Engine
	recorder   *service.Recorder
	markets    *service.MarketService
	trades     *service.TradeService
	oracle     *service.OracleService
	resolution *service.ResolutionService
}

// buildCore constructs the engine and service layer from the wired
// dependencies. The configured oracle address, when set, is authorized as a
// price updater before any driver starts.
func (a *App) buildCore(deps *Dependencies) (*core, error) {
	owner := a.cfg.OwnerAddress()
	eng := engine.New(owner, a.logger)

	oracleAddr := a.cfg.OracleAddress()
	if oracleAddr != (common.Address{}) {
		if err := eng.AuthorizeUpdater(owner, oracleAddr); err != nil {
			return nil, fmt.Errorf("authorize oracle %s: %w", oracleAddr.Hex(), err)
		}
	}

	rec := service.NewRecorder(
		deps.Journal,
		deps.MarketStore,
		deps.PositionStore,
		deps.PriceCache,
		deps.SignalBus,
		a.logger,
	)

	// Avoid handing the resolution service a typed-nil archiver.
	var archiver service.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}

	return &core{
		engine:     eng,
		recorder:   rec,
		markets:    service.NewMarketService(eng, rec, a.logger),
		trades:     service.NewTradeService(eng, rec, a.logger),
		oracle:     service.NewOracleService(eng, rec, oracleAddr, a.logger),
		resolution: service.NewResolutionService(eng, rec, archiver, resolutionNotifier{deps.Notifier}, a.logger),
	}, nil
}

// resolutionNotifier routes resolution notifications through the notifier's
// event filter.
type resolutionNotifier struct {
	n *notify.Notifier
}

func (rn resolutionNotifier) Notify(ctx context.Context, subject, body string) error {
	return rn.n.NotifyEvent(ctx, notify.EventResolution, subject, body)
}

// EngineMode runs the engine behind the HTTP API with no price drivers.
// Prices change only through oracle API calls.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	c, err := a.buildCore(deps)
	if err != nil {
		return fmt.Errorf("engine mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, c)
	return g.Wait()
}

// SyncMode runs the engine with the external feed sync driver.
func (a *App) SyncMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sync mode")

	c, err := a.buildCore(deps)
	if err != nil {
		return fmt.Errorf("sync mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startDrivers(ctx, g, deps, c, true, false)
	a.startHTTPServer(ctx, g, deps, c)
	return g.Wait()
}

// FluctuateMode runs the engine with the simulated random-walk price driver.
func (a *App) FluctuateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting fluctuate mode")

	c, err := a.buildCore(deps)
	if err != nil {
		return fmt.Errorf("fluctuate mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startDrivers(ctx, g, deps, c, false, true)
	a.startHTTPServer(ctx, g, deps, c)
	return g.Wait()
}

// FullMode runs the engine with both price drivers and the HTTP API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	c, err := a.buildCore(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startDrivers(ctx, g, deps, c, true, true)
	a.startHTTPServer(ctx, g, deps, c)
	return g.Wait()
}

// startDrivers builds the requested price drivers and runs them under the
// orchestrator. A fatal driver halt is pushed to the notifier before the
// error propagates.
func (a *App) startDrivers(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core, withSync, withFluctuate bool) {
	var syncer *driver.Syncer
	if withSync && a.cfg.Sync.Enabled {
		feedClient := feed.NewClient(a.cfg.Feed.BaseURL)
		syncer = driver.NewSyncer(feedClient, c.markets, c.oracle, driver.SyncerConfig{
			Interval:    a.cfg.Sync.Interval.Duration,
			FetchLimit:  a.cfg.Feed.FetchLimit,
			MinDeltaBp:  a.cfg.Sync.MinDeltaBp,
			MaxFailures: a.cfg.Sync.MaxFailures,
		}, a.logger)
	}

	var fluctuator *driver.Fluctuator
	if withFluctuate && a.cfg.Simulate.Enabled {
		seed := a.cfg.Simulate.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))
		fluctuator = driver.NewFluctuator(a.baseMarkets(c), c.oracle, c.oracle, rng, driver.FluctuatorConfig{
			Interval:       a.cfg.Simulate.Interval.Duration,
			FluctuationPct: a.cfg.Simulate.FluctuationPct,
			MaxStepBp:      a.cfg.Simulate.MaxStepBp,
			MinDeltaBp:     a.cfg.Simulate.MinDeltaBp,
		}, a.logger)
	}

	if syncer == nil && fluctuator == nil {
		a.logger.WarnContext(ctx, "no price drivers enabled for this mode; prices will only move via the oracle API")
		return
	}

	orch := driver.NewOrchestrator(syncer, fluctuator, a.logger)
	g.Go(func() error {
		err := orch.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if nerr := deps.Notifier.NotifyEvent(notifyCtx, notify.EventDriverFatal,
				"price driver halted", err.Error()); nerr != nil {
				a.logger.Warn("driver halt notification failed", slog.String("error", nerr.Error()))
			}
		}
		return err
	})
}

// baseMarkets snapshots the current active markets as anchor points for the
// fluctuation driver. Each market wanders around the price it had when the
// driver started.
func (a *App) baseMarkets(c *core) []driver.BaseMarket {
	markets := c.engine.ListMarkets()
	base := make([]driver.BaseMarket, 0, len(markets))
	for _, m := range markets {
		base = append(base, driver.BaseMarket{
			MarketID:  m.ID,
			BasePrice: m.YesPrice,
		})
	}
	return base
}

// startHTTPServer registers the API handlers, starts the WebSocket hub when
// a signal bus is wired, and runs the HTTP server with graceful shutdown on
// context cancellation.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled")
		return
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Mode, time.Now().UTC(), a.logger),
		Markets: handler.NewMarketHandler(c.markets, a.logger),
		Trades:  handler.NewTradeHandler(c.trades, c.markets, a.logger),
		Oracle:  handler.NewOracleHandler(c.oracle, c.resolution, a.logger),
		Ledger:  handler.NewLedgerHandler(deps.Journal, deps.PositionStore, deps.SignalBus, a.logger),
		Prices:  handler.NewPriceHandler(deps.PriceCache, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	})
}
