// Package server exposes the settlement engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/server/handler"
	"github.com/openpredict/marketd/internal/server/middleware"
	"github.com/openpredict/marketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // if empty, authentication is disabled
	RateLimit       int    // requests per window per client; 0 disables
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Markets *handler.MarketHandler
	Trades  *handler.TradeHandler
	Oracle  *handler.OracleHandler
	Ledger  *handler.LedgerHandler
	Prices  *handler.PriceHandler
}

// Server is the headless HTTP + WebSocket API server for the settlement
// engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. The limiter may be nil, in which case rate limiting is
// disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market lifecycle and reads.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/positions/{holder}", handlers.Markets.GetPosition)

	// Trading.
	mux.HandleFunc("POST /api/markets/{id}/orders", handlers.Trades.PlaceOrder)
	mux.HandleFunc("POST /api/markets/{id}/sell", handlers.Trades.SellShares)
	mux.HandleFunc("POST /api/markets/{id}/claim", handlers.Trades.ClaimRewards)
	mux.HandleFunc("GET /api/markets/{id}/quote", handlers.Trades.Quote)

	// Oracle and resolution.
	mux.HandleFunc("PUT /api/markets/{id}/price", handlers.Oracle.UpdatePrice)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Oracle.ResolveMarket)
	mux.HandleFunc("POST /api/oracle/prices", handlers.Oracle.BatchUpdatePrices)
	mux.HandleFunc("POST /api/oracle/updaters", handlers.Oracle.AuthorizeUpdater)

	// Cached bulk price reads.
	mux.HandleFunc("GET /api/prices", handlers.Prices.ListPrices)

	// Durable ledger reads.
	mux.HandleFunc("GET /api/journal", handlers.Ledger.ListEntries)
	mux.HandleFunc("GET /api/holders/{holder}/positions", handlers.Ledger.ListHolderPositions)
	mux.HandleFunc("GET /api/settlements/stream", handlers.Ledger.SettlementEvents)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
