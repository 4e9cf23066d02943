// Package server exposes the settlement core over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/settlecore/internal/server/handler"
	"github.com/alanyoungcy/settlecore/internal/server/middleware"
	"github.com/alanyoungcy/settlecore/internal/server/ws"
)

// Config holds the HTTP server configuration. APIKeys maps each API key to
// the caller address it authenticates as; empty disables authentication.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKeys     map[string]common.Address
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Conditions  *handler.ConditionHandler
	Orders      *handler.OrderHandler
	Positions   *handler.PositionHandler
	Balances    *handler.BalanceHandler
	Settlements *handler.SettlementHandler
}

// Server is the HTTP + WebSocket API server for the settlement core.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Condition lifecycle.
	mux.HandleFunc("POST /api/conditions", handlers.Conditions.PrepareCondition)
	mux.HandleFunc("GET /api/conditions/{id}", handlers.Conditions.GetCondition)
	mux.HandleFunc("POST /api/conditions/{id}/pair", handlers.Conditions.RegisterPair)
	mux.HandleFunc("POST /api/payouts", handlers.Conditions.ReportPayouts)

	// Order matching.
	mux.HandleFunc("POST /api/orders/match", handlers.Orders.Match)
	mux.HandleFunc("POST /api/orders/cancel", handlers.Orders.Cancel)

	// Position operations.
	mux.HandleFunc("POST /api/positions/split", handlers.Positions.Split)
	mux.HandleFunc("POST /api/positions/merge", handlers.Positions.Merge)
	mux.HandleFunc("POST /api/positions/redeem", handlers.Positions.Redeem)

	// Balances and direct ledger operations.
	mux.HandleFunc("GET /api/balances/{account}/{asset}", handlers.Balances.GetBalance)
	mux.HandleFunc("POST /api/balances/credit", handlers.Balances.Credit)
	mux.HandleFunc("POST /api/balances/transfer", handlers.Balances.Transfer)

	// Settlement log.
	mux.HandleFunc("GET /api/settlements", handlers.Settlements.ListSettlements)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if no API keys are configured).
	h = middleware.Auth(cfg.APIKeys)(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
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
