package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bellanapoli/bellad/internal/domain"
	"github.com/bellanapoli/bellad/internal/server/handler"
	"github.com/bellanapoli/bellad/internal/server/middleware"
	"github.com/bellanapoli/bellad/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, admin routes are left open (dev only)

	// RateLimit caps requests per client IP per RateWindow; 0 disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Markets  *handler.MarketHandler
	Bets     *handler.BetHandler
	Comments *handler.CommentHandler
	Admin    *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server for the betting app.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. The public betting
// API needs no credentials; only /api/admin is wrapped with API-key auth
// since the wallet itself is the user identity everywhere else.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Public market endpoints.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/slug/{slug}", handlers.Markets.GetMarketBySlug)

	// Bets and claims.
	mux.HandleFunc("POST /api/markets/{id}/bets", handlers.Bets.PlaceBet)
	mux.HandleFunc("POST /api/markets/{id}/claims", handlers.Bets.RecordClaim)
	mux.HandleFunc("GET /api/markets/{id}/bettors/top", handlers.Bets.TopBettors)
	mux.HandleFunc("GET /api/bets", handlers.Bets.ListBets)

	// Comments.
	mux.HandleFunc("GET /api/markets/{id}/comments", handlers.Comments.ListComments)
	mux.HandleFunc("POST /api/markets/{id}/comments", handlers.Comments.CreateComment)

	// Admin endpoints, behind API-key auth.
	admin := http.NewServeMux()
	admin.HandleFunc("POST /api/admin/markets", handlers.Admin.CreateMarket)
	admin.HandleFunc("PUT /api/admin/markets/{id}", handlers.Admin.UpdateMarket)
	admin.HandleFunc("DELETE /api/admin/markets/{id}", handlers.Admin.DeleteMarket)
	admin.HandleFunc("POST /api/admin/markets/{id}/pool", handlers.Admin.SetPool)
	admin.HandleFunc("POST /api/admin/markets/{id}/resolve", handlers.Admin.Resolve)
	admin.HandleFunc("POST /api/admin/markets/{id}/cancel", handlers.Admin.Cancel)
	admin.HandleFunc("POST /api/admin/markets/{id}/emergency-resolve", handlers.Admin.EmergencyResolve)
	admin.HandleFunc("POST /api/admin/markets/{id}/emergency-stop", handlers.Admin.EmergencyStop)
	admin.HandleFunc("POST /api/admin/markets/{id}/status", handlers.Admin.SetStatus)
	admin.HandleFunc("GET /api/admin/audit", handlers.Admin.ListAudit)
	admin.HandleFunc("DELETE /api/admin/comments/{id}", handlers.Comments.DeleteComment)
	mux.Handle("/api/admin/", middleware.Auth(cfg.APIKey)(admin))

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
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
