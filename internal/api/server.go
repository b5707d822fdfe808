package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/angel-control/angelmon/internal/auth"
	"github.com/angel-control/angelmon/internal/command"
	"github.com/angel-control/angelmon/internal/config"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// shutdownTimeout bounds Stop when the caller's context has no deadline.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP API server.
type Server struct {
	httpServer     *http.Server
	telemetryHub   TelemetryPort
	commands       command.ServicePort
	authMiddleware *auth.Middleware
	cfg            config.HTTPConfig
	logger         *slog.Logger
	startTime      time.Time
}

// NewServer creates a new API server. A nil authMiddleware serves every
// route unauthenticated.
func NewServer(telemetryHub TelemetryPort, commands command.ServicePort, authMiddleware *auth.Middleware, cfg config.HTTPConfig, logger *slog.Logger) *Server {
	if authMiddleware == nil {
		authMiddleware = auth.NewMiddleware(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		telemetryHub:   telemetryHub,
		commands:       commands,
		authMiddleware: authMiddleware,
		cfg:            cfg,
		logger:         logger,
		startTime:      time.Now(),
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Start serves HTTP on addr until Stop is called. An empty addr uses the
// configured one.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = s.cfg.Addr
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.logger.Info("api listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
