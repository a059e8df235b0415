package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wallet-adapter/connector/internal/auth"
	"github.com/wallet-adapter/connector/internal/config"
)

// DefaultStream is the hub stream carrying host-facing wallet events.
const DefaultStream = "host"

// DefaultHeartbeatInterval spaces SSE keep-alive comments.
const DefaultHeartbeatInterval = 15 * time.Second

// ServerConfig configures a gateway.
type ServerConfig struct {
	// Middleware authenticates requests; nil admits everything
	Middleware *auth.Middleware

	// Events backs the /events stream; nil disables it
	Events EventPort
	Stream string

	HeartbeatInterval time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// ServerConfigFromConfig builds a ServerConfig from the API section.
func ServerConfigFromConfig(cfg config.APIConfig, middleware *auth.Middleware, events EventPort) ServerConfig {
	return ServerConfig{
		Middleware:   middleware,
		Events:       events,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler

	wallet    WalletPort
	events    EventPort
	stream    string
	auth      *auth.Middleware
	heartbeat time.Duration
	startTime time.Time

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
}

// NewServer creates a gateway in front of wallet.
func NewServer(wallet WalletPort, cfg ServerConfig) *Server {
	s := &Server{
		wallet:       wallet,
		events:       cfg.Events,
		stream:       cfg.Stream,
		auth:         cfg.Middleware,
		heartbeat:    cfg.HeartbeatInterval,
		startTime:    time.Now(),
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		idleTimeout:  cfg.IdleTimeout,
	}
	if s.stream == "" {
		s.stream = DefaultStream
	}
	if s.heartbeat <= 0 {
		s.heartbeat = DefaultHeartbeatInterval
	}
	if s.auth == nil {
		s.auth = auth.NewMiddleware(nil)
	}

	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	s.handler = mux
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves on addr until Stop. It returns nil after a graceful stop.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// Watch subscribes to the wallet's account and network changes and publishes
// them on the event stream. Subscriptions last as long as the wallet's.
func (s *Server) Watch(ctx context.Context) error {
	if s.events == nil {
		return fmt.Errorf("event stream not configured")
	}

	if err := s.wallet.OnAccountChange(ctx, s.publishAccount); err != nil {
		return fmt.Errorf("failed to watch account changes: %w", err)
	}
	if err := s.wallet.OnNetworkChange(ctx, s.publishNetwork); err != nil {
		return fmt.Errorf("failed to watch network changes: %w", err)
	}
	return nil
}
