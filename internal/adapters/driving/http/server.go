package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/domain"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driving"
)

// Pinger reports backing-store health for the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Retrainer triggers a full re-ingest of every live source on an agent
type Retrainer interface {
	TriggerRetrain(ctx context.Context, orgID, agentID, idempotencyKey string, force bool) (*domain.Job, error)
}

// Config holds HTTP server configuration
type Config struct {
	Host string
	Port int

	// Version is reported by the version endpoint
	Version string

	// AllowedOrigins controls CORS for the embedded widget; empty disables
	// cross-origin access
	AllowedOrigins []string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:        "0.0.0.0",
		Port:        8080,
		Version:     "dev",
		ReadTimeout: 30 * time.Second,
		// Chat responses stream token by token; the write timeout must
		// cover a full generation, not a single write.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
}

// Server is the HTTP driving adapter
type Server struct {
	config   Config
	logger   *slog.Logger
	server   *http.Server
	handlers *Handlers
	auth     *AuthMiddleware
}

// ServerDeps holds the services and adapters the server exposes
type ServerDeps struct {
	Chat          driving.ChatService
	Sources       driving.SourceService
	Jobs          driving.JobService
	Conversations driving.ConversationService
	Retrainer     Retrainer
	Auth          *AuthMiddleware

	// DB and Cache are probed by the readiness endpoint; Cache may be nil
	DB    Pinger
	Cache Pinger
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps ServerDeps) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 120 * time.Second
	}

	handlers := NewHandlers(HandlersConfig{
		Chat:          deps.Chat,
		Sources:       deps.Sources,
		Jobs:          deps.Jobs,
		Conversations: deps.Conversations,
		Retrainer:     deps.Retrainer,
		DB:            deps.DB,
		Cache:         deps.Cache,
		Version:       cfg.Version,
		Logger:        logger,
	})

	s := &Server{
		config:   cfg,
		logger:   logger,
		handlers: handlers,
		auth:     deps.Auth,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Unauthenticated probes
	mux.HandleFunc("GET /health", s.handlers.Health)
	mux.HandleFunc("GET /ready", s.handlers.Ready)
	mux.HandleFunc("GET /version", s.handlers.Version)

	// Authenticated API
	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/chat", s.handlers.Chat)

	api.HandleFunc("POST /api/v1/sources", s.handlers.RegisterSource)
	api.HandleFunc("GET /api/v1/sources", s.handlers.ListSources)
	api.HandleFunc("GET /api/v1/sources/{id}", s.handlers.GetSource)
	api.HandleFunc("DELETE /api/v1/sources/{id}", s.handlers.DeleteSource)
	api.HandleFunc("POST /api/v1/sources/{id}/ingest", s.handlers.TriggerIngest)

	api.HandleFunc("POST /api/v1/agents/{id}/retrain", s.handlers.TriggerRetrain)

	api.HandleFunc("GET /api/v1/jobs/stuck", s.handlers.ListStuckJobs)
	api.HandleFunc("GET /api/v1/jobs/{id}", s.handlers.GetJob)
	api.HandleFunc("POST /api/v1/jobs/{id}/cancel", s.handlers.CancelJob)
	api.HandleFunc("POST /api/v1/jobs/{id}/retry", s.handlers.RetryJob)

	api.HandleFunc("GET /api/v1/conversations/{id}/messages", s.handlers.ListMessages)

	var apiHandler http.Handler = api
	if s.auth != nil {
		apiHandler = s.auth.Authenticate(api)
	}
	mux.Handle("/api/v1/", apiHandler)

	logging := NewLoggingMiddleware(s.logger)
	recovery := NewRecoveryMiddleware(s.logger)

	var handler http.Handler = logging.Handler(mux)
	if len(s.config.AllowedOrigins) > 0 {
		handler = NewCORSMiddleware(s.config.AllowedOrigins).Handler(handler)
	}
	return recovery.Handler(handler)
}

// Handler returns the fully assembled handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the server until the context is cancelled or a shutdown
// signal arrives
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("http server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	return s.Stop(context.Background())
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	s.logger.Info("http server stopping")
	return s.server.Shutdown(shutdownCtx)
}
