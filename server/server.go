// Package server wires the dispute pipeline behind a chi router and runs the
// HTTP listener with graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/teilomillet/dispute/config"
	"github.com/teilomillet/dispute/errors"
	"github.com/teilomillet/dispute/server/handlers"
	"github.com/teilomillet/dispute/server/metrics"
	"github.com/teilomillet/dispute/server/middleware"
	"github.com/teilomillet/dispute/server/processing"
	"github.com/teilomillet/dispute/server/provider"
	"github.com/teilomillet/dispute/server/validation"
)

// DisputePath is the single business endpoint.
const DisputePath = "/generate-dispute"

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	watcher    config.Watcher
	logger     *zap.Logger
	level      *zap.AtomicLevel
	metrics    *metrics.Metrics

	tokenizer validation.Tokenizer
}

// Option customizes a Server.
type Option func(*Server)

// WithLogLevel lets configuration reloads change the log level.
func WithLogLevel(level zap.AtomicLevel) Option {
	return func(s *Server) { s.level = &level }
}

// WithTokenizer replaces the tiktoken encoding used by the prompt budget.
func WithTokenizer(tok validation.Tokenizer) Option {
	return func(s *Server) { s.tokenizer = tok }
}

// NewServer builds the dispute pipeline from the watcher's current
// configuration. Provider, model, credential and input shape are read once
// here; later reloads only affect the log level.
func NewServer(watcher config.Watcher, logger *zap.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		watcher: watcher,
		logger:  logger,
		metrics: metrics.NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	cfg := watcher.GetCurrentConfig()

	client := provider.NewClient(cfg.LLM, logger, s.metrics)

	proc, err := processing.NewProcessor(&cfg.Processing, cfg.LLM.SystemPrompt, client)
	if err != nil {
		return nil, fmt.Errorf("create processor: %w", err)
	}

	if cfg.LLM.MaxContextTokens > 0 {
		if budget := s.tokenBudget(cfg.LLM); budget != nil {
			proc.SetBudget(budget)
		}
	}

	dispute := handlers.NewDisputeHandler(
		proc,
		validation.NewExtractor(cfg.Dispute),
		cfg.Server.MaxBodyBytes,
		s.metrics,
		logger,
	)

	s.httpServer = &http.Server{
		Addr:           cfg.Server.Addr(),
		Handler:        NewRouter(dispute, s.metrics, logger),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	logger.Info("Dispute pipeline ready",
		zap.String("shape", cfg.Dispute.Shape),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("base_url", cfg.LLM.BaseURL),
		zap.String("model", client.Model()),
		zap.Int("max_tokens", cfg.LLM.MaxTokens),
		zap.Float64("temperature", cfg.LLM.Temperature),
	)

	return s, nil
}

// tokenBudget returns nil when no encoding is available; the check is then
// skipped and the provider enforces its own limit.
func (s *Server) tokenBudget(cfg config.LLMConfig) *validation.TokenCounter {
	if s.tokenizer != nil {
		return validation.NewTokenCounterWithTokenizer(s.tokenizer, cfg.MaxContextTokens, cfg.MaxTokens)
	}
	tc, err := validation.NewTokenCounter(cfg.Model, cfg.MaxContextTokens, cfg.MaxTokens)
	if err != nil {
		s.logger.Warn("Token budget disabled", zap.String("model", cfg.Model), zap.Error(err))
		return nil
	}
	return tc
}

// NewRouter mounts the service routes behind the standard middleware stack.
func NewRouter(dispute http.Handler, m *metrics.Metrics, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Stack(logger, m)...)

	// Any method is routed to the handler, which answers 405 in JSON.
	r.Handle(DisputePath, dispute)
	r.Get("/health", handlers.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		errors.ErrorWithType(w, "Not Found", errors.NotFoundError, http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		errors.ErrorWithType(w, "Method "+req.Method+" not allowed", errors.MethodNotAllowedError, http.StatusMethodNotAllowed)
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Start listens on the configured address and blocks until ctx is done or
// the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then drains in-flight
// requests for at most the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("Server started", zap.String("address", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	go s.watchConfig(ctx, s.watcher.Subscribe())

	select {
	case <-ctx.Done():
		timeout := s.watcher.GetCurrentConfig().Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s.logger.Info("Shutting down server", zap.Duration("timeout", timeout))
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error during server shutdown: %w", err)
		}
		return nil

	case err := <-errChan:
		return err
	}
}

// watchConfig applies reloadable settings until ctx is done or the watcher
// is closed.
func (s *Server) watchConfig(ctx context.Context, updates <-chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			s.applyConfig(cfg)
		}
	}
}

func (s *Server) applyConfig(cfg *config.Config) {
	if s.level != nil {
		if err := config.SetLevel(*s.level, cfg.Logging); err != nil {
			s.logger.Warn("Ignoring invalid log level", zap.String("level", cfg.Logging.Level), zap.Error(err))
		} else {
			s.logger.Info("Log level updated", zap.String("level", cfg.Logging.Level))
		}
	}
	s.logger.Debug("Configuration reloaded; provider, model and shape changes require a restart")
}
