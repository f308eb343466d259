// Package api exposes the chat service over HTTP.
//
// Endpoints:
//
//	POST /api/v1/chat                       synchronous chat (JSON)
//	POST /api/v1/chat/stream                streaming chat (Server-Sent Events)
//	GET  /api/v1/sessions/{id}/messages     session transcript
//	GET  /health                            liveness probe
//	GET  /ready                             readiness probe (pings the database)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: logging, recovery, middleware chaining
//   - ratelimit.go: per-client rate limiting
//   - health.go: health check endpoints
//   - chat.go: chat and transcript endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to stop Slowloris-style
	// connection hoarding.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout must cover a full provider stream end to end; SSE
	// responses can legitimately take minutes.
	WriteTimeout = 5 * time.Minute

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the chat API.
type Server struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	limiter *rateLimiter

	health *HealthHandler
	chat   *ChatHandler
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Logger *slog.Logger // nil = slog.Default()

	// RateLimit is requests per second per client IP. Zero disables
	// rate limiting.
	RateLimit float64
	// RateBurst is the per-client burst allowance when RateLimit is set.
	RateBurst int
	// TrustProxy enables reading the client IP from X-Forwarded-For.
	// Only set behind a proxy that strips the header from client input.
	TrustProxy bool
}

// NewServer creates an HTTP server with all routes registered.
// pinger backs the readiness probe and may be nil.
func NewServer(cfg ServerConfig, conversations Conversations, transcripts TranscriptReader, pinger Pinger) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:    mux,
		logger: logger,
		health: NewHealthHandler(pinger, logger),
		chat:   NewChatHandler(conversations, transcripts, logger),
	}
	if cfg.RateLimit > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.TrustProxy, logger)
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery, rate limit, logging, handler.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		recoveryMiddleware(s.logger),
	}
	if s.limiter != nil {
		middlewares = append(middlewares, s.limiter.middleware)
	}
	middlewares = append(middlewares, loggingMiddleware(s.logger))
	return chain(s.mux, middlewares...)
}

// Run starts the HTTP server and blocks until ctx is canceled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
