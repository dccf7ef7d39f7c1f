// Package http implements the REST API of the adaptive learning hub.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/julAtWork/edx-platform/config"
	"github.com/julAtWork/edx-platform/internal/application/revisions"
	"github.com/julAtWork/edx-platform/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config describes the listener and the request guards of the API.
type Config struct {
	Host string
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Upper bound for a tracking event body.
	MaxBodyBytes int64

	// Requests per minute per client IP, 0 turns limiting off.
	RateLimitPerMinute int

	// With no keys the API is open.
	APIKeyHeader string
	APIKeys      []string

	// Reported by the health endpoints.
	Version string
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    2 * time.Minute,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   1 << 20,
		APIKeyHeader:   handlers.DefaultAPIKeyHeader,
	}
}

// ConfigFrom maps application settings onto the server configuration.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.Host, c.Port = cfg.HTTP.Host, cfg.HTTP.Port
	c.ReadTimeout = cfg.HTTP.ReadTimeout
	c.WriteTimeout = cfg.HTTP.WriteTimeout
	c.IdleTimeout = cfg.HTTP.IdleTimeout
	c.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	c.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	c.APIKeys = cfg.HTTP.APIKeys
	c.Version = cfg.App.Version
	return c
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// RevisionsProvider lists the pending revisions of a learner across courses.
type RevisionsProvider interface {
	PendingRevisions(ctx context.Context, uid string) ([]revisions.Revision, error)
}

// BlockViewer shows an adaptive content block to a learner.
type BlockViewer interface {
	StudentView(ctx context.Context, courseID, blockID, uid string) ([]config.Child, error)
}

// TrackingHandler consumes one tracking event.
type TrackingHandler interface {
	Handle(ctx context.Context, event map[string]any) error
}

// Dependencies are the services behind the routes. A route is only
// mounted when its service is set.
type Dependencies struct {
	Revisions     RevisionsProvider
	Blocks        BlockViewer
	Tracking      TrackingHandler
	HealthChecker handlers.HealthChecker
	Logger        *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

type Server struct {
	config  Config
	deps    Dependencies
	logger  *slog.Logger
	mux     *http.ServeMux
	handler http.Handler
	srv     *http.Server

	auth    *handlers.APIKeyAuth
	limiter *rateLimiter

	running atomic.Bool
}

// NewServer wires routes and middleware. The listener is opened by Start.
func NewServer(cfg Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = handlers.NewCompositeHealthChecker(cfg.Version)
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: deps.Logger,
		mux:    http.NewServeMux(),
		auth:   handlers.NewAPIKeyAuth(cfg.APIKeyHeader, cfg.APIKeys),
	}
	if cfg.RateLimitPerMinute > 0 {
		s.limiter = newRateLimiter(cfg.RateLimitPerMinute)
	}

	s.routes()
	s.handler = s.wrap(s.mux)
	s.srv = &http.Server{
		Addr:           cfg.Address(),
		Handler:        s.handler,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}
	return s
}

// Handler returns the router with every middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("server already running")
	}

	s.logger.Info("starting HTTP server", "address", s.config.Address())
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.HandleFunc("GET /live", s.handleLive)

	if s.deps.Revisions != nil {
		s.mux.Handle("GET /revisions", s.protected(s.handleRevisions))
		s.mux.Handle("GET /api/v1/students/{uid}/revisions", s.protected(s.handleStudentRevisions))
	}

	if s.deps.Blocks != nil {
		s.mux.Handle("POST /api/v1/courses/{course_id}/blocks/{block_id}/view", s.protected(s.handleBlockView))
	}

	if s.deps.Tracking != nil {
		s.mux.Handle("POST /api/v1/tracking", handlers.ChainHandler(
			http.HandlerFunc(s.handleTracking),
			s.auth.Middleware,
			handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes),
		))
	}
}

func (s *Server) protected(h http.HandlerFunc) http.Handler {
	return handlers.ChainHandler(h, s.auth.Middleware, handlers.NoCacheMiddleware)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// wrap applies the global middleware, request id first.
func (s *Server) wrap(h http.Handler) http.Handler {
	chain := []handlers.MiddlewareFunc{
		withRequestID,
		s.logRequests,
		s.recoverPanics,
		handlers.SecurityHeadersMiddleware,
	}
	if s.limiter != nil {
		chain = append(chain, s.limitRate)
	}
	return handlers.ChainHandler(h, chain...)
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(started).Milliseconds(),
			"ip", clientIP(r),
			"request_id", requestID(r.Context()),
		)
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("panic in handler",
					"panic", v,
					"path", r.URL.Path,
					"request_id", requestID(r.Context()),
					"stack", string(debug.Stack()),
				)
				writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitRate(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(s.limiter.interval().Round(time.Second) / time.Second))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", retryAfter)
			writeJSONError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}
