// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the local control API for the stream session.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ManuGH/remoto/internal/api/middleware"
	"github.com/ManuGH/remoto/internal/command"
	"github.com/ManuGH/remoto/internal/health"
	"github.com/ManuGH/remoto/internal/journal"
	xglog "github.com/ManuGH/remoto/internal/log"
	"github.com/ManuGH/remoto/internal/stream"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Session is the controller surface the API drives.
type Session interface {
	Start(url string) error
	Stop()
	Retry()
	SetVisible(visible bool)
	Snapshot() stream.Snapshot
	Flush(ctx context.Context) error
	Subscribe(buffer int) (<-chan stream.Transition, func())
}

// History lists recorded transitions, newest first.
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Commander forwards a natural-language command to the backend.
type Commander interface {
	Send(ctx context.Context, text string) (*command.Reply, error)
}

// Config tunes the router.
type Config struct {
	// Password enables basic auth (user "user") on /api/v1. Empty disables auth.
	Password string
	// RateLimit is requests per minute per client IP. Zero disables limiting.
	RateLimit int
	// TracingService enables otelhttp spans under this service name.
	TracingService string
	// KeepAlive is the interval between SSE comment frames.
	KeepAlive time.Duration
}

// Deps are the components behind the handlers. History and Commands are optional.
type Deps struct {
	Session  Session
	History  History
	Commands Commander
	Health   *health.Manager
	// StreamURL returns the configured playlist URL used by start requests without a body URL.
	StreamURL func() string
}

// Server holds the handlers and their dependencies.
type Server struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
}

// New creates the API server.
func New(cfg Config, deps Deps) *Server {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}
	if deps.Health == nil {
		deps.Health = health.NewManager("")
	}
	if deps.StreamURL == nil {
		deps.StreamURL = func() string { return "" }
	}
	return &Server{
		cfg:    cfg,
		deps:   deps,
		logger: xglog.WithComponent("api"),
	}
}

// Handler builds the chi router with the full middleware stack.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
		RateLimitPerMinute:    s.cfg.RateLimit,
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.Password != "" {
			r.Use(basicAuth(s.cfg.Password))
		}
		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
			r.Post("/retry", s.handleRetry)
			r.Put("/visibility", s.handleVisibility)
			r.Get("/history", s.handleHistory)
			r.Get("/events", s.handleEvents)
		})
		r.Post("/commands", s.handleCommand)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// basicAuth accepts user:<password>, the same credentials the command backend
// expects.
func basicAuth(password string) func(http.Handler) http.Handler {
	return chimw.BasicAuth("remoto", map[string]string{"user": password})
}
