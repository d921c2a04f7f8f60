// Package server implements the portalmod moderation HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NicolasHaas/portalmod/pkg/crypto"
	"github.com/NicolasHaas/portalmod/pkg/moderation"
	"github.com/NicolasHaas/portalmod/pkg/rbac"
	"github.com/NicolasHaas/portalmod/pkg/store"
)

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store store.UserStore

	// Registry receives the moderation and runtime metrics. A fresh registry
	// with Go and process collectors is created when nil.
	Registry *prometheus.Registry

	// SigningKey is the JWT HMAC key. When nil it is derived from
	// Config.JWT.Secret.
	SigningKey []byte

	// Now overrides the clock of the engine and token provider.
	Now func() time.Time

	Logger *slog.Logger
}

// Server is the moderation API server.
type Server struct {
	cfg      Config
	store    store.UserStore
	svc      *moderation.Service
	tokens   *TokenProvider
	limiter  *IPRateLimiter
	registry *prometheus.Registry
	logger   *slog.Logger
	handler  http.Handler
	httpSrv  *http.Server
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("server: missing store dependency")
	}
	table, err := cfg.PermissionTable()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	key := deps.SigningKey
	if key == nil {
		if cfg.JWT.Secret == "" {
			return nil, fmt.Errorf("server: jwt secret must be set (or %s)", EnvJWTSecret)
		}
		key = crypto.DeriveKey(cfg.JWT.Secret, []byte(cfg.JWT.Salt))
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	engine := rbac.NewEngineWithClock(table, deps.Now)
	tokens := NewTokenProvider(key, cfg.JWT.Issuer, cfg.JWT.TTL)
	if deps.Now != nil {
		tokens.now = deps.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		store:    deps.Store,
		svc:      moderation.New(deps.Store, engine, moderation.NewPromMetrics(registry), logger),
		tokens:   tokens,
		registry: registry,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		s.limiter = NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, max(cfg.RateLimit.Burst, 1))
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler { return s.handler }

// Service returns the moderation service.
func (s *Server) Service() *moderation.Service { return s.svc }

// Tokens returns the API token provider.
func (s *Server) Tokens() *TokenProvider { return s.tokens }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Use(s.AuthMiddleware)

		r.Get("/me/permissions", s.handlePermissions)

		r.Group(func(r chi.Router) {
			r.Use(s.requireModerator)
			r.Get("/users", s.handleListUsers)
			r.Get("/users/{id}", s.handleGetUser)
			r.Get("/users/{id}/actions", s.handleActions)
		})

		r.Post("/users/{id}/ban", s.handleBan)
		r.Post("/users/{id}/unban", s.handleUnban)
		r.Post("/users/{id}/escalate", s.handleEscalate)
		r.Post("/users/{id}/review/resolve", s.handleResolveReview)
		r.Put("/users/{id}/role", s.handleChangeRole)
	})
	return r
}
