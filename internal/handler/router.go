// Package handler provides HTTP handlers for the Helpdesk API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/prn-tf/helpdesk/internal/auth"
	"github.com/prn-tf/helpdesk/internal/metrics"
)

const healthTimeout = 2 * time.Second

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Router handles HTTP routing for the Helpdesk API.
type Router struct {
	userHandler    *UserHandler
	authHandler    *AuthHandler
	authMiddleware func(http.Handler) http.Handler
	health         HealthChecker
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	UserHandler    *UserHandler
	AuthHandler    *AuthHandler
	AuthMiddleware func(http.Handler) http.Handler
	Health         HealthChecker
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	return &Router{
		userHandler:    config.UserHandler,
		authHandler:    config.AuthHandler,
		authMiddleware: config.AuthMiddleware,
		health:         config.Health,
		metrics:        config.Metrics,
		logger:         config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
// Every route answers with and without a trailing slash.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(rt.logger))
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog())
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	if rt.metrics != nil {
		r.Use(instrument(rt.metrics))
	}
	if rt.authMiddleware != nil {
		r.Use(rt.authMiddleware)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, detailNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, detailMethodNotAllowed)
	})

	// Health check (no auth)
	r.Get("/health", rt.handleHealth)

	rt.userHandler.RegisterRoutes(r)
	rt.authHandler.RegisterRoutes(r)

	return r
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if rt.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := rt.health.Ping(ctx); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// CreateAuthMiddleware creates an authentication middleware using the provided resolver.
func CreateAuthMiddleware(resolver auth.TokenResolver, config auth.Config) func(http.Handler) http.Handler {
	return auth.Middleware(resolver, config)
}
