// Package app wires the Helpdesk runtime: database backend, cache, locks,
// events, metrics, services and the HTTP servers.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/helpdesk/internal/auth"
	"github.com/prn-tf/helpdesk/internal/cache/memory"
	rediscache "github.com/prn-tf/helpdesk/internal/cache/redis"
	"github.com/prn-tf/helpdesk/internal/config"
	"github.com/prn-tf/helpdesk/internal/events"
	"github.com/prn-tf/helpdesk/internal/handler"
	"github.com/prn-tf/helpdesk/internal/lock"
	"github.com/prn-tf/helpdesk/internal/metrics"
	"github.com/prn-tf/helpdesk/internal/pkg/crypto"
	"github.com/prn-tf/helpdesk/internal/repository"
	"github.com/prn-tf/helpdesk/internal/service"

	// Database drivers register themselves with the repository factory.
	_ "github.com/prn-tf/helpdesk/internal/repository/mysql"
	_ "github.com/prn-tf/helpdesk/internal/repository/postgres"
	_ "github.com/prn-tf/helpdesk/internal/repository/sqlite"
)

const redisKeyPrefix = "helpdesk:"

// App holds the wired services of one process.
type App struct {
	Config  *config.Config
	Backend *repository.Backend
	Users   *service.UserService
	Auth    *service.AuthService
	Metrics *metrics.Metrics

	logger  zerolog.Logger
	closers []func() error
}

// New opens the configured backend and builds all services.
// The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}

	backend, err := repository.NewFactory(cfg.Database, logger).Open(ctx)
	if err != nil {
		return nil, err
	}
	a.Backend = backend
	a.closers = append(a.closers, backend.Database.Close)

	if cfg.Database.AutoMigrate {
		if err := backend.Migrate(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	hasher, err := NewHasher(cfg.Auth)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	cache, locker, err := a.coordination(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	publisher := a.publisher()

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	a.Users = service.NewUserService(backend.Repos.User, hasher, service.UserServiceConfig{
		Locker:            locker,
		Cache:             cache,
		Publisher:         publisher,
		Metrics:           a.Metrics,
		DefaultIsActive:   cfg.Auth.DefaultIsActive,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
	}, logger)

	a.Auth = service.NewAuthService(backend.Repos.User, backend.Repos.Token, hasher, service.AuthServiceConfig{
		Cache:     cache,
		CacheTTL:  cfg.Auth.TokenCacheTTL,
		Publisher: publisher,
		Metrics:   a.Metrics,
	}, logger)

	return a, nil
}

// NewHasher builds the password hasher selected by configuration.
func NewHasher(cfg config.AuthConfig) (crypto.PasswordHasher, error) {
	params := crypto.DefaultArgon2idParams()
	if cfg.Argon2MemoryKiB > 0 {
		params.MemoryKiB = cfg.Argon2MemoryKiB
	}
	if cfg.Argon2Iterations > 0 {
		params.Iterations = cfg.Argon2Iterations
	}
	if cfg.Argon2Parallelism > 0 {
		params.Parallelism = cfg.Argon2Parallelism
	}
	return crypto.NewMultiHasher(cfg.PasswordHasher, cfg.BcryptCost, params)
}

// coordination returns the token cache and username locker: Redis-backed when
// Redis is enabled, in-process otherwise.
func (a *App) coordination(ctx context.Context) (repository.Cache, lock.Locker, error) {
	if a.Config.Redis.Enabled {
		client, err := rediscache.NewClient(ctx, a.Config.Redis)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, client.Close)
		a.logger.Info().Str("addr", a.Config.Redis.Addr()).Msg("using redis cache and locks")
		return rediscache.NewCache(client, redisKeyPrefix), lock.NewRedisLocker(client), nil
	}

	cache := memory.NewCache(time.Minute)
	locker := lock.NewMemoryLocker()
	a.closers = append(a.closers,
		func() error { cache.Stop(); return nil },
		func() error { locker.Stop(); return nil },
	)
	return cache, locker, nil
}

func (a *App) publisher() events.Publisher {
	if !a.Config.Events.Enabled {
		return events.NewLogPublisher(a.logger)
	}
	p := events.NewAMQPPublisher(a.Config.Events, a.logger)
	a.closers = append(a.closers, p.Close)
	a.logger.Info().Str("queue", a.Config.Events.Queue).Msg("publishing identity events over AMQP")
	return p
}

// Handler returns the API handler.
func (a *App) Handler() http.Handler {
	maxBody := a.Config.Server.MaxBodySize
	return handler.NewRouter(handler.RouterConfig{
		UserHandler:    handler.NewUserHandler(a.Users, maxBody, a.logger),
		AuthHandler:    handler.NewAuthHandler(a.Auth, maxBody, a.logger),
		AuthMiddleware: handler.CreateAuthMiddleware(a.Auth, auth.DefaultConfig()),
		Health:         a.Backend.Database,
		Metrics:        a.Metrics,
		Logger:         a.logger,
	}).Handler()
}

// Run serves the API, and metrics when enabled, until ctx is cancelled
// or a server fails. It then shuts the servers down gracefully.
func (a *App) Run(ctx context.Context) error {
	srvCfg := a.Config.Server
	servers := []*http.Server{{
		Addr:         srvCfg.Addr(),
		Handler:      a.Handler(),
		ReadTimeout:  srvCfg.ReadTimeout,
		WriteTimeout: srvCfg.WriteTimeout,
		IdleTimeout:  srvCfg.IdleTimeout,
	}}

	if a.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle(a.Config.Metrics.Path, a.Metrics.Handler())
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf("%s:%d", srvCfg.Host, a.Config.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			a.logger.Info().Str("addr", srv.Addr).Msg("http server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("shutting down server")
	case runErr = <-errCh:
		a.logger.Error().Err(runErr).Msg("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error().Err(err).Str("addr", srv.Addr).Msg("server shutdown failed")
			runErr = errors.Join(runErr, err)
		}
	}
	return runErr
}

// Close releases every resource opened by New, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
