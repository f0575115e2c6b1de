// Package repository provides the data access layer for Helpdesk.
// This file contains factory functions to create repositories based on configuration.
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/prn-tf/helpdesk/internal/config"
	"github.com/prn-tf/helpdesk/internal/repository/migrate"
)

// DatabaseHealth is an interface for database health checks.
// This interface satisfies handler.HealthChecker for health endpoints.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Close() error
}

// Backend is an opened database together with its repositories.
type Backend struct {
	Repos    *Repositories
	Database DatabaseHealth

	// Migrate applies all pending schema migrations.
	Migrate func(ctx context.Context) error

	// Migrations opens a migrator over the backend schema.
	// The returned release func must be called once the migrator is no longer used.
	Migrations func() (*migrate.Migrator, func(), error)
}

// OpenFunc opens a backend for the given configuration.
type OpenFunc func(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*Backend, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]OpenFunc)
)

// Register makes a backend available under name. Driver packages call it from init.
// Registering the same name twice panics.
func Register(name string, open OpenFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if open == nil {
		panic("repository: Register open func is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("repository: Register called twice for driver " + name)
	}
	drivers[name] = open
}

// Drivers returns the sorted names of the registered backends.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Factory creates repositories based on configuration.
type Factory struct {
	cfg    config.DatabaseConfig
	logger zerolog.Logger
}

// NewFactory creates a new repository factory.
func NewFactory(cfg config.DatabaseConfig, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// Driver returns the configured database driver.
func (f *Factory) Driver() string {
	return f.cfg.Driver
}

// IsEmbedded returns true if using embedded database.
func (f *Factory) IsEmbedded() bool {
	return f.cfg.IsEmbedded()
}

// Open opens the configured backend.
func (f *Factory) Open(ctx context.Context) (*Backend, error) {
	driversMu.RLock()
	open, ok := drivers[f.cfg.Driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDriver, f.cfg.Driver, Drivers())
	}

	backend, err := open(ctx, f.cfg, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", f.cfg.Driver, err)
	}

	f.logger.Info().Str("driver", f.cfg.Driver).Msg("database backend opened")
	return backend, nil
}
