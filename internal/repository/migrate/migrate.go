// Package migrate applies the embedded goose migrations of a database backend.
// Each backend embeds its own migrations directory and hands it to New.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// Migrator runs schema migrations for one database.
type Migrator struct {
	provider *goose.Provider
	logger   zerolog.Logger
}

// Status describes one migration and whether it has been applied.
type Status struct {
	Version int64
	Path    string
	Applied bool
}

// New creates a migrator for db. migrations must contain the .sql files at its root.
func New(dialect goose.Dialect, db *sql.DB, migrations fs.FS, logger zerolog.Logger) (*Migrator, error) {
	provider, err := goose.NewProvider(dialect, db, migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return &Migrator{
		provider: provider,
		logger:   logger.With().Str("component", "migrate").Logger(),
	}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		m.logger.Info().
			Int64("version", r.Source.Version).
			Str("path", r.Source.Path).
			Dur("duration", r.Duration).
			Msg("applied migration")
	}
	if len(results) == 0 {
		m.logger.Debug().Msg("schema is up to date")
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	r, err := m.provider.Down(ctx)
	if err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	m.logger.Info().
		Int64("version", r.Source.Version).
		Str("path", r.Source.Path).
		Msg("rolled back migration")
	return nil
}

// Version returns the current schema version (0 when nothing is applied).
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	v, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// Status lists every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, Status{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}
