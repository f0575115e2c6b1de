// Package mysql provides MySQL database utilities.
package mysql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/prn-tf/helpdesk/internal/config"
	"github.com/prn-tf/helpdesk/internal/repository"
	"github.com/prn-tf/helpdesk/internal/repository/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func init() {
	repository.Register("mysql", Open)
}

// DB wraps a sql.DB connection for MySQL.
type DB struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewDB creates a new MySQL connection pool.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	return NewDBWithDSN(ctx, cfg.MySQLDSN(), cfg, logger)
}

// NewDBWithDSN is NewDB with an explicit connection string.
// The DSN must enable parseTime so DATETIME columns scan into time.Time.
func NewDBWithDSN(ctx context.Context, dsn string, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL database: %w", err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Int("max_conns", cfg.MaxOpenConns).
		Msg("connected to MySQL")

	return &DB{db: db, logger: logger}, nil
}

// Open opens a MySQL backend. It is registered as the "mysql" driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.Backend, error) {
	db, err := NewDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &repository.Backend{
		Repos: &repository.Repositories{
			User:  NewUserRepository(db),
			Token: NewTokenRepository(db),
		},
		Database: db,
		Migrate:  db.Migrate,
		Migrations: func() (*migrate.Migrator, func(), error) {
			m, err := db.Migrator()
			return m, func() {}, err
		},
	}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.logger.Info().Msg("closing MySQL connection")
	return db.db.Close()
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// WithTx executes fn in a READ COMMITTED transaction.
// If the function returns an error, the transaction is rolled back.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Migrator returns a migrator over the embedded MySQL migrations.
func (db *DB) Migrator() (*migrate.Migrator, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return migrate.New(goose.DialectMySQL, db.db, sub, db.logger)
}

// Migrate runs database migrations.
func (db *DB) Migrate(ctx context.Context) error {
	m, err := db.Migrator()
	if err != nil {
		return err
	}
	return m.Up(ctx)
}
