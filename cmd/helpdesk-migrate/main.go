// Package main is the entry point for the Helpdesk database migration tool.
// It manages the schema of the configured backend (postgres, mysql or sqlite).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/prn-tf/helpdesk/internal/config"
	"github.com/prn-tf/helpdesk/internal/logging"
	"github.com/prn-tf/helpdesk/internal/repository"
	"github.com/prn-tf/helpdesk/internal/repository/migrate"

	_ "github.com/prn-tf/helpdesk/internal/repository/mysql"
	_ "github.com/prn-tf/helpdesk/internal/repository/postgres"
	_ "github.com/prn-tf/helpdesk/internal/repository/sqlite"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	fs := flag.NewFlagSet("helpdesk-migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	fs.Usage = printUsage
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := fs.Arg(0)

	switch command {
	case "version":
		fmt.Printf("Helpdesk Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		if err := withMigrator(*configPath, printSchemaVersion); err != nil {
			fail(err)
		}

	case "up":
		if err := withMigrator(*configPath, func(ctx context.Context, m *migrate.Migrator) error {
			if err := m.Up(ctx); err != nil {
				return err
			}
			return printSchemaVersion(ctx, m)
		}); err != nil {
			fail(err)
		}

	case "down":
		if err := withMigrator(*configPath, func(ctx context.Context, m *migrate.Migrator) error {
			if err := m.Down(ctx); err != nil {
				return err
			}
			return printSchemaVersion(ctx, m)
		}); err != nil {
			fail(err)
		}

	case "status":
		if err := withMigrator(*configPath, printStatus); err != nil {
			fail(err)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func withMigrator(configPath string, fn func(ctx context.Context, m *migrate.Migrator) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Logging.Output = "stderr"
	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := repository.NewFactory(cfg.Database, logger).Open(ctx)
	if err != nil {
		return err
	}
	defer backend.Database.Close()

	m, release, err := backend.Migrations()
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx, m)
}

func printSchemaVersion(ctx context.Context, m *migrate.Migrator) error {
	v, err := m.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Schema Version: %d\n", v)
	return nil
}

func printStatus(ctx context.Context, m *migrate.Migrator) error {
	statuses, err := m.Status(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tFILE")
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Version, state, s.Path)
	}
	return tw.Flush()
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`Helpdesk Migration Tool

Usage:
  helpdesk-migrate [--config <path>] <command>

Commands:
  up          Run all pending migrations
  down        Rollback the last migration
  status      Show the state of every migration
  version     Print tool and schema version
  help        Show this help message

Environment Variables:
  HELPDESK_DATABASE_DRIVER    postgres, mysql or sqlite
  HELPDESK_DATABASE_HOST      database host (postgres, mysql)
  HELPDESK_DATABASE_PATH      database file (sqlite)

Examples:
  helpdesk-migrate up
  helpdesk-migrate --config /etc/helpdesk/config.yaml status
  HELPDESK_DATABASE_DRIVER=sqlite helpdesk-migrate down`)
}
