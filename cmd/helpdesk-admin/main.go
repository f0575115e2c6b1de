// Package main is the entry point for the Helpdesk admin CLI.
// This tool provides administrative commands for managing users.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/prn-tf/helpdesk/internal/app"
	"github.com/prn-tf/helpdesk/internal/config"
	"github.com/prn-tf/helpdesk/internal/logging"
	"github.com/prn-tf/helpdesk/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "version":
		fmt.Printf("Helpdesk Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "user":
		if err := runUser(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runUser(args []string) error {
	if len(args) == 0 {
		return errors.New(`missing user subcommand (want "create" or "list")`)
	}

	switch args[0] {
	case "create":
		return userCreate(args[1:])
	case "list":
		return userList(args[1:])
	default:
		return fmt.Errorf("unknown user subcommand %q", args[0])
	}
}

func userCreate(args []string) error {
	fs := flag.NewFlagSet("user create", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	username := fs.String("username", "", "username (required)")
	email := fs.String("email", "", "email address")
	firstName := fs.String("first-name", "", "first name")
	lastName := fs.String("last-name", "", "last name")
	passwordStdin := fs.Bool("password-stdin", false, "read the password from stdin instead of prompting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return errors.New("--username is required")
	}

	password, err := readPassword(*passwordStdin)
	if err != nil {
		return err
	}

	return withApp(*configPath, func(ctx context.Context, a *app.App) error {
		user, err := a.Users.Create(ctx, service.CreateUserInput{
			Username:  *username,
			Password:  password,
			Email:     *email,
			FirstName: *firstName,
			LastName:  *lastName,
		})
		if err != nil {
			return describe(err)
		}
		fmt.Printf("Created user %q (id %d, active %t)\n", user.Username, user.ID, user.IsActive)
		return nil
	})
}

func userList(args []string) error {
	fs := flag.NewFlagSet("user list", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	limit := fs.Int("limit", 100, "maximum number of users to print")
	offset := fs.Int("offset", 0, "number of users to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withApp(*configPath, func(ctx context.Context, a *app.App) error {
		out, err := a.Users.List(ctx, service.ListUsersInput{Limit: *limit, Offset: *offset})
		if err != nil {
			return describe(err)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tACTIVE\tJOINED")
		for _, u := range out.Users {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\n", u.ID, u.Username, u.Email, u.IsActive, u.DateJoined.Format("2006-01-02 15:04"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Printf("%d of %d users\n", len(out.Users), out.TotalCount)
		return nil
	})
}

// withApp loads configuration, opens the backend quietly and runs fn.
func withApp(configPath string, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Metrics.Enabled = false
	cfg.Logging.Output = "stderr"
	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		cfg.Logging.Level = "warn"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logging.New(cfg.Logging))
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

// readPassword prompts twice on a terminal, or reads one line from stdin.
func readPassword(fromStdin bool) (string, error) {
	fd := int(os.Stdin.Fd())
	if fromStdin || !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Password (again): ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

// describe flattens validation errors into one readable line per field.
func describe(err error) error {
	var verr *service.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	var b strings.Builder
	b.WriteString("invalid input")
	for _, field := range slices.Sorted(maps.Keys(verr.Fields)) {
		fmt.Fprintf(&b, "\n  %s: %s", field, strings.Join(verr.Fields[field], " "))
	}
	return errors.New(b.String())
}

func printUsage() {
	fmt.Println(`Helpdesk Admin CLI

Usage:
  helpdesk-admin <command> [arguments]

Commands:
  user create   Create a user (prompts for the password)
  user list     List users, newest first
  version       Print version information
  help          Show this help message

Examples:
  helpdesk-admin user create --username alice --email alice@example.com
  echo "$PASSWORD" | helpdesk-admin user create --username bob --password-stdin
  helpdesk-admin user list --limit 20

Every command accepts --config <path>; HELPDESK_* environment variables override file values.`)
}
