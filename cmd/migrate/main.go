package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/storage/mysql"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

type options struct {
	driver    string
	direction string
	steps     int
	dsn       string
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.driver, "driver", "postgres", "storage driver: postgres|mysql")
	fs.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status (mysql: up only)")
	fs.IntVar(&opts.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "database DSN (fallback: STOREFRONT_POSTGRES_DSN or STOREFRONT_MYSQL_DSN)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.driver = strings.ToLower(strings.TrimSpace(opts.driver))
	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	opts.dsn = strings.TrimSpace(opts.dsn)

	switch opts.driver {
	case "postgres":
		if opts.dsn == "" {
			opts.dsn = strings.TrimSpace(getenv("STOREFRONT_POSTGRES_DSN"))
		}
		switch opts.direction {
		case "up", "down", "status":
		default:
			return options{}, fmt.Errorf("unsupported direction: %s (use up|down|status)", opts.direction)
		}
	case "mysql":
		if opts.dsn == "" {
			opts.dsn = strings.TrimSpace(getenv("STOREFRONT_MYSQL_DSN"))
		}
		if opts.direction != "up" {
			return options{}, fmt.Errorf("mysql schema supports only direction=up, got %s", opts.direction)
		}
	default:
		return options{}, fmt.Errorf("unsupported driver: %s (use postgres|mysql)", opts.driver)
	}

	if opts.dsn == "" {
		return options{}, errors.New("dsn is required (-dsn or STOREFRONT_POSTGRES_DSN / STOREFRONT_MYSQL_DSN)")
	}
	return opts, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	if opts.driver == "mysql" {
		store, err := mysql.Open(ctx, opts.dsn)
		if err != nil {
			return fmt.Errorf("open mysql store: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("apply mysql schema: %w", err)
		}
		_, _ = fmt.Fprintln(out, "mysql schema ok")
		return nil
	}

	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch opts.direction {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
	case "down":
		if err := store.MigrateDown(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
	}

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "migrate %s ok: version=%d applied=%d pending=%d\n", opts.direction, state.Version, state.Applied, state.Pending)
	return nil
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		cancel()
		fail("%v", err)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
