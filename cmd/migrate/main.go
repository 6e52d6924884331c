package main

import (
	"context"
	"embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

const usage = "usage: go run ./cmd/migrate [up [n]|down [n]|version|status]"

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	loadEnvFunc = godotenv.Load
	openPool    = pgxpool.New
)

func main() {
	loadEnvFunc()
	log.SetPrefix("migrate")

	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	dsn := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(dsn) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		log.Fatalf("load migrations: %v", err)
	}

	ctx := context.Background()
	pool, err := openPool(ctx, dsn)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	r := &runner{db: pool, migrations: migrations}
	if err := run(ctx, r, os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, r *runner, args []string, out io.Writer) error {
	if err := r.ensureLedger(ctx); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	switch args[0] {
	case "up":
		limit, err := stepsArg(args, 0)
		if err != nil {
			return err
		}
		n, err := r.up(ctx, limit)
		if err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		log.Info("migrations up complete", "applied", n)
	case "down":
		steps, err := stepsArg(args, 1)
		if err != nil {
			return err
		}
		n, err := r.down(ctx, steps)
		if err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		log.Info("migrations down complete", "rolled_back", n)
	case "version":
		done, err := r.applied(ctx)
		if err != nil {
			return fmt.Errorf("read schema_migrations: %w", err)
		}
		if len(done) == 0 {
			fmt.Fprintln(out, "no migrations applied")
			return nil
		}
		last := done[len(done)-1]
		fmt.Fprintf(out, "%d %s\n", last.Version, last.Name)
	case "status":
		done, err := r.applied(ctx)
		if err != nil {
			return fmt.Errorf("read schema_migrations: %w", err)
		}
		for _, line := range r.status(done) {
			fmt.Fprintln(out, line)
		}
	default:
		return fmt.Errorf("unknown command %q. %s", args[0], usage)
	}
	return nil
}

// stepsArg parses the optional count after up/down.
func stepsArg(args []string, fallback int) (int, error) {
	if len(args) < 2 {
		return fallback, nil
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid step count %q", args[1])
	}
	return n, nil
}
