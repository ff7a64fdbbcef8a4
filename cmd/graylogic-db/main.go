// graylogic-db - shared database connection for Gray Logic services.
//
// The binary loads the database configuration, opens the shared
// connection, verifies it, and optionally runs one statement:
//
//	graylogic-db                                   # connect and health check
//	graylogic-db "SELECT * FROM rooms WHERE id = ?" 3
//
// Rows are written to stdout as YAML documents; writes print the
// affected-row count.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-db/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-db/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-db/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// healthCheckTimeout bounds the startup connectivity check.
const healthCheckTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Optional statement followed by its positional parameters
//   - stdout: Destination for statement output
//
// Returns:
//   - error: nil on success, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	log := logging.Default()
	log.Info("starting graylogic-db",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Best effort flush on exit
	log.Info("configuration loaded", "path", configPath)

	reg := database.NewRegistry()
	reg.SetLogger(log.With("component", "database"))
	reg.SetOptions(database.Options{
		BusyTimeout: cfg.Database.BusyTimeout,
		WALMode:     cfg.Database.WALMode,
	})
	reg.Configure(cfg.Database.DSN, cfg.Database.Username, cfg.Database.Password)
	defer func() {
		if closeErr := reg.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	hcCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := reg.HealthCheck(hcCtx); err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	driver, err := reg.Driver(ctx)
	if err != nil {
		return fmt.Errorf("resolving driver: %w", err)
	}
	log.Info("database ready", "driver", driver)

	if len(args) == 0 {
		return nil
	}
	return runStatement(ctx, reg, args[0], args[1:], stdout)
}

// runStatement executes one statement and writes its outcome to out.
func runStatement(ctx context.Context, reg *database.Registry, query string, params []string, out io.Writer) error {
	bound := make([]any, len(params))
	for i, p := range params {
		bound[i] = p
	}

	res, err := reg.Query(ctx, query, bound)
	if err != nil {
		return err
	}
	defer res.Close() //nolint:errcheck // Rows drained below

	if !res.HasRows() {
		_, err := fmt.Fprintf(out, "rows affected: %d\n", res.RowsAffected())
		return err
	}

	enc := yaml.NewEncoder(out)

	for res.Next() {
		rec, err := res.Record()
		if err != nil {
			return err
		}
		if err := enc.Encode(printable(rec)); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("reading rows: %w", err)
	}
	return enc.Close()
}

// printable converts driver byte slices to strings for YAML output.
func printable(rec map[string]any) map[string]any {
	for k, v := range rec {
		if b, ok := v.([]byte); ok {
			rec[k] = string(b)
		}
	}
	return rec
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
