package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// msPerSecond converts seconds to milliseconds.
const msPerSecond = 1000

// Hook runs once against a freshly opened connection, before any caller
// statement. Hooks are keyed by driver identity.
type Hook func(ctx context.Context, db *sqlx.DB, opts Options) error

var (
	hooksMu sync.RWMutex
	hookTab = map[string][]Hook{
		IdentitySQLite: {sqliteSetup},
	}
)

// RegisterHook adds a post-connect hook for a driver identity.
// Hooks for the same identity run in registration order.
func RegisterHook(identity string, h Hook) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hookTab[identity] = append(hookTab[identity], h)
}

// runHooks runs every hook registered for identity, stopping at the first error.
func runHooks(ctx context.Context, identity string, db *sqlx.DB, opts Options) error {
	hooksMu.RLock()
	hooks := append([]Hook(nil), hookTab[identity]...)
	hooksMu.RUnlock()

	for _, h := range hooks {
		if err := h(ctx, db, opts); err != nil {
			return err
		}
	}
	return nil
}

// sqliteSetup turns on foreign key enforcement, which SQLite leaves off by
// default, then applies the busy timeout and journal mode options.
func sqliteSetup(ctx context.Context, db *sqlx.DB, opts Options) error {
	pragmas := []string{"PRAGMA foreign_keys = ON"}
	if opts.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout*msPerSecond))
	}
	if opts.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}
