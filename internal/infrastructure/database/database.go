package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// connectionTimeout bounds the initial ping when the caller's context has
// no deadline.
const connectionTimeout = 5 * time.Second

// Options tunes engine setup performed by post-connect hooks.
// These map to the database section of config.yaml.
type Options struct {
	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	// SQLite only.
	BusyTimeout int

	// WALMode enables Write-Ahead Logging. SQLite only.
	WALMode bool
}

// Conn wraps one live database connection.
//
// The underlying pool is capped at a single connection that never expires,
// so session state set by post-connect hooks (SQLite's foreign_keys pragma)
// applies to every statement.
//
// Thread Safety:
//   - Execute serialises prepare, bind and execute with a mutex.
//   - Execute reads result rows in full and releases the connection
//     before it returns.
//   - While a transaction or rows opened through Raw hold the connection,
//     Execute and HealthCheck fail with ErrBusy instead of waiting.
type Conn struct {
	db         *sqlx.DB
	target     string
	driverName string
	identity   string

	mu     sync.Mutex
	closed bool
}

// Open connects to the target described by connStr.
//
// It performs the following setup:
//  1. Parses connStr ("scheme:location") and builds the driver DSN
//  2. Opens the driver and limits it to one long-lived connection
//  3. Verifies the connection with a ping
//  4. Resolves the driver identity from the opened driver
//  5. Runs the post-connect hooks registered for that identity
//  6. Restricts a database file to its owner (SQLite)
//
// Parameters:
//   - ctx: Context for the connection handshake and hooks
//   - connStr: Connection string, e.g. "sqlite:./data/app.db" or "mysql:host=db;dbname=app"
//   - username, password: Credentials; ignored by SQLite
//   - opts: Engine tuning applied by hooks
//
// Returns:
//   - *Conn: Connected handle
//   - error: *ConnectionError if any step fails
func Open(ctx context.Context, connStr, username, password string, opts Options) (*Conn, error) {
	connErr := func(scheme string, err error) error {
		return &ConnectionError{Driver: scheme, Target: redact(connStr), Err: err}
	}

	t, err := parseTarget(connStr)
	if err != nil {
		return nil, connErr("", err)
	}
	d := t.dialect

	dsn, err := d.dsn(t.location, username, password)
	if err != nil {
		return nil, connErr(d.scheme, err)
	}
	if d.prepare != nil {
		if err := d.prepare(t.location); err != nil {
			return nil, connErr(d.scheme, err)
		}
	}

	db, err := sqlx.Open(d.driverName, dsn)
	if err != nil {
		return nil, connErr(d.scheme, fmt.Errorf("opening database: %w", err))
	}

	// One connection for the life of the handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, connectionTimeout)
		defer cancel()
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, connErr(d.scheme, fmt.Errorf("verifying database connection: %w", err))
	}

	c := &Conn{
		db:         db,
		target:     redact(connStr),
		driverName: d.driverName,
		identity:   identify(db, d),
	}

	if err := runHooks(ctx, c.identity, db, opts); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, connErr(d.scheme, fmt.Errorf("post-connect setup: %w", err))
	}

	if d.secure != nil {
		d.secure(t.location)
	}

	return c, nil
}

// identify asks the opened driver which engine it is. The registered
// dialects are consulted first; an unrecognised driver falls back to the
// name it was opened with.
func identify(db *sqlx.DB, opened *dialect) string {
	drv := db.Driver()
	for _, d := range dialects() {
		if d.owns != nil && d.owns(drv) {
			return d.identity
		}
	}
	return opened.driverName
}

// Execute prepares query, binds params and runs it.
//
// Params may be a single scalar, a single slice (expanded in order), a
// single map[string]any for :name placeholders, or a positional list.
// Row-producing statements return a cursor over rows read in full;
// writes return the affected row count. No transaction is opened.
//
// Positional "?" placeholders are rewritten to "$N" for the Postgres
// drivers when parameters are bound. The rewrite does not parse SQL, so a
// literal '?' in such a statement must be passed as a parameter instead.
//
// Returns:
//   - *Result: Cursor or write summary
//   - error: *QueryError carrying the engine diagnostic, ErrClosed, or
//     a *QueryError wrapping ErrBusy when Raw holds the connection
func (c *Conn) Execute(ctx context.Context, query string, params ...any) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.busy() {
		return nil, &QueryError{Query: query, Message: ErrBusy.Error(), Err: ErrBusy}
	}

	bound, args, err := bindParams(c.driverName, query, params)
	if err != nil {
		return nil, &QueryError{Query: query, Message: err.Error(), Err: err}
	}

	stmt, err := c.db.PreparexContext(ctx, bound)
	if err != nil {
		return nil, newQueryError(query, err)
	}
	defer stmt.Close() //nolint:errcheck // Statement close errors carry no diagnostic

	if returnsRows(bound) {
		rows, err := stmt.QueryxContext(ctx, args...)
		if err != nil {
			return nil, newQueryError(query, err)
		}
		res, err := readRows(rows)
		if err != nil {
			return nil, newQueryError(query, err)
		}
		return res, nil
	}

	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return nil, newQueryError(query, err)
	}
	return newExecResult(res), nil
}

// DriverName returns the driver identity resolved at connect time:
// "sqlite", "mysql" or "pgsql" for the built-in dialects.
func (c *Conn) DriverName() string {
	return c.identity
}

// Raw returns the underlying handle for native access such as manual
// transactions or driver-specific pragmas. Statements issued through it
// bypass Execute's serialisation.
//
// The handle has a single connection. A transaction or unclosed rows
// obtained from it keep that connection, and Execute returns ErrBusy
// until they are committed, rolled back or closed.
func (c *Conn) Raw() *sqlx.DB {
	return c.db
}

// busy reports whether the connection is checked out of the pool. Execute
// never leaves it checked out, so the holder is a Raw caller.
func (c *Conn) busy() bool {
	return c.db.Stats().InUse > 0
}

// Target returns the connection string with any password redacted.
func (c *Conn) Target() string {
	return c.target
}

// HealthCheck verifies the database is accessible and functioning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Conn) HealthCheck(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.busy() {
		return fmt.Errorf("database health check failed: %w", ErrBusy)
	}

	var result int
	if err := c.db.QueryRowxContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close closes the connection. Further statements fail with ErrClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
