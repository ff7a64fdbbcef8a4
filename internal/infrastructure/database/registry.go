package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry owns the single Conn shared by its callers and creates it on
// first use.
//
// Configure may be called any number of times before the first Query,
// Driver or Raw call. Once the connection exists, later configuration is
// recorded but does not reconnect.
//
// All public methods are thread-safe.
type Registry struct {
	mu       sync.Mutex
	connStr  string
	username string
	password string
	opts     Options
	conn     *Conn
	logger   Logger
}

// openConn creates the registry's connection. Replaced in tests.
var openConn = Open

// NewRegistry creates an unconnected registry targeting DefaultTarget.
func NewRegistry() *Registry {
	return &Registry{
		connStr: DefaultTarget,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// SetOptions sets the engine options used when the connection is created.
func (r *Registry) SetOptions(opts Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts = opts
}

// Configure sets the target for the eventual first connection.
// It has no effect on a connection that already exists.
func (r *Registry) Configure(connStr, username, password string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connStr = connStr
	r.username = username
	r.password = password

	if r.conn != nil {
		r.logger.Warn("database already connected, configuration deferred",
			"connected", r.conn.Target(),
			"requested", redact(connStr),
		)
	}
}

// Connected reports whether the connection has been created.
func (r *Registry) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// ensure returns the connection, creating it from the pending
// configuration on first use. A failed attempt leaves the registry
// unconnected.
func (r *Registry) ensure(ctx context.Context) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return r.conn, nil
	}

	connStr := r.connStr
	if connStr == "" {
		connStr = DefaultTarget
	}

	conn, err := openConn(ctx, connStr, r.username, r.password, r.opts)
	if err != nil {
		r.logger.Error("database connection failed", "target", redact(connStr), "error", err)
		return nil, err
	}

	r.conn = conn
	r.logger.Info("database connected",
		"target", conn.Target(),
		"driver", conn.DriverName(),
	)
	return conn, nil
}

// Query runs a statement on the shared connection. See Conn.Execute for
// parameter forms and the returned Result.
func (r *Registry) Query(ctx context.Context, query string, params ...any) (*Result, error) {
	conn, err := r.ensure(ctx)
	if err != nil {
		return nil, err
	}

	res, err := conn.Execute(ctx, query, params...)
	if err != nil {
		r.logger.Debug("query failed", "query", query, "error", err)
		return nil, err
	}
	return res, nil
}

// Driver returns the identity of the connected engine.
func (r *Registry) Driver(ctx context.Context) (string, error) {
	conn, err := r.ensure(ctx)
	if err != nil {
		return "", err
	}
	return conn.DriverName(), nil
}

// Raw returns the underlying handle of the shared connection.
func (r *Registry) Raw(ctx context.Context) (*sqlx.DB, error) {
	conn, err := r.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return conn.Raw(), nil
}

// HealthCheck verifies the shared connection, creating it if needed.
func (r *Registry) HealthCheck(ctx context.Context) error {
	conn, err := r.ensure(ctx)
	if err != nil {
		return err
	}
	return conn.HealthCheck(ctx)
}

// Close closes the shared connection. It should be called when the
// application shuts down. A later Query reconnects using the current
// configuration.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	r.logger.Info("database closed")
	if err != nil {
		return fmt.Errorf("closing registry connection: %w", err)
	}
	return nil
}
