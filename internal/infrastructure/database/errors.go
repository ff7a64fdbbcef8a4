package database

import (
	"errors"
	"fmt"
)

// Sentinel errors for database operations.
//
// Connection and query failures are returned as *ConnectionError and
// *QueryError; both match their sentinel with errors.Is:
//
//	if errors.Is(err, database.ErrQuery) {
//	    var qe *database.QueryError
//	    errors.As(err, &qe)
//	    log.Warn("statement rejected", "code", qe.Code)
//	}
var (
	// ErrConnection matches any *ConnectionError.
	ErrConnection = errors.New("database: connection failed")

	// ErrQuery matches any *QueryError.
	ErrQuery = errors.New("database: query failed")

	// ErrClosed is returned when a statement is issued on a closed connection.
	ErrClosed = errors.New("database: connection closed")

	// ErrUnknownDriver is returned when a connection string names a scheme
	// no registered dialect handles.
	ErrUnknownDriver = errors.New("database: unknown driver")

	// ErrBusy is returned when the connection is held by a transaction or
	// rows opened through Raw. Execute reports it instead of waiting.
	ErrBusy = errors.New("database: connection busy")

	// ErrMalformedTarget is returned when the location part of a connection
	// string cannot be parsed.
	ErrMalformedTarget = errors.New("database: malformed connection target")
)

// ConnectionError reports a failure to establish the connection: an
// unreachable engine, rejected credentials or a malformed target.
type ConnectionError struct {
	// Driver is the connection string scheme, e.g. "sqlite" or "mysql".
	Driver string

	// Target is the connection string with any password redacted.
	Target string

	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database: connecting to %s (%s): %v", e.Target, e.Driver, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrConnection.
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// QueryError reports a failure to prepare or execute a statement.
// Code and Message carry the engine's native diagnostic when the driver
// exposes one (SQLite result code, MySQL error number, Postgres SQLSTATE).
type QueryError struct {
	Query   string
	Code    string
	Message string
	Err     error
}

func (e *QueryError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("database: query %q failed [%s]: %s", e.Query, e.Code, e.Message)
	}
	return fmt.Sprintf("database: query %q failed: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is reports whether target is ErrQuery.
func (e *QueryError) Is(target error) bool { return target == ErrQuery }

// newQueryError wraps err, filling Code and Message from the first dialect
// that recognises the driver error type.
func newQueryError(query string, err error) *QueryError {
	qe := &QueryError{Query: query, Message: err.Error(), Err: err}
	for _, d := range dialects() {
		if d.diagnose == nil {
			continue
		}
		if code, msg, ok := d.diagnose(err); ok {
			qe.Code = code
			qe.Message = msg
			break
		}
	}
	return qe
}
