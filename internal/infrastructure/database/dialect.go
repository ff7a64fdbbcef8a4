package database

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultTarget is used when a Registry is never configured.
const DefaultTarget = "sqlite:database.db"

// Driver identities reported by Conn.DriverName.
const (
	IdentitySQLite   = "sqlite"
	IdentityMySQL    = "mysql"
	IdentityPostgres = "pgsql"
)

// dialect binds a connection string scheme to a database/sql driver.
type dialect struct {
	// scheme is the connection string prefix before the first colon.
	scheme string

	// driverName is the name the Go driver registers with database/sql.
	driverName string

	// identity is reported when owns recognises the opened driver.
	identity string

	// dsn turns the location part and credentials into the driver's DSN.
	dsn func(location, username, password string) (string, error)

	// prepare runs before the driver is opened. Optional.
	prepare func(location string) error

	// secure tightens access to the database once it exists. Optional.
	secure func(location string)

	// owns reports whether d is this dialect's driver implementation.
	owns func(d driver.Driver) bool

	// diagnose extracts the native code and message from a driver error.
	diagnose func(err error) (code, message string, ok bool)
}

var (
	dialectsMu sync.RWMutex
	dialectTab = map[string]*dialect{}
)

func registerDialect(d *dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialectTab[d.scheme] = d
}

// dialects returns the registered dialects ordered by scheme.
func dialects() []*dialect {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()

	out := make([]*dialect, 0, len(dialectTab))
	for _, d := range dialectTab {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].scheme < out[j].scheme })
	return out
}

// Schemes returns the connection string schemes this build understands.
func Schemes() []string {
	ds := dialects()
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.scheme
	}
	return out
}

// target is a parsed connection string.
type target struct {
	dialect  *dialect
	location string
}

// parseTarget splits "scheme:location". A string without a known scheme
// is taken as an SQLite file path, so "database.db" and "./data/app.db"
// both work.
func parseTarget(connStr string) (target, error) {
	connStr = strings.TrimSpace(connStr)
	if connStr == "" {
		return target{}, fmt.Errorf("%w: empty connection string", ErrMalformedTarget)
	}

	scheme, location, found := strings.Cut(connStr, ":")
	if !found || looksLikePath(scheme) {
		return fileTarget(connStr)
	}

	dialectsMu.RLock()
	d, ok := dialectTab[strings.ToLower(scheme)]
	dialectsMu.RUnlock()
	if !ok {
		// "file:app.db?mode=rwc" is an SQLite URI, not a scheme.
		if strings.EqualFold(scheme, "file") {
			return fileTarget(connStr)
		}
		return target{}, fmt.Errorf("%w: %q", ErrUnknownDriver, scheme)
	}
	if strings.TrimSpace(location) == "" {
		return target{}, fmt.Errorf("%w: missing location after %q", ErrMalformedTarget, scheme+":")
	}

	return target{dialect: d, location: location}, nil
}

func fileTarget(location string) (target, error) {
	dialectsMu.RLock()
	d, ok := dialectTab[IdentitySQLite]
	dialectsMu.RUnlock()
	if !ok {
		return target{}, fmt.Errorf("%w: no sqlite driver for %q", ErrUnknownDriver, location)
	}
	return target{dialect: d, location: location}, nil
}

// looksLikePath reports whether the text before the first colon is part
// of a file path rather than a scheme ("./db", "C" in "C:\db").
func looksLikePath(s string) bool {
	return s == "" || len(s) == 1 || strings.ContainsAny(s, `/\.`)
}

// parsePairs parses "key=value;key=value" location strings.
func parsePairs(location string) (map[string]string, error) {
	pairs := make(map[string]string)
	for _, part := range strings.Split(location, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: expected key=value, got %q", ErrMalformedTarget, part)
		}
		pairs[key] = strings.TrimSpace(value)
	}
	return pairs, nil
}

// redact masks password values in a connection string for logs and errors.
func redact(connStr string) string {
	scheme, location, found := strings.Cut(connStr, ":")
	if !found {
		return connStr
	}

	if strings.HasPrefix(location, "//") {
		at := strings.LastIndex(location, "@")
		colon := strings.Index(location[2:], ":")
		if at > 0 && colon >= 0 && colon+2 < at {
			return scheme + ":" + location[:colon+3] + "xxxxx" + location[at:]
		}
		return connStr
	}

	parts := strings.Split(location, ";")
	for i, part := range parts {
		key, _, ok := strings.Cut(part, "=")
		if ok && strings.EqualFold(strings.TrimSpace(key), "password") {
			parts[i] = key + "=xxxxx"
		}
	}
	return scheme + ":" + strings.Join(parts, ";")
}
