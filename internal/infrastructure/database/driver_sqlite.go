package database

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"modernc.org/sqlite" // Pure Go SQLite, registers "sqlite"
)

const (
	// dirPermissions is the permission mode for a created database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600
)

func init() {
	registerDialect(&dialect{
		scheme:     "sqlite",
		driverName: "sqlite",
		identity:   IdentitySQLite,
		dsn:        sqliteDSN,
		prepare:    ensureSQLiteDir,
		secure:     restrictSQLiteFile,
		owns: func(d driver.Driver) bool {
			_, ok := d.(*sqlite.Driver)
			return ok
		},
		diagnose: func(err error) (string, string, bool) {
			var se *sqlite.Error
			if !errors.As(err, &se) {
				return "", "", false
			}
			return strconv.Itoa(se.Code()), se.Error(), true
		},
	})
}

// sqliteDSN validates an SQLite location. Credentials are ignored.
func sqliteDSN(location, _, _ string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", fmt.Errorf("%w: empty sqlite path", ErrMalformedTarget)
	}
	return location, nil
}

// ensureSQLiteDir creates the parent directory of a file database.
// In-memory databases and URIs are left alone.
func ensureSQLiteDir(location string) error {
	if isSQLiteMemory(location) || strings.HasPrefix(location, "file:") {
		return nil
	}
	dir := filepath.Dir(location)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	return nil
}

func isSQLiteMemory(location string) bool {
	return strings.TrimSpace(location) == ":memory:"
}

// restrictSQLiteFile limits a file database to its owner.
func restrictSQLiteFile(location string) {
	if isSQLiteMemory(location) || strings.HasPrefix(location, "file:") {
		return
	}
	os.Chmod(location, filePermissions) //nolint:errcheck // File might not exist yet
}
