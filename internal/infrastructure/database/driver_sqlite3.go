//go:build cgo

package database

import (
	"database/sql/driver"
	"errors"
	"strconv"

	"github.com/mattn/go-sqlite3" // CGO SQLite, registers "sqlite3"
)

func init() {
	registerDialect(&dialect{
		scheme:     "sqlite3",
		driverName: "sqlite3",
		identity:   IdentitySQLite,
		dsn:        sqliteDSN,
		prepare:    ensureSQLiteDir,
		secure:     restrictSQLiteFile,
		owns: func(d driver.Driver) bool {
			_, ok := d.(*sqlite3.SQLiteDriver)
			return ok
		},
		diagnose: func(err error) (string, string, bool) {
			var se sqlite3.Error
			if !errors.As(err, &se) {
				return "", "", false
			}
			return strconv.Itoa(int(se.ExtendedCode)), se.Error(), true
		},
	})
}
