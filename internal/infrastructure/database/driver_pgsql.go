package database

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/lib/pq"              // registers "postgres"
)

func init() {
	// "pgsql" uses pgx; "postgres" keeps lib/pq for deployments pinned to it.
	registerDialect(&dialect{
		scheme:     "pgsql",
		driverName: "pgx",
		identity:   IdentityPostgres,
		dsn:        postgresDSN,
		owns: func(d driver.Driver) bool {
			_, ok := d.(*stdlib.Driver)
			return ok
		},
		diagnose: func(err error) (string, string, bool) {
			var pe *pgconn.PgError
			if !errors.As(err, &pe) {
				return "", "", false
			}
			return pe.Code, pe.Message, true
		},
	})
	registerDialect(&dialect{
		scheme:     "postgres",
		driverName: "postgres",
		identity:   IdentityPostgres,
		dsn:        postgresDSN,
		owns: func(d driver.Driver) bool {
			_, ok := d.(*pq.Driver)
			return ok
		},
		diagnose: func(err error) (string, string, bool) {
			var pe *pq.Error
			if !errors.As(err, &pe) {
				return "", "", false
			}
			return string(pe.Code), pe.Message, true
		},
	})
}

// postgresDSN converts "host=h;port=p;dbname=d;sslmode=m" into a libpq
// keyword/value string understood by both pgx and lib/pq. URL locations
// ("//user@host/db") are passed through as postgres:// URLs.
func postgresDSN(location, username, password string) (string, error) {
	if strings.HasPrefix(location, "//") {
		u, err := url.Parse("postgres:" + location)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedTarget, err)
		}
		if u.User == nil && username != "" {
			if password != "" {
				u.User = url.UserPassword(username, password)
			} else {
				u.User = url.User(username)
			}
		}
		return u.String(), nil
	}

	pairs, err := parsePairs(location)
	if err != nil {
		return "", err
	}
	if pairs["host"] == "" {
		return "", fmt.Errorf("%w: pgsql target needs host", ErrMalformedTarget)
	}
	if username != "" {
		pairs["user"] = username
	}
	if password != "" {
		pairs["password"] = password
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+quoteConnValue(pairs[k]))
	}
	return strings.Join(parts, " "), nil
}

// quoteConnValue quotes a libpq keyword/value when it is empty or holds
// spaces, quotes or backslashes.
func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
