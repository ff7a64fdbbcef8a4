package database

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

// defaultMySQLPort is used when the location names a host without a port.
const defaultMySQLPort = "3306"

func init() {
	registerDialect(&dialect{
		scheme:     "mysql",
		driverName: "mysql",
		identity:   IdentityMySQL,
		dsn:        mysqlDSN,
		owns: func(d driver.Driver) bool {
			_, ok := d.(*mysql.MySQLDriver)
			return ok
		},
		diagnose: func(err error) (string, string, bool) {
			var me *mysql.MySQLError
			if !errors.As(err, &me) {
				return "", "", false
			}
			return strconv.Itoa(int(me.Number)), me.Message, true
		},
	})
}

// mysqlDSN converts "host=h;port=p;dbname=d;charset=c" or
// "unix_socket=/path;dbname=d" into a go-sql-driver DSN.
func mysqlDSN(location, username, password string) (string, error) {
	pairs, err := parsePairs(location)
	if err != nil {
		return "", err
	}

	cfg := mysql.NewConfig()
	cfg.User = username
	cfg.Passwd = password
	cfg.DBName = pairs["dbname"]
	cfg.ParseTime = true

	switch {
	case pairs["unix_socket"] != "":
		cfg.Net = "unix"
		cfg.Addr = pairs["unix_socket"]
	case pairs["host"] != "":
		port := pairs["port"]
		if port == "" {
			port = defaultMySQLPort
		}
		if _, err := strconv.Atoi(port); err != nil {
			return "", fmt.Errorf("%w: invalid port %q", ErrMalformedTarget, port)
		}
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(pairs["host"], port)
	default:
		return "", fmt.Errorf("%w: mysql target needs host or unix_socket", ErrMalformedTarget)
	}

	if charset := pairs["charset"]; charset != "" {
		cfg.Params = map[string]string{"charset": charset}
	}

	return cfg.FormatDSN(), nil
}
