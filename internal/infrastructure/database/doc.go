// Package database provides the single shared database connection for
// Gray Logic services.
//
// This package manages:
//   - A Registry that creates one Conn lazily, on the first Query, Driver
//     or Raw call, from the configuration set before that call
//   - Parameterised statement execution that works the same across drivers
//   - Driver identity detection and per-driver post-connect hooks
//
// Supported connection strings:
//
//	sqlite:./data/graylogic.db        modernc.org/sqlite (pure Go)
//	sqlite3:./data/graylogic.db       github.com/mattn/go-sqlite3 (cgo builds)
//	mysql:host=db;port=3306;dbname=gl github.com/go-sql-driver/mysql
//	pgsql:host=db;dbname=gl           github.com/jackc/pgx/v5
//	postgres:host=db;dbname=gl        github.com/lib/pq
//
// A bare path such as "database.db" is an SQLite file.
//
// Referential Integrity:
//
// SQLite ships with foreign key enforcement off. The built-in sqlite hook
// enables it on the connection before any caller statement runs, so a
// row violating a FOREIGN KEY constraint fails with a *QueryError.
//
// Connection Sharing:
//
// A Conn owns exactly one connection. Query reads result rows in full
// before returning, so results may be iterated while further statements
// run. A transaction begun through Raw keeps the connection until it ends;
// Query fails with ErrBusy in the meantime.
//
// Security Considerations:
//   - All statements are prepared and parameterised (no SQL injection)
//   - Passwords are redacted from errors and log output
//   - SQLite database files are restricted to mode 0600
//
// Usage:
//
//	reg := database.NewRegistry()
//	reg.SetLogger(log)
//	reg.Configure(cfg.Database.DSN, cfg.Database.Username, cfg.Database.Password)
//	defer reg.Close()
//
//	res, err := reg.Query(ctx, "SELECT id, name FROM rooms WHERE area_id = ?", areaID)
//	if err != nil {
//	    return err
//	}
//	defer res.Close()
//	for res.Next() {
//	    rec, err := res.Record()
//	    ...
//	}
//
// Configure has no effect once the connection exists. Call it before any
// other method.
package database
