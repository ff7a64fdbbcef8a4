package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingLogger captures warn messages for assertions.
type recordingLogger struct {
	noopLogger
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "registry.db")
	reg := NewRegistry()
	reg.Configure("sqlite:"+dbPath, "", "")
	t.Cleanup(func() {
		reg.Close() //nolint:errcheck // Test cleanup
	})
	return reg, dbPath
}

// countOpens counts connections the registry creates for the rest of the test.
func countOpens(t *testing.T) *atomic.Int32 {
	t.Helper()

	var n atomic.Int32
	orig := openConn
	openConn = func(ctx context.Context, connStr, username, password string, opts Options) (*Conn, error) {
		n.Add(1)
		return orig(ctx, connStr, username, password, opts)
	}
	t.Cleanup(func() { openConn = orig })
	return &n
}

// TestRegistry_Lazy verifies nothing connects until first use.
func TestRegistry_Lazy(t *testing.T) {
	reg, dbPath := newTestRegistry(t)

	if reg.Connected() {
		t.Fatal("Connected() = true before first use")
	}
	if _, err := os.Stat(filepath.Dir(dbPath)); err != nil {
		t.Fatalf("temp dir missing: %v", err)
	}

	driver, err := reg.Driver(context.Background())
	if err != nil {
		t.Fatalf("Driver() error = %v", err)
	}
	if driver != IdentitySQLite {
		t.Errorf("Driver() = %q, want %q", driver, IdentitySQLite)
	}
	if !reg.Connected() {
		t.Error("Connected() = false after Driver()")
	}
}

// TestRegistry_Singleton verifies concurrent first calls create one connection.
func TestRegistry_Singleton(t *testing.T) {
	reg, _ := newTestRegistry(t)
	opens := countOpens(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers*3)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				res, err := reg.Query(ctx, "SELECT ? AS x", i)
				if err != nil {
					errs <- err
					return
				}
				if _, err := res.All(); err != nil {
					errs <- err
				}
			case 1:
				if _, err := reg.Driver(ctx); err != nil {
					errs <- err
				}
			default:
				if _, err := reg.Raw(ctx); err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent call error = %v", err)
	}

	if n := opens.Load(); n != 1 {
		t.Errorf("connections opened = %d, want 1", n)
	}

	raw1, _ := reg.Raw(ctx)
	raw2, _ := reg.Raw(ctx)
	if raw1 != raw2 {
		t.Error("Raw() returned different handles")
	}
}

// TestRegistry_ConfigureAfterConnect verifies late configuration does not reconnect.
func TestRegistry_ConfigureAfterConnect(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	log := &recordingLogger{}
	reg.SetLogger(log)

	res, err := reg.Query(ctx, "CREATE TABLE original_marker (id INTEGER PRIMARY KEY)")
	if err != nil {
		t.Fatalf("Query() CREATE error = %v", err)
	}
	res.Close() //nolint:errcheck // Write result

	otherPath := filepath.Join(t.TempDir(), "other", "other.db")
	reg.Configure("sqlite:"+otherPath, "", "")

	res, err = reg.Query(ctx, "SELECT name FROM sqlite_master WHERE name = ?", "original_marker")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	rows, err := res.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("original_marker rows = %d, want 1 (query hit a different database)", len(rows))
	}

	if _, err := os.Stat(otherPath); !os.IsNotExist(err) {
		t.Errorf("reconfigured target was opened: stat error = %v", err)
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.warns) != 1 {
		t.Errorf("warn messages = %v, want one", log.warns)
	}
}

// TestRegistry_ConfigureBeforeConnect verifies the last configuration wins.
func TestRegistry_ConfigureBeforeConnect(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close() //nolint:errcheck // Test cleanup

	first := filepath.Join(t.TempDir(), "first.db")
	second := filepath.Join(t.TempDir(), "second.db")
	reg.Configure("sqlite:"+first, "", "")
	reg.Configure("sqlite:"+second, "", "")

	res, err := reg.Query(context.Background(), "CREATE TABLE t (id INTEGER)")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	res.Close() //nolint:errcheck // Write result

	if _, err := os.Stat(second); err != nil {
		t.Errorf("second target not used: %v", err)
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Errorf("first target was opened: stat error = %v", err)
	}
}

// TestRegistry_DefaultTarget verifies an unconfigured registry uses the default file.
func TestRegistry_DefaultTarget(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	reg := NewRegistry()
	defer reg.Close() //nolint:errcheck // Test cleanup

	driver, err := reg.Driver(context.Background())
	if err != nil {
		t.Fatalf("Driver() error = %v", err)
	}
	if driver != IdentitySQLite {
		t.Errorf("Driver() = %q, want %q", driver, IdentitySQLite)
	}

	reg.mu.Lock()
	target := reg.conn.Target()
	reg.mu.Unlock()
	if target != DefaultTarget {
		t.Errorf("Target() = %q, want %q", target, DefaultTarget)
	}
}

// TestRegistry_ConnectionFailure verifies a failed connect can be retried.
func TestRegistry_ConnectionFailure(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	reg.Configure("nosuchdriver:somewhere", "", "")
	_, err := reg.Query(ctx, "SELECT 1")
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Query() error = %v, want ErrConnection", err)
	}
	if reg.Connected() {
		t.Fatal("Connected() = true after failed connect")
	}

	reg.Configure("sqlite:"+filepath.Join(t.TempDir(), "retry.db"), "", "")
	if _, err := reg.Driver(ctx); err != nil {
		t.Fatalf("Driver() after reconfigure error = %v", err)
	}
}

// TestRegistry_QueryErrorKeepsState verifies a bad statement does not disturb the registry.
func TestRegistry_QueryErrorKeepsState(t *testing.T) {
	reg, _ := newTestRegistry(t)
	opens := countOpens(t)
	ctx := context.Background()

	if _, err := reg.Query(ctx, "SELEKT * FROM t", []any{}); !errors.Is(err, ErrQuery) {
		t.Fatalf("Query() error = %v, want ErrQuery", err)
	}

	res, err := reg.Query(ctx, "SELECT ? AS x", 5)
	if err != nil {
		t.Fatalf("Query() after failure error = %v", err)
	}
	rows, err := res.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(rows) != 1 || rows[0]["x"] != int64(5) {
		t.Errorf("rows = %v, want [{x:5}]", rows)
	}

	if n := opens.Load(); n != 1 {
		t.Errorf("connections opened = %d, want 1", n)
	}
}

// TestRegistry_DriverStable verifies repeated Driver calls agree.
func TestRegistry_DriverStable(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.Driver(ctx)
	if err != nil {
		t.Fatalf("Driver() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		got, err := reg.Driver(ctx)
		if err != nil || got != first {
			t.Fatalf("Driver() = %q, %v, want %q", got, err, first)
		}
	}
}

// TestRegistry_Close verifies shutdown and reconnect on next use.
func TestRegistry_Close(t *testing.T) {
	reg, _ := newTestRegistry(t)
	opens := countOpens(t)
	ctx := context.Background()

	if err := reg.Close(); err != nil {
		t.Errorf("Close() before connect error = %v", err)
	}

	if err := reg.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if reg.Connected() {
		t.Error("Connected() = true after Close()")
	}

	if err := reg.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() after Close error = %v", err)
	}

	if n := opens.Load(); n != 2 {
		t.Errorf("connections opened = %d, want 2", n)
	}
}

// TestRegistry_QueryDuringRawTx verifies Query reports ErrBusy while a
// transaction opened through Raw holds the connection, then recovers.
func TestRegistry_QueryDuringRawTx(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	raw, err := reg.Raw(ctx)
	if err != nil {
		t.Fatalf("Raw() error = %v", err)
	}
	tx, err := raw.Beginx()
	if err != nil {
		t.Fatalf("Beginx() error = %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	_, err = reg.Query(waitCtx, "SELECT 1 AS x")
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("Query() during tx error = %v, want ErrBusy", err)
	}
	if !errors.Is(err, ErrQuery) {
		t.Errorf("Query() during tx error = %v, want it to match ErrQuery", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Query() during tx took %v, want an immediate error", elapsed)
	}
	if err := reg.HealthCheck(waitCtx); !errors.Is(err, ErrBusy) {
		t.Errorf("HealthCheck() during tx error = %v, want ErrBusy", err)
	}

	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	res, err := reg.Query(waitCtx, "SELECT 1 AS x")
	if err != nil {
		t.Fatalf("Query() after rollback error = %v", err)
	}
	rows, err := res.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(rows) != 1 || rows[0]["x"] != int64(1) {
		t.Errorf("rows = %v, want [{x:1}]", rows)
	}
}

// TestRegistry_QueryWithOpenCursor verifies an unclosed result does not
// hold the connection, so statements can run while iterating it.
func TestRegistry_QueryWithOpenCursor(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := reg.Query(ctx, "CREATE TABLE zones (id INTEGER PRIMARY KEY, name TEXT NOT NULL)"); err != nil {
		t.Fatalf("Query() CREATE error = %v", err)
	}
	for _, name := range []string{"hall", "kitchen", "study"} {
		if _, err := reg.Query(ctx, "INSERT INTO zones (name) VALUES (?)", name); err != nil {
			t.Fatalf("Query() INSERT %s error = %v", name, err)
		}
	}

	first, err := reg.Query(ctx, "SELECT 1 AS x")
	if err != nil {
		t.Fatalf("Query() first error = %v", err)
	}
	second, err := reg.Query(ctx, "SELECT 2 AS y")
	if err != nil {
		t.Fatalf("Query() with open cursor error = %v", err)
	}

	var x, y int
	if !first.Next() || first.Scan(&x) != nil || x != 1 {
		t.Errorf("first cursor x = %d, want 1", x)
	}
	if !second.Next() || second.Scan(&y) != nil || y != 2 {
		t.Errorf("second cursor y = %d, want 2", y)
	}

	zones, err := reg.Query(ctx, "SELECT id, name FROM zones ORDER BY id")
	if err != nil {
		t.Fatalf("Query() zones error = %v", err)
	}
	defer zones.Close() //nolint:errcheck // Test cleanup

	var renamed int
	for zones.Next() {
		var id int64
		var name string
		if err := zones.Scan(&id, &name); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		res, err := reg.Query(ctx, "UPDATE zones SET name = ? WHERE id = ?", name+"-1", id)
		if err != nil {
			t.Fatalf("Query() UPDATE inside loop error = %v", err)
		}
		renamed += int(res.RowsAffected())
	}
	if renamed != 3 {
		t.Errorf("renamed = %d, want 3", renamed)
	}

	if err := reg.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() with open cursors error = %v", err)
	}
}
