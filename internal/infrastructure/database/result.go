package database

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
)

// errNotStruct is returned by StructScan for a destination that is not a
// non-nil pointer to a struct.
var errNotStruct = errors.New("destination must be a non-nil pointer to a struct")

// Result is returned by Execute. For row-producing statements it is a
// cursor positioned before the first row; for writes it carries the
// affected-row count.
//
// Rows are read in full before Execute returns, so a Result never holds
// the connection. An unclosed Result does not block later statements.
type Result struct {
	columns []string
	rows    [][]any
	pos     int
	isQuery bool
	mapper  *reflectx.Mapper

	rowsAffected int64
	lastInsertID int64
	hasInsertID  bool
}

// readRows drains rows into a Result and closes them.
func readRows(rows *sqlx.Rows) (*Result, error) {
	defer rows.Close() //nolint:errcheck // Close error surfaces through rows.Err below

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	r := &Result{columns: cols, isQuery: true, mapper: rows.Mapper}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.rows = append(r.rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return r, nil
}

func newExecResult(res sql.Result) *Result {
	r := &Result{}
	if n, err := res.RowsAffected(); err == nil {
		r.rowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		r.lastInsertID = id
		r.hasInsertID = true
	}
	return r
}

// HasRows reports whether the statement produced a result set.
func (r *Result) HasRows() bool {
	return r.isQuery
}

// Len returns the number of rows in the result set.
func (r *Result) Len() int {
	return len(r.rows)
}

// Next advances the cursor. It returns false for write results.
func (r *Result) Next() bool {
	if r.pos >= len(r.rows) {
		r.pos = len(r.rows) + 1
		return false
	}
	r.pos++
	return true
}

// Columns returns the result set column names.
func (r *Result) Columns() ([]string, error) {
	return r.columns, nil
}

func (r *Result) current() ([]any, error) {
	if r.pos < 1 || r.pos > len(r.rows) {
		return nil, sql.ErrNoRows
	}
	return r.rows[r.pos-1], nil
}

// Scan copies the current row into dest, positionally.
func (r *Result) Scan(dest ...any) error {
	row, err := r.current()
	if err != nil {
		return err
	}
	if len(dest) != len(row) {
		return fmt.Errorf("expected %d destination arguments in Scan, not %d", len(row), len(dest))
	}
	for i, d := range dest {
		v := reflect.ValueOf(d)
		if v.Kind() != reflect.Pointer || v.IsNil() {
			return fmt.Errorf("scan column %q: destination not a non-nil pointer", r.columns[i])
		}
		if err := assign(v.Elem(), row[i]); err != nil {
			return fmt.Errorf("scan column %q: %w", r.columns[i], err)
		}
	}
	return nil
}

// Record returns the current row keyed by column name.
func (r *Result) Record() (map[string]any, error) {
	row, err := r.current()
	if err != nil {
		return nil, err
	}
	return r.record(row), nil
}

func (r *Result) record(row []any) map[string]any {
	rec := make(map[string]any, len(r.columns))
	for i, col := range r.columns {
		rec[col] = row[i]
	}
	return rec
}

// StructScan copies the current row into a struct using `db` field tags.
// Every column must map to a field.
func (r *Result) StructScan(dest any) error {
	row, err := r.current()
	if err != nil {
		return err
	}

	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return errNotStruct
	}
	v = v.Elem()

	mapper := r.mapper
	if mapper == nil {
		mapper = reflectx.NewMapperFunc("db", sqlx.NameMapper)
	}
	for i, trav := range mapper.TraversalsByName(v.Type(), r.columns) {
		if len(trav) == 0 {
			return fmt.Errorf("missing destination name %s in %T", r.columns[i], dest)
		}
		if err := assign(reflectx.FieldByIndexes(v, trav), row[i]); err != nil {
			return fmt.Errorf("scan column %q: %w", r.columns[i], err)
		}
	}
	return nil
}

// All returns every remaining row as a record and moves the cursor past
// the end.
func (r *Result) All() ([]map[string]any, error) {
	if !r.isQuery {
		return nil, nil
	}

	start := max(r.pos, 0)
	var out []map[string]any
	for _, row := range r.rows[min(start, len(r.rows)):] {
		out = append(out, r.record(row))
	}
	r.pos = len(r.rows) + 1
	return out, nil
}

// Err returns the error, if any, encountered during iteration. Rows are
// read before Execute returns, so read errors surface there instead.
func (r *Result) Err() error {
	return nil
}

// Close discards the buffered rows. It is safe to call more than once and
// on write results.
func (r *Result) Close() error {
	r.rows = nil
	r.pos = 0
	return nil
}

// RowsAffected returns the number of rows changed by a write.
func (r *Result) RowsAffected() int64 {
	return r.rowsAffected
}

// LastInsertID returns the engine-generated ID of the last inserted row,
// when the driver supports it.
func (r *Result) LastInsertID() (int64, bool) {
	return r.lastInsertID, r.hasInsertID
}

// assign stores a driver value in dst. It covers the conversions the
// built-in drivers need: sql.Scanner targets, NULL to zero values, text
// returned as []byte, and widening or narrowing between numeric kinds.
func assign(dst reflect.Value, src any) error {
	if dst.CanAddr() {
		if s, ok := dst.Addr().Interface().(sql.Scanner); ok {
			return s.Scan(src)
		}
	}
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return assign(dst.Elem(), src)
	}

	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		if b, ok := src.([]byte); ok && dst.Kind() == reflect.Slice {
			dst.SetBytes(append([]byte(nil), b...))
			return nil
		}
		dst.Set(sv)
		return nil
	}

	switch {
	case dst.Kind() == reflect.String && sv.Kind() == reflect.Slice && sv.Type().Elem().Kind() == reflect.Uint8:
		dst.SetString(string(sv.Bytes()))
		return nil
	case isNumeric(dst.Kind()) && isNumeric(sv.Kind()):
		dst.Set(sv.Convert(dst.Type()))
		return nil
	case dst.Kind() == reflect.Bool && isNumeric(sv.Kind()):
		dst.SetBool(!sv.IsZero())
		return nil
	}
	return fmt.Errorf("unsupported conversion from %T to %s", src, dst.Type())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
