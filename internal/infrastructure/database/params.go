package database

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/jmoiron/sqlx"
)

// bindParams normalises Execute parameters and rewrites the statement for
// the driver's placeholder style.
//
//   - a single slice or array (other than []byte) is expanded, so a scalar
//     and a one-element slice bind identically;
//   - a single map[string]any binds :name placeholders;
//   - anything else binds positionally, in order.
//
// A statement with nothing bound is passed through untouched, so a literal
// '?' survives on drivers that number their placeholders.
func bindParams(driverName, query string, params []any) (string, []any, error) {
	if len(params) == 1 {
		switch p := params[0].(type) {
		case map[string]any:
			q, args, err := sqlx.Named(query, p)
			if err != nil {
				return "", nil, fmt.Errorf("binding named parameters: %w", err)
			}
			return sqlx.Rebind(sqlx.BindType(driverName), q), args, nil
		case []any:
			params = p
		default:
			if expanded, ok := expandSlice(p); ok {
				params = expanded
			}
		}
	}

	if len(params) == 0 || hasNamedArgs(params) {
		return query, params, nil
	}
	return sqlx.Rebind(sqlx.BindType(driverName), query), params, nil
}

// expandSlice turns typed slices such as []int or [2]string into []any.
// Byte slices and driver.Valuer implementations are single values.
func expandSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if _, ok := v.(driver.Valuer); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func hasNamedArgs(params []any) bool {
	for _, p := range params {
		if _, ok := p.(sql.NamedArg); ok {
			return true
		}
	}
	return false
}

// returnsRows reports whether a statement produces a result set. Writes
// with a RETURNING clause count as row-producing.
func returnsRows(query string) bool {
	q := strings.TrimLeft(stripLeadingComments(query), "( \t\r\n")
	keyword := strings.ToUpper(firstWord(q))

	switch keyword {
	case "SELECT", "WITH", "VALUES", "EXPLAIN", "SHOW", "DESCRIBE", "DESC", "TABLE":
		return true
	case "PRAGMA":
		// "PRAGMA foreign_keys = ON" sets; "PRAGMA foreign_keys" reads.
		return !strings.Contains(q, "=")
	case "INSERT", "UPDATE", "DELETE", "REPLACE":
		return containsWord(strings.ToUpper(q), "RETURNING")
	}
	return false
}

func stripLeadingComments(q string) string {
	for {
		q = strings.TrimSpace(q)
		switch {
		case strings.HasPrefix(q, "--"):
			nl := strings.IndexByte(q, '\n')
			if nl < 0 {
				return ""
			}
			q = q[nl+1:]
		case strings.HasPrefix(q, "/*"):
			end := strings.Index(q, "*/")
			if end < 0 {
				return ""
			}
			q = q[end+2:]
		default:
			return q
		}
	}
}

func firstWord(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if end < 0 {
		return s
	}
	return s[:end]
}

func containsWord(s, word string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(word)
		before := start == 0 || !isIdentRune(rune(s[start-1]))
		after := end == len(s) || !isIdentRune(rune(s[end]))
		if before && after {
			return true
		}
		i = end
	}
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
