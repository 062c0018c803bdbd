// Package query implements the list-view pipeline shared by every record
// page: free-text search, exact-match filters, stable sort, pagination and
// aggregate statistics over an in-memory collection.
package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one row of a list view, keyed by field name. Values are
// scalars (string, number, bool, time.Time) or string lists.
type Record map[string]any

// kind classifies a value for comparison purposes.
type kind int

const (
	kindNone kind = iota
	kindString
	kindNumber
	kindBool
	kindTime
	kindList
)

func kindOf(v any) kind {
	switch v.(type) {
	case nil:
		return kindNone
	case string:
		return kindString
	case bool:
		return kindBool
	case time.Time:
		return kindTime
	case []string, []any:
		return kindList
	}
	if _, ok := toFloat(v); ok {
		return kindNumber
	}
	return kindString
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Normalize converts a decoded value into the canonical value set:
// numbers become float64 and heterogeneous lists become []string.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64, time.Time, []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, Text(e))
		}
		return out
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return fmt.Sprint(v)
}

// NormalizeRecord returns a copy of r with every value normalised.
func NormalizeRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = Normalize(v)
	}
	return out
}

// Text returns the string form of v used by search and equality filters.
// Dates without a clock component render as YYYY-MM-DD.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		if t.IsZero() {
			return ""
		}
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(time.DateOnly)
		}
		return t.Format(time.RFC3339)
	case []string:
		return strings.Join(t, " ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, Text(e))
		}
		return strings.Join(parts, " ")
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// elements returns the members of a list value, or nil for scalars.
func elements(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, Text(e))
		}
		return out, true
	}
	return nil, false
}

// normEnum folds enum-like values so "Out of stock", "out-of-stock" and
// "out_of_stock" compare equal.
func normEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
