package query

import (
	"maps"
	"slices"
	"strings"
)

// SortDirection orders the sort comparator.
type SortDirection int

const (
	Asc SortDirection = iota
	Desc
)

// ParseSortDirection maps "desc" (any case) to Desc and everything else to Asc.
func ParseSortDirection(s string) SortDirection {
	if strings.EqualFold(strings.TrimSpace(s), "desc") {
		return Desc
	}
	return Asc
}

func (d SortDirection) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// MarshalText implements encoding.TextMarshaler.
func (d SortDirection) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *SortDirection) UnmarshalText(b []byte) error {
	*d = ParseSortDirection(string(b))
	return nil
}

// Sort names the field to order by.
type Sort struct {
	Field     string        `json:"field" yaml:"field"`
	Direction SortDirection `json:"direction" yaml:"direction"`
}

// Wildcard is the filter value that places no constraint on a field.
const Wildcard = "all"

// FilterClause constrains one field. A clause is either an equality match
// (Eq) or a wildcard (All) that accepts every record.
type FilterClause struct {
	Field string `json:"field"`
	Value string `json:"value,omitempty"`
	Any   bool   `json:"any,omitempty"`
}

// Eq requires field to equal value after enum normalisation.
func Eq(field, value string) FilterClause {
	return FilterClause{Field: field, Value: value}
}

// All places no constraint on field.
func All(field string) FilterClause {
	return FilterClause{Field: field, Value: Wildcard, Any: true}
}

// ParseFilter builds a clause from a raw UI value: "" and "all" mean All.
func ParseFilter(field, raw string) FilterClause {
	if strings.TrimSpace(raw) == "" || strings.EqualFold(strings.TrimSpace(raw), Wildcard) {
		return All(field)
	}
	return Eq(field, raw)
}

// IsWildcard reports whether the clause accepts every record. An Eq clause
// whose value is the "all" sentinel is a wildcard too.
func (c FilterClause) IsWildcard() bool {
	return c.Any || strings.EqualFold(strings.TrimSpace(c.Value), Wildcard)
}

// FiltersFromMap converts a field->value map into clauses ordered by field name.
func FiltersFromMap(m map[string]string) []FilterClause {
	out := make([]FilterClause, 0, len(m))
	for _, field := range slices.Sorted(maps.Keys(m)) {
		out = append(out, ParseFilter(field, m[field]))
	}
	return out
}

// Page is a 1-based page request.
type Page struct {
	Index int `json:"index"`
	Size  int `json:"size"`
}

// Normalize clamps the index and size to at least 1.
func (p Page) Normalize() Page {
	if p.Index < 1 {
		p.Index = 1
	}
	if p.Size < 1 {
		p.Size = 1
	}
	return p
}

// Query describes one pipeline invocation.
type Query struct {
	Search  string
	Filters []FilterClause
	Sort    *Sort
	Page    Page
	Stats   *Aggregation
}

// Result is the paginated view of the filtered, sorted set.
type Result struct {
	Items        []Record `json:"items"`
	TotalMatched int      `json:"total_matched"`
	TotalPages   int      `json:"total_pages"`
	Page         Page     `json:"page"`
	Stats        *Stats   `json:"stats,omitempty"`
}
