package query

import (
	"slices"
	"strings"
)

// Run executes search, filters, sort, aggregation and pagination in that
// order. It never mutates records and never fails: out-of-range pages yield
// empty items, unknown sort or filter fields are ignored.
//
// Records are not copied; Items share the maps of the input.
func Run(records []Record, q Query, searchFields []string) Result {
	matched := Match(records, q.Search, q.Filters, searchFields)
	if q.Sort != nil {
		SortStable(matched, *q.Sort)
	}
	res := Paginate(matched, q.Page)
	if q.Stats != nil {
		st := Aggregate(matched, *q.Stats)
		res.Stats = &st
	}
	return res
}

// Match returns, in input order, the records that contain term in at least
// one search field and satisfy every non-wildcard filter.
func Match(records []Record, term string, filters []FilterClause, searchFields []string) []Record {
	needle := strings.ToLower(term)
	active := activeFilters(records, filters)

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if !matchesSearch(r, needle, searchFields) {
			continue
		}
		if !matchesFilters(r, active) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesSearch(r Record, needle string, fields []string) bool {
	if needle == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(Text(r[f])), needle) {
			return true
		}
	}
	return false
}

type activeFilter struct {
	field string
	want  string
}

// activeFilters drops wildcards and fields no record carries.
func activeFilters(records []Record, filters []FilterClause) []activeFilter {
	var out []activeFilter
	for _, c := range filters {
		if c.IsWildcard() || !fieldKnown(records, c.Field) {
			continue
		}
		out = append(out, activeFilter{field: c.Field, want: normEnum(c.Value)})
	}
	return out
}

func matchesFilters(r Record, filters []activeFilter) bool {
	for _, f := range filters {
		v := r[f.field]
		if elems, ok := elements(v); ok {
			if !slices.ContainsFunc(elems, func(e string) bool { return normEnum(e) == f.want }) {
				return false
			}
			continue
		}
		if normEnum(Text(v)) != f.want {
			return false
		}
	}
	return true
}

func fieldKnown(records []Record, field string) bool {
	for _, r := range records {
		if _, ok := r[field]; ok {
			return true
		}
	}
	return false
}

// Paginate slices the page out of records. TotalPages is at least 1.
func Paginate(records []Record, p Page) Result {
	p = p.Normalize()
	total := len(records)

	pages := total / p.Size
	if total%p.Size != 0 {
		pages++
	}
	if pages < 1 {
		pages = 1
	}

	items := []Record{}
	if p.Index <= pages {
		start := (p.Index - 1) * p.Size
		if start < total {
			end := min(start+p.Size, total)
			items = slices.Clone(records[start:end])
		}
	}
	return Result{
		Items:        items,
		TotalMatched: total,
		TotalPages:   pages,
		Page:         p,
	}
}
