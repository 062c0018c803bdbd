package api

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/starford/raido/internal/query"
)

// ParseQuery builds a pipeline query from URL parameters:
// q, filter[field]=value, sort, dir, page, size, sum and cat.
// Filter clauses are ordered by field name.
func ParseQuery(v url.Values) query.Query {
	q := query.Query{Search: v.Get("q")}

	var fields []string
	for k := range v {
		if f, ok := filterField(k); ok {
			fields = append(fields, f)
		}
	}
	slices.Sort(fields)
	for _, f := range fields {
		q.Filters = append(q.Filters, query.ParseFilter(f, v.Get("filter["+f+"]")))
	}

	if s := strings.TrimSpace(v.Get("sort")); s != "" {
		q.Sort = &query.Sort{Field: s, Direction: query.ParseSortDirection(v.Get("dir"))}
	}

	q.Page.Index, _ = strconv.Atoi(v.Get("page"))
	q.Page.Size, _ = strconv.Atoi(v.Get("size"))

	numeric, categorical := splitList(v.Get("sum")), splitList(v.Get("cat"))
	if len(numeric) > 0 || len(categorical) > 0 {
		q.Stats = &query.Aggregation{Numeric: numeric, Categorical: categorical}
	}
	return q
}

func filterField(key string) (string, bool) {
	if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
		return "", false
	}
	f := key[len("filter[") : len(key)-1]
	return f, f != ""
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
