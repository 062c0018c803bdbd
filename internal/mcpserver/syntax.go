package mcpserver

// QuerySyntax documents how query_records arguments map onto the record
// pipeline. It is served as a resource and returned by get_query_syntax.
const QuerySyntax = `# Raido Query Syntax

Every collection query runs the same pipeline over the full record set:
search, then filters, then sort, then pagination. Stats are computed over the
filtered set before pagination.

## Search

` + "`q`" + ` is a case-insensitive substring match against the collection's search
fields (see list_collections). An empty term matches everything.

## Filters

` + "`filters`" + ` is an object of field to value. Clauses are ANDed.

- A value of ` + "`all`" + ` disables that clause.
- Values match case-insensitively. Enum-style values compare with spaces,
  dashes and underscores folded, so ` + "`Out of stock`" + ` matches ` + "`out_of_stock`" + `.
- List-valued fields match when any element matches.
- A filter on a field no record has is ignored.

## Sort

` + "`sort`" + ` names a field; ` + "`dir`" + ` is ` + "`asc`" + ` (default) or ` + "`desc`" + `.
Numbers compare numerically, dates declared in the fixture's time_fields
chronologically, everything else as case-insensitive text. A missing value
sorts as the empty value of the field's type. Ties keep input order. When a
field mixes types, each type is sorted within the positions it occupies.
Without ` + "`sort`" + ` the collection's default sort applies.

## Pagination

` + "`page`" + ` is 1-based. ` + "`size`" + ` defaults to 20 and is capped at 500.
A page past the end returns no items with the totals intact.

## Stats

` + "`sum`" + ` lists numeric fields to summarise (count, sum, avg, min, max).
` + "`cat`" + ` lists fields to break down by value.

## Example

` + "```" + `json
{
  "collection": "service-parts",
  "q": "hinge",
  "filters": {"category": "Hardware", "stockStatus": "all"},
  "sort": "currentStock",
  "dir": "desc",
  "page": 1,
  "size": 10,
  "sum": ["currentStock"]
}
` + "```" + `
`
