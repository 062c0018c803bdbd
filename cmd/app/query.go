package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/raido/internal/catalog"
	"github.com/starford/raido/internal/query"
)

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Run a query against a fixture file and print the result as JSON",
		ArgsUsage: "<fixture>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "q", Usage: "Case-insensitive search term"},
			&cli.StringSliceFlag{Name: "filter", Aliases: []string{"f"}, Usage: "field=value clause; repeatable"},
			&cli.StringFlag{Name: "sort", Aliases: []string{"s"}, Usage: "Sort field (defaults to the fixture's default_sort)"},
			&cli.StringFlag{Name: "dir", Value: "asc", Usage: "Sort direction: asc or desc"},
			&cli.IntFlag{Name: "page", Value: 1, Usage: "1-based page index"},
			&cli.IntFlag{Name: "size", Value: 20, Usage: "Page size"},
			&cli.StringSliceFlag{Name: "sum", Usage: "Numeric field to summarise; repeatable"},
			&cli.StringSliceFlag{Name: "cat", Usage: "Field to break down by value; repeatable"},
		},
		Action: runQuery,
	}
}

func runQuery(_ context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("query: fixture path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	col, err := catalog.Parse(data)
	if err != nil {
		return fmt.Errorf("query: %s: %w", path, err)
	}

	filters := make(map[string]string)
	for _, raw := range cmd.StringSlice("filter") {
		field, value, ok := strings.Cut(raw, "=")
		if !ok || field == "" {
			return fmt.Errorf("query: filter %q is not field=value", raw)
		}
		filters[field] = value
	}

	q := query.Query{
		Search:  cmd.String("q"),
		Filters: query.FiltersFromMap(filters),
		Sort:    col.DefaultSort,
		Page:    query.Page{Index: int(cmd.Int("page")), Size: int(cmd.Int("size"))}.Normalize(),
	}
	if field := cmd.String("sort"); field != "" {
		q.Sort = &query.Sort{Field: field, Direction: query.ParseSortDirection(cmd.String("dir"))}
	}
	if sum, cat := cmd.StringSlice("sum"), cmd.StringSlice("cat"); len(sum) > 0 || len(cat) > 0 {
		q.Stats = &query.Aggregation{Numeric: sum, Categorical: cat}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(query.Run(col.Records, q, col.SearchFields))
}
