// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Raido collections and drafts for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/listing"
	"github.com/starford/raido/internal/query"
	"github.com/starford/raido/internal/storage"
)

const querySyntaxURI = "raido://query-syntax"

// Server wraps the MCP server with Raido tools.
type Server struct {
	mcp    *server.MCPServer
	list   *listing.Service
	drafts storage.Store
}

// New creates a new MCP server with all Raido tools registered.
func New(list *listing.Service, drafts storage.Store) *Server {
	s := &Server{list: list, drafts: drafts}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List the record collections with their search fields and record counts."),
	), s.listCollections)

	s.mcp.AddTool(mcp.NewTool("query_records",
		mcp.WithDescription("Search, filter, sort and paginate the records of a collection. "+
			"Read the query syntax first via get_query_syntax or the "+querySyntaxURI+" resource."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithString("q", mcp.Description("Case-insensitive search term")),
		mcp.WithObject("filters", mcp.Description("Field to value; the value \"all\" disables a clause")),
		mcp.WithString("sort", mcp.Description("Field to sort by")),
		mcp.WithString("dir", mcp.Description("Sort direction"), mcp.Enum("asc", "desc")),
		mcp.WithNumber("page", mcp.Description("1-based page index")),
		mcp.WithNumber("size", mcp.Description("Page size")),
		mcp.WithArray("sum", mcp.Description("Numeric fields to summarise"), mcp.WithStringItems()),
		mcp.WithArray("cat", mcp.Description("Fields to break down by value"), mcp.WithStringItems()),
	), s.queryRecords)

	s.mcp.AddTool(mcp.NewTool("get_query_syntax",
		mcp.WithDescription("Returns the search, filter, sort and pagination rules used by query_records."),
	), s.getQuerySyntax)

	s.mcp.AddTool(mcp.NewTool("list_drafts",
		mcp.WithDescription("List stored form drafts."),
	), s.listDrafts)

	s.mcp.AddTool(mcp.NewTool("get_draft",
		mcp.WithDescription("Read the stored state of a form draft."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Draft key (e.g. po-creation-form)")),
	), s.getDraft)

	s.mcp.AddTool(mcp.NewTool("discard_draft",
		mcp.WithDescription("Delete a stored form draft."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Draft key")),
	), s.discardDraft)

	s.mcp.AddResource(
		mcp.NewResource(querySyntaxURI, "Query Syntax",
			mcp.WithResourceDescription("How collection queries are searched, filtered, sorted and paginated."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readQuerySyntaxResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listCollections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.list.Collections())
}

func (s *Server) queryRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.list.Query(ctx, name, toolQuery(req))
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown collection: %s", name)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

// toolQuery maps query_records arguments onto a pipeline query.
func toolQuery(req mcp.CallToolRequest) query.Query {
	q := query.Query{
		Search: req.GetString("q", ""),
		Page:   query.Page{Index: req.GetInt("page", 0), Size: req.GetInt("size", 0)},
	}

	if raw, ok := req.GetArguments()["filters"].(map[string]any); ok {
		m := make(map[string]string, len(raw))
		for k, v := range raw {
			m[k] = query.Text(v)
		}
		q.Filters = query.FiltersFromMap(m)
	}

	if field := strings.TrimSpace(req.GetString("sort", "")); field != "" {
		q.Sort = &query.Sort{Field: field, Direction: query.ParseSortDirection(req.GetString("dir", ""))}
	}

	numeric := req.GetStringSlice("sum", nil)
	categorical := req.GetStringSlice("cat", nil)
	if len(numeric) > 0 || len(categorical) > 0 {
		q.Stats = &query.Aggregation{Numeric: numeric, Categorical: categorical}
	}
	return q
}

func (s *Server) getQuerySyntax(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(QuerySyntax), nil
}

func (s *Server) readQuerySyntaxResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      querySyntaxURI,
			MIMEType: "text/markdown",
			Text:     QuerySyntax,
		},
	}, nil
}

func (s *Server) listDrafts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.drafts.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("no drafts stored"), nil
	}
	keys := make([]string, len(list))
	for i, m := range list {
		keys[i] = m.Key
	}
	slices.Sort(keys)
	return mcp.NewToolResultText(strings.Join(keys, "\n")), nil
}

func (s *Server) getDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.drafts.Get(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", key)), nil
	}
	return jsonResult(d)
}

func (s *Server) discardDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.drafts.Delete(ctx, key); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("discarded: %s", key)), nil
}
