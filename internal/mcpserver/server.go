// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the synced schedule to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/orgcal/internal/apperr"
	"github.com/starford/orgcal/internal/entryservice"
)

const entryFormatURI = "orgcal://entry-format"

// Server wraps the MCP server with orgcal tools.
type Server struct {
	mcp *server.MCPServer
	svc *entryservice.Service
}

// New creates a new MCP server with all orgcal tools registered.
func New(svc *entryservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"orgcal",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_events",
		mcp.WithDescription("List synced schedule entries in chronological order."),
		mcp.WithString("from", mcp.Description("Only entries ending on or after this date (YYYY-MM-DD)")),
		mcp.WithString("plan", mcp.Description("Only entries with this plan/category")),
		mcp.WithBoolean("include_removed", mcp.Description("Include entries removed on the remote side")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 50)")),
	), s.listEvents)

	s.mcp.AddTool(mcp.NewTool("read_event",
		mcp.WithDescription("Read one entry with all of its intervals, members and description."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Remote event id (the ID property)")),
	), s.readEvent)

	s.mcp.AddTool(mcp.NewTool("search_events",
		mcp.WithDescription("Full-text search through entry headings, descriptions and members."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchEvents)

	s.mcp.AddTool(mcp.NewTool("sync_now",
		mcp.WithDescription("Run one sync against the remote schedule and report what changed."),
	), s.syncNow)

	s.mcp.AddResource(
		mcp.NewResource(entryFormatURI, "Entry Format",
			mcp.WithResourceDescription("How orgcal lays out schedule entries in the Org document."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readEntryFormatResource,
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

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := entryservice.ListQuery{
		Plan:           req.GetString("plan", ""),
		IncludeRemoved: req.GetBool("include_removed", false),
		Limit:          req.GetInt("limit", 50),
	}
	if from := req.GetString("from", ""); from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid from date %q", from)), nil
		}
		q.From = t
	}
	items, total, err := s.svc.List(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"entries": items, "total": total}), nil
}

func (s *Server) readEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.svc.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entry), nil
}

func (s *Server) searchEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) syncNow(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Sync(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) readEntryFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      entryFormatURI,
			MIMEType: "text/markdown",
			Text:     EntryFormatContract,
		},
	}, nil
}
