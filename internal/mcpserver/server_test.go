package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/orgcal/internal/entryservice"
	"github.com/starford/orgcal/internal/index"
	"github.com/starford/orgcal/internal/syncer"
	"github.com/starford/orgcal/internal/testutil"
)

type fixedRunner struct{ res *syncer.Result }

func (r fixedRunner) Run(context.Context) (*syncer.Result, error) { return r.res, nil }

func testServer(t *testing.T, runner entryservice.Runner) *Server {
	t.Helper()
	_, db := testutil.IndexedSchedule(t)
	return New(entryservice.NewService(db, runner), "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no call helper for tests; dispatch to the handlers directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_events":
		result, err = srv.listEvents(ctx, req)
	case "read_event":
		result, err = srv.readEvent(ctx, req)
	case "search_events":
		result, err = srv.searchEvents(ctx, req)
	case "sync_now":
		result, err = srv.syncNow(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListEvents(t *testing.T) {
	srv := testServer(t, nil)

	r := callTool(t, srv, "list_events", map[string]interface{}{})
	var out struct {
		Entries []entryservice.EntryListItem `json:"entries"`
		Total   int                          `json:"total"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatalf("decode: %v (%s)", err, resultText(r))
	}
	if out.Total != 2 {
		t.Errorf("total = %d, want 2", out.Total)
	}

	r = callTool(t, srv, "list_events", map[string]interface{}{"from": "2024-02-01", "limit": 10})
	_ = json.Unmarshal([]byte(resultText(r)), &out)
	if out.Total != 1 || out.Entries[0].ID != "44" {
		t.Errorf("filtered = %+v", out)
	}
}

func TestListEventsBadDate(t *testing.T) {
	srv := testServer(t, nil)
	r := callTool(t, srv, "list_events", map[string]interface{}{"from": "soon"})
	if !r.IsError {
		t.Error("expected error for invalid date")
	}
}

func TestReadEvent(t *testing.T) {
	srv := testServer(t, nil)

	r := callTool(t, srv, "read_event", map[string]interface{}{"id": "42"})
	var entry index.EntryRow
	if err := json.Unmarshal([]byte(resultText(r)), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.Heading != "Weekly sync" || len(entry.Participants) != 2 {
		t.Errorf("entry = %+v", entry)
	}
}

func TestReadEventMissing(t *testing.T) {
	srv := testServer(t, nil)
	r := callTool(t, srv, "read_event", map[string]interface{}{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing entry")
	}
}

func TestSearchEvents(t *testing.T) {
	srv := testServer(t, nil)
	r := callTool(t, srv, "search_events", map[string]interface{}{"query": "slides"})
	var results []index.SearchResult
	_ = json.Unmarshal([]byte(resultText(r)), &results)
	if len(results) != 1 || results[0].ID != "42" {
		t.Errorf("results = %+v", results)
	}
}

func TestSyncNow(t *testing.T) {
	srv := testServer(t, fixedRunner{res: &syncer.Result{RunID: "abc", Modified: 1}})
	r := callTool(t, srv, "sync_now", nil)
	if r.IsError {
		t.Fatalf("sync_now failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"run_id": "abc"`) {
		t.Errorf("result = %s", resultText(r))
	}
}

func TestSyncNowUnconfigured(t *testing.T) {
	srv := testServer(t, nil)
	r := callTool(t, srv, "sync_now", nil)
	if !r.IsError {
		t.Error("expected error without a runner")
	}
}

func TestEntryFormatResource(t *testing.T) {
	srv := testServer(t, nil)
	contents, err := srv.readEntryFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != entryFormatURI || !strings.Contains(tc.Text, ":EXPIRATION:") {
		t.Errorf("resource = %+v", contents[0])
	}
}
