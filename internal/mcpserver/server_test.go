package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/testutil"
)

func testServer(t *testing.T) (*Server, *testutil.Env) {
	t.Helper()
	env := testutil.NewEnv(t, nil)
	return New(env.Service, "test"), env
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no "call tool" test helper, so dispatch to the handlers directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "list_categories":
		result, err = srv.listCategories(ctx, req)
	case "backup_now":
		result, err = srv.backupNow(ctx, req)
	case "get_note_contract":
		result, err = srv.getNoteContract(ctx, req)
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

func TestCreateAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_note", map[string]interface{}{
		"content": "---\ntitle: Test\ncategory: Inbox\n---\nHello",
	})
	text := resultText(r)
	if r.IsError || !strings.HasPrefix(text, "created: ") {
		t.Fatalf("create result = %q", text)
	}
	id := strings.TrimPrefix(text, "created: ")

	r = callTool(t, srv, "read_note", map[string]interface{}{"id": id})
	text = resultText(r)
	if !strings.Contains(text, "title: Test") || !strings.Contains(text, "category: Inbox") || !strings.HasSuffix(text, "Hello\n") {
		t.Errorf("read result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{"id": id, "json": true})
	var n models.Note
	if err := json.Unmarshal([]byte(resultText(r)), &n); err != nil {
		t.Fatalf("json read: %v", err)
	}
	if n.ID != id || n.Content != "Hello" {
		t.Errorf("json note = %+v", n)
	}
}

func TestCreateNote_FallbackTitle(t *testing.T) {
	srv, env := testServer(t)

	callTool(t, srv, "create_note", map[string]interface{}{"content": "plain body", "title": "Given"})
	notes := env.Repo.GetAllNotes(context.Background())
	if len(notes) != 1 || notes[0].Title != "Given" {
		t.Errorf("notes = %+v", notes)
	}
}

func TestListNotesAndCategories(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_notes", map[string]interface{}{})
	if resultText(r) != "no notes found" {
		t.Errorf("empty list = %q", resultText(r))
	}

	callTool(t, srv, "create_note", map[string]interface{}{"content": "---\ntitle: A\ncategory: Work\n---\na"})
	callTool(t, srv, "create_note", map[string]interface{}{"content": "# B\nb"})

	r = callTool(t, srv, "list_notes", map[string]interface{}{})
	if lines := strings.Split(resultText(r), "\n"); len(lines) != 2 {
		t.Errorf("list = %q", resultText(r))
	}

	r = callTool(t, srv, "list_notes", map[string]interface{}{"category": "Work"})
	text := resultText(r)
	if !strings.Contains(text, "\tA\t[Work]") || strings.Contains(text, "\tB") {
		t.Errorf("category list = %q", text)
	}

	r = callTool(t, srv, "list_categories", map[string]interface{}{})
	if resultText(r) != "Work" {
		t.Errorf("categories = %q", resultText(r))
	}

	r = callTool(t, srv, "list_notes", map[string]interface{}{"view": "bogus"})
	if !r.IsError {
		t.Error("expected error for unknown view")
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
	if resultText(r) != "not found: nope" {
		t.Errorf("error text = %q", resultText(r))
	}
}

func TestBackupNow(t *testing.T) {
	srv, env := testServer(t)

	callTool(t, srv, "create_note", map[string]interface{}{"content": "# X\nx"})
	r := callTool(t, srv, "backup_now", map[string]interface{}{})
	if r.IsError || !strings.HasPrefix(resultText(r), "backup completed: ") {
		t.Fatalf("backup = %q", resultText(r))
	}
	snap, err := env.Remote.Latest(context.Background(), testutil.TestUser)
	if err != nil || snap == nil {
		t.Fatalf("remote snapshot = %v, %v", snap, err)
	}

	r = callTool(t, srv, "backup_now", map[string]interface{}{})
	if resultText(r) != "backup skipped: unchanged" {
		t.Errorf("second backup = %q", resultText(r))
	}
}

func TestGetNoteContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_note_contract", nil)
	if resultText(r) != NoteFormatContract {
		t.Error("contract text mismatch")
	}
}
