// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notesync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/noteservice"
)

// ContractURI is the resource URI of the note format contract.
const ContractURI = "notesync://note-format"

// Server wraps the MCP server with notesync tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all notesync tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"notesync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes as id, title and category, one per line. "+
			"Filter by view or by category."),
		mcp.WithString("view", mcp.Description("Collection slice"),
			mcp.Enum("all", "active", "archived", "trash", "favorites")),
		mcp.WithString("category", mcp.Description("Only notes in this category")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read one note as Markdown with YAML frontmatter."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithBoolean("json", mcp.Description("Return the raw note record as JSON instead of Markdown")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note from Markdown. "+
			"Content SHOULD follow the note format contract (YAML frontmatter with title, "+
			"optional category, color and tags). Read the contract first via "+
			"the get_note_contract tool or the "+ContractURI+" resource."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content following the note format contract")),
		mcp.WithString("title", mcp.Description("Title used when the content has none")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the note format contract. "+
			"Call this before creating notes to ensure correct structure."),
	), s.getNoteContract)

	s.mcp.AddTool(mcp.NewTool("list_categories",
		mcp.WithDescription("List all categories in display order."),
	), s.listCategories)

	s.mcp.AddTool(mcp.NewTool("backup_now",
		mcp.WithDescription("Back up local notes to the remote store. "+
			"Does nothing when nothing changed since the last backup."),
	), s.backupNow)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource(ContractURI, "Note Format Contract",
			mcp.WithResourceDescription("Markdown note format accepted by create_note."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
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

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, _, err := s.svc.ListNotes(ctx, noteservice.ListQuery{
		View:     noteservice.View(req.GetString("view", "active")),
		Category: req.GetString("category", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}

	var b strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&b, "%s\t%s", n.ID, n.Title)
		if c := n.CategoryName(); c != "" {
			fmt.Fprintf(&b, "\t[%s]", c)
		}
		b.WriteByte('\n')
	}
	return mcp.NewToolResultText(strings.TrimSuffix(b.String(), "\n")), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.GetBool("json", false) {
		note, err := s.svc.GetNote(ctx, id)
		if err != nil {
			return notFoundOr(id, err), nil
		}
		out, _ := json.MarshalIndent(note, "", "  ")
		return mcp.NewToolResultText(string(out)), nil
	}
	md, err := s.svc.ExportMarkdown(ctx, id)
	if err != nil {
		return notFoundOr(id, err), nil
	}
	return mcp.NewToolResultText(string(md)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.CreateFromMarkdown(ctx, []byte(content), req.GetString("title", "Untitled"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", note.ID)), nil
}

func (s *Server) listCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cats := s.svc.Categories(ctx)
	if len(cats) == 0 {
		return mcp.NewToolResultText("no categories"), nil
	}
	return mcp.NewToolResultText(strings.Join(cats, "\n")), nil
}

func (s *Server) backupNow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := s.svc.Backup(ctx, "")
	switch {
	case res.Err != nil:
		return mcp.NewToolResultError("backup failed: " + res.Error), nil
	case res.Skipped != "":
		return mcp.NewToolResultText("backup skipped: " + res.Skipped), nil
	default:
		return mcp.NewToolResultText("backup completed: " + res.BackupDate), nil
	}
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ContractURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func notFoundOr(id string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id))
	}
	return mcp.NewToolResultError(err.Error())
}
