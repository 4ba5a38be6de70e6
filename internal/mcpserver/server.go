// Package mcpserver exposes the notes of one signed-in workspace as MCP
// tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notesapp/internal/workspace"
)

const notesResourceURI = "notes://collection"

// Server wraps the MCP server with note tools.
type Server struct {
	mcp *server.MCPServer
	ws  *workspace.Workspace
}

// New creates an MCP server over ws. ws is expected to be signed in.
func New(ws *workspace.Workspace, version string) *Server {
	s := &Server{ws: ws}

	s.mcp = server.NewMCPServer(
		"NotesApp",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List all notes of the signed-in user, newest first."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("reload_notes",
		mcp.WithDescription("Fetch the notes again from the store."),
	), s.reloadNotes)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Case-insensitive substring search over note titles and contents."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read one note by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. Title and content must not be blank."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note body")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace the title and content of an existing note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("title", mcp.Required(), mcp.Description("New title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New body")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("get_profile",
		mcp.WithDescription("Return the profile of the signed-in user."),
	), s.getProfile)

	s.mcp.AddResource(
		mcp.NewResource(notesResourceURI, "Notes",
			mcp.WithResourceDescription("All notes of the signed-in user as JSON."),
			mcp.WithMIMEType("application/json"),
		),
		s.readNotesResource,
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

func errorResult(op workspace.Op, err error) *mcp.CallToolResult {
	n := workspace.NoticeFor(op, err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", n.Title, n.Description))
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.ws.Notes().Notes()), nil
}

func (s *Server) reloadNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.ws.Reload(ctx); err != nil {
		return errorResult(workspace.OpLoad, err), nil
	}
	return jsonResult(s.ws.Notes().Notes()), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.ws.Notes().Search(query)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.ws.Notes().Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(n), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.ws.Notes().Create(ctx, title, content)
	if err != nil {
		return errorResult(workspace.OpCreate, err), nil
	}
	return jsonResult(n), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	m := s.ws.Notes()
	if err := m.BeginEdit(id); err != nil {
		return errorResult(workspace.OpUpdate, err), nil
	}
	n, err := m.Update(ctx, id, title, content)
	if err != nil {
		return errorResult(workspace.OpUpdate, err), nil
	}
	return jsonResult(n), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ws.Notes().Delete(ctx, id); err != nil {
		return errorResult(workspace.OpDelete, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) getProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.ws.Profile()
	if err != nil {
		return errorResult(workspace.OpProfile, err), nil
	}
	return jsonResult(p), nil
}

func (s *Server) readNotesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.Marshal(s.ws.Notes().Notes())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      notesResourceURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
