// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the tabula editor and vault to LLMs via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tabula/internal/editor"
	"github.com/starford/tabula/internal/layout"
	"github.com/starford/tabula/internal/storage"
	"github.com/starford/tabula/internal/vault"
)

const workspaceURI = "tabula://workspace"

// Server wraps the MCP server with tabula tools.
type Server struct {
	mcp *server.MCPServer
	ws  *editor.Store
	svc *vault.Service
}

// New creates a new MCP server with all tabula tools registered.
func New(ws *editor.Store, svc *vault.Service) *Server {
	s := &Server{ws: ws, svc: svc}

	s.mcp = server.NewMCPServer(
		"Tabula",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("open_note",
		mcp.WithDescription("Open a note in a tab. Opening a note that already has a tab focuses it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the note (e.g. /folder/note.md)")),
		mcp.WithString("disposition",
			mcp.Description("Where to show the note"),
			mcp.Enum(string(layout.Replace), string(layout.SplitRight), string(layout.SplitDown)),
		),
	), s.openNote)

	s.mcp.AddTool(mcp.NewTool("close_tab",
		mcp.WithDescription("Close a tab. Unsaved changes are discarded."),
		mcp.WithString("tab_id", mcp.Required(), mcp.Description("Tab id, the note path")),
	), s.closeTab)

	s.mcp.AddTool(mcp.NewTool("get_layout",
		mcp.WithDescription("Return the pane layout and the open tabs as JSON."),
	), s.getLayout)

	s.mcp.AddTool(mcp.NewTool("read_tab",
		mcp.WithDescription("Read the content of an open tab, including unsaved edits."),
		mcp.WithString("tab_id", mcp.Required(), mcp.Description("Tab id, the note path")),
	), s.readTab)

	s.mcp.AddTool(mcp.NewTool("update_tab",
		mcp.WithDescription("Replace the content of an open tab. The tab becomes dirty until saved."),
		mcp.WithString("tab_id", mcp.Required(), mcp.Description("Tab id, the note path")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New Markdown content")),
	), s.updateTab)

	s.mcp.AddTool(mcp.NewTool("save_tab",
		mcp.WithDescription("Write an open tab's content to its note."),
		mcp.WithString("tab_id", mcp.Required(), mcp.Description("Tab id, the note path")),
	), s.saveTab)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new Markdown note. \".md\" is appended when missing."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path for the new note")),
		mcp.WithString("content", mcp.Description("Initial Markdown content")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through notes content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddResource(
		mcp.NewResource(workspaceURI, "Workspace",
			mcp.WithResourceDescription("Current pane layout and open tabs."),
			mcp.WithMIMEType("application/json"),
		),
		s.readWorkspaceResource,
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

type workspace struct {
	Layout layout.Layout    `json:"layout"`
	Tabs   []editor.TabView `json:"tabs"`
}

func (s *Server) workspaceJSON() string {
	out, _ := json.MarshalIndent(workspace{Layout: s.ws.Layout(), Tabs: s.ws.Tabs()}, "", "  ")
	return string(out)
}

func tabID(req mcp.CallToolRequest) (layout.TabID, error) {
	raw, err := req.RequireString("tab_id")
	if err != nil {
		return "", err
	}
	return layout.IDForPath(storage.NotePath(raw)), nil
}

func (s *Server) openNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d := layout.Disposition(req.GetString("disposition", string(layout.Replace)))
	id, err := s.ws.OpenNote(ctx, storage.NotePath(path), d)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("opened: %s", id)), nil
}

func (s *Server) closeTab(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := tabID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ws.CloseTab(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("closed: %s", id)), nil
}

func (s *Server) getLayout(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.workspaceJSON()), nil
}

func (s *Server) readTab(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := tabID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, ok := s.ws.Tab(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown tab: %s", id)), nil
	}
	return mcp.NewToolResultText(t.Content), nil
}

func (s *Server) updateTab(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := tabID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ws.UpdateContent(id, content); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", id)), nil
}

func (s *Server) saveTab(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := tabID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ws.Save(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", id)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.CreateNote(ctx, path, []byte(req.GetString("content", "")))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", note.Path)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	for i := range results {
		results[i].Path = storage.NotePath(results[i].Path)
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readWorkspaceResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      workspaceURI,
			MIMEType: "application/json",
			Text:     s.workspaceJSON(),
		},
	}, nil
}
