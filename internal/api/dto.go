package api

import (
	"time"

	"github.com/starford/tabula/internal/editor"
	"github.com/starford/tabula/internal/layout"
	"github.com/starford/tabula/internal/vault"
)

// OpenNoteRequest is the request body for opening a note in a tab.
type OpenNoteRequest struct {
	Path        string `json:"path" example:"/notes/hello.md" validate:"required"`
	Disposition string `json:"disposition,omitempty" example:"split-right" enums:"replace,split-right,split-down"`
}

// ActiveTabRequest selects a tab.
type ActiveTabRequest struct {
	TabID layout.TabID `json:"tab_id" example:"/notes/hello.md" validate:"required"`
}

// ActivePaneRequest selects a pane.
type ActivePaneRequest struct {
	PaneID layout.PaneID `json:"pane_id" example:"pane-1" validate:"required"`
}

// ReorderRequest carries a pane's new tab order.
type ReorderRequest struct {
	Tabs []layout.TabID `json:"tabs" validate:"required"`
}

// UpdateTabRequest is the request body for editing a tab's content.
type UpdateTabRequest struct {
	Content string `json:"content" example:"# Updated\nContent"`
}

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Content string `json:"content" example:"# Hello\nWorld"`
}

// MoveRequest renames a vault entry (Name) or moves it into a folder
// (Folder, "" for the vault root). Exactly one must be set.
type MoveRequest struct {
	Name   *string `json:"name,omitempty" example:"renamed.md"`
	Folder *string `json:"folder,omitempty" example:"archive"`
}

// MoveResponse reports where an entry ended up.
type MoveResponse struct {
	Path string `json:"path" example:"/archive/hello.md"`
}

// WorkspaceResponse is a snapshot of the editor.
type WorkspaceResponse struct {
	Layout      layout.Layout    `json:"layout"`
	Tabs        []editor.TabView `json:"tabs"`
	ActiveTabID layout.TabID     `json:"active_tab_id,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
}

// OpenNoteResponse is returned after a note was placed in a tab.
type OpenNoteResponse struct {
	Tab       editor.TabView    `json:"tab"`
	Workspace WorkspaceResponse `json:"workspace"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = vault.NoteDetail

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string    `json:"path" example:"/notes/hello.md"`
	Title     string    `json:"title" example:"Hello"`
	Checksum  string    `json:"checksum" example:"abc123..."`
	Tags      []string  `json:"tags" example:"tag1,tag2"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"/notes/hello.md" validate:"required"`
	Title   string `json:"title" example:"Hello" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}
