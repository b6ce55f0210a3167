package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tabula/internal/editor"
	"github.com/starford/tabula/internal/storage"
	"github.com/starford/tabula/internal/vault"
)

// Handler holds API route handlers.
type Handler struct {
	ws  *editor.Store
	svc *vault.Service
}

// NewHandler creates a new Handler.
func NewHandler(ws *editor.Store, svc *vault.Service) *Handler {
	return &Handler{ws: ws, svc: svc}
}

// notePath extracts the note path from the URL wildcard as a rooted path
// ("/folder/note.md"). Supports encoded slashes (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	return storage.NotePath(decoded)
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List indexed notes with optional pagination and tag filter
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	rows, total, err := h.svc.ListNotes(r.Context(), limit, offset, q.Get("tag"))
	if err != nil {
		writeError(w, err, "list notes")
		return
	}
	items := make([]NoteListItem, len(rows))
	for i, row := range rows {
		items[i] = NoteListItem{
			Path:      storage.NotePath(row.Path),
			Title:     row.Title,
			Checksum:  row.Checksum,
			Tags:      row.Tags,
			UpdatedAt: row.UpdatedAt,
		}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// Search handles GET /api/search?q=...
//
//	@Summary		Full-text search
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter q is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, err, "search", slog.String("query", q))
		return
	}
	out := make([]SearchResult, len(results))
	for i, res := range results {
		out[i] = SearchResult{Path: storage.NotePath(res.Path), Title: res.Title, Snippet: res.Snippet}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: out})
}

// GetNote handles GET /api/vault/*.
//
//	@Summary		Read a note from disk
//	@Tags			vault
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.svc.GetNote(r.Context(), path)
	if err != nil {
		writeError(w, err, "get note", slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/vault/*.
//
//	@Summary		Create a new note
//	@Tags			vault
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Note path"
//	@Param			body	body		CreateNoteRequest	true	"Initial content"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault/{path} [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req CreateNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	note, err := h.svc.CreateNote(r.Context(), path, []byte(req.Content))
	if err != nil {
		writeError(w, err, "create note", slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// MovePath handles PATCH /api/vault/*.
//
//	@Summary		Rename a note or folder, or move it into another folder
//	@Tags			vault
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string		true	"Note or folder path"
//	@Param			body	body		MoveRequest	true	"New name or target folder"
//	@Success		200		{object}	MoveResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault/{path} [patch]
func (h *Handler) MovePath(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req MoveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if (req.Name == nil) == (req.Folder == nil) {
		writeJSON(w, http.StatusBadRequest, errorBody("exactly one of name and folder is required"))
		return
	}

	var (
		dest string
		err  error
	)
	if req.Name != nil {
		dest, err = h.svc.Rename(r.Context(), path, *req.Name)
	} else {
		dest, err = h.svc.Move(r.Context(), path, *req.Folder)
	}
	if err != nil {
		writeError(w, err, "move", slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, MoveResponse{Path: storage.NotePath(dest)})
}

// DeletePath handles DELETE /api/vault/*.
//
//	@Summary		Delete a note or folder
//	@Tags			vault
//	@Param			path	path	string	true	"Note or folder path"
//	@Success		204		"Deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault/{path} [delete]
func (h *Handler) DeletePath(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.Delete(r.Context(), path); err != nil {
		writeError(w, err, "delete", slog.String("path", path))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
