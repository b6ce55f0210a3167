package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tabula/internal/checksum"
	"github.com/starford/tabula/internal/layout"
	"github.com/starford/tabula/internal/storage"
)

func (h *Handler) workspace() WorkspaceResponse {
	resp := WorkspaceResponse{
		Layout: h.ws.Layout(),
		Tabs:   h.ws.Tabs(),
	}
	if t, ok := h.ws.ActiveTab(); ok {
		resp.ActiveTabID = t.ID
	}
	if err := h.ws.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	return resp
}

// GetWorkspace handles GET /api/workspace.
//
//	@Summary		Current layout and tabs
//	@Tags			workspace
//	@Produce		json
//	@Success		200	{object}	WorkspaceResponse
//	@Security		BearerAuth
//	@Router			/workspace [get]
func (h *Handler) GetWorkspace(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.workspace())
}

// OpenNote handles POST /api/workspace/open. The tab stays open when the
// read fails; the error status is returned together with the workspace.
//
//	@Summary		Open a note in a tab
//	@Tags			workspace
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OpenNoteRequest	true	"Note and placement"
//	@Success		200		{object}	OpenNoteResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/workspace/open [post]
func (h *Handler) OpenNote(w http.ResponseWriter, r *http.Request) {
	var req OpenNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	d, err := layout.ParseDisposition(req.Disposition)
	if err != nil {
		writeError(w, err, "open")
		return
	}
	id, err := h.ws.OpenNote(r.Context(), storage.NotePath(req.Path), d)
	tab, ok := h.ws.Tab(id)
	if !ok {
		if err == nil {
			// Closed again while the read was outstanding.
			writeJSON(w, http.StatusConflict, errorBody("tab was closed"))
			return
		}
		writeError(w, err, "open", slog.String("path", req.Path))
		return
	}
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		slog.Warn("open: read failed", slog.String("path", req.Path), slog.String("error", err.Error()))
	}
	writeJSON(w, status, OpenNoteResponse{Tab: tab, Workspace: h.workspace()})
}

// SetActiveTab handles PUT /api/workspace/active-tab.
//
//	@Summary		Focus a tab
//	@Tags			workspace
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ActiveTabRequest	true	"Tab id"
//	@Success		200		{object}	WorkspaceResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/workspace/active-tab [put]
func (h *Handler) SetActiveTab(w http.ResponseWriter, r *http.Request) {
	var req ActiveTabRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.ws.SetActiveTab(req.TabID); err != nil {
		writeError(w, err, "set active tab")
		return
	}
	writeJSON(w, http.StatusOK, h.workspace())
}

// SetActivePane handles PUT /api/workspace/active-pane.
//
//	@Summary		Focus a pane
//	@Tags			workspace
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ActivePaneRequest	true	"Pane id"
//	@Success		200		{object}	WorkspaceResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/workspace/active-pane [put]
func (h *Handler) SetActivePane(w http.ResponseWriter, r *http.Request) {
	var req ActivePaneRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.ws.SetActivePane(req.PaneID); err != nil {
		writeError(w, err, "set active pane")
		return
	}
	writeJSON(w, http.StatusOK, h.workspace())
}

// ReorderTabs handles PUT /api/workspace/panes/{paneID}/order.
//
//	@Summary		Reorder the tabs of a pane
//	@Tags			workspace
//	@Accept			json
//	@Produce		json
//	@Param			paneID	path		string			true	"Pane id"
//	@Param			body	body		ReorderRequest	true	"New order"
//	@Success		200		{object}	WorkspaceResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/workspace/panes/{paneID}/order [put]
func (h *Handler) ReorderTabs(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	paneID := layout.PaneID(chi.URLParam(r, "paneID"))
	if err := h.ws.ReorderTabs(paneID, req.Tabs); err != nil {
		writeError(w, err, "reorder tabs")
		return
	}
	writeJSON(w, http.StatusOK, h.workspace())
}

// SaveAll handles POST /api/workspace/save-all.
//
//	@Summary		Save every dirty tab
//	@Tags			workspace
//	@Produce		json
//	@Success		200	{object}	WorkspaceResponse
//	@Security		BearerAuth
//	@Router			/workspace/save-all [post]
func (h *Handler) SaveAll(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.SaveAll(r.Context()); err != nil {
		writeError(w, err, "save all")
		return
	}
	writeJSON(w, http.StatusOK, h.workspace())
}

// Reset handles POST /api/workspace/reset.
//
//	@Summary		Close every tab without saving
//	@Tags			workspace
//	@Produce		json
//	@Success		200	{object}	WorkspaceResponse
//	@Security		BearerAuth
//	@Router			/workspace/reset [post]
func (h *Handler) Reset(w http.ResponseWriter, _ *http.Request) {
	h.ws.Reset(nil)
	writeJSON(w, http.StatusOK, h.workspace())
}

// GetTab handles GET /api/tabs/*.
//
//	@Summary		Read a tab, including unsaved content
//	@Tags			tabs
//	@Produce		json
//	@Param			path	path		string	true	"Note path of the tab"
//	@Success		200		{object}	editor.TabView
//	@Success		304		"Content unchanged (If-None-Match)"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tabs/{path} [get]
func (h *Handler) GetTab(w http.ResponseWriter, r *http.Request) {
	id := layout.IDForPath(notePath(r))
	tab, ok := h.ws.Tab(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("unknown tab"))
		return
	}
	// The tag covers content only; dirty and loading flags can change
	// without invalidating it.
	etag := checksum.ETag(tab.Content)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, tab)
}

// UpdateTab handles PUT /api/tabs/*.
//
//	@Summary		Replace a tab's content; marks it dirty
//	@Tags			tabs
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Note path of the tab"
//	@Param			body	body		UpdateTabRequest	true	"New content"
//	@Success		200		{object}	editor.TabView
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tabs/{path} [put]
func (h *Handler) UpdateTab(w http.ResponseWriter, r *http.Request) {
	id := layout.IDForPath(notePath(r))
	var req UpdateTabRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.ws.UpdateContent(id, req.Content); err != nil {
		writeError(w, err, "update tab")
		return
	}
	tab, _ := h.ws.Tab(id)
	writeJSON(w, http.StatusOK, tab)
}

// CloseTab handles DELETE /api/tabs/*. Unsaved content is discarded.
//
//	@Summary		Close a tab
//	@Tags			tabs
//	@Param			path	path	string	true	"Note path of the tab"
//	@Success		200		{object}	WorkspaceResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tabs/{path} [delete]
func (h *Handler) CloseTab(w http.ResponseWriter, r *http.Request) {
	id := layout.IDForPath(notePath(r))
	if err := h.ws.CloseTab(id); err != nil {
		writeError(w, err, "close tab")
		return
	}
	writeJSON(w, http.StatusOK, h.workspace())
}

// SaveTab handles POST /api/save/*.
//
//	@Summary		Write a tab's content to its note
//	@Tags			tabs
//	@Produce		json
//	@Param			path	path		string	true	"Note path of the tab"
//	@Success		200		{object}	editor.TabView
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/save/{path} [post]
func (h *Handler) SaveTab(w http.ResponseWriter, r *http.Request) {
	id := layout.IDForPath(notePath(r))
	if err := h.ws.Save(r.Context(), id); err != nil {
		writeError(w, err, "save tab", slog.String("tab", string(id)))
		return
	}
	tab, _ := h.ws.Tab(id)
	writeJSON(w, http.StatusOK, tab)
}
