package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tabula/internal/editor"
	"github.com/starford/tabula/internal/vault"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(ws *editor.Store, svc *vault.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(ws, svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Editor workspace.
	r.Route("/workspace", func(r chi.Router) {
		r.Get("/", h.GetWorkspace)
		r.Post("/open", h.OpenNote)
		r.Put("/active-tab", h.SetActiveTab)
		r.Put("/active-pane", h.SetActivePane)
		r.Put("/panes/{paneID}/order", h.ReorderTabs)
		r.Post("/save-all", h.SaveAll)
		r.Post("/reset", h.Reset)
	})

	// Tabs, addressed by note path.
	r.Get("/tabs/*", h.GetTab)
	r.Put("/tabs/*", h.UpdateTab)
	r.Delete("/tabs/*", h.CloseTab)
	r.Post("/save/*", h.SaveTab)

	// Vault files and folders.
	r.Get("/vault/*", h.GetNote)
	r.Post("/vault/*", h.CreateNote)
	r.Patch("/vault/*", h.MovePath)
	r.Delete("/vault/*", h.DeletePath)

	// Index.
	r.Get("/notes", h.ListNotes)
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
