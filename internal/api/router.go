package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/forms"
	"github.com/starford/raido/internal/listing"
	"github.com/starford/raido/internal/storage"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(list *listing.Service, drafts storage.Store, ws *forms.Workspace, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(list, drafts, ws)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Collections.
	r.Get("/collections", h.ListCollections)
	r.Get("/collections/{name}/records", h.QueryRecords)

	// Raw drafts.
	r.Get("/drafts", h.ListDrafts)
	r.Get("/drafts/{key}", h.GetDraft)
	r.Put("/drafts/{key}", h.PutDraft)
	r.Delete("/drafts/{key}", h.DeleteDraft)

	// Form sessions.
	r.Get("/forms", h.ListForms)
	r.Route("/forms/{key}", func(r chi.Router) {
		r.Post("/", h.OpenForm)
		r.Get("/", h.GetForm)
		r.Delete("/", h.LeaveForm)
		r.Post("/actions", h.DispatchAction)
		r.Post("/restore", h.RestoreForm)
		r.Post("/discard", h.DiscardForm)
		r.Post("/submit", h.SubmitForm)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
