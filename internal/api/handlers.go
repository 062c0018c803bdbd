package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/draft"
	"github.com/starford/raido/internal/forms"
	"github.com/starford/raido/internal/listing"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/storage"
)

const maxBody = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	list   *listing.Service
	drafts storage.Store
	forms  *forms.Workspace
	puts   keyLocks
}

// NewHandler creates a new Handler.
func NewHandler(list *listing.Service, drafts storage.Store, ws *forms.Workspace) *Handler {
	return &Handler{list: list, drafts: drafts, forms: ws}
}

// ListCollections handles GET /api/collections.
//
//	@Summary		List record collections
//	@Tags			collections
//	@Produce		json
//	@Success		200	{object}	CollectionListResponse
//	@Security		BearerAuth
//	@Router			/collections [get]
func (h *Handler) ListCollections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, CollectionListResponse{Collections: h.list.Collections()})
}

// QueryRecords handles GET /api/collections/{name}/records.
//
//	@Summary		Search, filter, sort and paginate a collection
//	@Tags			collections
//	@Produce		json
//	@Param			name	path		string	true	"Collection name"
//	@Param			q		query		string	false	"Case-insensitive search term"
//	@Param			sort	query		string	false	"Sort field"
//	@Param			dir		query		string	false	"Sort direction"	Enums(asc, desc)
//	@Param			page	query		int		false	"1-based page index"
//	@Param			size	query		int		false	"Page size"
//	@Param			sum		query		string	false	"Comma-separated numeric fields to summarise"
//	@Param			cat		query		string	false	"Comma-separated fields to break down by value"
//	@Success		200		{object}	query.Result
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name}/records [get]
func (h *Handler) QueryRecords(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	res, err := h.list.Query(r.Context(), name, ParseQuery(r.URL.Query()))
	if err != nil {
		writeError(w, "query records", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListDrafts handles GET /api/drafts.
//
//	@Summary		List stored drafts
//	@Tags			drafts
//	@Produce		json
//	@Success		200	{object}	DraftListResponse
//	@Security		BearerAuth
//	@Router			/drafts [get]
func (h *Handler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	list, err := h.drafts.List(r.Context())
	if err != nil {
		writeError(w, "list drafts", err)
		return
	}
	writeJSON(w, http.StatusOK, DraftListResponse{Drafts: list})
}

// GetDraft handles GET /api/drafts/{key}.
//
//	@Summary		Get a stored draft
//	@Tags			drafts
//	@Produce		json
//	@Param			key	path		string	true	"Draft key"
//	@Success		200	{object}	models.Draft
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/drafts/{key} [get]
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.drafts.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, "get draft", err)
		return
	}
	w.Header().Set("ETag", `"`+d.Revision+`"`)
	writeJSON(w, http.StatusOK, d)
}

// PutDraft handles PUT /api/drafts/{key}. The body is the raw form state.
//
//	@Summary		Store a draft, optionally guarded by revision
//	@Tags			drafts
//	@Accept			json
//	@Produce		json
//	@Param			key			path		string	true	"Draft key"
//	@Param			If-Match	header		string	false	"Expected current revision"
//	@Success		200			{object}	models.DraftMetadata
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/drafts/{key} [put]
func (h *Handler) PutDraft(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	if !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	// The revision check and the write must not interleave with another PUT.
	unlock := h.puts.lock(key)
	defer unlock()

	// Strip surrounding quotes if present (standard ETag format).
	if ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`); ifMatch != "" {
		cur, err := h.drafts.Get(r.Context(), key)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusConflict, errorBody("revision mismatch"))
			return
		case err != nil:
			writeError(w, "put draft", err)
			return
		case cur.Revision != ifMatch:
			writeJSON(w, http.StatusConflict, errorBody("revision mismatch"))
			return
		}
	}

	d := models.Draft{
		Key:      key,
		Payload:  body,
		Revision: uuid.NewString(),
		SavedAt:  time.Now().UTC(),
	}
	if err := h.drafts.Set(r.Context(), d); err != nil {
		writeError(w, "put draft", err)
		return
	}
	w.Header().Set("ETag", `"`+d.Revision+`"`)
	writeJSON(w, http.StatusOK, d.Metadata())
}

// DeleteDraft handles DELETE /api/drafts/{key}.
//
//	@Summary		Delete a stored draft
//	@Tags			drafts
//	@Param			key	path	string	true	"Draft key"
//	@Success		204	"Draft deleted"
//	@Security		BearerAuth
//	@Router			/drafts/{key} [delete]
func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.drafts.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		writeError(w, "delete draft", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListForms handles GET /api/forms.
//
//	@Summary		List open form sessions
//	@Tags			forms
//	@Produce		json
//	@Success		200	{object}	FormListResponse
//	@Security		BearerAuth
//	@Router			/forms [get]
func (h *Handler) ListForms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, FormListResponse{Forms: h.forms.List(), Kinds: forms.Kinds()})
}

// OpenForm handles POST /api/forms/{key}.
//
//	@Summary		Open (or rejoin) a form session bound to a draft key
//	@Tags			forms
//	@Accept			json
//	@Produce		json
//	@Param			key		path		string			true	"Draft key"
//	@Param			body	body		OpenFormRequest	true	"Form kind"
//	@Success		200		{object}	forms.View
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/forms/{key} [post]
func (h *Handler) OpenForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var req OpenFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Kind == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("kind is required"))
		return
	}
	s, err := h.forms.Open(r.Context(), req.Kind, chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, "open form", err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// GetForm handles GET /api/forms/{key}.
//
//	@Summary		Get a form session
//	@Tags			forms
//	@Produce		json
//	@Param			key	path		string	true	"Draft key"
//	@Success		200	{object}	forms.View
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/forms/{key} [get]
func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request) {
	s, err := h.forms.Get(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, "get form", err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// DispatchAction handles POST /api/forms/{key}/actions.
//
//	@Summary		Apply an edit to a form session
//	@Tags			forms
//	@Accept			json
//	@Produce		json
//	@Param			key		path		string			true	"Draft key"
//	@Param			body	body		forms.Action	true	"Action"
//	@Success		200		{object}	forms.View
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/forms/{key}/actions [post]
func (h *Handler) DispatchAction(w http.ResponseWriter, r *http.Request) {
	s, err := h.forms.Get(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, "dispatch", err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var a forms.Action
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	v, err := s.Dispatch(a)
	if err != nil {
		writeError(w, "dispatch", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// RestoreForm handles POST /api/forms/{key}/restore.
//
//	@Summary		Load the stored draft into the form
//	@Tags			forms
//	@Produce		json
//	@Param			key	path		string	true	"Draft key"
//	@Success		200	{object}	RestoreResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/forms/{key}/restore [post]
func (h *Handler) RestoreForm(w http.ResponseWriter, r *http.Request) {
	s, err := h.forms.Get(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, "restore", err)
		return
	}
	v, ok := s.Restore(r.Context())
	writeJSON(w, http.StatusOK, RestoreResponse{Restored: ok, Form: v})
}

// DiscardForm handles POST /api/forms/{key}/discard.
//
//	@Summary		Delete the stored draft and reset the form
//	@Tags			forms
//	@Produce		json
//	@Param			key	path		string	true	"Draft key"
//	@Success		200	{object}	forms.View
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/forms/{key}/discard [post]
func (h *Handler) DiscardForm(w http.ResponseWriter, r *http.Request) {
	s, err := h.forms.Get(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, "discard", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Discard(r.Context()))
}

// SubmitForm handles POST /api/forms/{key}/submit.
//
//	@Summary		Validate and submit the form, clearing its draft
//	@Tags			forms
//	@Produce		json
//	@Param			key	path		string	true	"Draft key"
//	@Success		200	{object}	forms.View
//	@Failure		404	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/forms/{key}/submit [post]
func (h *Handler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	s, err := h.forms.Get(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, "submit", err)
		return
	}
	v, err := s.Submit(r.Context())
	if err != nil {
		writeError(w, "submit", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// LeaveForm handles DELETE /api/forms/{key}. With unsaved changes the
// session only closes when confirm=true.
//
//	@Summary		Close a form session, guarded against unsaved changes
//	@Tags			forms
//	@Param			key		path	string	true	"Draft key"
//	@Param			confirm	query	bool	false	"Leave even with unsaved changes"
//	@Success		204		"Session closed"
//	@Failure		409		{object}	LeaveBlockedResponse
//	@Security		BearerAuth
//	@Router			/forms/{key} [delete]
func (h *Handler) LeaveForm(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	confirm := r.URL.Query().Get("confirm") == "true"
	left, err := h.forms.Leave(key, draft.StaticPrompt(confirm))
	if err != nil {
		writeError(w, "leave", err)
		return
	}
	if !left {
		slog.Debug("leave blocked", slog.String("key", key))
		writeJSON(w, http.StatusConflict, LeaveBlockedResponse{Error: "unsaved changes", Message: draft.UnsavedMessage})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
