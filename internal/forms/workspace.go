package forms

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/draft"
	"github.com/starford/raido/internal/metrics"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/storage"
)

// Form kinds.
const (
	KindPurchaseOrder = "purchase_order"
	KindSupportTicket = "support_ticket"
)

var kinds = map[string]func(ctx context.Context, ws *Workspace, key string) Session{
	KindPurchaseOrder: func(ctx context.Context, ws *Workspace, key string) Session {
		return newSession(ctx, ws, KindPurchaseOrder, key, NewPurchaseOrder())
	},
	KindSupportTicket: func(ctx context.Context, ws *Workspace, key string) Session {
		return newSession(ctx, ws, KindSupportTicket, key, NewSupportTicket())
	},
}

// Kinds returns the supported form kinds.
func Kinds() []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Event types emitted by a Workspace.
const (
	EventSaved      = "draft.saved"
	EventSaveFailed = "draft.save_failed"
	EventRestored   = "draft.restored"
	EventDiscarded  = "draft.discarded"
	EventSubmitted  = "form.submitted"
	EventClosed     = "form.closed"
)

// Event reports a change to a form session or its draft.
type Event struct {
	Type     string    `json:"type"`
	Key      string    `json:"key"`
	Kind     string    `json:"kind,omitempty"`
	Revision string    `json:"revision,omitempty"`
	SavedAt  time.Time `json:"saved_at,omitzero"`
	Error    string    `json:"error,omitempty"`
}

// SubmitFunc receives a validated form state on submit.
type SubmitFunc func(ctx context.Context, kind, key string, state any) error

// WorkspaceOption configures a Workspace.
type WorkspaceOption func(*Workspace)

// WithDraftOptions passes options to every draft.Manager the workspace creates.
func WithDraftOptions(opts ...draft.Option) WorkspaceOption {
	return func(w *Workspace) { w.draftOpts = append(w.draftOpts, opts...) }
}

// WithEvents registers a listener for session events.
func WithEvents(fn func(Event)) WorkspaceOption {
	return func(w *Workspace) { w.listener = fn }
}

// WithSubmit sets the hook that receives submitted forms.
func WithSubmit(fn SubmitFunc) WorkspaceOption {
	return func(w *Workspace) { w.onSubmit = fn }
}

// WithWorkspaceMetrics records draft operations and the open session count.
func WithWorkspaceMetrics(m *metrics.Metrics) WorkspaceOption {
	return func(w *Workspace) { w.metrics = m }
}

// WithWorkspaceLogger sets the workspace logger.
func WithWorkspaceLogger(l *slog.Logger) WorkspaceOption {
	return func(w *Workspace) { w.logger = l }
}

// Workspace holds the open form sessions, at most one per draft key.
type Workspace struct {
	store     draft.Store
	debounce  time.Duration
	draftOpts []draft.Option
	listener  func(Event)
	onSubmit  SubmitFunc
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]Session
}

// NewWorkspace creates a workspace whose sessions autosave to store after
// debounce of inactivity.
func NewWorkspace(store draft.Store, debounce time.Duration, opts ...WorkspaceOption) *Workspace {
	w := &Workspace{
		store:    store,
		debounce: debounce,
		logger:   slog.Default(),
		sessions: make(map[string]Session),
	}
	for _, o := range opts {
		o(w)
	}
	if w.onSubmit == nil {
		w.onSubmit = func(_ context.Context, kind, key string, _ any) error {
			w.logger.Info("forms: submitted", slog.String("kind", kind), slog.String("key", key))
			return nil
		}
	}
	return w
}

// Open returns the session for key, creating a blank one of kind if none is
// open. Reopening a key with a different kind is a conflict.
func (w *Workspace) Open(ctx context.Context, kind, key string) (Session, error) {
	mk, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("forms: unknown kind %q: %w", kind, apperr.ErrNotFound)
	}
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}

	if s, ok, err := w.existing(kind, key); ok || err != nil {
		return s, err
	}

	// Mounting reads the store, so it happens outside the lock.
	s := mk(ctx, w, key)

	w.mu.Lock()
	if other, ok := w.sessions[key]; ok {
		w.mu.Unlock()
		s.Close()
		if other.Kind() != kind {
			return nil, conflict(key, other.Kind())
		}
		return other, nil
	}
	w.sessions[key] = s
	n := len(w.sessions)
	w.mu.Unlock()

	w.metrics.SetFormSessions(n)
	return s, nil
}

func (w *Workspace) existing(kind, key string) (Session, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[key]
	if !ok {
		return nil, false, nil
	}
	if s.Kind() != kind {
		return nil, true, conflict(key, s.Kind())
	}
	return s, true, nil
}

func conflict(key, openAs string) error {
	return fmt.Errorf("forms: %s is open as %s: %w", key, openAs, apperr.ErrConflict)
}

// Get returns the open session for key.
func (w *Workspace) Get(key string) (Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[key]
	if !ok {
		return nil, fmt.Errorf("forms: session %s: %w", key, apperr.ErrNotFound)
	}
	return s, nil
}

// List returns views of every open session ordered by key.
func (w *Workspace) List() []View {
	w.mu.Lock()
	sessions := make([]Session, 0, len(w.sessions))
	for _, s := range w.sessions {
		sessions = append(sessions, s)
	}
	w.mu.Unlock()

	out := make([]View, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.View())
	}
	slices.SortFunc(out, func(a, b View) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

// Leave closes the session for key if its guard allows it. The draft is kept.
func (w *Workspace) Leave(key string, p draft.Prompter) (bool, error) {
	s, err := w.Get(key)
	if err != nil {
		return false, err
	}
	if !s.Leave(p) {
		return false, nil
	}

	w.mu.Lock()
	if w.sessions[key] == s {
		delete(w.sessions, key)
	}
	n := len(w.sessions)
	w.mu.Unlock()

	s.Close()
	w.metrics.SetFormSessions(n)
	w.emit(Event{Type: EventClosed, Key: key, Kind: s.Kind()})
	return true, nil
}

// Close closes every session, waiting for in-flight draft writes.
func (w *Workspace) Close() {
	w.mu.Lock()
	sessions := w.sessions
	w.sessions = make(map[string]Session)
	w.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	w.metrics.SetFormSessions(0)
}

func (w *Workspace) written(kind string, d models.Draft, err error) {
	w.metrics.DraftWrite(err)
	ev := Event{Type: EventSaved, Key: d.Key, Kind: kind, Revision: d.Revision, SavedAt: d.SavedAt}
	if err != nil {
		ev = Event{Type: EventSaveFailed, Key: d.Key, Kind: kind, Error: err.Error()}
	}
	w.emit(ev)
}

func (w *Workspace) submit(ctx context.Context, kind, key string, state any) error {
	return w.onSubmit(ctx, kind, key, state)
}

func (w *Workspace) emit(ev Event) {
	if w.listener != nil {
		w.listener(ev)
	}
}
