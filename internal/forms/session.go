package forms

import (
	"context"
	"fmt"
	"sync"

	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/draft"
	"github.com/starford/raido/internal/models"
)

// View is the serialisable snapshot of a session.
type View struct {
	Key   string       `json:"key"`
	Kind  string       `json:"kind"`
	State any          `json:"state"`
	Dirty bool         `json:"dirty"`
	Draft draft.Status `json:"draft"`
}

// Session is one open form bound to a draft key.
type Session interface {
	Key() string
	Kind() string
	View() View
	// Dirty reports whether the state differs from a blank form.
	Dirty() bool
	Dispatch(a Action) (View, error)
	// Restore loads the stored draft into the form. It reports whether one existed.
	Restore(ctx context.Context) (View, bool)
	// Discard deletes the draft and resets the form.
	Discard(ctx context.Context) View
	// Submit validates the form, hands it to the submit hook and clears the draft.
	Submit(ctx context.Context) (View, error)
	// Leave asks the unsaved-changes guard whether the session may close.
	Leave(p draft.Prompter) bool
	Close()
}

type session[S Form[S]] struct {
	key     string
	kind    string
	initial S
	blank   string
	ws      *Workspace
	mgr     *draft.Manager[S]
	shell   *draft.Shell
	release func()

	mu       sync.Mutex
	state    S
	prompter draft.Prompter
}

func newSession[S Form[S]](ctx context.Context, ws *Workspace, kind, key string, initial S) *session[S] {
	s := &session[S]{
		key:     key,
		kind:    kind,
		initial: initial,
		ws:      ws,
		state:   initial,
		shell:   draft.NewShell(),
	}
	_, s.blank, _ = checksum.JSON(initial)

	opts := append([]draft.Option{
		draft.WithObserver(func(d models.Draft, err error) { ws.written(kind, d, err) }),
	}, ws.draftOpts...)
	s.mgr = draft.NewManager(ctx, ws.store, key, ws.debounce, initial, opts...)

	s.release = draft.GuardUnsaved(s.shell, s.Dirty, draft.PromptFunc(s.confirm))
	return s
}

func (s *session[S]) Key() string  { return s.key }
func (s *session[S]) Kind() string { return s.kind }

func (s *session[S]) View() View {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	return s.view(state)
}

func (s *session[S]) view(state S) View {
	_, sum, _ := checksum.JSON(state)
	return View{
		Key:   s.key,
		Kind:  s.kind,
		State: state,
		Dirty: sum != s.blank,
		Draft: s.mgr.Status(),
	}
}

func (s *session[S]) Dirty() bool {
	return s.View().Dirty
}

func (s *session[S]) Dispatch(a Action) (View, error) {
	s.mu.Lock()
	next, err := s.state.Apply(a)
	if err != nil {
		s.mu.Unlock()
		return View{}, err
	}
	s.state = next
	s.mgr.Watch(next)
	s.mu.Unlock()
	return s.view(next), nil
}

func (s *session[S]) Restore(ctx context.Context) (View, bool) {
	restored, ok := s.mgr.Restore(ctx)
	if !ok {
		return s.View(), false
	}
	s.mu.Lock()
	s.state = restored
	s.mu.Unlock()
	s.ws.metrics.DraftOp("restore")
	s.ws.emit(Event{Type: EventRestored, Key: s.key, Kind: s.kind})
	return s.view(restored), true
}

func (s *session[S]) Discard(ctx context.Context) View {
	s.reset(ctx)
	s.ws.metrics.DraftOp("discard")
	s.ws.emit(Event{Type: EventDiscarded, Key: s.key, Kind: s.kind})
	return s.View()
}

func (s *session[S]) Submit(ctx context.Context) (View, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if err := state.Validate(); err != nil {
		return s.view(state), fmt.Errorf("%w: %w", ErrInvalidForm, err)
	}
	if err := s.ws.submit(ctx, s.kind, s.key, state); err != nil {
		return s.view(state), fmt.Errorf("forms: submit %s: %w", s.key, err)
	}
	s.reset(ctx)
	s.ws.metrics.DraftOp("submit")
	s.ws.emit(Event{Type: EventSubmitted, Key: s.key, Kind: s.kind})
	return s.View(), nil
}

// reset clears the draft and returns the form to its blank state without
// scheduling a write for it.
func (s *session[S]) reset(ctx context.Context) {
	s.mgr.Clear(ctx)
	s.mu.Lock()
	s.state = s.initial
	s.mu.Unlock()
	s.mgr.Rebase(s.initial)
}

func (s *session[S]) confirm(msg string) bool {
	s.mu.Lock()
	p := s.prompter
	s.mu.Unlock()
	if p == nil {
		return false
	}
	return p.Confirm(msg)
}

func (s *session[S]) Leave(p draft.Prompter) bool {
	s.mu.Lock()
	s.prompter = p
	s.mu.Unlock()

	ok := s.shell.Leave()

	s.mu.Lock()
	s.prompter = nil
	s.mu.Unlock()
	return ok
}

func (s *session[S]) Close() {
	s.release()
	s.mgr.Close()
}
