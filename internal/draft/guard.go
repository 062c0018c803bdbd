package draft

import "sync"

// UnsavedMessage is the confirmation text shown when leaving with unsaved changes.
const UnsavedMessage = "You have unsaved changes. Are you sure you want to leave?"

// LeaveHandler is consulted before navigating away. Returning false blocks.
type LeaveHandler func() bool

// Navigator intercepts attempts to leave the current page.
type Navigator interface {
	RegisterBeforeLeave(h LeaveHandler) (unregister func())
}

// Prompter asks the user to confirm leaving.
type Prompter interface {
	Confirm(message string) bool
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(message string) bool

func (f PromptFunc) Confirm(message string) bool { return f(message) }

// StaticPrompt answers every confirmation with answer.
func StaticPrompt(answer bool) Prompter {
	return PromptFunc(func(string) bool { return answer })
}

// GuardUnsaved registers a leave handler on nav that asks p for confirmation
// whenever unsaved reports true, and lets navigation through otherwise.
// The returned release unregisters the handler and may be called repeatedly.
func GuardUnsaved(nav Navigator, unsaved func() bool, p Prompter) (release func()) {
	unregister := nav.RegisterBeforeLeave(func() bool {
		if !unsaved() {
			return true
		}
		return p.Confirm(UnsavedMessage)
	})
	var once sync.Once
	return func() { once.Do(unregister) }
}

// Shell is an in-process Navigator. Leave consults registered handlers,
// newest first, and succeeds only if all of them allow it.
type Shell struct {
	mu       sync.Mutex
	nextID   int
	handlers []shellHandler
}

type shellHandler struct {
	id int
	fn LeaveHandler
}

// NewShell returns an empty Shell.
func NewShell() *Shell { return &Shell{} }

func (s *Shell) RegisterBeforeLeave(h LeaveHandler) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.handlers = append(s.handlers, shellHandler{id: id, fn: h})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sh := range s.handlers {
			if sh.id == id {
				s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
				return
			}
		}
	}
}

// Leave reports whether navigation away may proceed.
func (s *Shell) Leave() bool {
	s.mu.Lock()
	hs := make([]LeaveHandler, len(s.handlers))
	for i, sh := range s.handlers {
		hs[len(hs)-1-i] = sh.fn
	}
	s.mu.Unlock()

	for _, h := range hs {
		if !h() {
			return false
		}
	}
	return true
}

// Len returns the number of registered handlers.
func (s *Shell) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}
