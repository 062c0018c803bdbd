package forms

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/draft"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/storage"
	"github.com/starford/raido/internal/testutil"
)

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) add(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	ws     *Workspace
	store  *storage.Memory
	clock  *testutil.Clock
	events *eventSink
	submit []any
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  storage.NewMemory(0),
		clock:  testutil.NewClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
		events: &eventSink{},
	}
	f.ws = NewWorkspace(f.store, 3*time.Second,
		WithDraftOptions(draft.WithClock(f.clock)),
		WithEvents(f.events.add),
		WithSubmit(func(_ context.Context, _, _ string, state any) error {
			f.submit = append(f.submit, state)
			return nil
		}),
	)
	t.Cleanup(f.ws.Close)
	return f
}

func (f *fixture) open(t *testing.T, kind, key string) Session {
	t.Helper()
	s, err := f.ws.Open(context.Background(), kind, key)
	require.NoError(t, err)
	return s
}

func dispatch(t *testing.T, s Session, actions ...Action) View {
	t.Helper()
	var v View
	for _, a := range actions {
		var err error
		v, err = s.Dispatch(a)
		require.NoError(t, err)
	}
	return v
}

func TestWorkspaceAutosavesAfterQuietPeriod(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, KindPurchaseOrder, "po-creation-form")

	dispatch(t, s, set("vendor", "B"))
	f.clock.Advance(200 * time.Millisecond)
	dispatch(t, s, set("vendor", "Bl"))
	f.clock.Advance(200 * time.Millisecond)
	v := dispatch(t, s, set("vendor", "Blum"))
	assert.True(t, v.Dirty)
	assert.True(t, v.Draft.Pending)

	f.clock.Advance(2999 * time.Millisecond)
	_, err := f.store.Get(context.Background(), "po-creation-form")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	f.clock.Advance(time.Millisecond)
	d, err := f.store.Get(context.Background(), "po-creation-form")
	require.NoError(t, err)
	assert.Contains(t, string(d.Payload), `"vendor":"Blum"`)
	assert.Equal(t, []string{EventSaved}, f.events.types())
	assert.NotNil(t, s.View().Draft.LastSaved)
}

func TestWorkspaceOpenIsPerKey(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, KindSupportTicket, "ticket-1")
	b := f.open(t, KindSupportTicket, "ticket-1")
	assert.Same(t, a, b)

	_, err := f.ws.Open(context.Background(), KindPurchaseOrder, "ticket-1")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.ws.Open(context.Background(), "invoice", "inv-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.ws.Open(context.Background(), KindSupportTicket, "../bad")
	assert.ErrorIs(t, err, apperr.ErrInvalidKey)
}

func TestWorkspaceLeaveIsGuarded(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, KindPurchaseOrder, "po-1")

	ok, err := f.ws.Leave("po-1", draft.StaticPrompt(false))
	require.NoError(t, err)
	assert.True(t, ok, "a blank form leaves without confirmation")

	s = f.open(t, KindPurchaseOrder, "po-1")
	dispatch(t, s, set("vendor", "Blum"))
	ok, err = f.ws.Leave("po-1", draft.StaticPrompt(false))
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.ws.Get("po-1")
	assert.NoError(t, err, "session stays open when leaving is declined")

	f.clock.Advance(3 * time.Second)
	ok, err = f.ws.Leave("po-1", draft.StaticPrompt(true))
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = f.ws.Get("po-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.ws.Leave("po-1", draft.StaticPrompt(true))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestWorkspaceRestoreAfterReopen(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, KindPurchaseOrder, "po-creation-form")
	dispatch(t, s, set("vendor", "Blum"), set("department", "Facilities"))
	f.clock.Advance(3 * time.Second)
	_, err := f.ws.Leave("po-creation-form", draft.StaticPrompt(true))
	require.NoError(t, err)

	s = f.open(t, KindPurchaseOrder, "po-creation-form")
	v := s.View()
	assert.True(t, v.Draft.HasDraft)
	assert.False(t, v.Dirty)

	v, ok := s.Restore(context.Background())
	require.True(t, ok)
	po := v.State.(PurchaseOrder)
	assert.Equal(t, "Blum", po.Vendor)
	assert.Equal(t, "Facilities", po.Department)
	assert.True(t, v.Dirty)
	assert.Contains(t, f.events.types(), EventRestored)
}

func TestWorkspaceDiscard(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, KindSupportTicket, "ticket-1")
	dispatch(t, s, set("subject", "Broken hinge"))
	f.clock.Advance(3 * time.Second)

	v := s.Discard(context.Background())
	assert.False(t, v.Dirty)
	assert.False(t, v.Draft.HasDraft)
	_, err := f.store.Get(context.Background(), "ticket-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	f.clock.Advance(10 * time.Second)
	_, err = f.store.Get(context.Background(), "ticket-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound, "the blank form is not autosaved")
}

func TestWorkspaceSubmit(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, KindSupportTicket, "ticket-1")
	dispatch(t, s, set("subject", "Hinge"))

	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidForm)
	assert.Empty(t, f.submit)

	dispatch(t, s,
		set("subject", "Hinge arrived bent"),
		set("customer", "Northside Kitchens"),
		set("category", "damaged goods"),
		set("description", "Two of forty hinges in order 1182 are bent."),
	)
	f.clock.Advance(3 * time.Second)

	v, err := s.Submit(context.Background())
	require.NoError(t, err)
	require.Len(t, f.submit, 1)
	assert.Equal(t, "Northside Kitchens", f.submit[0].(SupportTicket).Customer)
	assert.False(t, v.Dirty)
	_, err = f.store.Get(context.Background(), "ticket-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	ok, err := f.ws.Leave("ticket-1", draft.StaticPrompt(false))
	require.NoError(t, err)
	assert.True(t, ok, "nothing unsaved after submit")
}

func TestWorkspaceList(t *testing.T) {
	f := newFixture(t)
	f.open(t, KindSupportTicket, "b")
	f.open(t, KindPurchaseOrder, "a")

	views := f.ws.List()
	require.Len(t, views, 2)
	assert.Equal(t, "a", views[0].Key)
	assert.Equal(t, KindPurchaseOrder, views[0].Kind)
	assert.Equal(t, []string{KindPurchaseOrder, KindSupportTicket}, Kinds())
}

// slowStore holds every Get until release is closed.
type slowStore struct {
	*storage.Memory
	entered chan struct{}
	release chan struct{}
}

func (s *slowStore) Get(ctx context.Context, key string) (*models.Draft, error) {
	s.entered <- struct{}{}
	<-s.release
	return s.Memory.Get(ctx, key)
}

func TestWorkspaceOpenDoesNotBlockOtherSessions(t *testing.T) {
	store := &slowStore{Memory: storage.NewMemory(0), entered: make(chan struct{}, 2), release: make(chan struct{})}
	ws := NewWorkspace(store, 3*time.Second,
		WithDraftOptions(draft.WithClock(testutil.NewClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)))))
	t.Cleanup(ws.Close)

	opened := make(chan Session, 2)
	open := func() {
		s, err := ws.Open(context.Background(), KindSupportTicket, "ticket-1")
		assert.NoError(t, err)
		opened <- s
	}
	go open()
	go open()
	<-store.entered
	<-store.entered

	// Both mounts are stuck on the store; the workspace still answers.
	listed := make(chan []View, 1)
	go func() { listed <- ws.List() }()
	select {
	case views := <-listed:
		assert.Empty(t, views)
	case <-time.After(time.Second):
		t.Fatal("List blocked behind a slow store lookup")
	}
	_, err := ws.Get("ticket-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	close(store.release)
	a, b := <-opened, <-opened
	assert.Same(t, a, b)
	assert.Len(t, ws.List(), 1)
}
