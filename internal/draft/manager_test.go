package draft_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/raido/internal/draft"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/storage"
	"github.com/starford/raido/internal/testutil"
)

type poForm struct {
	Vendor string `json:"vendor"`
	Qty    int    `json:"qty"`
}

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// recordingStore wraps Memory, records successful writes and can be told
// to fail the next n writes.
type recordingStore struct {
	*storage.Memory
	mu       sync.Mutex
	failures int
	attempts int
	writes   []models.Draft
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Memory: storage.NewMemory(0)}
}

func (r *recordingStore) Set(ctx context.Context, d models.Draft) error {
	r.mu.Lock()
	r.attempts++
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return errors.New("disk full")
	}
	r.writes = append(r.writes, d)
	r.mu.Unlock()
	return r.Memory.Set(ctx, d)
}

func (r *recordingStore) failNext(n int) {
	r.mu.Lock()
	r.failures = n
	r.mu.Unlock()
}

func (r *recordingStore) Writes() []models.Draft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Draft(nil), r.writes...)
}

func decode(t *testing.T, d models.Draft) poForm {
	t.Helper()
	var f poForm
	require.NoError(t, json.Unmarshal(d.Payload, &f))
	return f
}

func newManager(t *testing.T, store draft.Store, clock *testutil.Clock, opts ...draft.Option) *draft.Manager[poForm] {
	t.Helper()
	opts = append([]draft.Option{draft.WithClock(clock)}, opts...)
	m := draft.NewManager(context.Background(), store, "po-creation-form", 3*time.Second, poForm{}, opts...)
	t.Cleanup(m.Close)
	return m
}

func TestRapidChangesCoalesceIntoOneWrite(t *testing.T) {
	store := newRecordingStore()
	clock := testutil.NewClock(t0)
	m := newManager(t, store, clock)

	m.Watch(poForm{Vendor: "A"})
	clock.Advance(200 * time.Millisecond)
	m.Watch(poForm{Vendor: "Ac"})
	clock.Advance(250 * time.Millisecond)
	m.Watch(poForm{Vendor: "Acme"})

	clock.Advance(2999 * time.Millisecond)
	assert.Empty(t, store.Writes(), "no write before the quiet period elapses")
	assert.False(t, m.IsSaving())

	clock.Advance(time.Millisecond)
	writes := store.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "Acme", decode(t, writes[0]).Vendor)
	assert.Equal(t, t0.Add(450*time.Millisecond+3*time.Second), writes[0].SavedAt)
	assert.NotEmpty(t, writes[0].Revision)

	last, ok := m.LastSaved()
	assert.True(t, ok)
	assert.Equal(t, t0.Add(3450*time.Millisecond), last)
	assert.False(t, m.IsSaving())
}

func TestUnchangedStateIsNotWritten(t *testing.T) {
	store := newRecordingStore()
	clock := testutil.NewClock(t0)
	m := newManager(t, store, clock)

	m.Watch(poForm{})
	clock.Advance(10 * time.Second)
	assert.Empty(t, store.Writes(), "initial state is not a change")

	m.Watch(poForm{Vendor: "Acme"})
	clock.Advance(3 * time.Second)
	m.Watch(poForm{Vendor: "Acme"})
	clock.Advance(3 * time.Second)
	assert.Len(t, store.Writes(), 1)
}

func TestEachQuietPeriodWrites(t *testing.T) {
	store := newRecordingStore()
	clock := testutil.NewClock(t0)
	m := newManager(t, store, clock)

	m.Watch(poForm{Vendor: "A"})
	clock.Advance(3 * time.Second)
	m.Watch(poForm{Vendor: "B"})
	clock.Advance(3 * time.Second)

	writes := store.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "B", decode(t, writes[1]).Vendor)
	assert.NotEqual(t, writes[0].Revision, writes[1].Revision)
}

func TestHasDraftReflectsMountTime(t *testing.T) {
	store := newRecordingStore()
	clock := testutil.NewClock(t0)

	m := newManager(t, store, clock)
	assert.False(t, m.HasDraft())

	m.Watch(poForm{Vendor: "Acme"})
	clock.Advance(3 * time.Second)
	assert.False(t, m.HasDraft(), "hasDraft is not recomputed by saving")

	again := newManager(t, store, clock)
	assert.True(t, again.HasDraft())
}

func TestRestoreRoundTrip(t *testing.T) {
	store := newRecordingStore()
	clock := testutil.NewClock(t0)
	m := newManager(t, store, clock)

	_, ok := m.Restore(context.Background())
	assert.False(t, ok)

	want := poForm{Vendor: "Acme", Qty: 12}
	m.Watch(want)
	clock.Advance(3 * time.Second)

	remount := newManager(t, store, clock)
	got, ok := remount.Restore(context.Background())
	require.True(t, ok)
	assert.Equal(t, want, got)

	// Restoring does not delete, and echoing the restored state is not a change.
	remount.Watch(got)
	clock.Advance(3 * time.Second)
	assert.Len(t, store.Writes(), 1)
	_, ok = remount.Restore(context.Background())
	assert.True(t, ok)
}

func TestRestoreUndecodablePayload(t *testing.T) {
	store := newRecordingStore()
	require.NoError(t, store.Memory.Set(context.Background(), models.Draft{
		Key: "po-creation-form", Payload: json.RawMessage(`"not an object"`),
	}))
	m := newManager(t, store, testutil.NewClock(t0))

	got, ok := m.Restore(context.Background())
	assert.False(t, ok)
	assert.Equal(t, poForm{}, got)
}

func TestClearDeletesAndCancelsPending(t *testing.T) {
	store := newRecordingStore()
	clock := testutil.NewClock(t0)
	require.NoError(t, store.Memory.Set(context.Background(), models.Draft{
		Key: "po-creation-form", Payload: json.RawMessage(`{"vendor":"Old"}`),
	}))
	m := newManager(t, store, clock)
	require.True(t, m.HasDraft())

	m.Watch(poForm{Vendor: "New"})
	m.Clear(context.Background())
	clock.Advance(5 * time.Second)

	assert.Empty(t, store.Writes())
	assert.False(t, m.HasDraft())
	_, ok := m.Restore(context.Background())
	assert.False(t, ok)

	m.Clear(context.Background())
	assert.Zero(t, clock.Pending())
}

func TestFailedWriteKeepsSavingFlag(t *testing.T) {
	store := newRecordingStore()
	clock := testutil.NewClock(t0)
	var observed []error
	m := newManager(t, store, clock, draft.WithObserver(func(_ models.Draft, err error) {
		observed = append(observed, err)
	}))

	store.failNext(1)
	m.Watch(poForm{Vendor: "Acme"})
	clock.Advance(3 * time.Second)

	assert.True(t, m.IsSaving())
	_, ok := m.LastSaved()
	assert.False(t, ok)
	require.Len(t, observed, 1)
	assert.Error(t, observed[0])

	// The same state may be scheduled again after a failure.
	m.Watch(poForm{Vendor: "Acme"})
	clock.Advance(3 * time.Second)
	assert.False(t, m.IsSaving())
	_, ok = m.LastSaved()
	assert.True(t, ok)
	assert.Len(t, store.Writes(), 1)
}

func TestRetryRecoversTransientFailures(t *testing.T) {
	store := newRecordingStore()
	clock := testutil.NewClock(t0)
	m := newManager(t, store, clock, draft.WithRetry(3, time.Millisecond))

	store.failNext(2)
	m.Watch(poForm{Vendor: "Acme"})
	clock.Advance(3 * time.Second)

	assert.False(t, m.IsSaving())
	assert.Len(t, store.Writes(), 1)
	store.mu.Lock()
	assert.Equal(t, 3, store.attempts)
	store.mu.Unlock()
}

func TestCloseCancelsPendingWrite(t *testing.T) {
	store := newRecordingStore()
	clock := testutil.NewClock(t0)
	m := newManager(t, store, clock)

	m.Watch(poForm{Vendor: "Acme"})
	m.Close()
	m.Close()
	clock.Advance(5 * time.Second)
	m.Watch(poForm{Vendor: "Later"})
	clock.Advance(5 * time.Second)

	assert.Empty(t, store.Writes())
}

// gatedStore blocks every Set until released.
type gatedStore struct {
	*recordingStore
	entered chan string
	release chan struct{}
}

func (g *gatedStore) Set(ctx context.Context, d models.Draft) error {
	g.entered <- string(d.Payload)
	<-g.release
	return g.recordingStore.Set(ctx, d)
}

func TestChangeDuringWriteQueuesOneFollowUp(t *testing.T) {
	store := &gatedStore{recordingStore: newRecordingStore(), entered: make(chan string, 4), release: make(chan struct{})}
	clock := testutil.NewClock(t0)
	m := newManager(t, store, clock)

	m.Watch(poForm{Vendor: "A"})
	done := make(chan struct{})
	go func() {
		clock.Advance(3 * time.Second)
		close(done)
	}()
	require.JSONEq(t, `{"vendor":"A","qty":0}`, <-store.entered)
	assert.True(t, m.IsSaving())

	m.Watch(poForm{Vendor: "B"})
	clock.Advance(3 * time.Second) // fires while A is in flight
	m.Watch(poForm{Vendor: "C"})
	clock.Advance(3 * time.Second) // replaces the queued state

	store.release <- struct{}{}
	require.JSONEq(t, `{"vendor":"C","qty":0}`, <-store.entered)
	store.release <- struct{}{}
	<-done

	writes := store.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "A", decode(t, writes[0]).Vendor)
	assert.Equal(t, "C", decode(t, writes[1]).Vendor)
	assert.False(t, m.IsSaving())
}

func TestClearDuringWriteRemovesLandedDraft(t *testing.T) {
	store := &gatedStore{recordingStore: newRecordingStore(), entered: make(chan string, 1), release: make(chan struct{})}
	clock := testutil.NewClock(t0)
	m := newManager(t, store, clock)

	m.Watch(poForm{Vendor: "A"})
	done := make(chan struct{})
	go func() {
		clock.Advance(3 * time.Second)
		close(done)
	}()
	<-store.entered
	m.Clear(context.Background())
	store.release <- struct{}{}
	<-done

	_, err := store.Get(context.Background(), "po-creation-form")
	assert.Error(t, err)
}

// stallingStore blocks the first Set and the second Delete until released.
type stallingStore struct {
	*recordingStore
	mu            sync.Mutex
	sets, deletes int
	setEntered    chan struct{}
	releaseSet    chan struct{}
	deleteEntered chan struct{}
	releaseDelete chan struct{}
}

func newStallingStore() *stallingStore {
	return &stallingStore{
		recordingStore: newRecordingStore(),
		setEntered:     make(chan struct{}, 1),
		releaseSet:     make(chan struct{}),
		deleteEntered:  make(chan struct{}, 1),
		releaseDelete:  make(chan struct{}),
	}
}

func (s *stallingStore) Set(ctx context.Context, d models.Draft) error {
	s.mu.Lock()
	s.sets++
	n := s.sets
	s.mu.Unlock()
	if n == 1 {
		s.setEntered <- struct{}{}
		<-s.releaseSet
	}
	return s.recordingStore.Set(ctx, d)
}

func (s *stallingStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deletes++
	n := s.deletes
	s.mu.Unlock()
	if n == 2 {
		s.deleteEntered <- struct{}{}
		<-s.releaseDelete
	}
	return s.recordingStore.Delete(ctx, key)
}

func TestEditAfterClearSurvivesCleanupOfLandedWrite(t *testing.T) {
	store := newStallingStore()
	clock := testutil.NewClock(t0)
	m := newManager(t, store, clock)
	ctx := context.Background()

	m.Watch(poForm{Vendor: "A"})
	flushed := make(chan struct{})
	go func() {
		clock.Advance(3 * time.Second)
		close(flushed)
	}()
	<-store.setEntered

	m.Clear(ctx)
	m.Watch(poForm{Vendor: "D"})
	close(store.releaseSet)

	// A has landed and is being deleted again; D falls due meanwhile.
	<-store.deleteEntered
	clock.Advance(3 * time.Second)
	close(store.releaseDelete)
	<-flushed

	d, err := store.Get(ctx, "po-creation-form")
	require.NoError(t, err, "the edit made after clearing must be persisted")
	assert.Equal(t, "D", decode(t, *d).Vendor)

	st := m.Status()
	assert.False(t, st.Pending)
	assert.False(t, st.IsSaving)
}

func TestRebaseSuppressesWrite(t *testing.T) {
	store := newRecordingStore()
	clock := testutil.NewClock(t0)
	m := newManager(t, store, clock)

	m.Watch(poForm{Vendor: "Acme"})
	clock.Advance(3 * time.Second)
	m.Clear(context.Background())
	m.Rebase(poForm{})
	m.Watch(poForm{})
	clock.Advance(3 * time.Second)

	assert.Len(t, store.Writes(), 1)
}
