package draft

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/models"
)

// Observer is notified after every write attempt (including retries).
type Observer func(d models.Draft, err error)

// Option configures a Manager.
type Option func(*options)

type options struct {
	clock         Clock
	logger        *slog.Logger
	retries       uint64
	retryInterval time.Duration
	writeTimeout  time.Duration
	observer      Observer
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger used for swallowed store errors.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRetry retries a failed write up to n times with exponential backoff
// starting at interval.
func WithRetry(n int, interval time.Duration) Option {
	return func(o *options) {
		if n > 0 {
			o.retries = uint64(n)
		}
		if interval > 0 {
			o.retryInterval = interval
		}
	}
}

// WithWriteTimeout bounds a single store write.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithObserver registers fn to be called after each write.
func WithObserver(fn Observer) Option {
	return func(o *options) { o.observer = fn }
}

// Status is the observable autosave state.
type Status struct {
	IsSaving  bool       `json:"is_saving"`
	LastSaved *time.Time `json:"last_saved,omitempty"`
	HasDraft  bool       `json:"has_draft"`
	Pending   bool       `json:"pending"`
}

// Manager autosaves a form state of type S under one key.
//
// Watch is called with the current state after every change. Changes are
// compared by value (digest of the JSON encoding). A write is scheduled
// debounce after the last change; a newer change resets the timer. At most
// one write is in flight; a timer that fires during a write queues exactly
// one follow-up write carrying the latest state.
//
// Store failures never reach the caller: IsSaving stays true and LastSaved
// does not advance until a later write succeeds.
type Manager[S any] struct {
	store    Store
	key      string
	debounce time.Duration
	opts     options

	mu        sync.Mutex
	timer     Timer
	seq       uint64 // identifies the live timer; stale callbacks are ignored
	pending   []byte
	lastSum   string
	inFlight  bool
	followUp  bool
	gen       uint64 // bumped by Clear
	isSaving  bool
	lastSaved time.Time
	hasDraft  bool
	closed    bool
	wg        sync.WaitGroup
}

// NewManager mounts a manager for key. initial is the state at mount time;
// it is not written until it changes. hasDraft reflects whether the store
// held a draft under key at this moment.
func NewManager[S any](ctx context.Context, store Store, key string, debounce time.Duration, initial S, opts ...Option) *Manager[S] {
	o := options{
		clock:         SystemClock,
		logger:        slog.Default(),
		retryInterval: 200 * time.Millisecond,
		writeTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if debounce < 0 {
		debounce = 0
	}

	m := &Manager[S]{store: store, key: key, debounce: debounce, opts: o}

	if _, sum, err := checksum.JSON(initial); err == nil {
		m.lastSum = sum
	}

	if _, err := store.Get(ctx, key); err == nil {
		m.hasDraft = true
	} else if !errors.Is(err, apperr.ErrNotFound) {
		o.logger.Warn("draft: lookup failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return m
}

// Key returns the draft key.
func (m *Manager[S]) Key() string { return m.key }

// Watch records the current state and (re)starts the debounce timer when it
// differs from the last observed state.
func (m *Manager[S]) Watch(state S) {
	data, sum, err := checksum.JSON(state)
	if err != nil {
		m.opts.logger.Warn("draft: encode failed", slog.String("key", m.key), slog.String("error", err.Error()))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || sum == m.lastSum {
		return
	}
	m.lastSum = sum
	m.pending = data
	m.resetTimerLocked()
}

func (m *Manager[S]) resetTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.seq++
	seq := m.seq
	m.timer = m.opts.clock.AfterFunc(m.debounce, func() { m.fire(seq) })
}

func (m *Manager[S]) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.seq++
}

func (m *Manager[S]) fire(seq uint64) {
	m.mu.Lock()
	if seq != m.seq || m.closed || m.pending == nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	if m.inFlight {
		m.followUp = true
		m.mu.Unlock()
		return
	}
	m.inFlight = true
	m.wg.Add(1)
	m.mu.Unlock()

	m.flush()
}

// flush writes pending state until no follow-up is queued. The caller has
// set inFlight.
func (m *Manager[S]) flush() {
	defer m.wg.Done()

	for {
		m.mu.Lock()
		payload := m.pending
		m.pending = nil
		gen := m.gen
		m.isSaving = true
		m.mu.Unlock()

		d, err := m.write(payload)

		m.mu.Lock()
		cleared := gen != m.gen
		m.mu.Unlock()

		// inFlight stays set across the delete so a timer firing meanwhile
		// queues a follow-up instead of writing ahead of it.
		if err == nil && cleared {
			m.deleteQuietly()
		}

		m.mu.Lock()
		if err == nil {
			m.isSaving = false
			m.lastSaved = m.opts.clock.Now()
		} else if m.pending == nil {
			// Let the same state be scheduled again on the next Watch.
			m.lastSum = ""
		}
		again := m.followUp && m.pending != nil
		m.followUp = false
		if !again {
			m.inFlight = false
		}
		m.mu.Unlock()

		if err != nil {
			m.opts.logger.Warn("draft: save failed", slog.String("key", m.key), slog.String("error", err.Error()))
		}
		if m.opts.observer != nil {
			m.opts.observer(d, err)
		}
		if !again {
			return
		}
	}
}

func (m *Manager[S]) write(payload []byte) (models.Draft, error) {
	d := models.Draft{
		Key:      m.key,
		Payload:  payload,
		Revision: uuid.NewString(),
		SavedAt:  m.opts.clock.Now(),
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if m.opts.retries > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = m.opts.retryInterval
		b = backoff.WithMaxRetries(eb, m.opts.retries)
	}

	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.writeTimeout)
		defer cancel()
		return m.store.Set(ctx, d)
	}, b)
	return d, err
}

func (m *Manager[S]) deleteQuietly() {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.writeTimeout)
	defer cancel()
	if err := m.store.Delete(ctx, m.key); err != nil {
		m.opts.logger.Warn("draft: delete failed", slog.String("key", m.key), slog.String("error", err.Error()))
	}
}

// HasDraft reports whether a draft existed at mount and has not been cleared.
func (m *Manager[S]) HasDraft() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasDraft
}

// IsSaving reports whether a write has started and not yet succeeded.
func (m *Manager[S]) IsSaving() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isSaving
}

// LastSaved returns the completion time of the last successful write.
func (m *Manager[S]) LastSaved() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSaved, !m.lastSaved.IsZero()
}

// Status returns a snapshot of the observable state.
func (m *Manager[S]) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		IsSaving: m.isSaving,
		HasDraft: m.hasDraft,
		Pending:  m.pending != nil,
	}
	if !m.lastSaved.IsZero() {
		t := m.lastSaved
		st.LastSaved = &t
	}
	return st
}

// Restore returns the stored state without deleting it. ok is false when no
// draft exists or it cannot be read.
func (m *Manager[S]) Restore(ctx context.Context) (state S, ok bool) {
	d, err := m.store.Get(ctx, m.key)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			m.opts.logger.Warn("draft: restore failed", slog.String("key", m.key), slog.String("error", err.Error()))
		}
		return state, false
	}
	if err := json.Unmarshal(d.Payload, &state); err != nil {
		m.opts.logger.Warn("draft: decode failed", slog.String("key", m.key), slog.String("error", err.Error()))
		var zero S
		return zero, false
	}

	m.mu.Lock()
	if m.pending == nil {
		m.lastSum = checksum.Sum(d.Payload)
	}
	m.mu.Unlock()
	return state, true
}

// Rebase records state as the persisted baseline without scheduling a write.
func (m *Manager[S]) Rebase(state S) {
	_, sum, err := checksum.JSON(state)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.lastSum = sum
	m.mu.Unlock()
}

// Clear deletes the stored draft and cancels any pending write. A write
// already in flight is deleted again once it lands. Clear is idempotent.
func (m *Manager[S]) Clear(ctx context.Context) {
	m.mu.Lock()
	m.stopTimerLocked()
	m.pending = nil
	m.followUp = false
	m.gen++
	m.hasDraft = false
	m.mu.Unlock()

	if err := m.store.Delete(ctx, m.key); err != nil {
		m.opts.logger.Warn("draft: clear failed", slog.String("key", m.key), slog.String("error", err.Error()))
	}
}

// Close cancels a pending timer and waits for an in-flight write to finish.
// It is safe to call more than once.
func (m *Manager[S]) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		m.stopTimerLocked()
		if !m.followUp {
			m.pending = nil
		}
	}
	m.mu.Unlock()
	m.wg.Wait()
}
