// Package draft persists in-progress form state: a debounced autosave
// Manager over a durable key-value Store, and an unsaved-changes guard on
// top of a page-navigation interception facility.
package draft

import (
	"context"
	"time"

	"github.com/starford/raido/internal/models"
)

// Store is the durable key-value store drafts are written to.
type Store interface {
	// Get returns the draft under key, or apperr.ErrNotFound.
	Get(ctx context.Context, key string) (*models.Draft, error)
	// Set creates or overwrites the draft under d.Key.
	Set(ctx context.Context, d models.Draft) error
	// Delete removes the draft under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so debounce behaviour can be driven in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}
