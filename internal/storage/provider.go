// Package storage provides the durable draft stores: local files, SQLite,
// an in-process cache and Redis.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/draft"
	"github.com/starford/raido/internal/models"
)

// Store is a draft.Store that can also enumerate and release its drafts.
type Store interface {
	draft.Store
	// List returns metadata for every stored draft, ordered by key.
	List(ctx context.Context) ([]models.DraftMetadata, error)
	Close() error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateKey rejects keys that are empty, too long, or not safe to use as
// a file name.
func ValidateKey(key string) error {
	err := validation.Validate(key,
		validation.Required,
		validation.Length(1, 128),
		validation.Match(keyPattern),
	)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", apperr.ErrInvalidKey, key, err)
	}
	return nil
}

var (
	_ Store = (*FS)(nil)
	_ Store = (*SQLite)(nil)
	_ Store = (*Memory)(nil)
	_ Store = (*Redis)(nil)
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendFS     = "fs"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Options selects and locates a backend.
type Options struct {
	Backend  string
	Path     string // sqlite file or fs directory
	RedisURL string
	TTL      time.Duration // memory backend only
}

// Open returns the store named by o.Backend.
func Open(ctx context.Context, o Options) (Store, error) {
	switch o.Backend {
	case BackendSQLite:
		if dir := filepath.Dir(o.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("storage: mkdir: %w", err)
			}
		}
		return OpenSQLite(o.Path)
	case BackendFS:
		return NewFS(o.Path)
	case BackendMemory:
		return NewMemory(o.TTL), nil
	case BackendRedis:
		return OpenRedis(ctx, o.RedisURL)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", o.Backend)
	}
}
