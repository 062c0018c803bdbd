package catalog

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/query"
)

// Provider supplies the records of a named collection.
type Provider interface {
	FetchRecords(ctx context.Context, name string) ([]query.Record, error)
}

// Catalog holds the collections loaded from one directory.
type Catalog struct {
	root   string
	logger *slog.Logger

	mu       sync.RWMutex
	byName   map[string]*Collection
	bySource map[string]string // absolute file path -> collection name
}

var _ Provider = (*Catalog)(nil)

// Open loads every fixture file under dir. A file that fails to parse is
// logged and skipped.
func Open(dir string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("catalog: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog: root is not a directory: %s", abs)
	}

	c := &Catalog{
		root:     abs,
		logger:   logger,
		byName:   make(map[string]*Collection),
		bySource: make(map[string]string),
	}
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !IsFixture(p) {
			return nil
		}
		if _, err := c.Load(p); err != nil {
			logger.Warn("catalog: skip fixture", slog.String("path", p), slog.String("error", err.Error()))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: walk: %w", err)
	}
	logger.Info("catalog: loaded", slog.String("root", abs), slog.Int("collections", c.Len()))
	return c, nil
}

// Root returns the absolute catalog directory.
func (c *Catalog) Root() string { return c.root }

// IsFixture reports whether path names a fixture file.
func IsFixture(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// Load parses the file at path and installs or replaces its collection.
func (c *Catalog) Load(path string) (*Collection, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	col, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	col.Source = abs
	col.LoadedAt = time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.byName[col.Name]; ok && owner.Source != abs {
		return nil, fmt.Errorf("catalog: collection %q already defined by %s: %w", col.Name, owner.Source, apperr.ErrAlreadyExists)
	}
	// A file may have been renamed internally.
	if prev, ok := c.bySource[abs]; ok && prev != col.Name {
		delete(c.byName, prev)
	}
	c.byName[col.Name] = col
	c.bySource[abs] = col.Name
	return col, nil
}

// Remove drops the collection defined by path.
func (c *Catalog) Remove(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.bySource[abs]
	if !ok {
		return "", false
	}
	delete(c.bySource, abs)
	delete(c.byName, name)
	return name, true
}

// Get returns the collection called name or apperr.ErrNotFound.
func (c *Catalog) Get(name string) (*Collection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	col, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("catalog: collection %q: %w", name, apperr.ErrNotFound)
	}
	return col, nil
}

// FetchRecords returns the records of collection name. The slice is shared;
// callers must not modify it.
func (c *Catalog) FetchRecords(_ context.Context, name string) ([]query.Record, error) {
	col, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	return col.Records, nil
}

// List returns every collection ordered by name.
func (c *Catalog) List() []models.CollectionInfo {
	c.mu.RLock()
	out := make([]models.CollectionInfo, 0, len(c.byName))
	for _, col := range c.byName {
		out = append(out, col.Info())
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b models.CollectionInfo) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Len returns the number of loaded collections.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}
