package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// Memory keeps drafts in process. Drafts expire after ttl; zero keeps them
// until deleted.
type Memory struct {
	c *cache.Cache
}

// NewMemory returns an empty in-process store.
func NewMemory(ttl time.Duration) *Memory {
	exp := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		exp = ttl
		cleanup = 2 * ttl
	}
	return &Memory{c: cache.New(exp, cleanup)}
}

func (m *Memory) Get(_ context.Context, key string) (*models.Draft, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	v, ok := m.c.Get(key)
	if !ok {
		return nil, fmt.Errorf("storage: draft %s: %w", key, apperr.ErrNotFound)
	}
	d := v.(models.Draft)
	d.Payload = slices.Clone(d.Payload)
	return &d, nil
}

func (m *Memory) Set(_ context.Context, d models.Draft) error {
	if err := ValidateKey(d.Key); err != nil {
		return err
	}
	d.Payload = slices.Clone(d.Payload)
	m.c.Set(d.Key, d, cache.DefaultExpiration)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	m.c.Delete(key)
	return nil
}

func (m *Memory) List(context.Context) ([]models.DraftMetadata, error) {
	items := m.c.Items()
	out := make([]models.DraftMetadata, 0, len(items))
	for _, it := range items {
		out = append(out, it.Object.(models.Draft).Metadata())
	}
	slices.SortFunc(out, func(a, b models.DraftMetadata) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

func (m *Memory) Close() error {
	m.c.Flush()
	return nil
}
