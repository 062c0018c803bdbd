// Package listing answers list-view queries over catalog collections.
package listing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/starford/raido/internal/catalog"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/metrics"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/query"
)

// Page sizes applied when a request leaves the size unset or asks for too much.
const (
	DefaultPageSize = 20
	MaxPageSize     = 500
)

// Source is the catalog view the service needs.
type Source interface {
	catalog.Provider
	Get(name string) (*catalog.Collection, error)
	List() []models.CollectionInfo
}

// Option configures a Service.
type Option func(*Service)

// WithCacheTTL caches query results for ttl. Zero disables the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithMetrics records query timings and cache lookups.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service runs the query pipeline over one collection at a time.
type Service struct {
	source  Source
	ttl     time.Duration
	cache   *cache.Cache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService creates a listing service over source.
func NewService(source Source, opts ...Option) *Service {
	s := &Service{source: source, ttl: 30 * time.Second, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	if s.ttl > 0 {
		s.cache = cache.New(s.ttl, 2*s.ttl)
	}
	return s
}

// Collections lists the available collections.
func (s *Service) Collections() []models.CollectionInfo {
	return s.source.List()
}

// Query runs q against collection name. When q has no sort the collection's
// default sort applies; an unset page size means DefaultPageSize. Results
// are cached per collection version and query.
func (s *Service) Query(ctx context.Context, name string, q query.Query) (*query.Result, error) {
	col, err := s.source.Get(name)
	if err != nil {
		return nil, err
	}
	if q.Sort == nil && col.DefaultSort != nil {
		ds := *col.DefaultSort
		q.Sort = &ds
	}
	if q.Page.Size <= 0 {
		q.Page.Size = DefaultPageSize
	}
	q.Page.Size = min(q.Page.Size, MaxPageSize)
	q.Page = q.Page.Normalize()

	key, cacheable := s.cacheKey(col, q)
	if cacheable {
		if v, ok := s.cache.Get(key); ok {
			s.metrics.CacheLookup(true)
			res := v.(query.Result)
			return &res, nil
		}
		s.metrics.CacheLookup(false)
	}

	records, err := s.source.FetchRecords(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("listing: fetch %s: %w", name, err)
	}

	start := time.Now()
	res := query.Run(records, q, col.SearchFields)
	s.metrics.ObserveQuery(name, time.Since(start), res.TotalMatched)

	if cacheable {
		s.cache.Set(key, res, cache.DefaultExpiration)
	}
	return &res, nil
}

func (s *Service) cacheKey(col *catalog.Collection, q query.Query) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	_, sum, err := checksum.JSON(q)
	if err != nil {
		s.logger.Warn("listing: cache key", slog.String("collection", col.Name), slog.String("error", err.Error()))
		return "", false
	}
	return col.Name + "\x00" + col.Checksum + "\x00" + sum, true
}

// Forget drops cached results for collection name.
func (s *Service) Forget(name string) {
	if s.cache == nil {
		return
	}
	prefix := name + "\x00"
	for k := range s.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			s.cache.Delete(k)
		}
	}
}
