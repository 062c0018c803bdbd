// Package catalog serves record collections loaded from fixture files and
// keeps them current as the files change.
package catalog

import (
	"fmt"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/query"
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Collection is one immutable snapshot of a fixture file.
type Collection struct {
	Name         string
	Title        string
	SearchFields []string
	DefaultSort  *query.Sort
	Records      []query.Record
	Checksum     string
	Source       string
	LoadedAt     time.Time
}

// Info returns the listing view of c.
func (c *Collection) Info() models.CollectionInfo {
	return models.CollectionInfo{
		Name:         c.Name,
		Title:        c.Title,
		SearchFields: c.SearchFields,
		Records:      len(c.Records),
		Checksum:     c.Checksum,
		LoadedAt:     c.LoadedAt,
	}
}

// fixture is the on-disk shape. JSON files decode through the same path.
type fixture struct {
	Name         string           `yaml:"name"`
	Title        string           `yaml:"title"`
	SearchFields []string         `yaml:"search_fields"`
	TimeFields   []string         `yaml:"time_fields"`
	DefaultSort  *query.Sort      `yaml:"default_sort"`
	Records      []map[string]any `yaml:"records"`
}

func (f fixture) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required, validation.Match(namePattern)),
		validation.Field(&f.SearchFields, validation.Each(validation.Required)),
		validation.Field(&f.TimeFields, validation.Each(validation.Required)),
		validation.Field(&f.DefaultSort, validation.By(func(v any) error {
			if s, _ := v.(*query.Sort); s != nil && s.Field == "" {
				return fmt.Errorf("field is required")
			}
			return nil
		})),
	)
}

// Parse decodes a fixture file into a Collection. Record values are
// normalised and string values of time_fields are parsed as RFC 3339 or
// YYYY-MM-DD.
func Parse(data []byte) (*Collection, error) {
	var f fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: invalid fixture: %w", err)
	}

	records := make([]query.Record, 0, len(f.Records))
	for i, raw := range f.Records {
		r := query.NormalizeRecord(raw)
		for _, field := range f.TimeFields {
			s, ok := r[field].(string)
			if !ok {
				continue
			}
			ts, err := parseTime(s)
			if err != nil {
				return nil, fmt.Errorf("catalog: record %d: %s: %w", i, field, err)
			}
			r[field] = ts
		}
		records = append(records, r)
	}

	title := f.Title
	if title == "" {
		title = f.Name
	}
	return &Collection{
		Name:         f.Name,
		Title:        title,
		SearchFields: f.SearchFields,
		DefaultSort:  f.DefaultSort,
		Records:      records,
		Checksum:     checksum.Sum(data),
	}, nil
}

func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.Parse(time.DateOnly, s)
}
