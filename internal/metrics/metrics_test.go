package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveQuery("parts", time.Millisecond, 3)
	m.CacheLookup(true)
	m.DraftWrite(nil)
	m.DraftOp("restore")
	m.CatalogEvent("reloaded", 1)
	m.SetFormSessions(2)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestCounters(t *testing.T) {
	m := New("raido")
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.DraftWrite(nil)
	m.DraftWrite(errors.New("boom"))
	m.CatalogEvent("reloaded", 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DraftWrites.WithLabelValues("error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Collections))
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New("raido")
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/drafts/{key}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/drafts/po-1", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/drafts/{key}", "404")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New("raido")
	m.DraftOp("discard")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `raido_draft_operations_total{operation="discard"} 1`))
}
