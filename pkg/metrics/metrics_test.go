package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrapeExposesRetrievalMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg)
	m.SearchQueriesTotal.WithLabelValues("answerable", "competition").Inc()
	m.RebuildsTotal.WithLabelValues("success").Inc()
	m.IndexedPassages.WithLabelValues("MathCup").Set(3)

	rec := httptest.NewRecorder()
	NewMux(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `search_queries_total{classification="answerable",scope="competition"} 1`)
	assert.Contains(t, body, `index_rebuilds_total{status="success"} 1`)
	assert.Contains(t, body, `indexed_passages{competition="MathCup"} 3`)
}

func TestDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewWithRegisterer(reg)
	assert.Panics(t, func() { NewWithRegisterer(reg) })
}
