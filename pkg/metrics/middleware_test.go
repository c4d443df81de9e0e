package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentHandlerRecordsRequestsAndDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	inner := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	handler := r.InstrumentHandler(inner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)

	f := gatherMetric(t, reg, MetricHTTPRequests)
	require.NotNil(t, f)
	require.Len(t, f.Metric, 1)
	assert.Equal(t, 1.0, f.Metric[0].Counter.GetValue())

	assert.NotNil(t, gatherMetric(t, reg, MetricHTTPDuration))
}

func TestInstrumentHandlerSkipsMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) { called = true })
	handler := r.InstrumentHandler(inner)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Nil(t, gatherMetric(t, reg, MetricHTTPRequests))
}

func TestHandlerServesPrometheusExpositionFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)
	r.Counter(MetricCacheHits, nil, 1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "threatmodel_pipeline_cache_hits_total")
}
