package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBuild(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordBuild("transfer", "success", 0.1)
	m.RecordBuild("transfer", "success", 0.2)
	m.RecordBuild("program", "invalid_input", 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.relayBuildsTotal.WithLabelValues("transfer", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relayBuildsTotal.WithLabelValues("program", "invalid_input")))
}

func TestRecordFeePayerBalance(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordFeePayerBalance(1_500_000)
	assert.Equal(t, 1_500_000.0, testutil.ToFloat64(m.relayFeePayerBalance))

	m.RecordUnderfunded()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relayUnderfundedTotal))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	handler := HTTPMetricsMiddleware(m, "/test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/test", "GET", "4xx")))
}

func TestHTTPMetricsMiddleware_Flush(t *testing.T) {
	handler := HTTPMetricsMiddleware(nil, "/stream")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := w.(http.Flusher)
		assert.True(t, ok, "wrapped writer must support flushing")
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stream", nil))
}
