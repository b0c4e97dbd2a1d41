package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.SetPool(1, 2, 3)
	c.Submitted("HIGH")
	c.Executed(OutcomeCompleted, "HIGH", time.Second)
	c.SetCollections(map[string]int{"ready": 1})

	h := c.Middleware("x", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.SetPool(4, 2, 1)
	c.Executed(OutcomeFailed, "LOW", 10*time.Millisecond)
	c.Executed(OutcomeFailed, "LOW", 10*time.Millisecond)
	c.SetCollections(map[string]int{"ready": 3, "paused": 1})

	assert.Equal(t, 4.0, value(t, c.backlog))
	assert.Equal(t, 1.0, value(t, c.workersBusy))
	assert.Equal(t, 2.0, value(t, c.executions.WithLabelValues(OutcomeFailed, "LOW")))
	assert.Equal(t, 3.0, value(t, c.collections.WithLabelValues("ready")))

	_, err = New(reg)
	assert.Error(t, err, "double registration must fail")
}

func TestMiddlewareCountsStatus(t *testing.T) {
	c, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	h := c.Middleware("healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, 1.0, value(t, c.httpRequests.WithLabelValues("healthz", http.MethodGet, "404")))
}

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	switch {
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	case out.Counter != nil:
		return out.Counter.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}
