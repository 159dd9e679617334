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

func TestMetrics_CountersAccumulate(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePoll(ResultSuccess, 0.2)
	m.ObservePoll(ResultSuccess, 0.1)
	m.ObservePoll(ResultError, 1)
	m.StreamMessage("tick")
	m.StreamReconnect()
	m.HTTPRequest("/api/portfolio", 200)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pollCycles.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pollCycles.WithLabelValues(ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamMessages.WithLabelValues("tick")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamReconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/portfolio", "200")))
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObservePoll(ResultSuccess, 1)
		m.StreamMessage("quote")
		m.StreamReconnect()
		m.HTTPRequest("/", 500)
	})
}

func TestMetrics_HandlerExposesCollectors(t *testing.T) {
	m := New(nil)
	m.StreamReconnect()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "growin_stream_reconnects_total 1")
}
