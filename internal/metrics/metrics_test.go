package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Started()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.active))

	m.AddBytes(Downloaded, 100)
	m.AddBytes(Downloaded, 0)
	m.Finished("completed", 2.5)
	m.Rejected()

	assert.Equal(t, 0.0, testutil.ToFloat64(m.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues("rejected")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.bytes.WithLabelValues(Downloaded)))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Finished("failed", 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `relay_transfers_total{outcome="failed"} 1`)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Started()
		m.Finished("x", 1)
		m.Rejected()
		m.AddBytes(Uploaded, 5)
	})
}
