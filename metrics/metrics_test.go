package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.Alarms.Inc()
	a.RemoteWrites.WithLabelValues("ok").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Alarms))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Alarms))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.RemoteWrites.WithLabelValues("ok")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.BedChanges.WithLabelValues("start", "local").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `bedboard_bed_changes_total{op="start",source="local"} 1`)
}
