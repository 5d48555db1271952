package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.EventReceived("PUMPPORTAL")
	m.EventReceived("PUMPPORTAL")
	m.EventStarted()
	m.EventFinished("NOTIFIED", true, 3*time.Second)
	m.EventFinished("DUPLICATE", false, time.Millisecond)
	m.Verdict("PASS")
	m.MetricObserved("fees", time.Second, true)
	m.MetricObserved("bundle", time.Second, false)
	m.NotifyFailed()
	m.RecordFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsReceived.WithLabelValues("PUMPPORTAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsFinished.WithLabelValues("NOTIFIED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EventsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verdicts.WithLabelValues("PASS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MetricFailures.WithLabelValues("fees")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MetricFailures.WithLabelValues("bundle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotifyFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordErrors))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.EventReceived("x")
	m.EventStarted()
	m.EventFinished("x", true, 0)
	m.Verdict("x")
	m.MetricObserved("x", 0, true)
	m.NotifyFailed()
	m.RecordFailed()
	m.TrackUptime(time.Millisecond, nil)
}

func TestHandlerFor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)
	m.Verdict("CANDIDATE")

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_coordinator_verdicts_total{status="CANDIDATE"} 1`))
}

func TestTrackUptime(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		m.TrackUptime(5*time.Millisecond, stop)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	close(stop)
	<-done

	assert.Greater(t, testutil.ToFloat64(m.UptimeSeconds), 0.0)
}
