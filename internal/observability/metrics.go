// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the sentinel.
type Metrics struct {
	// Stream metrics
	EventsReceived *prometheus.CounterVec

	// Coordinator metrics
	EventsFinished *prometheus.CounterVec
	Verdicts       *prometheus.CounterVec
	EventsInFlight prometheus.Gauge
	EventDuration  *prometheus.HistogramVec

	// Metric computation
	MetricFailures *prometheus.CounterVec
	MetricLatency  *prometheus.HistogramVec

	// Dispatch and audit
	NotifyFailures prometheus.Counter
	RecordErrors   prometheus.Counter

	// Health
	LastEventTimestamp prometheus.Gauge
	UptimeSeconds      prometheus.Counter
}

// NewMetrics registers all metrics on reg. A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "migration_sentinel"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		EventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_received_total",
			Help:      "Migration events received by source",
		}, []string{"source"}),

		EventsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "events_finished_total",
			Help:      "Events that reached a terminal state",
		}, []string{"state"}),
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "verdicts_total",
			Help:      "Classification verdicts by status",
		}, []string{"status"}),
		EventsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "events_in_flight",
			Help:      "Events admitted past dedup and not yet finished",
		}),
		EventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "event_duration_seconds",
			Help:      "Time from receipt to terminal state",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"state"}),

		MetricFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metrics",
			Name:      "failures_total",
			Help:      "Metric computations that failed or panicked",
		}, []string{"metric"}),
		MetricLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "metrics",
			Name:      "latency_seconds",
			Help:      "Latency of each metric computation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"metric"}),

		NotifyFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Notification deliveries that failed",
		}),
		RecordErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "record_errors_total",
			Help:      "Audit records that could not be stored",
		}),

		LastEventTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_timestamp",
			Help:      "Unix timestamp of the last received event",
		}),
		UptimeSeconds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves the metrics of a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// The methods below are nil-safe so components can run without metrics.

// EventReceived counts an incoming event.
func (m *Metrics) EventReceived(source string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(source).Inc()
	m.LastEventTimestamp.SetToCurrentTime()
}

// EventStarted marks an event admitted past dedup.
func (m *Metrics) EventStarted() {
	if m == nil {
		return
	}
	m.EventsInFlight.Inc()
}

// EventFinished records a terminal state and its latency. admitted tells
// whether EventStarted was called for this event.
func (m *Metrics) EventFinished(state string, admitted bool, d time.Duration) {
	if m == nil {
		return
	}
	m.EventsFinished.WithLabelValues(state).Inc()
	m.EventDuration.WithLabelValues(state).Observe(d.Seconds())
	if admitted {
		m.EventsInFlight.Dec()
	}
}

// Verdict counts a classification outcome.
func (m *Metrics) Verdict(status string) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(status).Inc()
}

// MetricObserved records one metric computation.
func (m *Metrics) MetricObserved(metric string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.MetricLatency.WithLabelValues(metric).Observe(d.Seconds())
	if failed {
		m.MetricFailures.WithLabelValues(metric).Inc()
	}
}

// NotifyFailed counts a failed delivery.
func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.NotifyFailures.Inc()
}

// RecordFailed counts a failed audit write.
func (m *Metrics) RecordFailed() {
	if m == nil {
		return
	}
	m.RecordErrors.Inc()
}

// TrackUptime adds elapsed seconds to the uptime counter every interval
// until stop is closed.
func (m *Metrics) TrackUptime(interval time.Duration, stop <-chan struct{}) {
	if m == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.UptimeSeconds.Add(interval.Seconds())
		}
	}
}
