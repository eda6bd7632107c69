// Package metrics exposes Prometheus collectors for import runs. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bao_importer"

// Classifier outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomeUnparsable = "unparsable"
)

// Source results.
const (
	SourceSynced    = "synced"
	SourceUnchanged = "unchanged"
	SourceFailed    = "failed"
)

type Metrics struct {
	messages       prometheus.Counter
	postsWritten   prometheus.Counter
	eventsWritten  prometheus.Counter
	duplicates     *prometheus.CounterVec
	classified     *prometheus.CounterVec
	retries        prometheus.Counter
	writeFailures  *prometheus.CounterVec
	sources        *prometheus.CounterVec
	runDuration    prometheus.Histogram
	lastRunSuccess prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Messages fetched and considered for classification.",
		}),
		postsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_written_total",
			Help:      "Rows inserted into the posts table.",
		}),
		eventsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_written_total",
			Help:      "Rows inserted into the events table.",
		}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_skipped_total",
			Help:      "Events dropped as duplicates, by the check that caught them.",
		}, []string{"check"}),
		classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_requests_total",
			Help:      "Classification requests by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_retries_total",
			Help:      "Backoff waits after rate-limited classification requests.",
		}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_failures_total",
			Help:      "Failed bulk writes by table.",
		}, []string{"table"}),
		sources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_total",
			Help:      "Sources processed by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of complete runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	reg.MustRegister(m.messages, m.postsWritten, m.eventsWritten, m.duplicates, m.classified,
		m.retries, m.writeFailures, m.sources, m.runDuration, m.lastRunSuccess)
	return m
}

func (m *Metrics) MessageProcessed() {
	if m == nil {
		return
	}
	m.messages.Inc()
}

func (m *Metrics) PostsWritten(n int) {
	if m == nil {
		return
	}
	m.postsWritten.Add(float64(n))
}

func (m *Metrics) EventsWritten(n int) {
	if m == nil {
		return
	}
	m.eventsWritten.Add(float64(n))
}

// Duplicate counts a skipped event; check is "local" or "remote".
func (m *Metrics) Duplicate(check string) {
	if m == nil {
		return
	}
	m.duplicates.WithLabelValues(check).Inc()
}

func (m *Metrics) Classified(outcome string) {
	if m == nil {
		return
	}
	m.classified.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ClassifierRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) WriteFailed(table string) {
	if m == nil {
		return
	}
	m.writeFailures.WithLabelValues(table).Inc()
}

func (m *Metrics) SourceDone(result string) {
	if m == nil {
		return
	}
	m.sources.WithLabelValues(result).Inc()
}

func (m *Metrics) RunFinished(d time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
	m.lastRunSuccess.Set(float64(at.Unix()))
}
