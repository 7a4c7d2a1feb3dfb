// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "foiahub"

// NewRegistry returns a registry preloaded with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Importer tracks document import batches. A nil *Importer records nothing.
type Importer struct {
	batches       *prometheus.CounterVec
	documents     *prometheus.CounterVec
	bytes         prometheus.Counter
	batchDuration prometheus.Histogram
}

// NewImporter registers importer collectors on reg.
func NewImporter(reg prometheus.Registerer) *Importer {
	m := &Importer{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "batches_total",
			Help:      "Import batches by agency and result (imported, skipped, failed).",
		}, []string{"agency", "result"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "documents_total",
			Help:      "Documents written by the importer.",
		}, []string{"agency"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "stored_bytes_total",
			Help:      "Bytes of document files written to the blob store.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "batch_duration_seconds",
			Help:      "Wall time to import one batch directory.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	reg.MustRegister(m.batches, m.documents, m.bytes, m.batchDuration)
	return m
}

// Batch records a finished batch.
func (m *Importer) Batch(agency, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(agency, result).Inc()
	if result != "skipped" {
		m.batchDuration.Observe(d.Seconds())
	}
}

// Documents records n documents written for agency.
func (m *Importer) Documents(agency string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.documents.WithLabelValues(agency).Add(float64(n))
}

// StoredBytes records bytes written to the blob store.
func (m *Importer) StoredBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.Add(float64(n))
}

// HTTP tracks API requests. A nil *HTTP records nothing.
type HTTP struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTP registers HTTP collectors on reg.
func NewHTTP(reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// Observe records one request.
func (m *HTTP) Observe(method, route, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, code).Inc()
	m.duration.WithLabelValues(method, route).Observe(d.Seconds())
}
