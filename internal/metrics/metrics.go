// Package metrics collects pipeline counters on a private Prometheus
// registry. A Metrics value implements the observer interfaces of the
// sampler, resolver, corpus and export packages.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

const namespace = "pseval"

// PageBuckets covers local SQLite reads up to slow remote Postgres pages.
var PageBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1, 5}

// Metrics holds the registry and every collector registered on it.
type Metrics struct {
	registry *prometheus.Registry

	pagesTotal     *prometheus.CounterVec
	pageRows       *prometheus.CounterVec
	pageSeconds    *prometheus.HistogramVec
	matchesTotal   prometheus.Counter
	danglingTotal  prometheus.Counter
	cacheLookups   *prometheus.CounterVec
	exportsTotal   *prometheus.CounterVec
	documentsTotal *prometheus.CounterVec
	exportBytes    *prometheus.CounterVec
	warningsTotal  *prometheus.CounterVec
	exportSeconds  *prometheus.HistogramVec
}

// New creates a registry with the pipeline collectors and the Go runtime
// collector registered.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.pagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_pages_total",
		Help:      "Store round-trips by kind (draw, scan, corpus).",
	}, []string{"kind"})
	m.pageRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_rows_total",
		Help:      "Rows returned by store round-trips by kind.",
	}, []string{"kind"})
	m.pageSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_page_seconds",
		Help:      "Store round-trip latency by kind.",
		Buckets:   PageBuckets,
	}, []string{"kind"})
	m.matchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "matches_resolved_total",
		Help:      "Subscription matches resolved to text.",
	})
	m.danglingTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dangling_references_total",
		Help:      "Decoded subscription ids with no subscription row.",
	})
	m.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscription_cache_lookups_total",
		Help:      "Subscription cache lookups by result (hit, miss).",
	}, []string{"result"})
	m.exportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exports_total",
		Help:      "Committed exports by kind.",
	}, []string{"kind"})
	m.documentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "export_documents_total",
		Help:      "Documents written by committed exports.",
	}, []string{"kind"})
	m.exportBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "export_bytes_total",
		Help:      "Uncompressed bytes written by committed exports.",
	}, []string{"kind"})
	m.warningsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "warnings_total",
		Help:      "Data-integrity warnings by kind.",
	}, []string{"kind"})
	m.exportSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "export_seconds",
		Help:      "Export duration by kind.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"kind"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.pagesTotal, m.pageRows, m.pageSeconds,
		m.matchesTotal, m.danglingTotal, m.cacheLookups,
		m.exportsTotal, m.documentsTotal, m.exportBytes, m.warningsTotal, m.exportSeconds,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PageFetched implements the sampler and corpus observers.
func (m *Metrics) PageFetched(kind string, _, rows int, elapsed time.Duration) {
	m.pagesTotal.WithLabelValues(kind).Inc()
	m.pageRows.WithLabelValues(kind).Add(float64(rows))
	m.pageSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// MatchesResolved implements the resolver observer.
func (m *Metrics) MatchesResolved(resolved, dangling int) {
	m.matchesTotal.Add(float64(resolved))
	m.danglingTotal.Add(float64(dangling))
}

// CacheLookup implements the resolver observer.
func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ExportFinished implements the export observer.
func (m *Metrics) ExportFinished(kind string, documents, _ int, bytes int64, warnings []model.Warning, elapsed time.Duration) {
	m.exportsTotal.WithLabelValues(kind).Inc()
	m.documentsTotal.WithLabelValues(kind).Add(float64(documents))
	m.exportBytes.WithLabelValues(kind).Add(float64(bytes))
	m.exportSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
	m.RecordWarnings(warnings)
}

// RecordWarnings counts warnings by kind.
func (m *Metrics) RecordWarnings(warnings []model.Warning) {
	for _, w := range warnings {
		m.warningsTotal.WithLabelValues(string(w.Kind)).Inc()
	}
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
