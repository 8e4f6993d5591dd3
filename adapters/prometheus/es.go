package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/metrics"
)

type esMetrics struct {
	storeLoadDuration   *prometheus.HistogramVec
	storeAppendDuration *prometheus.HistogramVec
	eventsAppended      *prometheus.CounterVec

	repoLoadDuration     *prometheus.HistogramVec
	repoSaveDuration     *prometheus.HistogramVec
	concurrencyConflicts *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	snapshotLoadDuration *prometheus.HistogramVec
	snapshotSaveDuration *prometheus.HistogramVec

	busPublishFailures *prometheus.CounterVec

	projectionEventDuration *prometheus.HistogramVec
	projectionEvents        *prometheus.CounterVec
	projectionLag           *prometheus.GaugeVec
}

func histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "es",
		Name:      name,
		Help:      help,
		Buckets:   defaultBuckets,
	}, labels)
}

func counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "es",
		Name:      name,
		Help:      help,
	}, labels)
}

// NewESMetrics registers the event sourcing collectors with reg.
func NewESMetrics(reg prometheus.Registerer) es.ESMetrics {
	m := &esMetrics{
		storeLoadDuration:   histogram("store_load_duration_seconds", "Event store load latency in seconds", "aggregate_type"),
		storeAppendDuration: histogram("store_append_duration_seconds", "Event store append latency in seconds", "aggregate_type"),
		eventsAppended:      counter("events_appended_total", "Total number of events appended", "aggregate_type"),

		repoLoadDuration:     histogram("repo_load_duration_seconds", "Repository load latency in seconds", "aggregate_type"),
		repoSaveDuration:     histogram("repo_save_duration_seconds", "Repository save latency in seconds", "aggregate_type"),
		concurrencyConflicts: counter("concurrency_conflicts_total", "Total number of optimistic concurrency failures", "aggregate_type"),

		cacheHits:   counter("cache_hits_total", "Total number of aggregate cache hits", "aggregate_type"),
		cacheMisses: counter("cache_misses_total", "Total number of aggregate cache misses", "aggregate_type"),

		snapshotLoadDuration: histogram("snapshot_load_duration_seconds", "Snapshot load latency in seconds", "aggregate_type"),
		snapshotSaveDuration: histogram("snapshot_save_duration_seconds", "Snapshot save latency in seconds", "aggregate_type"),

		busPublishFailures: counter("bus_publish_failures_total", "Committed events the bus could not publish", "aggregate_type"),

		projectionEventDuration: histogram("projection_event_duration_seconds", "Projection handle latency in seconds", "projection", "event_type"),
		projectionEvents:        counter("projection_events_total", "Total number of events handled by projections", "projection", "event_type", "success"),
		projectionLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "es",
			Name:      "projection_lag",
			Help:      "Store positions the projection is behind",
		}, []string{"projection"}),
	}

	reg.MustRegister(
		m.storeLoadDuration,
		m.storeAppendDuration,
		m.eventsAppended,
		m.repoLoadDuration,
		m.repoSaveDuration,
		m.concurrencyConflicts,
		m.cacheHits,
		m.cacheMisses,
		m.snapshotLoadDuration,
		m.snapshotSaveDuration,
		m.busPublishFailures,
		m.projectionEventDuration,
		m.projectionEvents,
		m.projectionLag,
	)
	return m
}

func (m *esMetrics) StoreLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.storeLoadDuration.WithLabelValues(aggType))
}

func (m *esMetrics) StoreAppendDuration(aggType string) metrics.Timer {
	return newTimer(m.storeAppendDuration.WithLabelValues(aggType))
}

func (m *esMetrics) EventsAppended(aggType string, count int) {
	m.eventsAppended.WithLabelValues(aggType).Add(float64(count))
}

func (m *esMetrics) RepoLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.repoLoadDuration.WithLabelValues(aggType))
}

func (m *esMetrics) RepoSaveDuration(aggType string) metrics.Timer {
	return newTimer(m.repoSaveDuration.WithLabelValues(aggType))
}

func (m *esMetrics) ConcurrencyConflict(aggType string) {
	m.concurrencyConflicts.WithLabelValues(aggType).Inc()
}

func (m *esMetrics) CacheHit(aggType string)  { m.cacheHits.WithLabelValues(aggType).Inc() }
func (m *esMetrics) CacheMiss(aggType string) { m.cacheMisses.WithLabelValues(aggType).Inc() }

func (m *esMetrics) SnapshotLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.snapshotLoadDuration.WithLabelValues(aggType))
}

func (m *esMetrics) SnapshotSaveDuration(aggType string) metrics.Timer {
	return newTimer(m.snapshotSaveDuration.WithLabelValues(aggType))
}

func (m *esMetrics) BusPublishFailed(aggType string) {
	m.busPublishFailures.WithLabelValues(aggType).Inc()
}

func (m *esMetrics) ProjectionEventDuration(projection, eventType string) metrics.Timer {
	return newTimer(m.projectionEventDuration.WithLabelValues(projection, eventType))
}

func (m *esMetrics) ProjectionEventProcessed(projection, eventType string, success bool) {
	m.projectionEvents.WithLabelValues(projection, eventType, strconv.FormatBool(success)).Inc()
}

func (m *esMetrics) ProjectionLag(projection string, lag int64) {
	m.projectionLag.WithLabelValues(projection).Set(float64(lag))
}

var _ es.ESMetrics = (*esMetrics)(nil)
