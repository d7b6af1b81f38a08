package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "healthcare"

// BookingMetrics exposes counters/histograms for the booking workflow.
type BookingMetrics struct {
	submitted      *prometheus.CounterVec
	conflicts      *prometheus.CounterVec
	staleRefs      *prometheus.CounterVec
	statusChanges  *prometheus.CounterVec
	handoffLinks   prometheus.Counter
	storeLatency   *prometheus.HistogramVec
	persistFailure prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "submitted_total",
			Help:      "Booking submissions by subject type and outcome",
		}, []string{"subject_type", "outcome"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "slot_conflicts_total",
			Help:      "Submissions rejected because the slot was already reserved",
		}, []string{"subject_type"}),
		staleRefs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "stale_references_total",
			Help:      "Submissions rejected because the catalog item changed",
		}, []string{"reason"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "status_changes_total",
			Help:      "Booking status transitions",
		}, []string{"from", "to"}),
		handoffLinks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "handoff_links_total",
			Help:      "Messaging hand-off links generated after a committed booking",
		}),
		persistFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "persistence_failures_total",
			Help:      "Booking writes that failed at the store",
		}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "call_duration_seconds",
			Help:      "Latency of document store calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submitted, m.conflicts, m.staleRefs, m.statusChanges, m.handoffLinks, m.persistFailure, m.storeLatency)
	return m
}

func (m *BookingMetrics) ObserveSubmission(subjectType, outcome string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(subjectType, outcome).Inc()
	switch outcome {
	case "conflict":
		m.conflicts.WithLabelValues(subjectType).Inc()
	case "persistence_error":
		m.persistFailure.Inc()
	}
}

func (m *BookingMetrics) ObserveStaleReference(reason string) {
	if m == nil {
		return
	}
	m.staleRefs.WithLabelValues(reason).Inc()
}

func (m *BookingMetrics) ObserveStatusChange(from, to string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(from, to).Inc()
}

func (m *BookingMetrics) ObserveHandoff() {
	if m == nil {
		return
	}
	m.handoffLinks.Inc()
}

func (m *BookingMetrics) ObserveStoreCall(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.storeLatency.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

// CatalogMetrics counts admin writes and uploads.
type CatalogMetrics struct {
	writes  *prometheus.CounterVec
	uploads *prometheus.CounterVec
}

func NewCatalogMetrics(reg prometheus.Registerer) *CatalogMetrics {
	m := &CatalogMetrics{
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "writes_total",
			Help:      "Catalog writes by kind, operation and outcome",
		}, []string{"kind", "op", "outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "uploads_total",
			Help:      "Object uploads by category and outcome (ok, error, degraded)",
		}, []string{"category", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.writes, m.uploads)
	return m
}

func (m *CatalogMetrics) ObserveWrite(kind, op, outcome string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(kind, op, outcome).Inc()
}

func (m *CatalogMetrics) ObserveUpload(category, outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(category, outcome).Inc()
}

// OutboxMetrics tracks side-effect delivery.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
	pending    prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	m := &OutboxMetrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox deliveries by event type and outcome",
		}, []string{"event_type", "outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "last_batch_size",
			Help:      "Entries fetched by the most recent poll",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.deliveries, m.pending)
	return m
}

func (m *OutboxMetrics) ObserveDelivery(eventType, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(eventType, outcome).Inc()
}

func (m *OutboxMetrics) ObserveBatch(size int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(size))
}
