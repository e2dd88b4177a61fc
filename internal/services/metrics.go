package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the custom Prometheus metrics of the tracker.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RealtimeConnections prometheus.Gauge
	RealtimeRooms       prometheus.Gauge
	RealtimeEvents      *prometheus.CounterVec // by type and outcome (delivered, dropped)
	RealtimeInbound     *prometheus.CounterVec

	AccessDenied *prometheus.CounterVec // by operation and kind

	PendingOperations   *prometheus.CounterVec // by kind and outcome (completed, retried, failed)
	ReconcileRuns       prometheus.Counter
	ReconcileRunLatency prometheus.Histogram

	MailSent *prometheus.CounterVec
}

// NewMetrics registers the tracker metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RealtimeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "uptask_realtime_connections_active",
			Help: "Number of live realtime connections",
		}),
		RealtimeRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "uptask_realtime_rooms_active",
			Help: "Number of project rooms with at least one member",
		}),
		RealtimeEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "uptask_realtime_events_total",
			Help: "Realtime events fanned out to room members by type and outcome",
		}, []string{"type", "outcome"}),
		RealtimeInbound: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "uptask_realtime_inbound_frames_total",
			Help: "Frames received from realtime clients by type",
		}, []string{"type"}),
		AccessDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "uptask_access_denied_total",
			Help: "Operations refused by the authorization policy",
		}, []string{"operation", "kind"}),
		PendingOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "uptask_pending_operations_total",
			Help: "Multi-write operations by kind and outcome",
		}, []string{"kind", "outcome"}),
		ReconcileRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "uptask_reconcile_runs_total",
			Help: "Reconciler passes over the operation journal",
		}),
		ReconcileRunLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "uptask_reconcile_run_duration_seconds",
			Help:    "Reconciler pass latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		MailSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "uptask_mail_sent_total",
			Help: "Outbound notification emails by template and outcome",
		}, []string{"template", "outcome"}),
	}
}

func (m *Metrics) RecordConnect() {
	if m != nil {
		m.RealtimeConnections.Inc()
	}
}

func (m *Metrics) RecordDisconnect() {
	if m != nil {
		m.RealtimeConnections.Dec()
	}
}

func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.RealtimeRooms.Set(float64(n))
	}
}

func (m *Metrics) RecordEvent(eventType, outcome string) {
	if m != nil {
		m.RealtimeEvents.WithLabelValues(eventType, outcome).Inc()
	}
}

func (m *Metrics) RecordInbound(frameType string) {
	if m != nil {
		m.RealtimeInbound.WithLabelValues(frameType).Inc()
	}
}

func (m *Metrics) RecordDenied(operation, kind string) {
	if m != nil {
		m.AccessDenied.WithLabelValues(operation, kind).Inc()
	}
}

func (m *Metrics) RecordOperation(kind, outcome string) {
	if m != nil {
		m.PendingOperations.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) RecordReconcile(seconds float64) {
	if m != nil {
		m.ReconcileRuns.Inc()
		m.ReconcileRunLatency.Observe(seconds)
	}
}

func (m *Metrics) RecordMail(template, outcome string) {
	if m != nil {
		m.MailSent.WithLabelValues(template, outcome).Inc()
	}
}
