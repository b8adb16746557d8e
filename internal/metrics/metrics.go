package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/talentdesk/recruiter-notify/internal/domain"
	"github.com/talentdesk/recruiter-notify/internal/queue"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	EmailsSent      *prometheus.CounterVec
	EmailsFailed    *prometheus.CounterVec
	DispatchLatency *prometheus.HistogramVec

	QueuePending prometheus.Gauge
	QueueActive  prometheus.Gauge
	QueueFailed  prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EmailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recruiter_notify_emails_sent_total",
			Help: "Total work items completed successfully.",
		}, []string{"kind"}),

		EmailsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recruiter_notify_emails_failed_total",
			Help: "Total work items permanently failed (attempts exhausted).",
		}, []string{"kind"}),

		DispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recruiter_notify_dispatch_seconds",
			Help:    "Per-item dispatch latency from selection to transport ack.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		QueuePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recruiter_notify_queue_pending",
			Help: "Work items not yet terminal, including scheduled retries.",
		}),
		QueueActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recruiter_notify_queue_active",
			Help: "Work items currently mid-dispatch.",
		}),
		QueueFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recruiter_notify_queue_failed",
			Help: "Work items held as permanently failed, pending cleanup.",
		}),
	}

	reg.MustRegister(
		m.EmailsSent,
		m.EmailsFailed,
		m.DispatchLatency,
		m.QueuePending,
		m.QueueActive,
		m.QueueFailed,
	)

	return m
}

// QueueHooks returns the callback set expected by queue.Hooks.
// Centralises the prometheus observation calls so the queue package stays
// metrics-agnostic.
func (m *Metrics) QueueHooks() queue.Hooks {
	return queue.Hooks{
		OnCompleted: func(kind domain.WorkKind, latency time.Duration) {
			m.EmailsSent.WithLabelValues(string(kind)).Inc()
			m.DispatchLatency.WithLabelValues(string(kind)).Observe(latency.Seconds())
		},
		OnFailed: func(kind domain.WorkKind) {
			m.EmailsFailed.WithLabelValues(string(kind)).Inc()
		},
		OnDepth: func(s queue.Status) {
			m.QueuePending.Set(float64(s.Pending))
			m.QueueActive.Set(float64(s.Active))
			m.QueueFailed.Set(float64(s.Failed))
		},
	}
}
