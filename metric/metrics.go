// Package metric provides Prometheus metrics for session activity.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the session-level metrics. A nil *Metrics disables
// collection entirely; every method is nil-safe.
type Metrics struct {
	ActiveSubscriptions prometheus.Gauge
	ActiveReplyHandlers prometheus.Gauge
	MessagesReceived    *prometheus.CounterVec
	RepliesSent         *prometheus.CounterVec
	RequestsSent        *prometheus.CounterVec
	MessagesPublished   *prometheus.CounterVec
	PullBatches         *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all session metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "natscript",
			Subsystem: "session",
			Name:      "active_subscriptions",
			Help:      "Number of active subscription contexts",
		}),
		ActiveReplyHandlers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "natscript",
			Subsystem: "session",
			Name:      "active_reply_handlers",
			Help:      "Number of active reply handler contexts",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "natscript",
			Subsystem: "messages",
			Name:      "received_total",
			Help:      "Total number of messages received",
		}, []string{"subject"}),
		RepliesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "natscript",
			Subsystem: "messages",
			Name:      "replies_total",
			Help:      "Total number of replies sent",
		}, []string{"subject"}),
		RequestsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "natscript",
			Subsystem: "messages",
			Name:      "requests_total",
			Help:      "Total number of requests sent",
		}, []string{"subject"}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "natscript",
			Subsystem: "messages",
			Name:      "published_total",
			Help:      "Total number of messages published",
		}, []string{"subject"}),
		PullBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "natscript",
			Subsystem: "jetstream",
			Name:      "pull_batches_total",
			Help:      "Total number of JetStream pull batches fetched",
		}, []string{"stream", "durable"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "natscript",
			Subsystem: "session",
			Name:      "errors_total",
			Help:      "Total number of operational errors",
		}, []string{"operation"}),
	}
}

// Register registers all metrics with the given registerer
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.ActiveSubscriptions,
		m.ActiveReplyHandlers,
		m.MessagesReceived,
		m.RepliesSent,
		m.RequestsSent,
		m.MessagesPublished,
		m.PullBatches,
		m.ErrorsTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// SubscriptionStarted records a new subscription context
func (m *Metrics) SubscriptionStarted() {
	if m != nil {
		m.ActiveSubscriptions.Inc()
	}
}

// SubscriptionStopped records a removed subscription context
func (m *Metrics) SubscriptionStopped() {
	if m != nil {
		m.ActiveSubscriptions.Dec()
	}
}

// ReplyHandlerStarted records a new reply handler context
func (m *Metrics) ReplyHandlerStarted() {
	if m != nil {
		m.ActiveReplyHandlers.Inc()
	}
}

// ReplyHandlerStopped records a removed reply handler context
func (m *Metrics) ReplyHandlerStopped() {
	if m != nil {
		m.ActiveReplyHandlers.Dec()
	}
}

// MessageReceived counts one inbound message on a subject
func (m *Metrics) MessageReceived(subject string) {
	if m != nil {
		m.MessagesReceived.WithLabelValues(subject).Inc()
	}
}

// ReplySent counts one rendered or static reply on a subject
func (m *Metrics) ReplySent(subject string) {
	if m != nil {
		m.RepliesSent.WithLabelValues(subject).Inc()
	}
}

// RequestSent counts one outgoing request on a subject
func (m *Metrics) RequestSent(subject string) {
	if m != nil {
		m.RequestsSent.WithLabelValues(subject).Inc()
	}
}

// MessagePublished counts one publish on a subject
func (m *Metrics) MessagePublished(subject string) {
	if m != nil {
		m.MessagesPublished.WithLabelValues(subject).Inc()
	}
}

// PullBatchFetched counts one JetStream pull batch
func (m *Metrics) PullBatchFetched(stream, durable string) {
	if m != nil {
		m.PullBatches.WithLabelValues(stream, durable).Inc()
	}
}

// Error counts one operational error
func (m *Metrics) Error(operation string) {
	if m != nil {
		m.ErrorsTotal.WithLabelValues(operation).Inc()
	}
}
