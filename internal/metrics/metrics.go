// Package metrics exposes Prometheus counters for the directory service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for intake, moderation and member edits.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SubmissionsReceived prometheus.Counter

	// Moderation decisions by action: "promote", "reject"
	ModerationDecisions *prometheus.CounterVec

	// Direct registry mutations by op: "create", "update", "delete"
	MemberMutations *prometheus.CounterVec

	// Failed operations by error kind: "invalid_input", "not_found", "conflict", "busy", "storage", ...
	OperationFailures *prometheus.CounterVec

	OperationLatency *prometheus.HistogramVec
}

// New creates a Metrics instance registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SubmissionsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "webring_submissions_received_total",
			Help: "Total submissions accepted into the queue",
		}),

		ModerationDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "webring_moderation_decisions_total",
			Help: "Total applied moderation decisions by action",
		}, []string{"action"}),

		MemberMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "webring_member_mutations_total",
			Help: "Total direct registry mutations by operation",
		}, []string{"op"}),

		OperationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "webring_operation_failures_total",
			Help: "Total failed operations by error kind",
		}, []string{"kind"}),

		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webring_operation_duration_seconds",
			Help:    "Duration of store operations including lock wait",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op"}),
	}
}

// IncSubmission records an accepted submission.
func (m *Metrics) IncSubmission() {
	if m != nil {
		m.SubmissionsReceived.Inc()
	}
}

// IncDecision records an applied moderation decision.
func (m *Metrics) IncDecision(action string) {
	if m != nil {
		m.ModerationDecisions.WithLabelValues(action).Inc()
	}
}

// IncMutation records a direct registry mutation.
func (m *Metrics) IncMutation(op string) {
	if m != nil {
		m.MemberMutations.WithLabelValues(op).Inc()
	}
}

// IncFailure records a failed operation.
func (m *Metrics) IncFailure(kind string) {
	if m != nil {
		m.OperationFailures.WithLabelValues(kind).Inc()
	}
}

// ObserveLatency records how long op took.
func (m *Metrics) ObserveLatency(op string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}
