// Package metrics provides observability for ledger recording.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks how assessments reach the ledger. All methods are nil-safe
// so wiring metrics stays optional in tests.
type Metrics struct {
	// Submit attempts consumed per Record call, including the successful one
	SubmitAttempts prometheus.Histogram

	// Record outcomes: recorded, deduped, rejected, unavailable
	RecordOutcome *prometheus.CounterVec

	// End-to-end Record latency including retries
	RecordLatency prometheus.Histogram
}

// New creates a Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		SubmitAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_ledger_submit_attempts",
			Help:    "Ledger submit attempts consumed per recording",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		}),

		RecordOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_ledger_record_outcomes_total",
			Help: "Total ledger recording outcomes",
		}, []string{"outcome"}),

		RecordLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_ledger_record_duration_seconds",
			Help:    "Duration of ledger recording including retries",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// ObserveAttempts records how many submit attempts one recording consumed.
func (m *Metrics) ObserveAttempts(n int) {
	if m != nil {
		m.SubmitAttempts.Observe(float64(n))
	}
}

// IncrementOutcome records a recording outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.RecordOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveLatency records the total recording duration.
func (m *Metrics) ObserveLatency(d time.Duration) {
	if m != nil {
		m.RecordLatency.Observe(d.Seconds())
	}
}
