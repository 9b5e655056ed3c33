// Package metrics provides observability for the assessment engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks assessment throughput and factor source behavior. All
// methods are nil-safe so wiring metrics stays optional in tests.
type Metrics struct {
	// Factor fetch latencies by factor and resulting status
	FactorLatency *prometheus.HistogramVec

	// Assessment outcomes by category and recommendation
	AssessmentOutcome *prometheus.CounterVec

	// Overall assess latency including gathering and recording
	AssessLatency prometheus.Histogram

	// Assessments currently in flight
	InFlight prometheus.Gauge

	// Requests answered by attaching to an in-flight run or the archive
	DedupHits prometheus.Counter
}

// New creates a Metrics instance with all assessment metrics registered.
func New() *Metrics {
	return &Metrics{
		FactorLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbiter_factor_fetch_duration_seconds",
			Help:    "Duration of factor source fetches by factor and status",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"factor", "status"}),

		AssessmentOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_assessment_outcomes_total",
			Help: "Total assessments by risk category and recommendation",
		}, []string{"category", "recommendation"}),

		AssessLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_assess_duration_seconds",
			Help:    "Duration of full assessments including gathering and recording",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		InFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "arbiter_assessments_in_flight",
			Help: "Assessments currently being processed",
		}),

		DedupHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_assessment_dedup_hits_total",
			Help: "Requests served from an in-flight run or the archive",
		}),
	}
}

// ObserveFactorLatency records one factor fetch.
func (m *Metrics) ObserveFactorLatency(factor, status string, d time.Duration) {
	if m != nil {
		m.FactorLatency.WithLabelValues(factor, status).Observe(d.Seconds())
	}
}

// IncrementOutcome records a completed assessment.
func (m *Metrics) IncrementOutcome(category, recommendation string) {
	if m != nil {
		m.AssessmentOutcome.WithLabelValues(category, recommendation).Inc()
	}
}

// ObserveAssessLatency records the total assess duration.
func (m *Metrics) ObserveAssessLatency(d time.Duration) {
	if m != nil {
		m.AssessLatency.Observe(d.Seconds())
	}
}

// TrackInFlight increments the in-flight gauge and returns the matching
// decrement.
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}

// IncrementDedup records a deduplicated request.
func (m *Metrics) IncrementDedup() {
	if m != nil {
		m.DedupHits.Inc()
	}
}
