// Package metrics holds the transport-level Prometheus metrics. Module
// metrics (factor latency, assessment outcomes, ledger attempts) live in
// their modules' metrics subpackages; this package only measures the HTTP
// surface itself.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP counts and times inbound requests by route pattern.
type HTTP struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewHTTP creates and registers the HTTP metrics.
func NewHTTP() *HTTP {
	return &HTTP{
		Requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_http_requests_total",
			Help: "Inbound HTTP requests by route, method, and status code.",
		}, []string{"route", "method", "status"}),
		Duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbiter_http_request_duration_seconds",
			Help:    "Time to serve HTTP requests by route and method.",
			Buckets: []float64{.005, .025, .1, .5, 1, 5, 30, 120},
		}, []string{"route", "method"}),
	}
}

// Observe records one served request. The event-stream route passes the time
// the connection stayed open, which is why the largest bucket is generous.
func (m *HTTP) Observe(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.Duration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
