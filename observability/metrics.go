package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RPCMetrics aggregates the RPC-facing Prometheus collectors. Registration
// runs once per process; repeated Metrics() calls return the same set.
type RPCMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metrics     *RPCMetrics
)

// Metrics returns the process-wide RPC metric set, registering the collectors
// on first use.
func Metrics() *RPCMetrics {
	metricsOnce.Do(func() {
		metrics = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stayer",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "JSON-RPC requests by method and outcome.",
			}, []string{"method", "outcome"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stayer",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "JSON-RPC request latency by method.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(metrics.requests, metrics.duration)
	})
	return metrics
}

// ObserveRequest records one completed RPC call.
func (m *RPCMetrics) ObserveRequest(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}
