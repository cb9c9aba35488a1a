package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// UpstreamRequestsTotal counts calls to hosted services by service and result.
	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trashtalkers",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Total number of requests sent to hosted services, labeled by service and result.",
	}, []string{"service", "result"})

	// UpstreamDurationSeconds is the round-trip time of a hosted service call.
	UpstreamDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trashtalkers",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Round-trip time of requests sent to hosted services.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"service"})

	// PipelineRunsTotal counts submission pipeline runs by final state.
	PipelineRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trashtalkers",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Total number of submission pipeline runs, labeled by final state.",
	}, []string{"state"})

	// RateLimitedTotal counts proxy requests rejected by the per-client limiter.
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trashtalkers",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Total number of proxy requests rejected by the per-client rate limiter.",
	})
)

// Register registers the application metrics with the default Prometheus
// registry. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			UpstreamRequestsTotal,
			UpstreamDurationSeconds,
			PipelineRunsTotal,
			RateLimitedTotal,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
