package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	EndpointLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orblab",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of backtest API endpoints",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint"},
	)

	EndpointErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orblab",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by backtest API endpoint and code",
		},
		[]string{"endpoint", "code"},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orblab",
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(EndpointLatency, EndpointErrors, RateLimited)
	})
}
