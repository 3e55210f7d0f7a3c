package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	backtests   *prometheus.CounterVec
	trades      *prometheus.CounterVec
	skips       *prometheus.CounterVec
	finalEquity *prometheus.GaugeVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		backtests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orblab_backtests_total",
				Help: "Total number of backtest runs by outcome",
			},
			[]string{"symbol", "status"},
		),
		trades: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orblab_trades_total",
				Help: "Closed simulated trades by direction and exit reason",
			},
			[]string{"direction", "exit_reason"},
		),
		skips: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orblab_skipped_entries_total",
				Help: "Days or signals skipped during replays",
			},
			[]string{"reason"},
		),
		finalEquity: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orblab_final_equity",
				Help: "Final capital of the latest run for a symbol",
			},
			[]string{"symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orblab_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orblab_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
	}
}

// RecordBacktest counts a finished run.
func (r *Recorder) RecordBacktest(symbol, status string) {
	r.backtests.WithLabelValues(symbol, status).Inc()
}

// RecordTrade counts a closed trade.
func (r *Recorder) RecordTrade(direction, exitReason string) {
	r.trades.WithLabelValues(direction, exitReason).Inc()
}

// RecordSkip counts a skipped day or entry.
func (r *Recorder) RecordSkip(reason string) {
	r.skips.WithLabelValues(reason).Inc()
}

// RecordFinalEquity stores the final capital of a run.
func (r *Recorder) RecordFinalEquity(symbol string, equity float64) {
	r.finalEquity.WithLabelValues(symbol).Set(equity)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Noop discards every observation.
type Noop struct{}

func (Noop) RecordBacktest(string, string)     {}
func (Noop) RecordTrade(string, string)        {}
func (Noop) RecordSkip(string)                 {}
func (Noop) RecordFinalEquity(string, float64) {}
func (Noop) RecordError(string)                {}
func (Noop) RecordLatency(string, float64)     {}
