// Package metrics holds the Prometheus collectors of the allocation service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run status label values.
const (
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusFallback = "fallback"
)

// Metrics groups the collectors for allocation runs.
type Metrics struct {
	Runs           *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	AllocationDays prometheus.Histogram
	BatchSize      prometheus.Histogram
	BatchDuration  prometheus.Histogram
	InFlight       prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "allocator_runs_total",
				Help: "Total number of allocation runs by status and error kind",
			},
			[]string{"status", "kind"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "allocator_run_duration_seconds",
				Help:    "Duration of a single allocation run in seconds",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		AllocationDays: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "allocator_allocation_days",
				Help:    "Number of days in returned allocation vectors",
				Buckets: []float64{1, 5, 10, 21, 63, 126, 252},
			},
		),
		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "allocator_batch_size",
				Help:    "Number of requests per batch call",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "allocator_batch_duration_seconds",
				Help:    "Duration of a whole batch call in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "allocator_runs_in_flight",
				Help: "Number of allocation requests currently being served",
			},
		),
	}

	reg.MustRegister(m.Runs, m.RunDuration, m.AllocationDays, m.BatchSize, m.BatchDuration, m.InFlight)
	return m
}

// ObserveRun records one finished run. kind is empty for successful runs.
func (m *Metrics) ObserveRun(status, kind string, elapsed time.Duration, days int) {
	m.Runs.WithLabelValues(status, kind).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	if days > 0 {
		m.AllocationDays.Observe(float64(days))
	}
}

// ObserveRejected counts a request that failed before the pipeline ran. It has no
// run duration.
func (m *Metrics) ObserveRejected(kind string) {
	m.Runs.WithLabelValues(StatusFailed, kind).Inc()
}

// ObserveBatch records the size and total wall time of a batch call.
func (m *Metrics) ObserveBatch(size int, elapsed time.Duration) {
	m.BatchSize.Observe(float64(size))
	m.BatchDuration.Observe(elapsed.Seconds())
}

// Track increments the in-flight gauge and returns the matching decrement.
func (m *Metrics) Track() func() {
	m.InFlight.Inc()
	return m.InFlight.Dec
}
