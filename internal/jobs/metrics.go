// Package jobs runs periodic maintenance tasks and reports them to Prometheus.
package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricRuns          = "background_job_runs_total"
	MetricDuration      = "background_job_duration_seconds"
	MetricItemsAffected = "background_job_items_affected_total"
	MetricLastSuccess   = "background_job_last_success_timestamp_seconds"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusTimeout = "timeout"
)

// Metrics contains Prometheus collectors shared by every Job.
// All operations are thread-safe.
type Metrics struct {
	runs          *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	itemsAffected *prometheus.CounterVec
	lastSuccess   *prometheus.GaugeVec
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRuns,
				Help: "Total number of background job runs by job and status",
			},
			[]string{"job", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricDuration,
				Help:    "Background job run duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"job"},
		),
		itemsAffected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricItemsAffected,
				Help: "Total number of records a background job removed or rewrote",
			},
			[]string{"job"},
		),
		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricLastSuccess,
				Help: "Unix time of the last successful run",
			},
			[]string{"job"},
		),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.runs,
		m.duration,
		m.itemsAffected,
		m.lastSuccess,
	}
}

func (m *Metrics) observe(job, status string, seconds float64, affected int, finishedUnix float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job, status).Inc()
	m.duration.WithLabelValues(job).Observe(seconds)
	if affected > 0 {
		m.itemsAffected.WithLabelValues(job).Add(float64(affected))
	}
	if status == StatusSuccess {
		m.lastSuccess.WithLabelValues(job).Set(finishedUnix)
	}
}
