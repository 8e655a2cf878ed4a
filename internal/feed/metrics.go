package feed

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricRankRequests      = "feed_rank_requests_total"
	MetricRankDuration      = "feed_rank_duration_seconds"
	MetricDegraded          = "feed_degraded_total"
	MetricCandidatesSkipped = "feed_candidates_skipped_total"
	MetricExplorationPicks  = "feed_exploration_picks_total"
	MetricFeedbackSignals   = "feed_feedback_signals_total"
)

// Rank outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeInvalid  = "invalid"
	OutcomeEmpty    = "empty"
)

// Metrics contains Prometheus collectors for the orchestrator.
// All operations are thread-safe.
type Metrics struct {
	rankRequests      *prometheus.CounterVec
	rankDuration      prometheus.Histogram
	degraded          *prometheus.CounterVec
	candidatesSkipped *prometheus.CounterVec
	explorationPicks  prometheus.Counter
	feedbackSignals   *prometheus.CounterVec
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		rankRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRankRequests,
				Help: "Total number of feed rank requests by outcome",
			},
			[]string{"outcome"},
		),
		rankDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricRankDuration,
				Help:    "Feed ranking duration in seconds, repository reads included",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		degraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricDegraded,
				Help: "Total number of dependency failures that degraded a feed request",
			},
			[]string{"dependency"},
		),
		candidatesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCandidatesSkipped,
				Help: "Total number of candidates removed before ranking by reason",
			},
			[]string{"reason"},
		),
		explorationPicks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricExplorationPicks,
				Help: "Total number of exploration picks served",
			},
		),
		feedbackSignals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricFeedbackSignals,
				Help: "Total number of feedback signals recorded by type",
			},
			[]string{"type"},
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
		m.rankRequests,
		m.rankDuration,
		m.degraded,
		m.candidatesSkipped,
		m.explorationPicks,
		m.feedbackSignals,
	}
}

// The methods below accept a nil receiver so a Service can run without
// metrics.

func (m *Metrics) observeRank(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.rankRequests.WithLabelValues(outcome).Inc()
	m.rankDuration.Observe(seconds)
}

func (m *Metrics) incDegraded(dependency string) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(dependency).Inc()
}

func (m *Metrics) addSkipped(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.candidatesSkipped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) addExplorationPicks(n int) {
	if m == nil || n == 0 {
		return
	}
	m.explorationPicks.Add(float64(n))
}

func (m *Metrics) incFeedback(ft string) {
	if m == nil {
		return
	}
	m.feedbackSignals.WithLabelValues(ft).Inc()
}
