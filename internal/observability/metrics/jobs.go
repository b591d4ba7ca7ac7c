package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics contains Prometheus metrics for the bulk job pipeline.
type JobMetrics struct {
	jobOutcomesTotal *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	emailsSentTotal  *prometheus.CounterVec
}

// NewJobMetrics creates job pipeline metrics and registers them with the
// registry.
func NewJobMetrics(registry *prometheus.Registry) (*JobMetrics, error) {
	m := &JobMetrics{
		jobOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadboard_job_outcomes_total",
			Help: "Number of finished bulk jobs by action and outcome",
		}, []string{"action", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadboard_job_duration_seconds",
			Help:    "Bulk job execution time by action",
			Buckets: []float64{0.1, 1, 5, 30, 60, 300, 900},
		}, []string{"action"}),
		emailsSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadboard_emails_sent_total",
			Help: "Number of bulk emails delivered by sender identity",
		}, []string{"sender"}),
	}

	for _, c := range []prometheus.Collector{m.jobOutcomesTotal, m.jobDuration, m.emailsSentTotal} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// JobFinished counts one finished job, outcome is "completed" or "failed".
func (m *JobMetrics) JobFinished(action, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.jobOutcomesTotal.WithLabelValues(action, outcome).Inc()
	m.jobDuration.WithLabelValues(action).Observe(seconds)
}

// EmailSent counts one delivered bulk email.
func (m *JobMetrics) EmailSent(sender string) {
	if m == nil {
		return
	}
	m.emailsSentTotal.WithLabelValues(sender).Inc()
}
