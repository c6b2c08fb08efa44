package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	jobOutcomeSuccess = "success"
	jobOutcomeFailure = "failure"
)

// CronJobMetrics tracks scheduled job runs. A nil receiver is a no-op.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	skipped     prometheus.Counter
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dropship_cron_job_runs_total",
			Help: "Cron job executions by outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dropship_cron_job_duration_seconds",
			Help:    "Duration of cron jobs in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dropship_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dropship_cron_cycles_skipped_total",
			Help: "Cron cycles skipped because another worker held the lock.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.skipped)
	return m
}

// ObserveRun records one job execution; a non-nil err counts as a failure.
func (m *CronJobMetrics) ObserveRun(job string, started time.Time, err error) {
	if m == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(time.Since(started).Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, jobOutcomeFailure).Inc()
		return
	}
	m.runs.WithLabelValues(job, jobOutcomeSuccess).Inc()
	m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
}

func (m *CronJobMetrics) IncSkipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}
