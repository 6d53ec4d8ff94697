package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce       sync.Once
	apiRequestsTotal   *prometheus.CounterVec
	apiLatencySeconds  *prometheus.HistogramVec
	apiErrorsTotal     *prometheus.CounterVec
	judgeVerdictsTotal *prometheus.CounterVec
	sweepRunsTotal     *prometheus.CounterVec
	autoSubmittedTotal prometheus.Counter
	sweepDuration      prometheus.Histogram
	notificationsTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors shared by handlers and services.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_api_requests_total",
			Help: "API requests served, grouped by surface, route and status.",
		}, []string{"surface", "method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "judge_api_latency_seconds",
			Help:    "Latency distribution for API requests, including compile and run time.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"surface", "method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_api_errors_total",
			Help: "Error responses (status >= 400) returned by API endpoints.",
		}, []string{"surface", "method", "route", "status"})

		judgeVerdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_submissions_total",
			Help: "Graded submissions grouped by language and final status.",
		}, []string{"language", "status"})

		sweepRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autosubmit_sweeps_total",
			Help: "Auto-submission sweeps grouped by outcome.",
		}, []string{"outcome"})

		autoSubmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autosubmit_submissions_total",
			Help: "Drafts promoted to submissions by the scheduler.",
		})

		sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autosubmit_sweep_duration_seconds",
			Help:    "Duration of auto-submission sweeps.",
			Buckets: prometheus.DefBuckets,
		})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notifications persisted and fanned out, grouped by type.",
		}, []string{"type"})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			judgeVerdictsTotal, sweepRunsTotal, autoSubmittedTotal, sweepDuration,
			notificationsTotal,
		)
	})
}

// APIRequests exposes the request counter.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the request latency histogram.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the error response counter.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// JudgeVerdicts counts graded submissions.
func JudgeVerdicts() *prometheus.CounterVec {
	RegisterMetrics()
	return judgeVerdictsTotal
}

// SweepRuns counts sweeps by outcome (completed, skipped, failed).
func SweepRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return sweepRunsTotal
}

// AutoSubmitted counts promoted drafts.
func AutoSubmitted() prometheus.Counter {
	RegisterMetrics()
	return autoSubmittedTotal
}

// SweepDuration observes sweep wall-clock time.
func SweepDuration() prometheus.Histogram {
	RegisterMetrics()
	return sweepDuration
}

// NotificationsPublished counts notifications by type.
func NotificationsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsTotal
}
