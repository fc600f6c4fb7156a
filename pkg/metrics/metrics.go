package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	JobsInQueue         *prometheus.GaugeVec
	JobsTotal           *prometheus.CounterVec
	JobDuration         *prometheus.HistogramVec
	PagesCrawledTotal   *prometheus.CounterVec
	CrawlDuration       *prometheus.HistogramVec
	StepsTotal          *prometheus.CounterVec
	StepDuration        *prometheus.HistogramVec
	AIRequestsTotal     *prometheus.CounterVec
	BugsReportedTotal   prometheus.Counter
}

// New registers every metric with reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		JobsInQueue: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobs_in_queue",
			Help: "Current number of queued jobs per kind.",
		}, []string{"kind"}),
		JobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_total",
			Help: "Total number of handled jobs.",
		}, []string{"kind", "status"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Duration of job handling.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 900},
		}, []string{"kind"}),
		PagesCrawledTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pages_crawled_total",
			Help: "Total number of crawl page attempts.",
		}, []string{"status"}),
		CrawlDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawl_duration_seconds",
			Help:    "Duration of whole-site crawls.",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120},
		}, []string{"domain"}),
		StepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "test_steps_total",
			Help: "Total number of executed test steps.",
		}, []string{"type", "outcome"}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "test_step_duration_seconds",
			Help:    "Duration of executed test steps.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		AIRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "AI completions by purpose and outcome (ai or fallback).",
		}, []string{"purpose", "outcome"}),
		BugsReportedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "bugs_reported_total",
			Help: "Total number of bug records written.",
		}),
	}
}

// ObserveJob records the outcome and duration of a job.
func (m *Metrics) ObserveJob(kind, status string, d time.Duration) {
	m.JobsTotal.WithLabelValues(kind, status).Inc()
	m.JobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveStep records one executed test step.
func (m *Metrics) ObserveStep(stepType string, passed bool, d time.Duration) {
	outcome := "passed"
	if !passed {
		outcome = "failed"
	}
	m.StepsTotal.WithLabelValues(stepType, outcome).Inc()
	m.StepDuration.WithLabelValues(stepType).Observe(d.Seconds())
}

// IncAI counts an AI-backed generation and whether the fallback was used.
func (m *Metrics) IncAI(purpose, outcome string) {
	m.AIRequestsTotal.WithLabelValues(purpose, outcome).Inc()
}
