package core

import (
	"time"

	"github.com/taskflow-go/taskflow/metrics"
)

// ProviderMetricsSink adapts any metrics.Provider (BasicProvider,
// PrometheusProvider) into the engine's narrow MetricsSink, translating
// each worker-pool event into the three generic instrument kinds
// metrics.Provider exposes.
type ProviderMetricsSink struct {
	provider metrics.Provider

	jobsStarted   metrics.Counter
	jobsSucceeded metrics.Counter
	jobsFailed    metrics.Counter
	jobsRetried   metrics.Counter
	jobDuration   metrics.Histogram
	activeWorkers metrics.UpDownCounter
}

// NewProviderMetricsSink pre-creates every instrument it needs against
// provider so the first recorded event never pays instrument-creation
// cost under lock contention.
func NewProviderMetricsSink(provider metrics.Provider) *ProviderMetricsSink {
	return &ProviderMetricsSink{
		provider:      provider,
		jobsStarted:   provider.Counter("taskflow_jobs_started_total"),
		jobsSucceeded: provider.Counter("taskflow_jobs_succeeded_total"),
		jobsFailed:    provider.Counter("taskflow_jobs_failed_total"),
		jobsRetried:   provider.Counter("taskflow_jobs_retried_total"),
		jobDuration:   provider.Histogram("taskflow_job_duration_seconds", metrics.WithUnit("seconds")),
		activeWorkers: provider.UpDownCounter("taskflow_active_workers"),
	}
}

// UpdateWorkerMetrics implements MetricsSink.
func (s *ProviderMetricsSink) UpdateWorkerMetrics(workerID string, m WorkerMetrics) {
	_ = workerID
}

// RecordJobStarted implements MetricsSink.
func (s *ProviderMetricsSink) RecordJobStarted(taskName string) {
	s.jobsStarted.Add(1)
	s.activeWorkers.Add(1)
}

// RecordJobSucceeded implements MetricsSink.
func (s *ProviderMetricsSink) RecordJobSucceeded(taskName string, d time.Duration) {
	s.jobsSucceeded.Add(1)
	s.jobDuration.Record(d.Seconds())
	s.activeWorkers.Add(-1)
}

// RecordJobFailed implements MetricsSink.
func (s *ProviderMetricsSink) RecordJobFailed(taskName string, d time.Duration, kind Kind) {
	s.jobsFailed.Add(1)
	s.activeWorkers.Add(-1)
}

// RecordJobRetried implements MetricsSink.
func (s *ProviderMetricsSink) RecordJobRetried(taskName string, attempt int) {
	s.jobsRetried.Add(1)
}
