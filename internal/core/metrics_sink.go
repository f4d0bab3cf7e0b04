package core

import "time"

// WorkerMetrics is the per-worker snapshot spec.md §6.5 names.
type WorkerMetrics struct {
	JobsProcessed    int64
	TotalProcessing  time.Duration
	IdleTime         time.Duration
	ContextSwitches  int64
}

// MetricsSink is the optional monitoring trait from spec.md §6.5: a pure
// sink with no back-pressure on the engine. core.NoopMetricsSink is the
// default; NewOtelMetricsSink and NewProviderMetricsSink (over any
// metrics.Provider, e.g. metrics.PrometheusProvider) are optional adapters
// injected with Pool.SetMetricsSink.
type MetricsSink interface {
	UpdateWorkerMetrics(workerID string, m WorkerMetrics)
	RecordJobStarted(taskName string)
	RecordJobSucceeded(taskName string, d time.Duration)
	RecordJobFailed(taskName string, d time.Duration, kind Kind)
	RecordJobRetried(taskName string, attempt int)
}

// NoopMetricsSink discards everything.
type NoopMetricsSink struct{}

func (NoopMetricsSink) UpdateWorkerMetrics(string, WorkerMetrics)          {}
func (NoopMetricsSink) RecordJobStarted(string)                           {}
func (NoopMetricsSink) RecordJobSucceeded(string, time.Duration)          {}
func (NoopMetricsSink) RecordJobFailed(string, time.Duration, Kind)       {}
func (NoopMetricsSink) RecordJobRetried(string, int)                      {}
