package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/taskflow-go/taskflow/metrics"
)

func TestProviderMetricsSink_RecordsCountersAndDuration(t *testing.T) {
	provider := metrics.NewBasicProvider()
	sink := NewProviderMetricsSink(provider)

	sink.RecordJobStarted("echo")
	sink.RecordJobStarted("echo")
	sink.RecordJobSucceeded("echo", 250*time.Millisecond)
	sink.RecordJobFailed("echo", 10*time.Millisecond, KindInternal)
	sink.RecordJobRetried("echo", 2)

	started := provider.Counter("taskflow_jobs_started_total").(*metrics.BasicCounter)
	succeeded := provider.Counter("taskflow_jobs_succeeded_total").(*metrics.BasicCounter)
	failed := provider.Counter("taskflow_jobs_failed_total").(*metrics.BasicCounter)
	retried := provider.Counter("taskflow_jobs_retried_total").(*metrics.BasicCounter)
	duration := provider.Histogram("taskflow_job_duration_seconds").(*metrics.BasicHistogram)
	active := provider.UpDownCounter("taskflow_active_workers").(*metrics.BasicUpDownCounter)

	assert.Equal(t, int64(2), started.Snapshot())
	assert.Equal(t, int64(1), succeeded.Snapshot())
	assert.Equal(t, int64(1), failed.Snapshot())
	assert.Equal(t, int64(1), retried.Snapshot())
	assert.Equal(t, int64(1), duration.Snapshot().Count)
	assert.Equal(t, int64(0), active.Snapshot()) // +2 started, -2 for one success and one failure
}
