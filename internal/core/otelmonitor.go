package core

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// OtelMetricsSink is a MetricsSink backed by an OpenTelemetry meter,
// caching its instruments the way
// itsneelabh-gomind/telemetry/metrics.go's MetricInstruments does —
// double-checked locking around a name->instrument map, created lazily
// on first use rather than eagerly.
type OtelMetricsSink struct {
	meter metric.Meter

	mu          sync.RWMutex
	counters    map[string]metric.Int64Counter
	histograms  map[string]metric.Float64Histogram
	updowns     map[string]metric.Int64UpDownCounter
}

// NewOtelMetricsSink builds a MetricsSink against the named meter from
// the global OpenTelemetry MeterProvider.
func NewOtelMetricsSink(meterName string) *OtelMetricsSink {
	return &OtelMetricsSink{
		meter:      otel.Meter(meterName),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		updowns:    make(map[string]metric.Int64UpDownCounter),
	}
}

func (s *OtelMetricsSink) counter(name string) metric.Int64Counter {
	s.mu.RLock()
	c, ok := s.counters[name]
	s.mu.RUnlock()
	if ok {
		return c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.counters[name]; ok {
		return c
	}
	c, _ = s.meter.Int64Counter(name)
	s.counters[name] = c
	return c
}

func (s *OtelMetricsSink) histogram(name string) metric.Float64Histogram {
	s.mu.RLock()
	h, ok := s.histograms[name]
	s.mu.RUnlock()
	if ok {
		return h
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok = s.histograms[name]; ok {
		return h
	}
	h, _ = s.meter.Float64Histogram(name, metric.WithUnit("s"))
	s.histograms[name] = h
	return h
}

func (s *OtelMetricsSink) updown(name string) metric.Int64UpDownCounter {
	s.mu.RLock()
	u, ok := s.updowns[name]
	s.mu.RUnlock()
	if ok {
		return u
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok = s.updowns[name]; ok {
		return u
	}
	u, _ = s.meter.Int64UpDownCounter(name)
	s.updowns[name] = u
	return u
}

// UpdateWorkerMetrics implements MetricsSink; per-worker gauges are left
// to Monitor.WorkerStats, which already exposes them, so this is a no-op
// to avoid double-reporting the same data under two names.
func (s *OtelMetricsSink) UpdateWorkerMetrics(workerID string, m WorkerMetrics) {}

// RecordJobStarted implements MetricsSink.
func (s *OtelMetricsSink) RecordJobStarted(taskName string) {
	attrs := metric.WithAttributes(attribute.String("task_name", taskName))
	s.counter("taskflow.jobs.started").Add(context.Background(), 1, attrs)
	s.updown("taskflow.jobs.active").Add(context.Background(), 1, attrs)
}

// RecordJobSucceeded implements MetricsSink.
func (s *OtelMetricsSink) RecordJobSucceeded(taskName string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("task_name", taskName))
	s.counter("taskflow.jobs.succeeded").Add(context.Background(), 1, attrs)
	s.histogram("taskflow.job.duration").Record(context.Background(), d.Seconds(), attrs)
	s.updown("taskflow.jobs.active").Add(context.Background(), -1, attrs)
}

// RecordJobFailed implements MetricsSink.
func (s *OtelMetricsSink) RecordJobFailed(taskName string, d time.Duration, kind Kind) {
	attrs := metric.WithAttributes(
		attribute.String("task_name", taskName),
		attribute.String("kind", string(kind)),
	)
	s.counter("taskflow.jobs.failed").Add(context.Background(), 1, attrs)
	s.updown("taskflow.jobs.active").Add(context.Background(), -1, attrs)
}

// RecordJobRetried implements MetricsSink.
func (s *OtelMetricsSink) RecordJobRetried(taskName string, attempt int) {
	attrs := metric.WithAttributes(
		attribute.String("task_name", taskName),
		attribute.Int("attempt", attempt),
	)
	s.counter("taskflow.jobs.retried").Add(context.Background(), 1, attrs)
}

// OtelSpanRecorder starts and ends a span per task attempt. It is optional:
// once injected with Pool.SetTracer, executeAttempt calls StartAttemptSpan
// for every attempt and ends the span when the attempt returns.
type OtelSpanRecorder struct {
	tracer trace.Tracer
}

// NewOtelSpanRecorder builds a recorder against the named tracer from the
// global OpenTelemetry TracerProvider.
func NewOtelSpanRecorder(tracerName string) *OtelSpanRecorder {
	return &OtelSpanRecorder{tracer: otel.Tracer(tracerName)}
}

// StartAttemptSpan starts a span named task.task_name for one execution
// attempt, tagging it with task id and attempt number.
func (r *OtelSpanRecorder) StartAttemptSpan(ctx context.Context, task *Task, attempt int) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "task."+task.Name(), trace.WithAttributes(
		attribute.String("task_id", task.ID()),
		attribute.Int("attempt", attempt),
	))
}
