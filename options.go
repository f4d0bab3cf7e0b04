package taskflow

import (
	"time"

	"github.com/taskflow-go/taskflow/internal/core"
)

// SystemConfig is the facade-layer configuration a TaskSystem is built
// from. It is the shape config.Load decodes a YAML document into
// (spec.md §6: "environment variables, config files... are consumed by
// the facade layer"); the engine itself never reads configuration.
type SystemConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `yaml:"concurrency"`

	// QueueNames lists the queues workers drain, in priority order.
	QueueNames []string `yaml:"queue_names"`

	// QueueCapacity bounds outstanding tasks across all named queues; 0
	// means unbounded.
	QueueCapacity int `yaml:"queue_capacity"`

	// DequeueTimeout bounds each poll for a ready task.
	DequeueTimeout time.Duration `yaml:"dequeue_timeout"`

	// CancelGrace is the grace window a worker waits after requesting
	// cancellation before abandoning an attempt.
	CancelGrace time.Duration `yaml:"cancel_grace"`

	// HeartbeatInterval is the cadence Monitor considers a worker healthy
	// within 3x of.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// RetryOnHandlerNotFound honors retry rules when task_name has no
	// registered handler.
	RetryOnHandlerNotFound bool `yaml:"retry_on_handler_not_found"`

	// ShutdownTimeout bounds TaskSystem.Stop's graceful drain.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// CleanupInterval and CleanupMaxAge govern the background sweep that
	// purges terminal result-backend entries.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	CleanupMaxAge   time.Duration `yaml:"cleanup_max_age"`
}

// DefaultSystemConfig mirrors core.DefaultPoolConfig's defaults, adding
// the facade-only knobs.
func DefaultSystemConfig() SystemConfig {
	p := core.DefaultPoolConfig()
	return SystemConfig{
		Concurrency:            p.Concurrency,
		QueueNames:             p.QueueNames,
		QueueCapacity:          0,
		DequeueTimeout:         p.DequeueTimeout,
		CancelGrace:            p.CancelGrace,
		HeartbeatInterval:      p.HeartbeatInterval,
		RetryOnHandlerNotFound: p.RetryOnHandlerNotFound,
		ShutdownTimeout:        30 * time.Second,
		CleanupInterval:        time.Minute,
		CleanupMaxAge:          24 * time.Hour,
	}
}

// Option customizes a TaskSystem at construction time.
type Option func(*TaskSystem)

// WithBackend replaces the default in-memory ResultBackend — e.g. with
// redisbackend.New or postgresbackend.New.
func WithBackend(backend core.ResultBackend) Option {
	return func(s *TaskSystem) { s.backend = backend }
}

// WithLogger injects a Logger (e.g. NewSlogLogger) used by the pool and
// task contexts.
func WithLogger(logger Logger) Option {
	return func(s *TaskSystem) { s.logger = logger }
}

// WithMetricsSink injects a MetricsSink (e.g. NewProviderMetricsSink over
// metrics.PrometheusProvider, or NewOtelMetricsSink), recorded per job
// start/success/failure/retry.
func WithMetricsSink(sink MetricsSink) Option {
	return func(s *TaskSystem) { s.metricsSink = sink }
}

// WithExecutor replaces the default goroutine Executor chain/chord
// orchestrators and AsyncResult.Then monitors run on.
func WithExecutor(executor Executor) Option {
	return func(s *TaskSystem) { s.executor = executor }
}

// WithTracer enables an OpenTelemetry span per task attempt, named
// tracerName.
func WithTracer(tracerName string) Option {
	return func(s *TaskSystem) { s.tracerName = tracerName }
}
