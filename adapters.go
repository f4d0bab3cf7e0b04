package taskflow

import (
	"log/slog"

	"github.com/taskflow-go/taskflow/internal/core"
	"github.com/taskflow-go/taskflow/metrics"
)

// NewSlogLogger wraps logger (nil falls back to slog.Default()) as a
// Logger usable with WithLogger.
func NewSlogLogger(logger *slog.Logger) Logger { return core.NewSlogLogger(logger) }

// NewJSONSlogLogger builds a Logger writing JSON lines to stderr at level.
func NewJSONSlogLogger(level slog.Level) Logger { return core.NewJSONSlogLogger(level) }

// NewTextSlogLogger builds a Logger writing human-readable lines to
// stderr at level.
func NewTextSlogLogger(level slog.Level) Logger { return core.NewTextSlogLogger(level) }

// NewProviderMetricsSink adapts a metrics.Provider (metrics.BasicProvider,
// metrics.PrometheusProvider, ...) into a MetricsSink usable with
// WithMetricsSink.
func NewProviderMetricsSink(provider metrics.Provider) MetricsSink {
	return core.NewProviderMetricsSink(provider)
}

// NewOtelMetricsSink adapts an OpenTelemetry meter named meterName into a
// MetricsSink usable with WithMetricsSink.
func NewOtelMetricsSink(meterName string) MetricsSink {
	return core.NewOtelMetricsSink(meterName)
}
