// Command taskflow-example is a runnable demonstration of a TaskSystem,
// wiring configuration (spf13/viper + config.Load), a slog logger, a
// Prometheus metrics sink, and a handful of demo handlers, the way
// cklxx-elephant.ai/cmd/cobra_cli.go wires cobra commands against a
// viper-resolved config before constructing its agent.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/taskflow-go/taskflow"
	"github.com/taskflow-go/taskflow/config"
	"github.com/taskflow-go/taskflow/metrics"
	"github.com/taskflow-go/taskflow/router"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "taskflow-example",
		Short: "Run a demo taskflow worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (optional)")
	root.AddCommand(newRunCommand(&configPath))
	return root
}

func newRunCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the demo worker pool and submit sample work",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), *configPath)
		},
	}
}

// viperSystemConfig resolves configPath through viper (env override
// support, e.g. TASKFLOW_CONFIG) before handing the resolved path to
// config.Load.
func viperSystemConfig(configPath string) (taskflow.SystemConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("taskflow")
	v.AutomaticEnv()
	if configPath == "" {
		configPath = v.GetString("config")
	}
	return config.Load(configPath)
}

func runDemo(ctx context.Context, configPath string) error {
	cfg, err := viperSystemConfig(configPath)
	if err != nil {
		return err
	}

	logger := taskflow.NewTextSlogLogger(slog.LevelInfo)
	registry := prometheus.NewRegistry()
	metricsSink := taskflow.NewProviderMetricsSink(metrics.NewPrometheusProvider(registry))

	tp, mp := setupOtel("taskflow-example")
	defer shutdownOtel(tp, mp)

	system := taskflow.New(cfg,
		taskflow.WithLogger(logger),
		taskflow.WithMetricsSink(metricsSink),
		taskflow.WithTracer("taskflow-example"),
	)

	system.RegisterHandlerFunc("echo", echoHandler)
	system.RegisterHandlerFunc("flaky", flakyHandler)

	rt := router.NewRouter()
	if _, err := rt.Subscribe("demo.#", logTopicCallback(logger), nil, 0); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	system.Start(runCtx)

	if err := submitSamples(system, rt); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-time.After(5 * time.Second):
	}

	system.ShutdownGraceful(cfg.ShutdownTimeout)
	return nil
}

// setupOtel registers real SDK-backed tracer/meter providers globally, the
// way itsneelabh-gomind/telemetry/otel.go wires a service's telemetry
// pipeline — without an OTLP exporter, since none is in this module's
// dependency set; spans and metrics are recorded in-process and discarded
// on shutdown rather than exported, which is enough to exercise
// taskflow.WithTracer and OtelMetricsSink against real SDK types instead
// of the package-level no-op providers.
func setupOtel(serviceName string) (*sdktrace.TracerProvider, *sdkmetric.MeterProvider) {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return tp, mp
}

func shutdownOtel(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = tp.Shutdown(ctx)
	_ = mp.Shutdown(ctx)
}

func submitSamples(system *taskflow.TaskSystem, rt *router.Router) error {
	payload := taskflow.NewPayload()
	payload.Set("message", "hello from taskflow")

	result, err := system.Client().SubmitTask("echo", payload, taskflow.DefaultConfig())
	if err != nil {
		return fmt.Errorf("submit echo: %w", err)
	}
	if out, err := result.Get(3 * time.Second); err == nil {
		if msg, ok := out.Get("message"); ok {
			_ = rt.Route(router.Message{Topic: "demo.echo.completed", Payload: msg})
		}
	}

	flakyPayload := taskflow.NewPayload()
	flakyCfg := taskflow.DefaultConfig()
	flakyCfg.MaxRetries = 3
	if _, err := system.Client().SubmitTask("flaky", flakyPayload, flakyCfg); err != nil {
		return fmt.Errorf("submit flaky: %w", err)
	}
	return nil
}

func echoHandler(ctx context.Context, task *taskflow.Task, tc *taskflow.TaskContext) (*taskflow.Payload, error) {
	out := taskflow.NewPayload()
	if msg, ok := task.Payload().Get("message"); ok {
		out.Set("message", msg)
	}
	return out, nil
}

// flakyHandler fails its first two attempts to exercise the retry path,
// tracked per task id via TaskContext attempt number rather than any
// shared mutable state.
func flakyHandler(ctx context.Context, task *taskflow.Task, tc *taskflow.TaskContext) (*taskflow.Payload, error) {
	if tc.Attempt() < 3 {
		return nil, errors.New("transient failure")
	}
	return taskflow.NewPayload(), nil
}

func logTopicCallback(logger taskflow.Logger) router.Callback {
	return func(msg router.Message) error {
		logger.Log(taskflow.LevelInfo, fmt.Sprintf("topic %s: %v", msg.Topic, msg.Payload))
		return nil
	}
}
