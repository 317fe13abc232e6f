package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"apti-backend/lib/configutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	ProtocolGrpc = "grpc"
	ProtocolHttp = "http"

	defaultMetricInterval = 30 * time.Second
	exporterTimeout       = 3 * time.Second
)

// Exporter is a single OTLP destination, an exporter without an endpoint is disabled.
type Exporter struct {
	// Protocol is either "grpc" or "http", it defaults to "http".
	Protocol string            `json:"protocol"`
	Endpoint string            `json:"endpoint"`
	Headers  map[string]string `json:"headers"`
}

func (e Exporter) Enabled() bool {
	return e.Endpoint != ""
}

func (e Exporter) protocol() (string, error) {
	switch e.Protocol {
	case "", ProtocolHttp:
		return ProtocolHttp, nil
	case ProtocolGrpc:
		return ProtocolGrpc, nil
	}
	return "", fmt.Errorf("unknown otlp protocol %q", e.Protocol)
}

type Config struct {
	Traces  Exporter `json:"traces"`
	Metrics Exporter `json:"metrics"`
	// MetricInterval is how often metrics are pushed, ex. "30s".
	MetricInterval string `json:"metric_interval"`
	// SampleRatio is the share of root traces that are kept, zero keeps all of them.
	SampleRatio float64 `json:"sample_ratio"`
}

// Telemetry holds the providers installed by Setup, a nil provider means
// its exporter was disabled and the global no-op is still in place.
type Telemetry struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

func (t Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.TracerProvider != nil {
		errs = append(errs, t.TracerProvider.Shutdown(ctx))
	}
	if t.MeterProvider != nil {
		errs = append(errs, t.MeterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

var (
	testEnvironmentLock sync.Mutex
	testEnvironments    = map[string]bool{}
)

// SetupForTesting sets up telemetry for a test binary once per service name,
// a missing telemetry.json5 leaves the global no-op providers in place.
func SetupForTesting(t testing.TB, serviceName string) func() {
	testEnvironmentLock.Lock()
	defer testEnvironmentLock.Unlock()
	if testEnvironments[serviceName] {
		return func() {}
	}
	testEnvironments[serviceName] = true

	ctx := context.Background()
	tel, err := SetupFromEnv(ctx, serviceName)
	if os.IsNotExist(err) {
		return func() {}
	}
	if err != nil {
		t.Fatal(err)
	}
	return func() {
		err := tel.Shutdown(ctx)
		if err != nil {
			t.Fatal(err)
		}
	}
}

// SetupFromEnv searches up the filesystem from the cwd for telemetry.json5
// and sets up telemetry with it.
func SetupFromEnv(ctx context.Context, serviceName string) (Telemetry, error) {
	config, err := configutil.ReadRecursively[Config]("telemetry.json5")
	if err != nil {
		return Telemetry{}, err
	}
	return Setup(ctx, serviceName, config)
}

func Setup(ctx context.Context, serviceName string, config Config) (Telemetry, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*15)
	defer cancel()

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return Telemetry{}, err
	}

	var tel Telemetry
	if config.Traces.Enabled() {
		tel.TracerProvider, err = newTraceProvider(ctx, r, config)
		if err != nil {
			return Telemetry{}, fmt.Errorf("traces: %w", err)
		}
		otel.SetTracerProvider(tel.TracerProvider)
	}
	if config.Metrics.Enabled() {
		tel.MeterProvider, err = newMetricProvider(ctx, r, config)
		if err != nil {
			tel.Shutdown(ctx)
			return Telemetry{}, fmt.Errorf("metrics: %w", err)
		}
		otel.SetMeterProvider(tel.MeterProvider)
	}
	return tel, nil
}

func newTraceProvider(ctx context.Context, r *resource.Resource, config Config) (*trace.TracerProvider, error) {
	protocol, err := config.Traces.protocol()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, exporterTimeout)
	defer cancel()

	var exporter trace.SpanExporter
	switch protocol {
	case ProtocolGrpc:
		exporter, err = otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpointURL(config.Traces.Endpoint),
			otlptracegrpc.WithHeaders(config.Traces.Headers),
		)
	default:
		exporter, err = otlptracehttp.New(
			ctx,
			otlptracehttp.WithEndpointURL(config.Traces.Endpoint),
			otlptracehttp.WithHeaders(config.Traces.Headers),
		)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("tracer export initialized", "protocol", protocol, "endpoint", config.Traces.Endpoint)

	sampler := trace.AlwaysSample()
	if config.SampleRatio > 0 && config.SampleRatio < 1 {
		sampler = trace.TraceIDRatioBased(config.SampleRatio)
	}
	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(r),
		trace.WithSampler(trace.ParentBased(sampler)),
	), nil
}

func newMetricProvider(ctx context.Context, r *resource.Resource, config Config) (*metric.MeterProvider, error) {
	protocol, err := config.Metrics.protocol()
	if err != nil {
		return nil, err
	}
	interval, err := configutil.ParseDuration(config.MetricInterval, defaultMetricInterval)
	if err != nil {
		return nil, fmt.Errorf("metric_interval: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, exporterTimeout)
	defer cancel()

	var exporter metric.Exporter
	switch protocol {
	case ProtocolGrpc:
		exporter, err = otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithEndpointURL(config.Metrics.Endpoint),
			otlpmetricgrpc.WithHeaders(config.Metrics.Headers),
		)
	default:
		exporter, err = otlpmetrichttp.New(
			ctx,
			otlpmetrichttp.WithEndpointURL(config.Metrics.Endpoint),
			otlpmetrichttp.WithHeaders(config.Metrics.Headers),
		)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("metric exporter initialized", "protocol", protocol, "endpoint", config.Metrics.Endpoint)

	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(interval))),
		metric.WithResource(r),
	), nil
}
