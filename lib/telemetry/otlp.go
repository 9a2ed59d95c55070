package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"time"

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
	ProtocolHTTP = "http"
	ProtocolGRPC = "grpc"
)

// Exporter is a single otlp destination.
type Exporter struct {
	// Protocol is "http" (the default) or "grpc".
	Protocol string            `json:"protocol"`
	Endpoint string            `json:"endpoint"`
	Headers  map[string]string `json:"headers"`
}

func (e Exporter) protocol() (string, error) {
	switch e.Protocol {
	case "", ProtocolHTTP:
		return ProtocolHTTP, nil
	case ProtocolGRPC:
		return ProtocolGRPC, nil
	}
	return "", fmt.Errorf("unknown otlp protocol %q", e.Protocol)
}

// urlPath is the endpoint's path, or the collector's default path for signal when the
// endpoint names only a host.
func (e Exporter) urlPath(signal string) string {
	u, err := url.Parse(e.Endpoint)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "/v1/" + signal
	}
	return u.Path
}

type Config struct {
	// Environment is attached to every span and metric as deployment.environment.
	Environment string   `json:"environment"`
	Traces      Exporter `json:"traces"`
	Metrics     Exporter `json:"metrics"`
	// SampleRatio is the share of root spans kept, 0 keeps all of them.
	SampleRatio float64 `json:"sample_ratio"`
	// MetricIntervalSeconds defaults to 15.
	MetricIntervalSeconds int `json:"metric_interval_seconds"`
}

func (c Config) validate() error {
	for name, e := range map[string]Exporter{"traces": c.Traces, "metrics": c.Metrics} {
		if e.Endpoint == "" {
			return fmt.Errorf("otlp %s: endpoint is required", name)
		}
		if u, err := url.Parse(e.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("otlp %s: endpoint %q is not an absolute url", name, e.Endpoint)
		}
		if _, err := e.protocol(); err != nil {
			return fmt.Errorf("otlp %s: %w", name, err)
		}
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample_ratio must be within [0, 1], got %v", c.SampleRatio)
	}
	return nil
}

func (c Config) metricInterval() time.Duration {
	if c.MetricIntervalSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.MetricIntervalSeconds) * time.Second
}

func (c Config) sampler() trace.Sampler {
	if c.SampleRatio == 0 || c.SampleRatio == 1 {
		return trace.ParentBased(trace.AlwaysSample())
	}
	return trace.ParentBased(trace.TraceIDRatioBased(c.SampleRatio))
}

// buildVersion is the main module version stamped by the go toolchain, "(devel)" for
// local builds.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "(devel)"
	}
	return info.Main.Version
}

func newResource(ctx context.Context, serviceName string, c Config) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(buildVersion()),
		),
		resource.WithHost(),
		resource.WithProcessPID(),
	}
	if c.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.DeploymentEnvironment(c.Environment)))
	}
	custom, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, err
	}
	return resource.Merge(resource.Default(), custom)
}

func newSpanExporter(ctx context.Context, e Exporter) (trace.SpanExporter, error) {
	protocol, err := e.protocol()
	if err != nil {
		return nil, err
	}
	slog.Info("span exporter", "protocol", protocol, "endpoint", e.Endpoint, "headers", len(e.Headers))
	if protocol == ProtocolGRPC {
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpointURL(e.Endpoint),
			otlptracegrpc.WithHeaders(e.Headers),
		)
	}
	return otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(e.Endpoint),
		otlptracehttp.WithURLPath(e.urlPath("traces")),
		otlptracehttp.WithHeaders(e.Headers),
	)
}

func newMetricExporter(ctx context.Context, e Exporter) (metric.Exporter, error) {
	protocol, err := e.protocol()
	if err != nil {
		return nil, err
	}
	slog.Info("metric exporter", "protocol", protocol, "endpoint", e.Endpoint, "headers", len(e.Headers))
	if protocol == ProtocolGRPC {
		return otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpointURL(e.Endpoint),
			otlpmetricgrpc.WithHeaders(e.Headers),
		)
	}
	return otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpointURL(e.Endpoint),
		otlpmetrichttp.WithURLPath(e.urlPath("metrics")),
		otlpmetrichttp.WithHeaders(e.Headers),
	)
}

func newProviders(ctx context.Context, serviceName string, c Config) (*trace.TracerProvider, *metric.MeterProvider, error) {
	if err := c.validate(); err != nil {
		return nil, nil, err
	}
	r, err := newResource(ctx, serviceName, c)
	if err != nil {
		return nil, nil, err
	}

	spans, err := newSpanExporter(ctx, c.Traces)
	if err != nil {
		return nil, nil, fmt.Errorf("span exporter: %w", err)
	}
	metrics, err := newMetricExporter(ctx, c.Metrics)
	if err != nil {
		return nil, nil, fmt.Errorf("metric exporter: %w", err)
	}

	tracerProvider := trace.NewTracerProvider(
		trace.WithBatcher(spans),
		trace.WithResource(r),
		trace.WithSampler(c.sampler()),
	)
	meterProvider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metrics, metric.WithInterval(c.metricInterval()))),
		metric.WithResource(r),
	)
	return tracerProvider, meterProvider, nil
}
