// Package observability wires OpenTelemetry tracing and metrics for the
// patrol pipeline.
//
// Metrics follow the RED pattern per operation (patrol cycle, backend call,
// ledger commit) plus a counter of cycle outcomes by final state. When
// disabled, every method is a no-op over the global providers.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "sentinel"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string  // gRPC, e.g. "localhost:4317"
	SampleRate     float64 // 0.0 to 1.0
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns disabled telemetry with local collector defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "sentinel",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		MetricInterval: 15 * time.Second,
		Enabled:        false,
		Insecure:       true,
	}
}

// Provider manages OpenTelemetry trace and metric providers.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	operations metric.Int64Counter
	errors     metric.Int64Counter
	duration   metric.Float64Histogram
	active     metric.Int64UpDownCounter
	outcomes   metric.Int64Counter
}

// New creates a provider exporting over OTLP/gRPC. With Enabled false it
// installs nothing and returns a no-op provider.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}
	if !config.Enabled {
		p.logger.DebugContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := newResource(config)
	if err != nil {
		return nil, err
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint)}
	if config.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	spanExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("observability: create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("observability: create metric exporter: %w", err)
	}

	interval := config.MetricInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spanExporter, sdktrace.WithBatchTimeout(config.BatchTimeout)),
		sdktrace.WithSampler(sampler(config.SampleRate)),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))),
	)

	if err := p.install(tp, mp); err != nil {
		return nil, err
	}
	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
		"insecure", config.Insecure,
	)
	return p, nil
}

// NewWithProviders builds an enabled provider over caller-supplied SDK
// providers, typically backed by in-memory readers and span recorders.
func NewWithProviders(config *Config, tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}
	if err := p.install(tp, mp); err != nil {
		return nil, err
	}
	return p, nil
}

func newResource(config *Config) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: create resource: %w", err)
	}
	return res, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// install registers tp and mp globally so packages using otel.Tracer pick
// them up, and creates the instruments.
func (p *Provider) install(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) error {
	p.tracerProvider = tp
	p.meterProvider = mp

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p.tracer = tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(p.config.ServiceVersion))
	p.meter = mp.Meter(instrumentationName, metric.WithInstrumentationVersion(p.config.ServiceVersion))
	return p.initInstruments()
}

func (p *Provider) initInstruments() error {
	var err error

	p.operations, err = p.meter.Int64Counter("sentinel.operations.total",
		metric.WithDescription("Total number of operations started"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return err
	}
	p.errors, err = p.meter.Int64Counter("sentinel.errors.total",
		metric.WithDescription("Total number of failed operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}
	p.duration, err = p.meter.Float64Histogram("sentinel.operation.duration",
		metric.WithDescription("Operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return err
	}
	p.active, err = p.meter.Int64UpDownCounter("sentinel.operations.active",
		metric.WithDescription("Number of operations in flight"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return err
	}
	p.outcomes, err = p.meter.Int64Counter("sentinel.cycles.outcome",
		metric.WithDescription("Patrol cycles by final state"),
		metric.WithUnit("{cycle}"),
	)
	return err
}

// Enabled reports whether telemetry is being recorded.
func (p *Provider) Enabled() bool {
	return p != nil && p.meterProvider != nil
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown metric provider", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer, or the global one when disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return p.tracer
}

// RecordOutcome counts a finished patrol cycle by its final state.
func (p *Provider) RecordOutcome(ctx context.Context, state string, attrs ...attribute.KeyValue) {
	if p == nil || p.outcomes == nil {
		return
	}
	all := append([]attribute.KeyValue{attribute.String("cycle.state", state)}, attrs...)
	p.outcomes.Add(ctx, 1, metric.WithAttributes(all...))
}

// TrackOperation starts a span and RED bookkeeping for one operation. The
// returned function ends both and must be called exactly once.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.Tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	opAttrs := append([]attribute.KeyValue{attribute.String("operation", name)}, attrs...)
	if p != nil && p.operations != nil {
		p.operations.Add(ctx, 1, metric.WithAttributes(opAttrs...))
		p.active.Add(ctx, 1, metric.WithAttributes(opAttrs...))
	}

	return ctx, func(err error) {
		if p != nil && p.active != nil {
			p.active.Add(ctx, -1, metric.WithAttributes(opAttrs...))
			p.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(opAttrs...))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if p != nil && p.errors != nil {
				errAttrs := append(opAttrs, attribute.String("error.type", fmt.Sprintf("%T", err)))
				p.errors.Add(ctx, 1, metric.WithAttributes(errAttrs...))
			}
		}
		span.End()
	}
}
