// Package tracing sets up OpenTelemetry tracing for the agent and the push
// backend and provides span helpers for sync and dispatch work.
package tracing

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the instrumentation name for arcsync spans.
	TracerName = "github.com/marcus/arcsync"

	Version = "0.1.0"
)

// ExporterType defines the type of trace exporter.
type ExporterType string

const (
	ExporterNone   ExporterType = "none"
	ExporterStdout ExporterType = "stdout"
	ExporterOTLP   ExporterType = "otlp"
)

// Config holds tracing configuration.
type Config struct {
	ExporterType ExporterType
	OTLPEndpoint string // host:port, HTTP
	ServiceName  string
	SampleRate   float64
	Output       io.Writer // stdout exporter only
}

// DefaultConfig returns tracing disabled.
func DefaultConfig() Config {
	return Config{
		ExporterType: ExporterNone,
		ServiceName:  "arcsync",
		SampleRate:   1.0,
	}
}

// Tracer wraps an OpenTelemetry tracer.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

var (
	globalMu sync.RWMutex
	global   *Tracer
)

// SetDefault installs t as the tracer returned by Default.
func SetDefault(t *Tracer) {
	globalMu.Lock()
	global = t
	globalMu.Unlock()
}

// Default returns the installed tracer, or one backed by the global otel
// provider (a no-op unless something configured it).
func Default() *Tracer {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global == nil {
		return &Tracer{tracer: otel.Tracer(TracerName)}
	}
	return global
}

// New creates a Tracer. ExporterNone (or empty) yields a no-op tracer.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if cfg.ExporterType == "" || cfg.ExporterType == ExporterNone {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(TracerName)}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "arcsync"
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetTracerProvider(provider)

	return &Tracer{
		tracer:   provider.Tracer(TracerName, trace.WithInstrumentationVersion(Version)),
		provider: provider,
	}, nil
}

func createExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if cfg.Output != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Output))
		}
		return stdouttrace.New(opts...)

	case ExporterOTLP:
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}
}

// Shutdown flushes and stops the provider, if any.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// Start starts a new span with the given name.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartDrain starts the span covering one queue drain pass.
func (t *Tracer) StartDrain(ctx context.Context, pending int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "devicesync.drain",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int("queue.pending", pending)),
	)
}

// StartApply starts the span for applying one queued operation.
func (t *Tracer) StartApply(ctx context.Context, id int64, kind string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "devicesync.apply",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int64("operation.id", id),
			attribute.String("operation.kind", kind),
		),
	)
}

// StartDispatch starts the span for one push dispatch.
func (t *Tracer) StartDispatch(ctx context.Context, subscriptionID int64) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "notify.dispatch",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.Int64("subscription.id", subscriptionID)),
	)
}

// End records err (if any) on span and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
