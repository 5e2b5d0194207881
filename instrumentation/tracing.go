// Package instrumentation provides OpenTelemetry tracing and Prometheus
// metrics for the pool engine.
package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracingInstrumentationName is the instrumentation scope name used for every span/metric.
	TracingInstrumentationName = "github.com/vibur/vibur-go/instrumentation"
	// TracingInstrumentationVersion is the version reported alongside every span/metric.
	TracingInstrumentationVersion = "v1.0.0"
)

// TracingConfig configures OpenTelemetry tracing for the pool.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRatio  float64
	EnableMetrics  bool
	PoolName       string
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName:    "vibur-application",
		ServiceVersion: "unknown",
		Environment:    "development",
		SamplingRatio:  0.1,
		EnableMetrics:  true,
		PoolName:       "default",
	}
}

// Tracing provides OpenTelemetry tracing and metrics for pool operations.
type Tracing struct {
	config   TracingConfig
	tracer   trace.Tracer
	meter    metric.Meter
	provider *sdktrace.TracerProvider

	borrowDuration metric.Float64Histogram
	createDuration metric.Float64Histogram
	activeTaken    metric.Int64UpDownCounter
	createdTotal   metric.Int64Counter
	destroyedTotal metric.Int64Counter
	timeoutTotal   metric.Int64Counter
	criticalDrains metric.Int64Counter
}

// NewTracing creates a new tracing instrumentation instance.
func NewTracing(config TracingConfig) (*Tracing, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
			attribute.String("instrumentation.name", TracingInstrumentationName),
			attribute.String("instrumentation.version", TracingInstrumentationVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SamplingRatio))
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer := provider.Tracer(TracingInstrumentationName,
		trace.WithInstrumentationVersion(TracingInstrumentationVersion))
	meter := otel.Meter(TracingInstrumentationName,
		metric.WithInstrumentationVersion(TracingInstrumentationVersion))

	ti := &Tracing{config: config, tracer: tracer, meter: meter, provider: provider}
	if err := ti.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return ti, nil
}

func (ti *Tracing) initializeMetrics() error {
	var err error

	ti.borrowDuration, err = ti.meter.Float64Histogram(
		"vibur.pool.borrow.duration",
		metric.WithDescription("Time spent waiting for a connection to be handed out"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("failed to create borrow duration histogram: %w", err)
	}

	ti.createDuration, err = ti.meter.Float64Histogram(
		"vibur.pool.create.duration",
		metric.WithDescription("Time spent establishing a new raw connection"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("failed to create connection-create duration histogram: %w", err)
	}

	ti.activeTaken, err = ti.meter.Int64UpDownCounter(
		"vibur.pool.taken",
		metric.WithDescription("Number of connections currently taken from the pool"),
	)
	if err != nil {
		return fmt.Errorf("failed to create taken gauge: %w", err)
	}

	ti.createdTotal, err = ti.meter.Int64Counter(
		"vibur.pool.created.total",
		metric.WithDescription("Total number of raw connections created"),
	)
	if err != nil {
		return fmt.Errorf("failed to create created counter: %w", err)
	}

	ti.destroyedTotal, err = ti.meter.Int64Counter(
		"vibur.pool.destroyed.total",
		metric.WithDescription("Total number of raw connections destroyed"),
	)
	if err != nil {
		return fmt.Errorf("failed to create destroyed counter: %w", err)
	}

	ti.timeoutTotal, err = ti.meter.Int64Counter(
		"vibur.pool.timeouts.total",
		metric.WithDescription("Total number of borrow timeouts"),
	)
	if err != nil {
		return fmt.Errorf("failed to create timeout counter: %w", err)
	}

	ti.criticalDrains, err = ti.meter.Int64Counter(
		"vibur.pool.critical_drains.total",
		metric.WithDescription("Total number of generation rollovers caused by a critical SQLSTATE"),
	)
	if err != nil {
		return fmt.Errorf("failed to create critical-drain counter: %w", err)
	}

	return nil
}

func (ti *Tracing) poolAttr() attribute.KeyValue {
	return attribute.String("vibur.pool.name", ti.config.PoolName)
}

// StartSpan creates a new span for a pool operation.
func (ti *Tracing) StartSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	standard := append([]attribute.KeyValue{ti.poolAttr()}, attrs...)
	return ti.tracer.Start(ctx, operationName, trace.WithAttributes(standard...))
}

// RecordBorrow records a borrow() call's outcome (timeout or success) and duration.
func (ti *Tracing) RecordBorrow(ctx context.Context, duration time.Duration, timedOut bool) {
	ti.borrowDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(ti.poolAttr()))
	if timedOut {
		ti.timeoutTotal.Add(ctx, 1, metric.WithAttributes(ti.poolAttr()))
	}
}

// RecordCreate records a new raw connection's creation duration.
func (ti *Tracing) RecordCreate(ctx context.Context, duration time.Duration, err error) {
	_, span := ti.StartSpan(ctx, "vibur.create")
	defer span.End()

	ti.createDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(ti.poolAttr()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
	ti.createdTotal.Add(ctx, 1, metric.WithAttributes(ti.poolAttr()))
}

// RecordTake marks one more (or fewer, with a negative delta) connection taken.
func (ti *Tracing) RecordTake(ctx context.Context, delta int64) {
	ti.activeTaken.Add(ctx, delta, metric.WithAttributes(ti.poolAttr()))
}

// RecordDestroy records the destruction of holders.
func (ti *Tracing) RecordDestroy(ctx context.Context, count int64) {
	if count <= 0 {
		return
	}
	ti.destroyedTotal.Add(ctx, count, metric.WithAttributes(ti.poolAttr()))
}

// RecordCriticalDrain records a generation rollover.
func (ti *Tracing) RecordCriticalDrain(ctx context.Context) {
	ti.criticalDrains.Add(ctx, 1, metric.WithAttributes(ti.poolAttr()))
}

// Shutdown gracefully shuts down the tracing instrumentation.
func (ti *Tracing) Shutdown(ctx context.Context) error {
	if ti.provider != nil {
		return ti.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying OpenTelemetry tracer.
func (ti *Tracing) Tracer() trace.Tracer { return ti.tracer }
