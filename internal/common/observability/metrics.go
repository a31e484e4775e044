package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"nlquery-agent/internal/common/config"
	"nlquery-agent/internal/common/logger"
)

// Observability owns the otel meter and tracer providers for the process.
// A zero value is usable: every recorder is a no-op.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer

	runCounter    otelmetric.Int64Counter
	runDuration   otelmetric.Float64Histogram
	stageDuration otelmetric.Float64Histogram
	jobCounter    otelmetric.Int64Counter
	jobDuration   otelmetric.Float64Histogram
}

func New(ctx context.Context, cfg config.ObservabilityConfig, log logger.Logger) *Observability {
	o := &Observability{}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "nlquery-agent"
	}

	if cfg.MetricsEnabled {
		o.initMetrics(serviceName, log)
	}
	if cfg.TracingEnabled {
		tp, err := newTracerProvider(ctx, serviceName, cfg.OTLPEndpoint)
		if err != nil {
			log.Warn("tracing disabled", map[string]interface{}{"error": err.Error()})
		} else {
			o.tracerProvider = tp
			otel.SetTracerProvider(tp)
		}
	}
	o.tracer = otel.Tracer(serviceName)
	return o
}

func (o *Observability) initMetrics(serviceName string, log logger.Logger) {
	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter", map[string]interface{}{"error": err.Error()})
		return
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	o.runCounter, _ = meter.Int64Counter(
		"pipeline.runs",
		otelmetric.WithDescription("Number of question pipeline runs"),
	)
	o.runDuration, _ = meter.Float64Histogram(
		"pipeline.duration",
		otelmetric.WithDescription("End-to-end pipeline duration"),
		otelmetric.WithUnit("ms"),
	)
	o.stageDuration, _ = meter.Float64Histogram(
		"pipeline.stage.duration",
		otelmetric.WithDescription("Duration of one pipeline stage"),
		otelmetric.WithUnit("ms"),
	)
	o.jobCounter, _ = meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	o.jobDuration, _ = meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)

	o.meterProvider = provider
	o.meter = meter
}

// Tracer returns the process tracer, falling back to the global provider.
func (o *Observability) Tracer() trace.Tracer {
	if o == nil || o.tracer == nil {
		return otel.Tracer("nlquery-agent")
	}
	return o.tracer
}

func (o *Observability) RecordRun(ctx context.Context, backend, status string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", status),
	)
	if o.runCounter != nil {
		o.runCounter.Add(ctx, 1, attrs)
	}
	if o.runDuration != nil {
		o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordStage(ctx context.Context, backend, stage string, duration time.Duration) {
	if o == nil || o.stageDuration == nil {
		return
	}
	o.stageDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("stage", stage),
	))
}

func (o *Observability) RecordJobProcessed(ctx context.Context, status string) {
	if o != nil && o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, duration time.Duration, status string) {
	if o != nil && o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}
