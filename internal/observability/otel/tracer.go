// Package otel wires distributed tracing for the core's suspension
// points (spec §5): the retrieval channels, the rerank call, and the
// LLM invocation each open a span so a slow /ask can be attributed to
// its actual bottleneck.
package otel

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config carries the environment-derived tracing knobs (spec §6.4:
// OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_TRACES_SAMPLER_ARG).
type Config struct {
	ServiceName    string
	OTLPEndpoint   string
	SamplingRatio  float64
}

// ConfigFromEnv reads the standard OpenTelemetry environment variables.
// The sampling ratio defaults to 1.0 and is replaced only by a parseable
// OTEL_TRACES_SAMPLER_ARG; an unset endpoint is left empty for
// InitTracer, which then installs a never-sampling provider.
func ConfigFromEnv(serviceName string) Config {
	cfg := Config{ServiceName: serviceName, SamplingRatio: 1.0}
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if ratioStr := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); ratioStr != "" {
		if ratio, err := strconv.ParseFloat(ratioStr, 64); err == nil {
			cfg.SamplingRatio = ratio
		}
	}
	return cfg
}

// Provider wraps the SDK tracer provider so callers can shut it down
// cleanly on process exit.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// InitTracer builds and installs the global tracer provider. When
// cfg.OTLPEndpoint is empty, it installs a provider with an
// always-off sampler: StartSpan calls remain cheap no-ops rather than
// failing, which keeps local development and tests from requiring a
// collector.
func InitTracer(ctx context.Context, cfg Config) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	if cfg.OTLPEndpoint == "" {
		tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res), sdktrace.WithSampler(sdktrace.NeverSample()))
		otel.SetTracerProvider(tp)
		return &Provider{tp: tp}, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("build otlp http exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return &Provider{tp: tp}, nil
}

// Shutdown flushes pending spans and releases exporter resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// tracerName identifies this module's spans in a multi-service trace.
const tracerName = "github.com/SaintWyss/ragcore"

// StartSpan opens a child span named operation under the span already
// in ctx, if any.
func StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, operation, trace.WithAttributes(attrs...))
}

// RecordError marks the current span as failed, attaching err.
func RecordError(span trace.Span, err error) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
