// Package tracing provides OpenTelemetry span instrumentation for the API
// Session and the Range Downloader. Exports via OTLP HTTP when an
// endpoint is configured; falls back to a no-op tracer otherwise, so
// tracing never becomes a hard dependency on a running collector.
package tracing

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/ecmwf-go/retriever"

// Config configures OTLP export. An empty Endpoint keeps tracing a
// no-op.
type Config struct {
	ServiceName string
	Endpoint    string
	Insecure    bool
}

// Provider wraps the OTel TracerProvider lifecycle.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// Init builds a Provider from cfg, falling back to the OTEL_* standard
// environment variables and finally to a no-op tracer when no endpoint
// is configured anywhere.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		if env := os.Getenv("OTEL_SERVICE_NAME"); env != "" {
			serviceName = env
		} else {
			serviceName = "retriever"
		}
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		return &Provider{}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp, tracer: tp.Tracer(instrumentationName)}, nil
}

// Tracer returns the configured tracer, or a no-op tracer if tracing is
// disabled or p is nil.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tracer
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// StartAPIRequest starts a retriever.api.request span around one
// apiRequest call.
func StartAPIRequest(ctx context.Context, tracer trace.Tracer, url string, requestID int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "retriever.api.request", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("http.url", url))
	if requestID > 0 {
		span.SetAttributes(attribute.Int("retriever.request_id", requestID))
	}
	return ctx, span
}

// StartDownloadBlock starts a retriever.download.block span around one
// block fetch.
func StartDownloadBlock(ctx context.Context, tracer trace.Tracer, blockID, startByte, endByte int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "retriever.download.block", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.Int("retriever.block_id", blockID),
		attribute.Int64("retriever.block_start", int64(startByte)),
		attribute.Int64("retriever.block_end", int64(endByte)),
	)
	return ctx, span
}

// End finishes span, recording err as its status when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
