// Package otelhook provides OpenTelemetry instrumentation for simrpc
// dispatchers. It implements the [server.DispatchHook] interface, opening a
// server span per dispatched call and recording request count and duration
// metrics.
//
// Usage:
//
//	srv := server.New().DispatchHook(otelhook.New(otelhook.DefaultConfig()))
package otelhook

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"simrpc/server"
)

const instrumentationName = "simrpc"

// Config configures the instrumentation.
type Config struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns a Config with tracing and metrics enabled, resolving
// providers from the global OTel SDK when the hook is built.
func DefaultConfig() Config {
	return Config{EnableTracing: true, EnableMetrics: true}
}

// New builds the dispatch hook.
func New(cfg Config) server.DispatchHook {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}

	h := &hook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}
	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		h.requestCounter, _ = meter.Int64Counter("rpc.server.requests",
			metric.WithUnit("{request}"),
			metric.WithDescription("Number of dispatched calls"),
		)
		h.durationHistogram, _ = meter.Float64Histogram("rpc.server.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of dispatched calls"),
		)
	}
	return h
}

type hook struct {
	cfg               Config
	tracer            trace.Tracer
	requestCounter    metric.Int64Counter
	durationHistogram metric.Float64Histogram
}

// spanToken is the HookToken carried from start to end of one dispatch.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// OnDispatchStart opens a server span for the call.
func (h *hook) OnDispatchStart(ctx context.Context, info server.DispatchInfo) (context.Context, server.HookToken) {
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "simrpc"),
		attribute.String("rpc.service", info.Service),
		attribute.String("rpc.method", info.Method),
		attribute.String("rpc.simrpc.kind", info.Kind),
		attribute.String("net.peer.name", info.Peer),
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	ctx, span := h.tracer.Start(ctx, info.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnDispatchEnd records metrics and closes the span once the call's
// response stream has been fully forwarded.
func (h *hook) OnDispatchEnd(ctx context.Context, token server.HookToken, info server.DispatchInfo, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}
	duration := time.Since(st.startTime)

	status := "ok"
	if err != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("rpc.system", "simrpc"),
			attribute.String("rpc.service", info.Service),
			attribute.String("rpc.method", info.Method),
			attribute.String("rpc.simrpc.kind", info.Kind),
			attribute.String("status", status),
		)
		if h.requestCounter != nil {
			h.requestCounter.Add(ctx, 1, metricAttrs)
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
		}
	}

	if st.span != nil && st.span.IsRecording() {
		if err != nil {
			st.span.SetStatus(otelcodes.Error, err.Error())
			st.span.RecordError(err)
		} else {
			st.span.SetStatus(otelcodes.Ok, "")
		}
		st.span.End()
	}
}
