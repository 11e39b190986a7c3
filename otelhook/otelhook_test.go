package otelhook_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"

	"simrpc/client"
	"simrpc/otelhook"
	"simrpc/server"
	"simrpc/service"
	"simrpc/simnet"
)

func TestHookRecordsSpanPerDispatch(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	hook := otelhook.New(otelhook.Config{
		TracerProvider: tp,
		EnableTracing:  true,
		EnableMetrics:  false,
	})

	net := simnet.NewNetwork()
	echo := service.PerRequest("echo", func(_ context.Context, req any) (any, error) {
		return req, nil
	})
	r := server.New().
		Logger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Network(net).
		DispatchHook(hook).
		AddService(echo)

	shutdown := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- r.ServeWithShutdown("srv", shutdown)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Wait for the endpoint to come up.
	c := client.New(net)
	deadline := time.Now().Add(2 * time.Second)
	var err error
	var got any
	for time.Now().Before(deadline) {
		got, err = c.Unary(ctx, "srv", "/echo/Get", "traced")
		if err == nil {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if err != nil {
		t.Fatal(err)
	}
	if got != "traced" {
		t.Fatalf("expected %q, got %v", "traced", got)
	}

	close(shutdown)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	// The span ends in the detached dispatch goroutine, shortly after the
	// client sees the response.
	var spans []sdktrace.ReadOnlySpan
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		spans = recorder.Ended()
		if len(spans) > 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if len(spans) != 1 {
		t.Fatalf("expected exactly one span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "/echo/Get" {
		t.Fatalf("expected span name %q, got %q", "/echo/Get", span.Name())
	}
	if span.SpanKind() != oteltrace.SpanKindServer {
		t.Fatalf("expected a server span, got %v", span.SpanKind())
	}

	var sawService, sawKind bool
	for _, attr := range span.Attributes() {
		switch string(attr.Key) {
		case "rpc.service":
			sawService = attr.Value.AsString() == "echo"
		case "rpc.simrpc.kind":
			sawKind = attr.Value.AsString() == "unary"
		}
	}
	if !sawService || !sawKind {
		t.Fatalf("span is missing rpc attributes: %v", span.Attributes())
	}
}
