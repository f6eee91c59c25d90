package observe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// fakeTracer records StartSpan/EndSpan invocations.
type fakeTracer struct {
	mu      sync.Mutex
	started []CallMeta
	ended   []error
	noop    trace.Tracer
}

func newFakeTracer() *fakeTracer {
	return &fakeTracer{noop: tracenoop.NewTracerProvider().Tracer("fake")}
}

func (f *fakeTracer) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	f.mu.Lock()
	f.started = append(f.started, meta)
	f.mu.Unlock()
	return f.noop.Start(ctx, meta.SpanName())
}

func (f *fakeTracer) EndSpan(span trace.Span, err error) {
	f.mu.Lock()
	f.ended = append(f.ended, err)
	f.mu.Unlock()
	span.End()
}

// fakeMetrics records RecordCall invocations.
type fakeMetrics struct {
	mu    sync.Mutex
	calls []error
}

func (f *fakeMetrics) RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error) {
	f.mu.Lock()
	f.calls = append(f.calls, err)
	f.mu.Unlock()
}

// TestMiddleware_Success verifies a successful call is traced, measured,
// and logged at info.
func TestMiddleware_Success(t *testing.T) {
	tracer := newFakeTracer()
	metrics := &fakeMetrics{}
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	mw := NewMiddleware(tracer, metrics, logger)

	called := false
	fn := mw.Wrap(CallMeta{Endpoint: "server/info"}, func(ctx context.Context) error {
		called = true
		return nil
	})

	if err := fn(context.Background()); err != nil {
		t.Fatalf("wrapped call: %v", err)
	}
	if !called {
		t.Fatal("wrapped function was not invoked")
	}

	if len(tracer.started) != 1 || tracer.started[0].Endpoint != "server/info" {
		t.Errorf("expected one span for server/info, got %v", tracer.started)
	}
	if len(tracer.ended) != 1 || tracer.ended[0] != nil {
		t.Errorf("expected one clean span end, got %v", tracer.ended)
	}
	if len(metrics.calls) != 1 || metrics.calls[0] != nil {
		t.Errorf("expected one clean metric record, got %v", metrics.calls)
	}
	if !strings.Contains(buf.String(), "api call completed") {
		t.Errorf("expected completion log, got: %s", buf.String())
	}
}

// TestMiddleware_ErrorPropagatesUnchanged verifies the wrapped error comes
// back as-is and is recorded everywhere.
func TestMiddleware_ErrorPropagatesUnchanged(t *testing.T) {
	tracer := newFakeTracer()
	metrics := &fakeMetrics{}
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	mw := NewMiddleware(tracer, metrics, logger)

	sentinel := errors.New("connection refused")
	fn := mw.Wrap(CallMeta{Endpoint: "data/indexes"}, func(ctx context.Context) error {
		return sentinel
	})

	if err := fn(context.Background()); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error back, got %v", err)
	}

	if len(tracer.ended) != 1 || !errors.Is(tracer.ended[0], sentinel) {
		t.Errorf("span end did not record the error: %v", tracer.ended)
	}
	if len(metrics.calls) != 1 || !errors.Is(metrics.calls[0], sentinel) {
		t.Errorf("metrics did not record the error: %v", metrics.calls)
	}
	if !strings.Contains(buf.String(), "api call failed") {
		t.Errorf("expected failure log, got: %s", buf.String())
	}
}

// TestMiddlewareFromObserver verifies the convenience constructor.
func TestMiddlewareFromObserver(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{ServiceName: "searchctl"})
	if err != nil {
		t.Fatalf("NewObserver: %v", err)
	}

	mw, err := MiddlewareFromObserver(obs)
	if err != nil {
		t.Fatalf("MiddlewareFromObserver: %v", err)
	}

	fn := mw.Wrap(CallMeta{Endpoint: "server/info"}, func(ctx context.Context) error {
		return nil
	})
	if err := fn(context.Background()); err != nil {
		t.Fatalf("wrapped call: %v", err)
	}
}
