package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer() (Tracer, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return newTracer(tp.Tracer("test")), rec
}

func attrValue(attrs []attribute.KeyValue, key string) (string, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value.Emit(), true
		}
	}
	return "", false
}

// TestOpMeta_SpanName verifies the span name format.
func TestOpMeta_SpanName(t *testing.T) {
	if got := (OpMeta{Name: "incr", Group: "counts"}).SpanName(); got != "cache.incr" {
		t.Errorf("expected cache.incr, got %q", got)
	}
}

// TestTracer_SpanAttributes verifies op, group and outcome land on the span.
func TestTracer_SpanAttributes(t *testing.T) {
	tracer, rec := newTestTracer()

	_, span := tracer.StartSpan(context.Background(), OpMeta{Name: "get", Group: "options"})
	tracer.EndSpan(span, OutcomeMiss, nil)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "cache.get" {
		t.Errorf("unexpected name %q", s.Name())
	}
	for key, want := range map[string]string{"cache.op": "get", "cache.group": "options", "cache.outcome": "miss"} {
		if got, ok := attrValue(s.Attributes(), key); !ok || got != want {
			t.Errorf("%s: expected %q, got %q (present=%v)", key, want, got, ok)
		}
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", s.Status().Code)
	}
}

// TestTracer_ErrorStatus verifies errors mark the span and are recorded as events.
func TestTracer_ErrorStatus(t *testing.T) {
	tracer, rec := newTestTracer()

	_, span := tracer.StartSpan(context.Background(), OpMeta{Name: "set", Group: "g"})
	tracer.EndSpan(span, OutcomeOK, errors.New("rename failed"))

	s := rec.Ended()[0]
	if s.Status().Code != codes.Error || s.Status().Description != "rename failed" {
		t.Errorf("unexpected status: %+v", s.Status())
	}
	if len(s.Events()) == 0 {
		t.Error("expected recorded error event")
	}
}

// TestNoopTracer verifies the no-op tracer does not panic.
func TestNoopTracer(t *testing.T) {
	tracer := newNoopTracer()
	_, span := tracer.StartSpan(context.Background(), OpMeta{Name: "get"})
	tracer.EndSpan(span, OutcomeHit, nil)
}
