package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// OpMeta describes one cache operation for telemetry purposes.
type OpMeta struct {
	Name  string // get, set, add, replace, delete, incr, decr, flush, remember
	Group string // empty for whole-cache operations
}

// SpanName returns the deterministic span name: cache.<name>.
func (m OpMeta) SpanName() string {
	return "cache." + m.Name
}

func (m OpMeta) attrs() []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("cache.op", m.Name)}
	if m.Group != "" {
		attrs = append(attrs, attribute.String("cache.group", m.Group))
	}
	return attrs
}

// Outcomes reported by operations.
const (
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeOK    = "ok"
	OutcomeNoop  = "noop"
	OutcomeError = "error"
)

// Tracer wraps OpenTelemetry tracing with per-operation spans.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span)
	EndSpan(span trace.Span, outcome string, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

func newTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(meta.attrs()...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("cache.outcome", outcome))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

func newNoopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, outcome string, err error) {
	span.End()
}
