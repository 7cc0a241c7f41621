package observe

import (
	"context"
	"time"
)

// OpFunc runs one cache operation and reports its outcome
// (OutcomeHit, OutcomeMiss, ...). A non-nil error is a storage problem the
// operation absorbed; it is recorded, not propagated to cache callers.
type OpFunc func(ctx context.Context) (outcome string, err error)

// Middleware wraps cache operations with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Run is safe for concurrent use.
//   - Context: the span context is passed to fn.
//   - Errors: the error from fn is recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
	now     func() time.Time
}

// NewMiddleware creates a new Middleware with the given components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	return &Middleware{tracer: tracer, metrics: metrics, logger: logger, now: time.Now}
}

// NopMiddleware returns a Middleware that only calls through.
func NopMiddleware() *Middleware {
	return NewMiddleware(newNoopTracer(), noopMetrics{}, NopLogger())
}

// WithLogger returns a copy of m that logs to l.
func (m *Middleware) WithLogger(l Logger) *Middleware {
	if l == nil {
		l = NopLogger()
	}
	cp := *m
	cp.logger = l
	return &cp
}

// Run executes fn inside a span and records its outcome.
func (m *Middleware) Run(ctx context.Context, meta OpMeta, fn OpFunc) (string, error) {
	ctx, span := m.tracer.StartSpan(ctx, meta)
	start := m.now()

	outcome, err := fn(ctx)
	if err != nil && outcome == "" {
		outcome = OutcomeError
	}
	duration := m.now().Sub(start)

	m.tracer.EndSpan(span, outcome, err)
	m.metrics.RecordOp(ctx, meta, outcome, duration, err)

	fields := []Field{
		F("op", meta.Name),
		F("outcome", outcome),
		F("duration_ms", float64(duration.Microseconds())/1000),
	}
	if meta.Group != "" {
		fields = append(fields, F("group", meta.Group))
	}
	if err != nil {
		m.logger.Warn(ctx, "cache operation degraded", append(fields, F("error", err))...)
	} else {
		m.logger.Debug(ctx, "cache operation", fields...)
	}
	return outcome, err
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(newTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
