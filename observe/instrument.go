package observe

import (
	"context"
	"time"
)

// OpFunc is the signature of an instrumented cache operation.
type OpFunc func(ctx context.Context) error

// Instrumentor wraps cache operations with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: Do is safe for concurrent use.
//   - Context: propagates context through tracing spans.
//   - Errors: errors from the wrapped operation are recorded and propagated
//     unchanged.
type Instrumentor struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewInstrumentor creates an Instrumentor from the given components.
func NewInstrumentor(tracer Tracer, metrics Metrics, logger Logger) *Instrumentor {
	if tracer == nil {
		tracer = NewNoopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Instrumentor{tracer: tracer, metrics: metrics, logger: logger}
}

// NewInstrumentorFromObserver creates an Instrumentor from an Observer.
func NewInstrumentorFromObserver(obs Observer) (*Instrumentor, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewInstrumentor(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Metrics returns the underlying metrics sink, for counters recorded outside
// an operation wrapper (evictions, expirations, invalidations).
func (i *Instrumentor) Metrics() Metrics { return i.metrics }

// Logger returns the underlying logger.
func (i *Instrumentor) Logger() Logger { return i.logger }

// Do runs fn inside a span, records metrics, and logs the outcome.
func (i *Instrumentor) Do(ctx context.Context, meta OpMeta, fn OpFunc) error {
	if meta.Op == "" {
		return ErrMissingOpName
	}

	ctx, span := i.tracer.StartSpan(ctx, meta)
	start := time.Now()

	err := fn(ctx)
	duration := time.Since(start)

	i.tracer.EndSpan(span, err)
	i.metrics.RecordOp(ctx, meta, duration, err)

	if err != nil {
		i.logger.Error(ctx, "cache operation failed",
			Field{Key: "op", Value: meta.Op},
			Field{Key: "key", Value: meta.Key},
			Field{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000.0},
			Field{Key: "error", Value: err.Error()},
		)
		return err
	}

	i.logger.Debug(ctx, "cache operation completed",
		Field{Key: "op", Value: meta.Op},
		Field{Key: "key", Value: meta.Key},
		Field{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000.0},
	)
	return nil
}
