package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records cache operation metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly; recording is fire-and-forget.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOp records a cache operation with duration and error status.
	RecordOp(ctx context.Context, meta OpMeta, duration time.Duration, err error)

	// RecordLookup records a read as a hit or a miss.
	RecordLookup(ctx context.Context, meta OpMeta, hit bool)

	// AddEvictions counts keys removed by the eviction policy.
	AddEvictions(ctx context.Context, cache string, n int64)

	// AddExpirations counts keys removed because their TTL elapsed.
	AddExpirations(ctx context.Context, cache string, n int64)

	// AddInvalidations counts query results dropped by invalidation fan-out.
	AddInvalidations(ctx context.Context, cache string, n int64)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter         metric.Meter
	opCount       metric.Int64Counter
	errorCount    metric.Int64Counter
	durationHist  metric.Float64Histogram
	hits          metric.Int64Counter
	misses        metric.Int64Counter
	evictions     metric.Int64Counter
	expirations   metric.Int64Counter
	invalidations metric.Int64Counter
}

// NewMetrics creates a Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	opCount, err := meter.Int64Counter(
		"cache.op.total",
		metric.WithDescription("Total number of cache operations"),
		metric.WithUnit("{op}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"cache.op.errors",
		metric.WithDescription("Total number of cache operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"cache.op.duration_ms",
		metric.WithDescription("Cache operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	hits, err := meter.Int64Counter(
		"cache.hits",
		metric.WithDescription("Cache read hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	misses, err := meter.Int64Counter(
		"cache.misses",
		metric.WithDescription("Cache read misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter(
		"cache.evictions",
		metric.WithDescription("Keys removed by the eviction policy"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return nil, err
	}

	expirations, err := meter.Int64Counter(
		"cache.expirations",
		metric.WithDescription("Keys removed after TTL expiry"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return nil, err
	}

	invalidations, err := meter.Int64Counter(
		"cache.invalidations",
		metric.WithDescription("Query results dropped by invalidation"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:         meter,
		opCount:       opCount,
		errorCount:    errorCount,
		durationHist:  durationHist,
		hits:          hits,
		misses:        misses,
		evictions:     evictions,
		expirations:   expirations,
		invalidations: invalidations,
	}, nil
}

func opAttrs(meta OpMeta) metric.MeasurementOption {
	attrs := []attribute.KeyValue{
		attribute.String("cache.name", meta.Cache),
		attribute.String("cache.op", meta.Op),
	}
	if meta.Policy != "" {
		attrs = append(attrs, attribute.String("cache.policy", meta.Policy))
	}
	return metric.WithAttributes(attrs...)
}

// RecordOp records an operation count, error count, and duration.
func (m *metricsImpl) RecordOp(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
	opt := opAttrs(meta)
	m.opCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000.0, opt)
}

// RecordLookup records a hit or miss.
func (m *metricsImpl) RecordLookup(ctx context.Context, meta OpMeta, hit bool) {
	opt := opAttrs(meta)
	if hit {
		m.hits.Add(ctx, 1, opt)
		return
	}
	m.misses.Add(ctx, 1, opt)
}

func (m *metricsImpl) AddEvictions(ctx context.Context, cache string, n int64) {
	m.evictions.Add(ctx, n, metric.WithAttributes(attribute.String("cache.name", cache)))
}

func (m *metricsImpl) AddExpirations(ctx context.Context, cache string, n int64) {
	m.expirations.Add(ctx, n, metric.WithAttributes(attribute.String("cache.name", cache)))
}

func (m *metricsImpl) AddInvalidations(ctx context.Context, cache string, n int64) {
	m.invalidations.Add(ctx, n, metric.WithAttributes(attribute.String("cache.name", cache)))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics { return &noopMetrics{} }

func (noopMetrics) RecordOp(context.Context, OpMeta, time.Duration, error) {}
func (noopMetrics) RecordLookup(context.Context, OpMeta, bool)             {}
func (noopMetrics) AddEvictions(context.Context, string, int64)            {}
func (noopMetrics) AddExpirations(context.Context, string, int64)          {}
func (noopMetrics) AddInvalidations(context.Context, string, int64)        {}
