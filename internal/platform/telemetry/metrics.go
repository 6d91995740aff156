package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds all application instruments.
type Metrics struct {
	RequestCount    metric.Int64Counter
	RequestDuration metric.Float64Histogram
	ScoresComputed  metric.Int64Counter
	ScoresRejected  metric.Int64Counter
	ScoreTotal      metric.Float64Histogram
	CacheHitCount   metric.Int64Counter
	CacheMissCount  metric.Int64Counter
}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.RequestCount, err = meter.Int64Counter("http.server.request.count",
		metric.WithDescription("Number of HTTP requests")); err != nil {
		return nil, err
	}
	if m.RequestDuration, err = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.ScoresComputed, err = meter.Int64Counter("icu.score.computed",
		metric.WithDescription("Scores computed by type and operation")); err != nil {
		return nil, err
	}
	if m.ScoresRejected, err = meter.Int64Counter("icu.score.rejected",
		metric.WithDescription("Score inputs rejected by type and reason")); err != nil {
		return nil, err
	}
	if m.ScoreTotal, err = meter.Float64Histogram("icu.score.total",
		metric.WithDescription("Distribution of computed score totals")); err != nil {
		return nil, err
	}
	if m.CacheHitCount, err = meter.Int64Counter("cache.hit.count",
		metric.WithDescription("Number of cache hits")); err != nil {
		return nil, err
	}
	if m.CacheMissCount, err = meter.Int64Counter("cache.miss.count",
		metric.WithDescription("Number of cache misses")); err != nil {
		return nil, err
	}
	return &m, nil
}

// NoopMetrics returns instruments that discard everything.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	return m
}

func (m *Metrics) RecordRequest(ctx context.Context, attrs []attribute.KeyValue, d time.Duration) {
	opt := metric.WithAttributes(attrs...)
	m.RequestCount.Add(ctx, 1, opt)
	m.RequestDuration.Record(ctx, float64(d.Milliseconds()), opt)
}

// RecordScore counts a computed score. op is preview, create or update.
func (m *Metrics) RecordScore(ctx context.Context, scoreType, op string, total float64) {
	attrs := metric.WithAttributes(
		attribute.String("score.type", scoreType),
		attribute.String("score.operation", op),
	)
	m.ScoresComputed.Add(ctx, 1, attrs)
	m.ScoreTotal.Record(ctx, total, metric.WithAttributes(attribute.String("score.type", scoreType)))
}

// RecordRejection counts an input the engine refused.
func (m *Metrics) RecordRejection(ctx context.Context, scoreType, reason string) {
	m.ScoresRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("score.type", scoreType),
		attribute.String("reason", reason),
	))
}

func (m *Metrics) RecordCache(ctx context.Context, name string, hit bool) {
	attrs := metric.WithAttributes(attribute.String("cache.name", name))
	if hit {
		m.CacheHitCount.Add(ctx, 1, attrs)
		return
	}
	m.CacheMissCount.Add(ctx, 1, attrs)
}
