// Package telemetry はOpenTelemetryのメトリクスAPIで計測を記録します。
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "arena/server"

// Recorder は処理時間とイベント数を記録します。
type Recorder interface {
	RecordLatency(ctx context.Context, endpoint string, duration time.Duration)
	IncrementCounter(ctx context.Context, name string, delta int)
}

// MeterRecorder はmetric.Meterに記録するRecorderです。
type MeterRecorder struct {
	latency metric.Float64Histogram
	events  metric.Int64Counter
}

// New はMeterRecorderを生成します。providerがnilならグローバルのものを使います。
func New(provider metric.MeterProvider) (*MeterRecorder, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	m := provider.Meter(instrumentationName)

	latency, err := m.Float64Histogram(
		"arena.handler.latency",
		metric.WithDescription("Time spent handling a message"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating latency histogram: %w", err)
	}
	events, err := m.Int64Counter(
		"arena.events",
		metric.WithDescription("Authority events by name"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating event counter: %w", err)
	}
	return &MeterRecorder{latency: latency, events: events}, nil
}

// Noop は何も記録しないRecorderを返します。
func Noop() *MeterRecorder {
	r, _ := New(noop.NewMeterProvider())
	return r
}

func (r *MeterRecorder) RecordLatency(ctx context.Context, endpoint string, duration time.Duration) {
	r.latency.Record(ctx, float64(duration)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

func (r *MeterRecorder) IncrementCounter(ctx context.Context, name string, delta int) {
	r.events.Add(ctx, int64(delta), metric.WithAttributes(attribute.String("name", name)))
}
