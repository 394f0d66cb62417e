package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const engineScopeName = "github.com/ipamtools/bamsync/engine"

// EngineMetrics instruments the execution engine: operation counts and
// latencies by type and status, plus the throttle's live capacity. A nil
// *EngineMetrics is valid and records nothing, so callers never gate on
// Enabled themselves.
type EngineMetrics struct {
	ops      metric.Int64Counter
	dur      metric.Float64Histogram
	capacity metric.Int64Gauge
}

// NewEngineMetrics returns engine instrumentation, or nil when telemetry is
// disabled.
func NewEngineMetrics() *EngineMetrics {
	if !Enabled() {
		return nil
	}
	m := Meter(engineScopeName)
	ops, _ := m.Int64Counter("bamsync.engine.operations",
		metric.WithDescription("Total operations executed by terminal status"),
	)
	dur, _ := m.Float64Histogram("bamsync.engine.operation.duration",
		metric.WithDescription("Operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	capacity, _ := m.Int64Gauge("bamsync.throttle.capacity",
		metric.WithDescription("Current adaptive throttle capacity"),
	)
	return &EngineMetrics{ops: ops, dur: dur, capacity: capacity}
}

// RecordOperation counts one terminal operation and its latency.
func (em *EngineMetrics) RecordOperation(ctx context.Context, opType, objectType string, success, skipped bool, latency time.Duration) {
	if em == nil {
		return
	}
	status := "failed"
	switch {
	case skipped:
		status = "skipped"
	case success:
		status = "succeeded"
	}
	attrs := metric.WithAttributes(
		attribute.String("bamsync.operation", opType),
		attribute.String("bamsync.object_type", objectType),
		attribute.String("bamsync.status", status),
	)
	em.ops.Add(ctx, 1, attrs)
	em.dur.Record(ctx, float64(latency.Milliseconds()), attrs)
}

// RecordCapacity snapshots the throttle's concurrency limit.
func (em *EngineMetrics) RecordCapacity(ctx context.Context, capacity int) {
	if em == nil {
		return
	}
	em.capacity.Record(ctx, int64(capacity))
}
