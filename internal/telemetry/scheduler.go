package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const schedulerScopeName = "github.com/vellum-dms/vellum/scheduler"

var (
	schedOnce      sync.Once
	sweepProcessed metric.Int64Counter
	sweepFailed    metric.Int64Counter
	runDuration    metric.Float64Histogram
)

func schedulerInstruments() {
	m := Meter(schedulerScopeName)
	sweepProcessed, _ = m.Int64Counter("vellum.scheduler.processed",
		metric.WithDescription("Documents and tasks processed by sweeps"),
	)
	sweepFailed, _ = m.Int64Counter("vellum.scheduler.failed",
		metric.WithDescription("Sweep candidates that failed processing"),
	)
	runDuration, _ = m.Float64Histogram("vellum.scheduler.run.duration",
		metric.WithDescription("Scheduler pass duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// RecordSweep records one sweep's outcome. With telemetry disabled the
// global meter is a no-op, so this is safe to call unconditionally.
func RecordSweep(ctx context.Context, name string, processed, failed int) {
	schedOnce.Do(schedulerInstruments)
	attrs := metric.WithAttributes(attribute.String("vellum.sweep", name))
	sweepProcessed.Add(ctx, int64(processed), attrs)
	sweepFailed.Add(ctx, int64(failed), attrs)
}

// RecordRun records a full scheduler pass duration.
func RecordRun(ctx context.Context, d time.Duration) {
	schedOnce.Do(schedulerInstruments)
	runDuration.Record(ctx, float64(d.Milliseconds()))
}
