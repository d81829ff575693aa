// Package telemetry wires optional OpenTelemetry export into vellum.
//
// Everything here is opt-in: unless VELLUM_OTEL_ENABLED=true the global
// providers stay no-ops and instrumented call sites cost nothing beyond a
// boolean check. With telemetry on, spans and metrics go to stdout
// (VELLUM_OTEL_STDOUT=true, the dev path) and/or an OTLP/gRPC collector
// named by OTEL_EXPORTER_OTLP_ENDPOINT. Enabled with neither set falls
// back to stdout so a stray VELLUM_OTEL_ENABLED never drops data silently.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const metricExportInterval = 30 * time.Second

// sinks describes where exporters ship data, derived from the environment
// once at Init.
type sinks struct {
	stdout       bool
	otlpEndpoint string
}

var shutdownFns []func(context.Context) error

// Enabled reports whether telemetry is active (VELLUM_OTEL_ENABLED=true).
func Enabled() bool {
	return os.Getenv("VELLUM_OTEL_ENABLED") == "true"
}

// Init installs the global trace and metric providers. Disabled telemetry
// gets explicit no-op providers so Tracer and Meter are always safe to call.
func Init(ctx context.Context, serviceName, version string) error {
	if !Enabled() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	dst := sinks{
		stdout:       os.Getenv("VELLUM_OTEL_STDOUT") == "true",
		otlpEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if !dst.stdout && dst.otlpEndpoint == "" {
		dst.stdout = true
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version),
	))
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	tp, err := newTraceProvider(ctx, res, dst)
	if err != nil {
		return fmt.Errorf("telemetry: traces: %w", err)
	}
	mp, err := newMetricProvider(ctx, res, dst)
	if err != nil {
		tp.Shutdown(ctx) //nolint:errcheck
		return fmt.Errorf("telemetry: metrics: %w", err)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, tp.Shutdown, mp.Shutdown)
	return nil
}

func newTraceProvider(ctx context.Context, res *resource.Resource, dst sinks) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if dst.stdout {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	if dst.otlpEndpoint != "" {
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(dst.otlpEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func newMetricProvider(ctx context.Context, res *resource.Resource, dst sinks) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if dst.stdout {
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(metricExportInterval)),
		))
	}
	if dst.otlpEndpoint != "" {
		exp, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(dst.otlpEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(metricExportInterval)),
		))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

// Tracer returns a tracer for the named instrumentation scope.
func Tracer(scope string) trace.Tracer {
	return otel.Tracer(scope)
}

// Meter returns a meter for the named instrumentation scope.
func Meter(scope string) metric.Meter {
	return otel.Meter(scope)
}

// Shutdown flushes pending spans and metrics. Defer it from the command
// teardown with a bounded context.
func Shutdown(ctx context.Context) {
	for _, fn := range shutdownFns {
		_ = fn(ctx)
	}
	shutdownFns = nil
}
