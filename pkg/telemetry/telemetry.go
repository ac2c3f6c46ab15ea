// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires structured logging, tracing and metrics for the
// gateway on top of log/slog and OpenTelemetry.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultMetricInterval is used when Config.MetricInterval is unset.
const DefaultMetricInterval = time.Minute

// ShutdownFunc flushes and releases telemetry resources.
type ShutdownFunc func(context.Context) error

// Config selects where spans and metrics go.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Exporter is one of "noop", "stdout" or "otlp".
	Exporter       string
	OTLPEndpoint   string
	OTLPInsecure   bool
	OTLPTimeout    time.Duration
	MetricInterval time.Duration
}

func (c Config) interval() time.Duration {
	if c.MetricInterval > 0 {
		return c.MetricInterval
	}
	return DefaultMetricInterval
}

// exporters is the sink pair a provider set is built over.
type exporters struct {
	spans   sdktrace.SpanExporter
	metrics sdkmetric.Exporter
}

// Setup installs global tracer and meter providers for cfg and returns the
// function that flushes them. "noop" keeps the global no-op providers.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if cfg.Exporter == "noop" || cfg.Exporter == "none" {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)
	tracers := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp.spans, sdktrace.WithBatchTimeout(time.Second)),
	)
	meters := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp.metrics, sdkmetric.WithInterval(cfg.interval()))),
	)

	otel.SetTracerProvider(tracers)
	otel.SetMeterProvider(meters)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) error {
		return errors.Join(tracers.Shutdown(ctx), meters.Shutdown(ctx))
	}, nil
}

func newExporters(ctx context.Context, cfg Config) (exporters, error) {
	switch cfg.Exporter {
	case "", "stdout":
		spans, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return exporters{}, fmt.Errorf("stdout span exporter: %w", err)
		}
		metrics, err := stdoutmetric.New()
		if err != nil {
			return exporters{}, fmt.Errorf("stdout metric exporter: %w", err)
		}
		return exporters{spans: spans, metrics: metrics}, nil

	case "otlp":
		if cfg.OTLPEndpoint == "" {
			return exporters{}, fmt.Errorf("otlp exporter needs an endpoint")
		}
		spanOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			spanOpts = append(spanOpts, otlptracegrpc.WithInsecure())
			metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		}
		if cfg.OTLPTimeout > 0 {
			spanOpts = append(spanOpts, otlptracegrpc.WithTimeout(cfg.OTLPTimeout))
			metricOpts = append(metricOpts, otlpmetricgrpc.WithTimeout(cfg.OTLPTimeout))
		}
		spans, err := otlptracegrpc.New(ctx, spanOpts...)
		if err != nil {
			return exporters{}, fmt.Errorf("otlp span exporter: %w", err)
		}
		metrics, err := otlpmetricgrpc.New(ctx, metricOpts...)
		if err != nil {
			_ = spans.Shutdown(ctx)
			return exporters{}, fmt.Errorf("otlp metric exporter: %w", err)
		}
		return exporters{spans: spans, metrics: metrics}, nil
	}
	return exporters{}, fmt.Errorf("unknown telemetry exporter %q", cfg.Exporter)
}
