// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"io"
	"os"
	"strings"
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
	"google.golang.org/grpc/credentials"

	"github.com/jllopis/arbiter/pkg/errors"
)

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

// Config selects where decision spans and metrics go.
type Config struct {
	ServiceName string
	Version     string

	// Exporter is "stdout", "otlp" or "none". "none" still installs SDK
	// providers so in-process readers and span processors work.
	Exporter     string
	OTLPEndpoint string
	// OTLPInsecure disables TLS on the OTLP gRPC connection.
	OTLPInsecure       bool
	OTLPTimeoutSeconds int

	// SampleRatio is the fraction of tick traces kept. Zero keeps all.
	// A host ticking hundreds of agents usually wants far less than 1.
	SampleRatio float64
	// MetricInterval is the export period; zero means one minute.
	MetricInterval time.Duration
	// Output receives stdout-exporter records. Nil means os.Stderr, so
	// command output on stdout stays clean.
	Output io.Writer
}

type exporters struct {
	spans   sdktrace.SpanExporter
	metrics sdkmetric.Exporter
}

type exporterFactory func(ctx context.Context, cfg Config) (exporters, error)

var exporterFactories = map[string]exporterFactory{
	"stdout": stdoutExporters,
	"otlp":   otlpExporters,
	"none":   func(context.Context, Config) (exporters, error) { return exporters{}, nil },
}

// Setup installs global tracer and meter providers for cfg and the W3C
// trace-context propagator.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	if name == "" {
		name = "stdout"
	}
	factory, ok := exporterFactories[name]
	if !ok {
		return nil, errors.New(errors.CodeInvalidInput, "unknown telemetry exporter", nil).
			WithContext("exporter", cfg.Exporter)
	}
	exp, err := factory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "arbiter"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(cfg.Version),
	))
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "telemetry resource", err)
	}

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		traceOpts = append(traceOpts,
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))))
	}
	if exp.spans != nil {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exp.spans, sdktrace.WithBatchTimeout(time.Second)))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if exp.metrics != nil {
		interval := cfg.MetricInterval
		if interval <= 0 {
			interval = time.Minute
		}
		meterOpts = append(meterOpts,
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp.metrics, sdkmetric.WithInterval(interval))))
	}
	mp := sdkmetric.NewMeterProvider(meterOpts...)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return stderrors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func stdoutExporters(_ context.Context, cfg Config) (exporters, error) {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	spans, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return exporters{}, errors.New(errors.CodeInternal, "stdout trace exporter", err)
	}
	metrics, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return exporters{}, errors.New(errors.CodeInternal, "stdout metric exporter", err)
	}
	return exporters{spans: spans, metrics: metrics}, nil
}

func otlpExporters(ctx context.Context, cfg Config) (exporters, error) {
	if cfg.OTLPEndpoint == "" {
		return exporters{}, errors.New(errors.CodeInvalidInput, "otlp exporter requires an endpoint", nil)
	}
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	} else {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		traceOpts = append(traceOpts, otlptracegrpc.WithTLSCredentials(creds))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithTLSCredentials(creds))
	}
	if cfg.OTLPTimeoutSeconds > 0 {
		timeout := time.Duration(cfg.OTLPTimeoutSeconds) * time.Second
		traceOpts = append(traceOpts, otlptracegrpc.WithTimeout(timeout))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithTimeout(timeout))
	}

	spans, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return exporters{}, errors.New(errors.CodeInternal, "otlp trace exporter", err).
			WithContext("endpoint", cfg.OTLPEndpoint)
	}
	metrics, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = spans.Shutdown(ctx)
		return exporters{}, errors.New(errors.CodeInternal, "otlp metric exporter", err).
			WithContext("endpoint", cfg.OTLPEndpoint)
	}
	return exporters{spans: spans, metrics: metrics}, nil
}
