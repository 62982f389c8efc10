// Package telemetry wires OpenTelemetry metrics and tracing for the
// workers and the host. Metrics are exported through Prometheus on an
// optional bind address; traces go to an OTLP endpoint when one is
// configured. There is no stdout trace fallback: worker stdout carries
// the wire protocol and must stay clean.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"

	"github.com/sonuslabs/sonus-core/internal/config"
)

// Provider owns the telemetry pipeline for one process.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	traceShutdown func(context.Context) error
	metricsServer *http.Server
	log           *slog.Logger
}

// Setup initializes global meter and tracer providers and, when
// configured, starts the Prometheus scrape endpoint.
func Setup(ctx context.Context, serviceName, environment string, cfg config.TelemetryConfig, log *slog.Logger) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attribute.String("deployment.environment", environment),
		),
	)
	if err != nil {
		return nil, err
	}

	p := &Provider{log: log}

	promExporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to initialize prometheus exporter", slog.String("error", err.Error()))
		p.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	} else {
		p.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(promExporter),
			sdkmetric.WithResource(res),
		)
		if bind := strings.TrimSpace(cfg.PrometheusBind); bind != "" {
			p.serveMetrics(bind)
		}
	}
	otel.SetMeterProvider(p.meterProvider)

	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		p.traceShutdown = tp.Shutdown
		log.Info("trace export enabled", slog.String("endpoint", endpoint))
	}

	return p, nil
}

func (p *Provider) serveMetrics(bind string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	p.metricsServer = &http.Server{
		Addr:              bind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := p.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			p.log.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	p.log.Info("metrics endpoint started", slog.String("addr", bind))
}

// Meter returns a named meter from this provider.
func (p *Provider) Meter(name string) metric.Meter {
	return p.meterProvider.Meter(name)
}

// Shutdown flushes and stops all telemetry components.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.metricsServer != nil {
		if err := p.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if p.traceShutdown != nil {
		if err := p.traceShutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WorkerMetrics are the per-request instruments recorded by the protocol
// engine. A nil receiver is a no-op so metrics stay optional.
type WorkerMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func NewWorkerMetrics(meter metric.Meter) (*WorkerMetrics, error) {
	requests, err := meter.Int64Counter("worker.requests",
		metric.WithDescription("Requests processed by the worker, by command and outcome"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("worker.request.duration",
		metric.WithDescription("Per-request processing time"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &WorkerMetrics{requests: requests, duration: duration}, nil
}

func (m *WorkerMetrics) Record(ctx context.Context, command string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.Bool("success", success),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}
