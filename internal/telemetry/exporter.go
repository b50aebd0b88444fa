// Package telemetry exports proxy request metrics to an OTEL collector.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceName = "tankquote"

// Recorder receives one observation per proxied request.
type Recorder interface {
	RecordRequest(ctx context.Context, route, method string, status int, elapsed time.Duration)
	Close(ctx context.Context) error
}

// Exporter records proxy metrics through an OTEL meter provider.
type Exporter struct {
	provider      *sdkmetric.MeterProvider
	requestsTotal metric.Int64Counter
	upstreamFails metric.Int64Counter
	durationHist  metric.Float64Histogram
}

// New returns an OTLP exporter when cfg enables one, and a no-op recorder
// otherwise. Exporter setup failures degrade to the no-op recorder.
func New(ctx context.Context, cfg Config, version string, logger *zap.Logger) Recorder {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return NewNoOpRecorder()
	}
	exp, err := NewExporter(ctx, cfg, version)
	if err != nil {
		if logger != nil {
			logger.Warn("metrics export disabled",
				zap.String("op", "telemetry.New"),
				zap.Error(err),
			)
		}
		return NewNoOpRecorder()
	}
	return exp
}

// NewExporter creates an exporter that pushes to an OTLP gRPC endpoint.
func NewExporter(ctx context.Context, cfg Config, version string) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	e, err := newExporter(sdkmetric.NewPeriodicReader(exp), res)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(e.provider)
	return e, nil
}

func newExporter(reader sdkmetric.Reader, res *resource.Resource) (*Exporter, error) {
	opts := []sdkmetric.Option{sdkmetric.WithReader(reader)}
	if res != nil {
		opts = append(opts, sdkmetric.WithResource(res))
	}
	provider := sdkmetric.NewMeterProvider(opts...)
	meter := provider.Meter(serviceName)

	requestsTotal, err := meter.Int64Counter(
		"tankquote_proxy_requests_total",
		metric.WithDescription("Total proxied requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating requests counter: %w", err)
	}

	upstreamFails, err := meter.Int64Counter(
		"tankquote_proxy_errors_total",
		metric.WithDescription("Proxied requests answered with a 5xx status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating errors counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"tankquote_proxy_request_duration_seconds",
		metric.WithDescription("Proxied request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return &Exporter{
		provider:      provider,
		requestsTotal: requestsTotal,
		upstreamFails: upstreamFails,
		durationHist:  durationHist,
	}, nil
}

// RecordRequest records one proxied request.
func (e *Exporter) RecordRequest(ctx context.Context, route, method string, status int, elapsed time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("method", method),
		attribute.Int("status", status),
	)

	e.requestsTotal.Add(ctx, 1, opt)
	e.durationHist.Record(ctx, elapsed.Seconds(), opt)
	if status >= 500 {
		e.upstreamFails.Add(ctx, 1, opt)
	}
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
