package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/harborcrm/clover/internal/tracing/exporters"
)

// ProviderConfig holds the settings for the trace provider.
type ProviderConfig struct {
	ServiceName string
	Enabled     bool
	Endpoint    string
	Protocol    string
	Insecure    bool
}

// Setup configures the global trace provider and the package tracer. It returns
// a shutdown function that flushes spans; callers should defer it.
func Setup(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	if cfg.Enabled {
		otlpCfg := exporters.DefaultOTLPConfig()
		otlpCfg.Endpoint = cfg.Endpoint
		otlpCfg.Protocol = cfg.Protocol
		otlpCfg.Insecure = cfg.Insecure
		otlp, err := exporters.NewOTLPExporter(ctx, otlpCfg)
		if err != nil {
			return nil, err
		}
		exporter = otlp
	} else {
		exporter = &exporters.ConsoleExporter{}
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	SetTracer(provider.Tracer(cfg.ServiceName))

	return provider.Shutdown, nil
}
