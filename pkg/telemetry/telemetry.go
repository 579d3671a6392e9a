package telemetry

import (
	"context"
	"os"

	"clinicflow/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

const (
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPInsecure = "OTEL_EXPORTER_OTLP_INSECURE"
)

// Setup installs a global OTLP tracer provider when an endpoint is
// configured. The returned function flushes and stops it.
func Setup(serviceName string, log *logger.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }

	endpoint := os.Getenv(EnvOTLPEndpoint)
	if endpoint == "" {
		log.Debug("Tracing disabled, no OTLP endpoint configured")
		return noop
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if os.Getenv(EnvOTLPInsecure) == "true" {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(context.Background(), opts...)
	if err != nil {
		log.Error("Failed to create OTLP exporter", "endpoint", endpoint, "error", err)
		return noop
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		log.Warn("Failed to build telemetry resource", "error", err)
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	log.Info("Tracing enabled", "endpoint", endpoint)
	return provider.Shutdown
}
