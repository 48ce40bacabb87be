// Package observability wires optional OpenTelemetry tracing.
//
// Spans are exported over OTLP HTTP to a local collector agent, which
// handles authentication and forwarding. Tracing is best effort: an
// unreachable agent downgrades to a warning and the service runs untraced.
package observability

import (
	"context"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/medsketch/medsketch/internal/log"
)

// Config for trace export.
type Config struct {
	// Endpoint is the OTLP HTTP host:port. Empty disables tracing.
	Endpoint string

	// ServiceName tags exported spans.
	ServiceName string

	// Environment is the deployment environment (dev, staging, prod).
	Environment string
}

// Setup registers an OTLP span processor with Genkit's TracerProvider so
// pipeline and model spans flow to the collector. Returns a shutdown
// function that flushes pending spans; the function is a no-op when
// tracing is disabled or the exporter cannot be created.
func Setup(ctx context.Context, cfg Config, logger log.Logger) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	if cfg.Endpoint == "" {
		return noop, nil
	}

	// Genkit's TracerProvider reads service identity from the OTEL
	// environment at span export time.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // local agent, no TLS
	)
	if err != nil {
		logger.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return noop, nil
	}

	tracing.TracerProvider().RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))
	logger.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment)

	return tracing.TracerProvider().Shutdown, nil
}
