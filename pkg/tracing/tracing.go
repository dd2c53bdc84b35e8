package tracing

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/serenita-org/vero/pkg/utils"
)

var log = logrus.WithField(
	"module", "tracing",
)

// Setup installs an OTLP trace exporter when the standard
// OTEL_EXPORTER_OTLP_* environment is present. Returns a shutdown function;
// with no endpoint configured tracing stays a no-op.
func Setup(ctx context.Context) (func(context.Context) error, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" &&
		os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create OTLP trace exporter")
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(utils.CliName),
			semconv.ServiceVersion(utils.Version),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build trace resource")
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	log.Info("OTLP trace export enabled")
	return provider.Shutdown, nil
}
