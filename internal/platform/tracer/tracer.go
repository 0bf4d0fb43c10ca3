package tracer

import (
	"context"
	"time"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Name is the instrumentation scope used for spans across the marketplace.
const Name = "github.com/OWOUWUEWE/Hot-Wheels-Elite"

// Tracer returns the tracer of one component, scoped under Name.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(Name + "/" + component)
}

// Config selects where spans are exported and how many are kept.
type Config struct {
	ServiceName string
	Store       string
	Endpoint    string
	// SampleRatio is the share of root traces kept: 1 keeps all, 0 none.
	SampleRatio float64
}

func (c Config) sampler() sdktrace.Sampler {
	switch {
	case c.SampleRatio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case c.SampleRatio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
	}
}

func (c Config) resource() *resource.Resource {
	attrs := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(c.ServiceName),
		attribute.String("market.store_backend", c.Store),
	)
	res, err := resource.Merge(resource.Default(), attrs)
	if err != nil {
		// Schema URL conflict with the SDK default; the service attributes
		// alone are enough.
		return attrs
	}
	return res
}

// InitTracer installs the global tracer provider and propagator. Spans are
// exported over OTLP gRPC when an endpoint is set; otherwise they are only
// sampled and dropped.
func InitTracer(cfg Config, appLogger *logger.Logger) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(cfg.resource()),
		sdktrace.WithSampler(cfg.sampler()),
	}

	if cfg.Endpoint == "" {
		appLogger.Info("span export disabled: OTEL_EXPORTER_OTLP_ENDPOINT is not set")
	} else if exporter, err := newExporter(cfg.Endpoint); err != nil {
		appLogger.Error("failed to create OTLP trace exporter", zap.Error(err), zap.String("endpoint", cfg.Endpoint))
	} else {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	appLogger.Info("tracer initialized",
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_ratio", cfg.SampleRatio),
		zap.Bool("exporting", cfg.Endpoint != ""))
	return tp
}

func newExporter(endpoint string) (sdktrace.SpanExporter, error) {
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return exporter, nil
}
