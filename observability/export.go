package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/kbukum/eventstream/logger"
)

const defaultEndpoint = "localhost:4318"

// ExportConfig is what tracing and metrics share: where to send data over
// OTLP HTTP and how to label the service.
type ExportConfig struct {
	// Enabled turns on export. When false the global no-op providers stay.
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	ServiceName    string `yaml:"service_name" mapstructure:"service_name"`
	ServiceVersion string `yaml:"service_version" mapstructure:"service_version"`
	Environment    string `yaml:"environment" mapstructure:"environment"`
	// Endpoint is the collector's host:port.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure bool   `yaml:"insecure" mapstructure:"insecure"`
}

// Inherit fills unset identity fields from the service config and the
// endpoint from its default.
func (c *ExportConfig) Inherit(name, version, environment string) {
	if c.ServiceName == "" {
		c.ServiceName = name
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = version
	}
	if c.Environment == "" {
		c.Environment = environment
	}
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
}

func (c *ExportConfig) resource() (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(c.ServiceName),
			semconv.ServiceVersion(c.ServiceVersion),
			attribute.String("environment", c.Environment),
		),
	)
}

// TracerConfig configures span export.
type TracerConfig struct {
	ExportConfig `yaml:",inline" mapstructure:",squash"`
	// SampleRate is the fraction of new traces kept. Zero means the
	// default of 1; disable the tracer to keep none.
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// ApplyDefaults sets the sample rate to 1 when unset.
func (c *TracerConfig) ApplyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 1
	}
}

func (c *TracerConfig) sampler() sdktrace.Sampler {
	if c.SampleRate >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRate))
}

// MeterConfig configures metric export.
type MeterConfig struct {
	ExportConfig `yaml:",inline" mapstructure:",squash"`
	Interval     time.Duration `yaml:"interval" mapstructure:"interval" validate:"gte=0"`
}

// ApplyDefaults sets a 15s export interval when unset.
func (c *MeterConfig) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = 15 * time.Second
	}
}

// InitTracer installs an OTLP tracer provider and the W3C trace context
// propagator as globals. The caller shuts the provider down on exit.
func InitTracer(ctx context.Context, cfg *TracerConfig) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	res, err := cfg.resource()
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Tracer initialized", logger.Fields(
		"endpoint", cfg.Endpoint,
		"sample_rate", cfg.SampleRate,
	))
	return tp, nil
}

// InitMeter installs an OTLP meter provider as the global one. The caller
// shuts the provider down on exit.
func InitMeter(ctx context.Context, cfg *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	res, err := cfg.resource()
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("Meter initialized", logger.Fields(
		"endpoint", cfg.Endpoint,
		"interval", cfg.Interval.String(),
	))
	return mp, nil
}
