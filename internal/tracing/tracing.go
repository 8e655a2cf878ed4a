// Package tracing provides OpenTelemetry distributed tracing setup and span
// helpers for the feed service, its Postgres stores and its Redis caches.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is reported when Config.ServiceName is empty.
const DefaultServiceName = "citypulse"

// Exporter types.
const (
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// Resource attributes attached to every span.
const (
	AttrEnvironment    = attribute.Key("deployment.environment")
	AttrRankingVersion = attribute.Key("citypulse.ranking.version")
)

// Span names used by the feed service.
const (
	SpanFeedRank              = "feed.rank"
	SpanFeedFetch             = "feed.fetch"
	SpanFeedRecordFeedback    = "feed.record_feedback"
	SpanFeedRecordView        = "feed.record_view"
	SpanFeedRecordInteraction = "feed.record_interaction"
)

// Config holds the configuration for distributed tracing.
type Config struct {
	Enabled bool

	// ServiceName identifies this service in traces. Defaults to
	// DefaultServiceName.
	ServiceName    string
	ServiceVersion string
	Environment    string

	// RankingVersion is the calibration version the ranker was built with,
	// so traces from two calibrations can be told apart.
	RankingVersion string

	// ExporterType is ExporterOTLPHTTP (the default) or ExporterOTLPGRPC.
	ExporterType string
	OTLPEndpoint string
	InsecureMode bool

	// SamplingRate is the fraction of root traces sampled, 0 to 1. Child
	// spans follow their parent's decision.
	SamplingRate float64

	// SpanProcessor replaces the OTLP batch exporter when set.
	SpanProcessor sdktrace.SpanProcessor

	Logger *slog.Logger
}

// Provider manages the OpenTelemetry tracer provider.
type Provider struct {
	tp     *sdktrace.TracerProvider
	config Config
}

// NewProvider configures the global tracer provider and propagator. A
// disabled config returns a Provider that leaves the globals untouched.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if !cfg.Enabled {
		cfg.Logger.Info("tracing disabled", slog.String("service", cfg.ServiceName))
		return &Provider{config: cfg}, nil
	}
	if cfg.SamplingRate < 0 || cfg.SamplingRate > 1 {
		return nil, fmt.Errorf("sampling rate must be between 0 and 1, got %f", cfg.SamplingRate)
	}

	processor := cfg.SpanProcessor
	if processor == nil {
		exporter, err := newExporter(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create exporter: %w", err)
		}
		processor = sdktrace.NewBatchSpanProcessor(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, cfg.resourceAttributes()...)),
		sdktrace.WithSampler(newSampler(cfg.SamplingRate)),
		sdktrace.WithSpanProcessor(processor),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	cfg.Logger.Info("tracing initialized",
		slog.String("service", cfg.ServiceName),
		slog.String("exporter", cfg.ExporterType),
		slog.String("endpoint", cfg.OTLPEndpoint),
		slog.Float64("sampling_rate", cfg.SamplingRate),
		slog.String("ranking_version", cfg.RankingVersion),
	)

	return &Provider{tp: tp, config: cfg}, nil
}

func (c Config) resourceAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(c.ServiceName)}
	if c.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(c.ServiceVersion))
	}
	if c.Environment != "" {
		attrs = append(attrs, AttrEnvironment.String(c.Environment))
	}
	if c.RankingVersion != "" {
		attrs = append(attrs, AttrRankingVersion.String(c.RankingVersion))
	}
	return attrs
}

// newSampler samples root spans at rate and keeps the parent's decision
// for everything else.
func newSampler(rate float64) sdktrace.Sampler {
	switch rate {
	case 1:
		return sdktrace.AlwaysSample()
	case 0:
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.ExporterType {
	case ExporterOTLPHTTP, "":
		var opts []otlptracehttp.Option
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.InsecureMode {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	case ExporterOTLPGRPC:
		var opts []otlptracegrpc.Option
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.InsecureMode {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}
}

// Shutdown flushes pending spans and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	p.config.Logger.Info("shutting down tracer provider")
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	return nil
}

// Tracer returns a tracer for the given name.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.tp == nil {
		return otel.Tracer(name)
	}
	return p.tp.Tracer(name)
}

// IsEnabled returns whether tracing is enabled.
func (p *Provider) IsEnabled() bool {
	return p.config.Enabled
}

// ServiceName returns the name spans are reported under.
func (p *Provider) ServiceName() string {
	return p.config.ServiceName
}
