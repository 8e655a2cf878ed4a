package tracing

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func shutdown(t *testing.T, p *Provider) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(Config{Logger: quiet})
	if err != nil {
		t.Fatalf("expected no error for disabled tracing, got %v", err)
	}
	if provider.IsEnabled() {
		t.Error("expected tracing to be disabled")
	}
	if got := provider.ServiceName(); got != DefaultServiceName {
		t.Errorf("expected service name %q, got %q", DefaultServiceName, got)
	}
	shutdown(t, provider)
}

func TestNewProvider_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative sampling rate", Config{SamplingRate: -0.1}},
		{"sampling rate above one", Config{SamplingRate: 1.5}},
		{"unsupported exporter", Config{ExporterType: "zipkin", SamplingRate: 0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Enabled = true
			tt.cfg.Logger = quiet
			if _, err := NewProvider(tt.cfg); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestNewProvider_Exporters(t *testing.T) {
	tests := []struct {
		name     string
		exporter string
		endpoint string
	}{
		{"default", "", ""},
		{"otlp http", ExporterOTLPHTTP, "localhost:4318"},
		{"otlp grpc", ExporterOTLPGRPC, "localhost:4317"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(Config{
				Enabled:      true,
				ExporterType: tt.exporter,
				OTLPEndpoint: tt.endpoint,
				InsecureMode: true,
				SamplingRate: 0.1,
				Logger:       quiet,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !provider.IsEnabled() {
				t.Error("expected tracing to be enabled")
			}
			shutdown(t, provider)
		})
	}
}

func TestNewProvider_ResourceCarriesRankingVersion(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	provider, err := NewProvider(Config{
		Enabled:        true,
		Environment:    "staging",
		RankingVersion: "7",
		SamplingRate:   1,
		SpanProcessor:  rec,
		Logger:         quiet,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer shutdown(t, provider)

	_, span := provider.Tracer("test").Start(context.Background(), SpanFeedRank)
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	got := make(map[attribute.Key]string)
	for _, kv := range spans[0].Resource().Attributes() {
		got[kv.Key] = kv.Value.Emit()
	}
	want := map[attribute.Key]string{
		semconv.ServiceNameKey: DefaultServiceName,
		AttrEnvironment:        "staging",
		AttrRankingVersion:     "7",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("resource %s = %q, want %q", k, got[k], v)
		}
	}
	if _, ok := got[semconv.ServiceVersionKey]; ok {
		t.Error("expected no service.version without one configured")
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		if got := newSampler(tt.rate).Description(); !strings.HasPrefix(got, tt.want) {
			t.Errorf("newSampler(%v) = %s, want prefix %s", tt.rate, got, tt.want)
		}
	}
}

func TestSampledParentKeepsChildren(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(newSampler(0.000001)),
		sdktrace.WithSpanProcessor(rec),
	)
	defer tp.Shutdown(context.Background())

	always := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	defer always.Shutdown(context.Background())
	ctx, parent := always.Tracer("test").Start(context.Background(), "GET /feed")
	defer parent.End()

	_, child := tp.Tracer("test").Start(ctx, SpanFeedFetch)
	child.End()

	if len(rec.Ended()) != 1 {
		t.Errorf("expected the child of a sampled parent to be recorded, got %d spans", len(rec.Ended()))
	}
}
