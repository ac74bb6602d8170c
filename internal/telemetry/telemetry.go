// Package telemetry provides OpenTelemetry tracing for driftor.
//
// Traces are exported over OTLP (gRPC or HTTP) to a collector. Metrics
// are not handled here; driftor exposes Prometheus metrics directly.
// Telemetry failures never crash the application; a failed provider
// leaves the global no-op tracer in place.
package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled bool

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string

	// Protocol is grpc or http/protobuf.
	Protocol string

	ServiceName    string
	ServiceVersion string

	// Insecure disables TLS on the exporter connection.
	Insecure bool

	// SampleRate is the trace sampling ratio, 0.0 to 1.0.
	SampleRate float64

	// ShutdownTimeout bounds Shutdown when the caller's context has no
	// deadline.
	ShutdownTimeout time.Duration
}

// NewDefaultConfig returns telemetry defaults. Tracing is disabled by
// default; most deployments have no collector running.
func NewDefaultConfig() Config {
	return Config{
		Enabled:         false,
		Endpoint:        "localhost:4317",
		Protocol:        "grpc",
		ServiceName:     "driftord",
		ServiceVersion:  "0.1.0",
		Insecure:        true,
		SampleRate:      1.0,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration. A disabled config is always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("telemetry: endpoint required when enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("telemetry: service_name required when enabled")
	}
	switch c.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		return fmt.Errorf("telemetry: unknown protocol %q", c.Protocol)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("telemetry: sample_rate must be in [0, 1], got %v", c.SampleRate)
	}
	return nil
}

// Telemetry owns the tracer provider and its shutdown.
type Telemetry struct {
	config Config

	tracerProvider *trace.TracerProvider
	shutdown       atomic.Bool
}

// New initializes tracing and installs the global tracer provider and
// W3C propagators. When cfg.Enabled is false it returns a no-op
// instance and leaves the globals untouched.
func New(ctx context.Context, cfg Config, opts ...Option) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Telemetry{config: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	tp, err := newTracerProvider(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	t.tracerProvider = tp

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

// Tracer returns a tracer for the given instrumentation scope. No-op
// when tracing is disabled.
func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// Enabled reports whether spans are being recorded and exported.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.tracerProvider != nil && !t.shutdown.Load()
}

// ForceFlush exports all pending spans.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil || t.tracerProvider == nil {
		return nil
	}
	return t.tracerProvider.ForceFlush(ctx)
}

// Shutdown flushes and stops the tracer provider. Safe to call on a
// disabled instance and safe to call more than once.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.tracerProvider == nil {
		return nil
	}
	if !t.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok && t.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownTimeout)
		defer cancel()
	}
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("trace provider shutdown: %w", err)
	}
	return nil
}
