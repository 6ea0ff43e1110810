// Package otel provides OpenTelemetry metrics integration for the polling
// pipeline: poll latency, poll errors by kind, active-service count, and
// alert-dispatch outcomes. Generalized from the teacher's instrument set
// (operationLatency/errorCounter/activeSessions became
// pollLatency/pollErrors/activeServices), same exporter plumbing
// (stdout/OTLP-gRPC/OTLP-HTTP; disabled by default, in which case every
// method is a no-op).
package otel

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ExporterType selects which metrics exporter backs a Metrics instance.
type ExporterType string

const (
	ExporterNone     ExporterType = "none"
	ExporterStdout   ExporterType = "stdout"
	ExporterOTLPGRPC ExporterType = "otlp-grpc"
	ExporterOTLPHTTP ExporterType = "otlp-http"
)

// MetricsConfig holds configuration for the OpenTelemetry metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active. Default: false (no-op).
	Enabled bool

	// ServiceName is the name of the service for metric attribution.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// ExporterType specifies which exporter to use.
	ExporterType ExporterType

	// OTLPEndpoint is the endpoint for OTLP exporters (e.g., "localhost:4317").
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool

	// Attributes are additional attributes to add to all metrics.
	Attributes map[string]string
}

// DefaultMetricsConfig returns a default configuration with metrics disabled.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:      false,
		ServiceName:  "depserad",
		ExporterType: ExporterNone,
	}
}

// Metrics wraps OpenTelemetry metrics functionality with depsera-specific
// instruments: poll latency/errors, active-service gauge, and alert
// dispatch/cooldown/rate-limit counters.
type Metrics struct {
	config        *MetricsConfig
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	shutdown      func(context.Context) error
	mu            sync.RWMutex

	pollLatency     metric.Float64Histogram
	pollErrors      metric.Int64Counter
	activeServices  metric.Int64UpDownCounter
	alertDispatched metric.Int64Counter
	alertCooldown   metric.Int64Counter
	alertRateLimit  metric.Int64Counter
}

var (
	globalMetrics   *Metrics
	globalMetricsMu sync.RWMutex
)

// NewMetrics creates a new Metrics instance with the given configuration.
func NewMetrics(ctx context.Context, cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultMetricsConfig()
	}

	m := &Metrics{config: cfg}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		m.meterProvider = sdkmetric.NewMeterProvider()
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		m.shutdown = func(context.Context) error { return nil }
		return m, nil
	}

	exporter, err := m.createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	res, err := m.createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	m.meterProvider = mp
	m.meter = mp.Meter(cfg.ServiceName)
	m.shutdown = mp.Shutdown

	if err := m.registerInstruments(); err != nil {
		return nil, fmt.Errorf("failed to register metric instruments: %w", err)
	}

	return m, nil
}

func (m *Metrics) createExporter(ctx context.Context, cfg *MetricsConfig) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()

	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

func (m *Metrics) createResource(cfg *MetricsConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes("", attrs...))
}

func (m *Metrics) registerInstruments() error {
	var err error

	m.pollLatency, err = m.meter.Float64Histogram(
		"depsera.poll.latency",
		metric.WithDescription("Latency of health-endpoint polls"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("failed to create poll latency histogram: %w", err)
	}

	m.pollErrors, err = m.meter.Int64Counter(
		"depsera.poll.errors",
		metric.WithDescription("Count of poll failures by error kind"),
	)
	if err != nil {
		return fmt.Errorf("failed to create poll error counter: %w", err)
	}

	m.activeServices, err = m.meter.Int64UpDownCounter(
		"depsera.services.active",
		metric.WithDescription("Number of services currently scheduled for polling"),
	)
	if err != nil {
		return fmt.Errorf("failed to create active services counter: %w", err)
	}

	m.alertDispatched, err = m.meter.Int64Counter(
		"depsera.alerts.dispatched",
		metric.WithDescription("Count of alert delivery attempts by channel type and outcome"),
	)
	if err != nil {
		return fmt.Errorf("failed to create alert dispatch counter: %w", err)
	}

	m.alertCooldown, err = m.meter.Int64Counter(
		"depsera.alerts.cooldown_dropped",
		metric.WithDescription("Count of alert events dropped by the cooldown rule"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cooldown-drop counter: %w", err)
	}

	m.alertRateLimit, err = m.meter.Int64Counter(
		"depsera.alerts.rate_limited",
		metric.WithDescription("Count of alert events dropped by the per-team rate limit"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rate-limit-drop counter: %w", err)
	}

	return nil
}

// RecordPollLatency records one poll attempt's round-trip latency.
func (m *Metrics) RecordPollLatency(ctx context.Context, serviceID string, latencyMs float64, success bool) {
	if m.pollLatency == nil {
		return
	}
	m.pollLatency.Record(ctx, latencyMs, metric.WithAttributes(
		attribute.String("service_id", serviceID),
		attribute.Bool("success", success),
	))
}

// RecordPollError increments the poll error counter for the given taxonomy kind.
func (m *Metrics) RecordPollError(ctx context.Context, kind string) {
	if m.pollErrors == nil {
		return
	}
	m.pollErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// SetActiveServices adds delta to the active-service up-down counter.
func (m *Metrics) SetActiveServices(ctx context.Context, delta int64) {
	if m.activeServices == nil {
		return
	}
	m.activeServices.Add(ctx, delta)
}

// RecordAlertDispatch records one alert delivery attempt's outcome.
func (m *Metrics) RecordAlertDispatch(ctx context.Context, channelType string, success bool) {
	if m.alertDispatched == nil {
		return
	}
	m.alertDispatched.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel_type", channelType),
		attribute.Bool("success", success),
	))
}

// RecordCooldownDrop increments the cooldown-drop counter.
func (m *Metrics) RecordCooldownDrop(ctx context.Context) {
	if m.alertCooldown == nil {
		return
	}
	m.alertCooldown.Add(ctx, 1)
}

// RecordRateLimitDrop increments the rate-limit-drop counter.
func (m *Metrics) RecordRateLimitDrop(ctx context.Context) {
	if m.alertRateLimit == nil {
		return
	}
	m.alertRateLimit.Add(ctx, 1)
}

// Shutdown gracefully shuts down the metrics provider, flushing any pending metrics.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

// Enabled returns whether metrics collection is enabled.
func (m *Metrics) Enabled() bool {
	return m.config.Enabled && m.config.ExporterType != ExporterNone
}

// MeterProvider returns the underlying meter provider.
func (m *Metrics) MeterProvider() *sdkmetric.MeterProvider {
	return m.meterProvider
}

// SetGlobalMetrics sets the global metrics instance.
func SetGlobalMetrics(m *Metrics) {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	globalMetrics = m

	if m != nil && m.Enabled() {
		otel.SetMeterProvider(m.meterProvider)
	}
}

// GetGlobalMetrics returns the global metrics instance, or a no-op instance
// if none has been set.
func GetGlobalMetrics() *Metrics {
	globalMetricsMu.RLock()
	defer globalMetricsMu.RUnlock()

	if globalMetrics == nil {
		return NoopMetrics()
	}
	return globalMetrics
}

// NoopMetrics returns a metrics instance that does nothing (for testing or when disabled).
func NoopMetrics() *Metrics {
	cfg := DefaultMetricsConfig()
	mp := sdkmetric.NewMeterProvider()
	return &Metrics{
		config:        cfg,
		meterProvider: mp,
		meter:         mp.Meter(cfg.ServiceName),
		shutdown:      func(context.Context) error { return nil },
	}
}
