package otel

import (
	"context"
	"testing"
)

func TestDefaultMetricsConfigDisabled(t *testing.T) {
	cfg := DefaultMetricsConfig()
	if cfg.Enabled {
		t.Error("expected metrics disabled by default")
	}
	if cfg.ExporterType != ExporterNone {
		t.Errorf("expected ExporterNone, got %v", cfg.ExporterType)
	}
}

func TestNewMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(context.Background(), DefaultMetricsConfig())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m.Enabled() {
		t.Error("expected disabled metrics instance")
	}
	// Recording against a no-op instrument set must never panic.
	m.RecordPollLatency(context.Background(), "svc-1", 12.5, true)
	m.RecordPollError(context.Background(), "timeout")
	m.SetActiveServices(context.Background(), 1)
	m.RecordAlertDispatch(context.Background(), "slack", true)
	m.RecordCooldownDrop(context.Background())
	m.RecordRateLimitDrop(context.Background())
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestNewMetricsStdoutExporter(t *testing.T) {
	cfg := &MetricsConfig{
		Enabled:      true,
		ServiceName:  "depserad-test",
		ExporterType: ExporterStdout,
	}
	m, err := NewMetrics(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if !m.Enabled() {
		t.Error("expected enabled metrics instance")
	}

	m.RecordPollLatency(context.Background(), "svc-1", 42, true)
	m.RecordPollError(context.Background(), "dns_failed")
	m.SetActiveServices(context.Background(), 3)
	m.RecordAlertDispatch(context.Background(), "webhook", false)
	m.RecordCooldownDrop(context.Background())
	m.RecordRateLimitDrop(context.Background())

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestGlobalMetricsDefaultsToNoop(t *testing.T) {
	SetGlobalMetrics(nil)
	m := GetGlobalMetrics()
	if m == nil {
		t.Fatal("expected a non-nil no-op instance")
	}
	if m.Enabled() {
		t.Error("expected the fallback instance to be disabled")
	}
}

func TestSetGlobalMetricsRoundTrip(t *testing.T) {
	m := NoopMetrics()
	SetGlobalMetrics(m)
	if got := GetGlobalMetrics(); got != m {
		t.Error("expected GetGlobalMetrics to return the instance just set")
	}
	SetGlobalMetrics(nil)
}
