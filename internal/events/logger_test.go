package events

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestGetGlobalEventLoggerReturnsSingletonNoopWhenUnset(t *testing.T) {
	SetGlobalEventLogger(nil)

	a := GetGlobalEventLogger()
	b := GetGlobalEventLogger()

	if a == nil || b == nil {
		t.Fatal("expected non-nil noop logger")
	}
	if a != b {
		t.Fatal("expected singleton noop logger instance")
	}
}

func TestSetGlobalEventLoggerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := NewEventLoggerWithWriter("svc-1", &buf)
	SetGlobalEventLogger(l)
	defer SetGlobalEventLogger(nil)

	if got := GetGlobalEventLogger(); got != l {
		t.Fatal("expected GetGlobalEventLogger to return the instance just set")
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogPollStartedIncludesServiceID(t *testing.T) {
	var buf bytes.Buffer
	l := NewEventLoggerWithWriter("svc-1", &buf)

	l.LogPollStarted()

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}
	if lines[0]["msg"] != "poll_started" {
		t.Errorf("expected msg poll_started, got %v", lines[0]["msg"])
	}
	if lines[0]["service_id"] != "svc-1" {
		t.Errorf("expected service_id svc-1, got %v", lines[0]["service_id"])
	}
}

func TestLogPollSucceeded(t *testing.T) {
	var buf bytes.Buffer
	l := NewEventLoggerWithWriter("svc-1", &buf)

	l.LogPollSucceeded(3, 120)

	lines := decodeLines(t, &buf)
	if lines[0]["dependency_count"].(float64) != 3 {
		t.Errorf("expected dependency_count 3, got %v", lines[0]["dependency_count"])
	}
	if lines[0]["latency_ms"].(float64) != 120 {
		t.Errorf("expected latency_ms 120, got %v", lines[0]["latency_ms"])
	}
}

func TestLogPollFailed(t *testing.T) {
	var buf bytes.Buffer
	l := NewEventLoggerWithWriter("svc-1", &buf)

	l.LogPollFailed("timeout", "context deadline exceeded")

	lines := decodeLines(t, &buf)
	if lines[0]["level"] != "WARN" {
		t.Errorf("expected WARN level, got %v", lines[0]["level"])
	}
	if lines[0]["kind"] != "timeout" {
		t.Errorf("expected kind timeout, got %v", lines[0]["kind"])
	}
}

func TestLogAlertDispatchedLevelTracksSuccess(t *testing.T) {
	var buf bytes.Buffer
	l := NewEventLoggerWithWriter("svc-1", &buf)

	l.LogAlertDispatched("team-a", "slack", true)
	l.LogAlertDispatched("team-a", "slack", false)

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if lines[0]["level"] != "INFO" {
		t.Errorf("expected success dispatch to log at INFO, got %v", lines[0]["level"])
	}
	if lines[1]["level"] != "WARN" {
		t.Errorf("expected failed dispatch to log at WARN, got %v", lines[1]["level"])
	}
}

func TestLogAlertDropped(t *testing.T) {
	var buf bytes.Buffer
	l := NewEventLoggerWithWriter("svc-1", &buf)

	l.LogAlertDropped("team-a", "cooldown")

	lines := decodeLines(t, &buf)
	if lines[0]["reason"] != "cooldown" {
		t.Errorf("expected reason cooldown, got %v", lines[0]["reason"])
	}
}

func TestLogRetentionSwept(t *testing.T) {
	var buf bytes.Buffer
	l := NewEventLoggerWithWriter("svc-1", &buf)

	l.LogRetentionSwept("dependency_latency_history", 42)

	lines := decodeLines(t, &buf)
	if lines[0]["table"] != "dependency_latency_history" {
		t.Errorf("expected table name, got %v", lines[0]["table"])
	}
	if lines[0]["rows_deleted"].(float64) != 42 {
		t.Errorf("expected rows_deleted 42, got %v", lines[0]["rows_deleted"])
	}
}

func TestNoopEventLoggerDiscardsOutput(t *testing.T) {
	l := NoopEventLogger()
	l.LogPollStarted()
	l.LogPollFailed("internal", "boom")
}
