// Package events provides structured JSON logging for the polling
// pipeline's key lifecycle events, wrapped around log/slog the same way
// the teacher wraps it, retargeted from per-session streaming events to
// per-service poll/alert/retention events.
package events

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// EventLogger provides structured logging for key pipeline events.
type EventLogger struct {
	logger    *slog.Logger
	serviceID string
}

// NewEventLogger creates a new EventLogger with JSON output to stdout.
// It includes a base attribute: service_id.
func NewEventLogger(serviceID string) *EventLogger {
	return newEventLogger(serviceID, os.Stdout)
}

// NewEventLoggerWithWriter creates a new EventLogger with JSON output to a custom writer.
// Useful for testing or redirecting output.
func NewEventLoggerWithWriter(serviceID string, w io.Writer) *EventLogger {
	return newEventLogger(serviceID, w)
}

func newEventLogger(serviceID string, w io.Writer) *EventLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(handler).With("service_id", serviceID)
	return &EventLogger{
		logger:    logger,
		serviceID: serviceID,
	}
}

// LogPollStarted logs the start of a poll attempt.
// event: "poll_started"
func (el *EventLogger) LogPollStarted() {
	el.logger.Info("poll_started")
}

// LogPollSucceeded logs a successful poll.
// event: "poll_succeeded"
// Attributes: dependency_count, latency_ms
func (el *EventLogger) LogPollSucceeded(dependencyCount int, latencyMs int64) {
	el.logger.Info("poll_succeeded",
		"dependency_count", dependencyCount,
		"latency_ms", latencyMs,
	)
}

// LogPollFailed logs a failed poll attempt.
// event: "poll_failed"
// Attributes: kind, reason
func (el *EventLogger) LogPollFailed(kind, reason string) {
	el.logger.Warn("poll_failed",
		"kind", kind,
		"reason", reason,
	)
}

// LogTransition logs a dependency health transition.
// event: "dependency_transition"
// Attributes: dependency_name, kind
func (el *EventLogger) LogTransition(dependencyName, kind string) {
	el.logger.Info("dependency_transition",
		"dependency_name", dependencyName,
		"kind", kind,
	)
}

// LogAlertDispatched logs the outcome of one alert delivery attempt.
// event: "alert_dispatched"
// Attributes: team_id, channel_type, success
func (el *EventLogger) LogAlertDispatched(teamID, channelType string, success bool) {
	if success {
		el.logger.Info("alert_dispatched",
			"team_id", teamID,
			"channel_type", channelType,
			"success", success,
		)
		return
	}
	el.logger.Warn("alert_dispatched",
		"team_id", teamID,
		"channel_type", channelType,
		"success", success,
	)
}

// LogAlertDropped logs an alert event the dispatcher declined to deliver.
// event: "alert_dropped"
// reason is one of "severity_filter", "cooldown", "rate_limited", "no_rule".
func (el *EventLogger) LogAlertDropped(teamID, reason string) {
	el.logger.Info("alert_dropped",
		"team_id", teamID,
		"reason", reason,
	)
}

// LogRetentionSwept logs rows purged from one table during a retention sweep.
// event: "retention_swept"
// Attributes: table, rows_deleted
func (el *EventLogger) LogRetentionSwept(table string, rowsDeleted int64) {
	el.logger.Info("retention_swept",
		"table", table,
		"rows_deleted", rowsDeleted,
	)
}

// Global logger management
var (
	globalLogger *EventLogger
	globalNoop   *EventLogger
	globalMu     sync.RWMutex
)

// SetGlobalEventLogger sets the global event logger instance.
func SetGlobalEventLogger(l *EventLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalEventLogger returns the global event logger instance.
// If no logger is set, returns the shared no-op singleton.
func GetGlobalEventLogger() *EventLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	if globalNoop == nil {
		globalNoop = NoopEventLogger()
	}
	return globalNoop
}

// NoopEventLogger returns an event logger that discards all events.
// Useful for testing or when event logging is disabled.
func NoopEventLogger() *EventLogger {
	handler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(handler)
	return &EventLogger{
		logger: logger,
	}
}
