package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/copperbox/depsera/internal/model"
)

// InsertLatencyHistory appends a latency sample. Called once per parsed
// record that carries a latency value, healthy or not, inside the poll
// executor's transaction.
func InsertLatencyHistory(ctx context.Context, ext execer, dependencyID string, latencyMs int, recordedAt time.Time) error {
	_, err := ext.ExecContext(ctx, `
		INSERT INTO dependency_latency_history (id, dependency_id, latency_ms, recorded_at)
		VALUES (?, ?, ?, ?)`,
		uuid.NewString(), dependencyID, latencyMs, timeStr(recordedAt))
	if err != nil {
		return fmt.Errorf("store: insert latency history for %s: %w", dependencyID, err)
	}
	return nil
}

// InsertErrorHistory appends an error (or recovery, both fields nil) sample.
func InsertErrorHistory(ctx context.Context, ext execer, dependencyID string, errStr, errMsg *string, recordedAt time.Time) error {
	_, err := ext.ExecContext(ctx, `
		INSERT INTO dependency_error_history (id, dependency_id, error, error_message, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), dependencyID, nullString(errStr), nullString(errMsg), timeStr(recordedAt))
	if err != nil {
		return fmt.Errorf("store: insert error history for %s: %w", dependencyID, err)
	}
	return nil
}

// InsertStatusChangeEvent appends a denormalized activity-feed row.
func InsertStatusChangeEvent(ctx context.Context, ext execer, ev model.StatusChangeEvent) error {
	_, err := ext.ExecContext(ctx, `
		INSERT INTO status_change_events (id, service_id, service_name, dependency_name, previous_healthy, current_healthy, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ServiceID, ev.ServiceName, ev.DependencyName, nullBool(ev.PreviousHealthy), nullBool(ev.CurrentHealthy), timeStr(ev.RecordedAt))
	if err != nil {
		return fmt.Errorf("store: insert status change event: %w", err)
	}
	return nil
}

// HistoryStore is the narrow interface the retention sweeper consumes,
// adapted from the teacher's TelemetryStoreAdapter pattern: a sweeper
// component depends on exactly the handful of delete-before operations it
// needs, not the full Store surface.
type HistoryStore interface {
	DeleteLatencyHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteErrorHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteStatusChangeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAlertHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAuditLogBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var _ HistoryStore = (*Store)(nil)

func (s *Store) DeleteLatencyHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteBefore(ctx, `DELETE FROM dependency_latency_history WHERE recorded_at < ?`, cutoff)
}

func (s *Store) DeleteErrorHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteBefore(ctx, `DELETE FROM dependency_error_history WHERE recorded_at < ?`, cutoff)
}

func (s *Store) DeleteStatusChangeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteBefore(ctx, `DELETE FROM status_change_events WHERE recorded_at < ?`, cutoff)
}

func (s *Store) DeleteAlertHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteBefore(ctx, `DELETE FROM alert_history WHERE sent_at < ?`, cutoff)
}

func (s *Store) deleteBefore(ctx context.Context, query string, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, timeStr(cutoff))
	if err != nil {
		return 0, fmt.Errorf("store: delete before %s: %w", cutoff, err)
	}
	return res.RowsAffected()
}
