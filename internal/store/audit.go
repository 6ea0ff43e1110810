package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertAuditLog records an administrative action (manual poll trigger,
// schema dry-run, settings override) for later inspection.
func (s *Store) InsertAuditLog(ctx context.Context, actor, action, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, recorded_at, actor, action, detail) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), timeStr(time.Now()), actor, action, detail)
	if err != nil {
		return fmt.Errorf("store: insert audit log: %w", err)
	}
	return nil
}

// DeleteAuditLogBefore removes audit log rows recorded before cutoff, as
// part of the retention sweeper's daily pass.
func (s *Store) DeleteAuditLogBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteBefore(ctx, `DELETE FROM audit_log WHERE recorded_at < ?`, cutoff)
}
