package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/copperbox/depsera/internal/model"
)

type alertChannelRow struct {
	ID       string `db:"id"`
	TeamID   string `db:"team_id"`
	Type     string `db:"type"`
	Config   string `db:"config"`
	IsActive bool   `db:"is_active"`
}

func (r alertChannelRow) toModel() model.AlertChannel {
	return model.AlertChannel{ID: r.ID, TeamID: r.TeamID, Type: model.ChannelType(r.Type), Config: []byte(r.Config), IsActive: r.IsActive}
}

// ListActiveChannels returns every active alert channel for a team, the
// fan-out target set for a single alert dispatch (4.I step 4).
func (s *Store) ListActiveChannels(ctx context.Context, teamID string) ([]model.AlertChannel, error) {
	var rows []alertChannelRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, `SELECT * FROM alert_channels WHERE team_id = ? AND is_active = 1`, teamID); err != nil {
		return nil, fmt.Errorf("store: list active channels for %s: %w", teamID, err)
	}
	out := make([]model.AlertChannel, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// GetAlertRule returns a team's dispatch policy, or the implicit default
// (all severities, inactive) when no row has been created.
func (s *Store) GetAlertRule(ctx context.Context, teamID string) (model.AlertRule, error) {
	var row struct {
		ID             string `db:"id"`
		TeamID         string `db:"team_id"`
		SeverityFilter string `db:"severity_filter"`
		IsActive       bool   `db:"is_active"`
	}
	err := sqlx.GetContext(ctx, s.db, &row, `SELECT * FROM alert_rules WHERE team_id = ?`, teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultAlertRule(teamID), nil
	}
	if err != nil {
		return model.AlertRule{}, fmt.Errorf("store: get alert rule for %s: %w", teamID, err)
	}
	return model.AlertRule{ID: row.ID, TeamID: row.TeamID, SeverityFilter: model.SeverityFilter(row.SeverityFilter), IsActive: row.IsActive}, nil
}

// InsertAlertHistory appends a delivery-attempt record, used both for the
// activity feed and as the sliding-window rate-limit ledger.
func InsertAlertHistory(ctx context.Context, ext execer, h model.AlertHistory) error {
	_, err := ext.ExecContext(ctx, `
		INSERT INTO alert_history (id, team_id, service_id, dependency_id, channel_id, event_type, severity, sent_at, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.TeamID, h.ServiceID, nullString(h.DependencyID), h.ChannelID, string(h.EventType), string(h.Severity),
		timeStr(h.SentAt), h.Success, nullString(h.Error))
	if err != nil {
		return fmt.Errorf("store: insert alert history: %w", err)
	}
	return nil
}

// LastAlertDelivery returns the most recent successful delivery timestamp
// for the (team, service, dependency, event type) tuple the cooldown check
// keys on, or the zero time if none exists. An empty dependencyID matches
// rows recorded without a dependency.
func (s *Store) LastAlertDelivery(ctx context.Context, teamID, serviceID, dependencyID string, eventType model.TransitionKind) (time.Time, error) {
	var depID *string
	if dependencyID != "" {
		depID = &dependencyID
	}
	var sentAt sql.NullString
	err := sqlx.GetContext(ctx, s.db, &sentAt, `
		SELECT sent_at FROM alert_history
		WHERE team_id = ? AND service_id = ? AND dependency_id IS ? AND event_type = ? AND success = 1
		ORDER BY sent_at DESC LIMIT 1`,
		teamID, serviceID, nullString(depID), string(eventType))
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("store: last alert delivery: %w", err)
	}
	if !sentAt.Valid {
		return time.Time{}, nil
	}
	return parseTime(sentAt.String), nil
}

// CountAlertsSince counts delivered (success=1) alerts for a team since
// windowStart, the sliding-window count the hourly rate limiter compares
// against its configured ceiling. rate_limited marker rows are not counted.
func (s *Store) CountAlertsSince(ctx context.Context, teamID string, windowStart time.Time) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, s.db, &n, `
		SELECT COUNT(*) FROM alert_history WHERE team_id = ? AND success = 1 AND event_type != ? AND sent_at >= ?`,
		teamID, string(model.TransitionRateLimited), timeStr(windowStart))
	if err != nil {
		return 0, fmt.Errorf("store: count alerts since %s for %s: %w", windowStart, teamID, err)
	}
	return n, nil
}

// HasRateLimitMarker reports whether a rate_limited marker has already been
// recorded for this team since windowStart, enforcing the "one marker per
// hour per team" rule.
func (s *Store) HasRateLimitMarker(ctx context.Context, teamID string, windowStart time.Time) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, s.db, &n, `
		SELECT COUNT(*) FROM alert_history WHERE team_id = ? AND event_type = ? AND sent_at >= ?`,
		teamID, string(model.TransitionRateLimited), timeStr(windowStart))
	if err != nil {
		return false, fmt.Errorf("store: rate limit marker check for %s: %w", teamID, err)
	}
	return n > 0, nil
}
