package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/copperbox/depsera/internal/model"
)

type dependencyRow struct {
	ID               string         `db:"id"`
	ServiceID        string         `db:"service_id"`
	Name             string         `db:"name"`
	CanonicalName    string         `db:"canonical_name"`
	Description      sql.NullString `db:"description"`
	Impact           sql.NullString `db:"impact"`
	Type             string         `db:"type"`
	Healthy          sql.NullBool   `db:"healthy"`
	HealthState      sql.NullInt64  `db:"health_state"`
	HealthCode       sql.NullInt64  `db:"health_code"`
	LatencyMs        sql.NullInt64  `db:"latency_ms"`
	LastChecked      string         `db:"last_checked"`
	LastStatusChange string         `db:"last_status_change"`
	Error            sql.NullString `db:"error"`
	ErrorMessage     sql.NullString `db:"error_message"`
	Skipped          bool           `db:"skipped"`
}

func (r dependencyRow) toModel() model.Dependency {
	var impact *model.Impact
	if r.Impact.Valid {
		v := model.Impact(r.Impact.String)
		impact = &v
	}
	return model.Dependency{
		ID:               r.ID,
		ServiceID:        r.ServiceID,
		Name:             r.Name,
		CanonicalName:    r.CanonicalName,
		Description:      stringPtr(r.Description),
		Impact:           impact,
		Type:             model.DependencyType(r.Type),
		Healthy:          boolPtr(r.Healthy),
		HealthState:      intPtr(r.HealthState),
		HealthCode:       intPtr(r.HealthCode),
		LatencyMs:        intPtr(r.LatencyMs),
		LastChecked:      parseTime(r.LastChecked),
		LastStatusChange: parseTime(r.LastStatusChange),
		Error:            stringPtr(r.Error),
		ErrorMessage:     stringPtr(r.ErrorMessage),
		Skipped:          r.Skipped,
	}
}

// ListDependencies returns every dependency row currently stored for a
// service, keyed for the poll executor's name-based diff (4.F step 6). ext
// may be the pooled handle or an in-flight transaction.
func ListDependencies(ctx context.Context, ext execer, serviceID string) ([]model.Dependency, error) {
	var rows []dependencyRow
	if err := sqlx.SelectContext(ctx, ext, &rows, `SELECT * FROM dependencies WHERE service_id = ?`, serviceID); err != nil {
		return nil, fmt.Errorf("store: list dependencies for %s: %w", serviceID, err)
	}
	out := make([]model.Dependency, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// ListDependencies is the pooled-handle convenience form of the
// package-level function above, for callers outside a transaction.
func (s *Store) ListDependencies(ctx context.Context, serviceID string) ([]model.Dependency, error) {
	return ListDependencies(ctx, s.db, serviceID)
}

// UpsertDependency inserts a new dependency row, or overwrites every field
// when one already exists for (service_id, name). A row reappearing in a
// response always clears skipped, matching §4.F step 6's "new or
// still-present" branches.
func UpsertDependency(ctx context.Context, ext execer, dep model.Dependency) error {
	var impact sql.NullString
	if dep.Impact != nil {
		impact = sql.NullString{String: string(*dep.Impact), Valid: true}
	}
	_, err := ext.ExecContext(ctx, `
		INSERT INTO dependencies (id, service_id, name, canonical_name, description, impact, type,
			healthy, health_state, health_code, latency_ms, last_checked, last_status_change,
			error, error_message, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(service_id, name) DO UPDATE SET
			canonical_name = excluded.canonical_name,
			description = excluded.description,
			impact = excluded.impact,
			type = excluded.type,
			healthy = excluded.healthy,
			health_state = excluded.health_state,
			health_code = excluded.health_code,
			latency_ms = excluded.latency_ms,
			last_checked = excluded.last_checked,
			last_status_change = excluded.last_status_change,
			error = excluded.error,
			error_message = excluded.error_message,
			skipped = 0`,
		dep.ID, dep.ServiceID, dep.Name, dep.CanonicalName, nullString(dep.Description), impact,
		string(dep.Type), nullBool(dep.Healthy), nullInt(dep.HealthState), nullInt(dep.HealthCode),
		nullInt(dep.LatencyMs), timeStr(dep.LastChecked), timeStr(dep.LastStatusChange),
		nullString(dep.Error), nullString(dep.ErrorMessage))
	if err != nil {
		return fmt.Errorf("store: upsert dependency %s/%s: %w", dep.ServiceID, dep.Name, err)
	}
	return nil
}

// MarkDependencySkipped flags a dependency absent from the current poll
// response. A dependency already flagged when it goes missing again is the
// executor's cue to delete it instead of calling this a second time.
func MarkDependencySkipped(ctx context.Context, ext execer, dependencyID string) error {
	_, err := ext.ExecContext(ctx, `UPDATE dependencies SET skipped = 1 WHERE id = ?`, dependencyID)
	if err != nil {
		return fmt.Errorf("store: mark dependency skipped %s: %w", dependencyID, err)
	}
	return nil
}

// DeleteDependency removes a dependency row and, via ON DELETE CASCADE, its
// latency/error history. Used when a dependency has been absent from two
// consecutive poll responses.
func DeleteDependency(ctx context.Context, ext execer, dependencyID string) error {
	_, err := ext.ExecContext(ctx, `DELETE FROM dependencies WHERE id = ?`, dependencyID)
	if err != nil {
		return fmt.Errorf("store: delete dependency %s: %w", dependencyID, err)
	}
	return nil
}

// GetDependency fetches a single dependency by id, for callers that only
// hold the id.
func (s *Store) GetDependency(ctx context.Context, id string) (model.Dependency, error) {
	var r dependencyRow
	if err := sqlx.GetContext(ctx, s.db, &r, `SELECT * FROM dependencies WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Dependency{}, ErrNotFound
		}
		return model.Dependency{}, fmt.Errorf("store: get dependency %s: %w", id, err)
	}
	return r.toModel(), nil
}
