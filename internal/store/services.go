package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/copperbox/depsera/internal/model"
)

// ErrNotFound is returned by single-row lookups that match no row.
var ErrNotFound = errors.New("store: not found")

type serviceRow struct {
	ID              string         `db:"id"`
	Name            string         `db:"name"`
	TeamID          string         `db:"team_id"`
	HealthEndpoint  string         `db:"health_endpoint"`
	MetricsEndpoint sql.NullString `db:"metrics_endpoint"`
	SchemaConfig    sql.NullString `db:"schema_config"`
	PollIntervalMs  int            `db:"poll_interval_ms"`
	IsActive        bool           `db:"is_active"`
	LastPollSuccess sql.NullBool   `db:"last_poll_success"`
	LastPollError   sql.NullString `db:"last_poll_error"`
	PollWarnings    string         `db:"poll_warnings"`
}

func (r serviceRow) toModel() model.Service {
	var metrics *string
	if r.MetricsEndpoint.Valid {
		metrics = stringPtr(r.MetricsEndpoint)
	}
	return model.Service{
		ID:              r.ID,
		Name:            r.Name,
		TeamID:          r.TeamID,
		HealthEndpoint:  r.HealthEndpoint,
		MetricsEndpoint: metrics,
		SchemaConfig:    decodeSchema(r.SchemaConfig),
		PollIntervalMs:  r.PollIntervalMs,
		IsActive:        r.IsActive,
		LastPollSuccess: boolPtr(r.LastPollSuccess),
		LastPollError:   stringPtr(r.LastPollError),
		PollWarnings:    decodeWarnings(r.PollWarnings),
	}
}

// ListActiveServices returns every service with is_active=1, for scheduler
// startup and lifecycle reconciliation.
func (s *Store) ListActiveServices(ctx context.Context) ([]model.Service, error) {
	var rows []serviceRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, `SELECT * FROM services WHERE is_active = 1`); err != nil {
		return nil, fmt.Errorf("store: list active services: %w", err)
	}
	out := make([]model.Service, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// GetService fetches a single service by id.
func (s *Store) GetService(ctx context.Context, id string) (model.Service, error) {
	var r serviceRow
	if err := sqlx.GetContext(ctx, s.db, &r, `SELECT * FROM services WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Service{}, ErrNotFound
		}
		return model.Service{}, fmt.Errorf("store: get service %s: %w", id, err)
	}
	return r.toModel(), nil
}

// CreateService inserts a new service row.
func (s *Store) CreateService(ctx context.Context, svc model.Service) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (id, name, team_id, health_endpoint, metrics_endpoint, schema_config, poll_interval_ms, is_active, poll_warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		svc.ID, svc.Name, svc.TeamID, svc.HealthEndpoint, nullString(svc.MetricsEndpoint),
		encodeSchema(svc.SchemaConfig), svc.PollIntervalMs, svc.IsActive, encodeWarnings(svc.PollWarnings))
	if err != nil {
		return fmt.Errorf("store: create service: %w", err)
	}
	return nil
}

// UpdateService overwrites the mutable fields of an existing service row
// (everything except the poll-result bookkeeping, which SetPollResult owns).
func (s *Store) UpdateService(ctx context.Context, svc model.Service) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE services SET name = ?, team_id = ?, health_endpoint = ?, metrics_endpoint = ?,
			schema_config = ?, poll_interval_ms = ?, is_active = ?
		WHERE id = ?`,
		svc.Name, svc.TeamID, svc.HealthEndpoint, nullString(svc.MetricsEndpoint),
		encodeSchema(svc.SchemaConfig), svc.PollIntervalMs, svc.IsActive, svc.ID)
	if err != nil {
		return fmt.Errorf("store: update service %s: %w", svc.ID, err)
	}
	return requireAffected(res, svc.ID)
}

// DeleteService removes a service and, via ON DELETE CASCADE, every
// dependency and history row attached to it.
func (s *Store) DeleteService(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM services WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete service %s: %w", id, err)
	}
	return requireAffected(res, id)
}

// SetPollResult records the outcome of a poll attempt: the last success
// flag, the fatal error string (nil on success), and the bounded poll
// warnings ring (most recent MaxPollWarnings entries). After a successful
// poll the executor calls it inside the transaction that persists the
// dependency rows; after a failed poll it calls it on the pooled handle.
func SetPollResult(ctx context.Context, ext execer, serviceID string, success bool, lastErr *string, warnings []string) error {
	if len(warnings) > model.MaxPollWarnings {
		warnings = warnings[len(warnings)-model.MaxPollWarnings:]
	}
	_, err := ext.ExecContext(ctx, `
		UPDATE services SET last_poll_success = ?, last_poll_error = ?, poll_warnings = ?
		WHERE id = ?`,
		success, nullString(lastErr), encodeWarnings(warnings), serviceID)
	if err != nil {
		return fmt.Errorf("store: set poll result for %s: %w", serviceID, err)
	}
	return nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
