package pollexec

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/copperbox/depsera/internal/model"
	"github.com/copperbox/depsera/internal/store"
	"github.com/copperbox/depsera/internal/transition"
)

// persist implements §4.F steps 5-9 inside the transaction WithTx opened
// for this poll. events accumulates the alertable transitions to hand the
// dispatcher once the transaction commits.
func (e *Executor) persist(ctx context.Context, tx *sqlx.Tx, svc model.Service, records []model.CanonicalRecord, now time.Time, warnings []string, events *[]AlertEvent) error {
	existing, err := store.ListDependencies(ctx, tx, svc.ID)
	if err != nil {
		return fmt.Errorf("pollexec: list dependencies: %w", err)
	}
	existingByName := make(map[string]model.Dependency, len(existing))
	for _, d := range existing {
		existingByName[d.Name] = d
	}
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		seen[rec.Name] = true
		prev, hadPrev := existingByName[rec.Name]

		var prevPtr *model.Dependency
		if hadPrev {
			prevPtr = &prev
		}
		kind := transition.Detect(prevPtr, rec)

		dep := model.Dependency{
			ID:            newID(),
			ServiceID:     svc.ID,
			Name:          rec.Name,
			CanonicalName: model.CanonicalName(rec.Name),
			Description:   rec.Description,
			Impact:        rec.Impact,
			Type:          model.DependencyOther,
			Healthy:       rec.Healthy,
			HealthState:   rec.HealthState,
			HealthCode:    rec.HealthCode,
			LatencyMs:     rec.LatencyMs,
			LastChecked:   now,
		}
		if rec.Type != nil {
			dep.Type = *rec.Type
		}
		errStr, errMsg := deriveError(rec)
		dep.Error, dep.ErrorMessage = errStr, errMsg

		switch {
		case hadPrev:
			dep.ID = prev.ID
			dep.LastStatusChange = prev.LastStatusChange
			if kind == transition.BecameUnhealthy || kind == transition.Recovered {
				dep.LastStatusChange = now
			}
		default:
			dep.LastStatusChange = now
		}

		if err := store.UpsertDependency(ctx, tx, dep); err != nil {
			return fmt.Errorf("pollexec: upsert dependency %s: %w", rec.Name, err)
		}

		if rec.LatencyMs != nil {
			if err := store.InsertLatencyHistory(ctx, tx, dep.ID, *rec.LatencyMs, now); err != nil {
				return fmt.Errorf("pollexec: insert latency history %s: %w", rec.Name, err)
			}
		}

		if kind.IsAlertable(rec.Healthy) {
			histErr, histMsg := errStr, errMsg
			if kind == transition.Recovered {
				histErr, histMsg = nil, nil
			}
			if err := store.InsertErrorHistory(ctx, tx, dep.ID, histErr, histMsg, now); err != nil {
				return fmt.Errorf("pollexec: insert error history %s: %w", rec.Name, err)
			}

			// previous_healthy stays null for a first-seen dependency (no
			// prior row exists), matching spec.md §8 scenario S1.
			ev := model.StatusChangeEvent{
				ID:             newID(),
				ServiceID:      svc.ID,
				ServiceName:    svc.Name,
				DependencyName: rec.Name,
				CurrentHealthy: rec.Healthy,
				RecordedAt:     now,
			}
			if hadPrev {
				ev.PreviousHealthy = prev.Healthy
			}
			if err := store.InsertStatusChangeEvent(ctx, tx, ev); err != nil {
				return fmt.Errorf("pollexec: insert status change event %s: %w", rec.Name, err)
			}

			eventKind := model.TransitionBecameUnhealthy
			if kind == transition.Recovered {
				eventKind = model.TransitionRecovered
			}
			*events = append(*events, AlertEvent{
				Service:        svc,
				DependencyID:   dep.ID,
				DependencyName: rec.Name,
				Kind:           eventKind,
				Severity:       transition.Severity(dep.Impact),
			})
		}
	}

	// Step 6, "missing from response" branch: a dependency already flagged
	// skipped from the previous poll is now missing twice consecutively and
	// is deleted along with its history; one not yet flagged is marked
	// skipped so a single missing cycle doesn't discard it.
	for name, dep := range existingByName {
		if seen[name] {
			continue
		}
		if dep.Skipped {
			if err := store.DeleteDependency(ctx, tx, dep.ID); err != nil {
				return fmt.Errorf("pollexec: delete missing dependency %s: %w", name, err)
			}
			continue
		}
		if err := store.MarkDependencySkipped(ctx, tx, dep.ID); err != nil {
			return fmt.Errorf("pollexec: mark dependency skipped %s: %w", name, err)
		}
	}

	return store.SetPollResult(ctx, tx, svc.ID, true, nil, warnings)
}

// deriveError assigns the Dependency.Error/ErrorMessage pair from a
// canonical record: nil for a healthy record, else a short machine code
// plus a human-readable message that includes the record's health_code when
// it has one (health_state is not used).
func deriveError(rec model.CanonicalRecord) (*string, *string) {
	if rec.Healthy == nil || *rec.Healthy {
		return nil, nil
	}
	code := "unhealthy"
	msg := "dependency reported unhealthy"
	if rec.HealthCode != nil {
		msg = fmt.Sprintf("dependency reported unhealthy (code %d)", *rec.HealthCode)
	}
	return &code, &msg
}
