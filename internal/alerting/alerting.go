// Package alerting implements the dispatcher §4.I describes: severity
// filtering, per-tuple cooldown, per-team hourly rate limiting, then
// fan-out to every active channel. It is invoked by the poll executor
// after a transaction commits, never before, so an undelivered alert never
// implies uncommitted dependency state.
package alerting

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/copperbox/depsera/internal/channels"
	"github.com/copperbox/depsera/internal/model"
	"github.com/copperbox/depsera/internal/pollexec"
	"github.com/copperbox/depsera/internal/settings"
	"github.com/copperbox/depsera/internal/store"
)

// Dispatcher implements pollexec.Dispatcher.
type Dispatcher struct {
	Store    *store.Store
	Settings *settings.Provider
	Senders  map[model.ChannelType]channels.Sender
	Now      func() time.Time
}

// New builds a Dispatcher wired to the base channel senders.
func New(st *store.Store, sp *settings.Provider) *Dispatcher {
	return &Dispatcher{
		Store:    st,
		Settings: sp,
		Senders: map[model.ChannelType]channels.Sender{
			model.ChannelSlack:   channels.NewSlackSender(),
			model.ChannelWebhook: channels.NewWebhookSender(),
		},
		Now: time.Now,
	}
}

var _ pollexec.Dispatcher = (*Dispatcher)(nil)

// Dispatch runs the full §4.I algorithm for one transition event. It never
// returns an error: a failure at any step is logged and simply drops the
// alert, since dispatcher problems must never unwind back into the poll
// executor's already-committed transaction.
func (d *Dispatcher) Dispatch(ctx context.Context, event pollexec.AlertEvent) {
	now := d.now()
	teamID := event.Service.TeamID

	rule, err := d.Store.GetAlertRule(ctx, teamID)
	if err != nil {
		log.Printf("alerting: load rule for team %s: %v", teamID, err)
		return
	}
	if !rule.IsActive {
		return
	}
	if !severityPasses(rule.SeverityFilter, event.Severity) {
		return
	}

	lastSent, err := d.Store.LastAlertDelivery(ctx, teamID, event.Service.ID, event.DependencyID, event.Kind)
	if err != nil {
		log.Printf("alerting: cooldown lookup failed: %v", err)
		return
	}
	if !lastSent.IsZero() && now.Sub(lastSent) < d.cooldown() {
		return
	}

	windowStart := now.Add(-time.Hour)
	count, err := d.Store.CountAlertsSince(ctx, teamID, windowStart)
	if err != nil {
		log.Printf("alerting: rate limit count failed: %v", err)
		return
	}
	if count >= d.rateLimitPerHour() {
		d.recordRateLimited(ctx, teamID, windowStart, now)
		return
	}

	channelsForTeam, err := d.Store.ListActiveChannels(ctx, teamID)
	if err != nil {
		log.Printf("alerting: list channels for team %s: %v", teamID, err)
		return
	}

	chanEvent := buildChannelEvent(event, now)
	for _, ch := range channelsForTeam {
		sender, ok := d.Senders[ch.Type]
		if !ok {
			continue
		}
		res := sender.Send(ctx, ch.Config, chanEvent)
		hist := model.AlertHistory{
			ID:           uuid.NewString(),
			TeamID:       teamID,
			ServiceID:    event.Service.ID,
			DependencyID: &event.DependencyID,
			ChannelID:    ch.ID,
			EventType:    event.Kind,
			Severity:     event.Severity,
			SentAt:       now,
			Success:      res.Success,
		}
		if !res.Success {
			hist.Error = &res.Error
		}
		if err := store.InsertAlertHistory(ctx, d.Store.DB(), hist); err != nil {
			log.Printf("alerting: insert alert history: %v", err)
		}
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) cooldown() time.Duration {
	if d.Settings != nil {
		return time.Duration(d.Settings.AlertCooldownMinutes()) * time.Minute
	}
	return 15 * time.Minute
}

func (d *Dispatcher) rateLimitPerHour() int {
	if d.Settings != nil {
		return d.Settings.AlertRateLimitPerHour()
	}
	return 100
}

func (d *Dispatcher) recordRateLimited(ctx context.Context, teamID string, windowStart, now time.Time) {
	already, err := d.Store.HasRateLimitMarker(ctx, teamID, windowStart)
	if err != nil {
		log.Printf("alerting: rate limit marker check failed: %v", err)
		return
	}
	if already {
		return
	}
	hist := model.AlertHistory{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		EventType: model.TransitionRateLimited,
		Severity:  model.SeverityWarning,
		SentAt:    now,
		Success:   true,
	}
	if err := store.InsertAlertHistory(ctx, d.Store.DB(), hist); err != nil {
		log.Printf("alerting: insert rate limit marker: %v", err)
	}
}

func severityPasses(filter model.SeverityFilter, severity model.Severity) bool {
	switch filter {
	case model.SeverityFilterCritical:
		return severity == model.SeverityCritical
	case model.SeverityFilterWarning:
		return severity == model.SeverityWarning || severity == model.SeverityCritical
	default:
		return true
	}
}

func buildChannelEvent(event pollexec.AlertEvent, now time.Time) channels.Event {
	oldStatus, newStatus := "healthy", "unhealthy"
	if event.Kind == model.TransitionRecovered {
		oldStatus, newStatus = "unhealthy", "healthy"
	}

	ce := channels.Event{
		Type:      channels.EventDependencyStatusChange,
		Service:   channels.Ref{ID: event.Service.ID, Name: event.Service.Name},
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Severity:  string(event.Severity),
		Timestamp: now,
		Dependency: &channels.Ref{
			ID:   event.DependencyID,
			Name: event.DependencyName,
		},
	}
	if base := os.Getenv("APP_BASE_URL"); base != "" {
		ce.URL = fmt.Sprintf("%s/services/%s", base, event.Service.ID)
	}
	return ce
}
