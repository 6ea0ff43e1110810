package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/copperbox/depsera/internal/events"
)

// HistoryStore is the narrow interface the sweeper consumes, mirroring the
// teacher's ArtifactStore/TelemetryStore pattern of depending on exactly
// the delete operations it needs rather than the full store surface.
type HistoryStore interface {
	DeleteLatencyHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteErrorHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteStatusChangeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAlertHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAuditLogBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Clock returns the current time. Swapped out in tests for a fake clock.
type Clock func() time.Time

const defaultCheckInterval = time.Minute

// Manager runs the daily retention sweep: at most once per calendar day,
// at the configured local cleanup time, it deletes history rows and audit
// log entries older than the configured retention window.
type Manager struct {
	settings      SettingsSource
	store         HistoryStore
	now           Clock
	checkInterval time.Duration

	mu          sync.Mutex
	running     bool
	sweeping    bool
	lastRunDate string

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewManager creates a new retention Manager. If now is nil, time.Now is used.
func NewManager(settings SettingsSource, store HistoryStore, now Clock) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		settings:      settings,
		store:         store,
		now:           now,
		checkInterval: defaultCheckInterval,
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}
}

// Start begins the background check loop.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.run()
}

// Stop signals the background goroutine to stop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	<-m.stoppedCh
}

func (m *Manager) run() {
	defer close(m.stoppedCh)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.checkAndSweep(context.Background())

	for {
		select {
		case <-ticker.C:
			m.checkAndSweep(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// checkAndSweep runs the sweep if today's cleanup time has been reached and
// no sweep has already run today.
func (m *Manager) checkAndSweep(ctx context.Context) {
	now := m.now()
	today := now.Format("2006-01-02")
	cleanupTime := m.settings.RetentionCleanupTime()
	currentTime := now.Format("15:04")

	m.mu.Lock()
	if m.lastRunDate == today {
		m.mu.Unlock()
		return
	}
	if currentTime < cleanupTime {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.SweepNow(ctx)
}

// SweepNow runs the sweep regardless of the cleanup time, marking today as
// done; a call made while another sweep is running returns 0 at once
// without sweeping. Exposed
// for a manual trigger (e.g. a "sweep-now" CLI command) as well as the
// scheduled path above.
func (m *Manager) SweepNow(ctx context.Context) (deletedTotal int64, err error) {
	m.mu.Lock()
	if m.sweeping {
		m.mu.Unlock()
		return 0, nil
	}
	m.sweeping = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.sweeping = false
		m.lastRunDate = m.now().Format("2006-01-02")
		m.mu.Unlock()
	}()

	now := m.now()
	cutoff := now.AddDate(0, 0, -m.settings.DataRetentionDays())

	type deletion struct {
		table string
		fn    func(context.Context, time.Time) (int64, error)
	}
	deletions := []deletion{
		{"dependency_latency_history", m.store.DeleteLatencyHistoryBefore},
		{"dependency_error_history", m.store.DeleteErrorHistoryBefore},
		{"status_change_events", m.store.DeleteStatusChangeEventsBefore},
		{"alert_history", m.store.DeleteAlertHistoryBefore},
		{"audit_log", m.store.DeleteAuditLogBefore},
	}

	logger := events.GetGlobalEventLogger()

	var firstErr error
	for _, d := range deletions {
		n, derr := d.fn(ctx, cutoff)
		if derr != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("retention: delete from %s: %w", d.table, derr)
			}
			continue
		}
		deletedTotal += n
		if n > 0 {
			logger.LogRetentionSwept(d.table, n)
		}
	}

	return deletedTotal, firstErr
}
