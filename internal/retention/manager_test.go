package retention

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeSettings struct {
	retentionDays int
	cleanupTime   string
}

func (s fakeSettings) DataRetentionDays() int      { return s.retentionDays }
func (s fakeSettings) RetentionCleanupTime() string { return s.cleanupTime }

type fakeHistoryStore struct {
	mu       sync.Mutex
	calls    map[string]int
	cutoffs  map[string]time.Time
	rowCount int64
	failOn   string
}

func newFakeHistoryStore() *fakeHistoryStore {
	return &fakeHistoryStore{
		calls:   map[string]int{},
		cutoffs: map[string]time.Time{},
	}
}

func (f *fakeHistoryStore) record(table string, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[table]++
	f.cutoffs[table] = cutoff
	if f.failOn == table {
		return 0, context.DeadlineExceeded
	}
	return f.rowCount, nil
}

func (f *fakeHistoryStore) DeleteLatencyHistoryBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return f.record("dependency_latency_history", cutoff)
}
func (f *fakeHistoryStore) DeleteErrorHistoryBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return f.record("dependency_error_history", cutoff)
}
func (f *fakeHistoryStore) DeleteStatusChangeEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return f.record("status_change_events", cutoff)
}
func (f *fakeHistoryStore) DeleteAlertHistoryBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return f.record("alert_history", cutoff)
}
func (f *fakeHistoryStore) DeleteAuditLogBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return f.record("audit_log", cutoff)
}

func (f *fakeHistoryStore) callCount(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[table]
}

func TestSweepNowDeletesFromAllFiveTables(t *testing.T) {
	settings := fakeSettings{retentionDays: 365, cleanupTime: "02:00"}
	store := newFakeHistoryStore()
	store.rowCount = 7

	now := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	m := NewManager(settings, store, func() time.Time { return now })

	deleted, err := m.SweepNow(context.Background())
	if err != nil {
		t.Fatalf("SweepNow: %v", err)
	}
	if deleted != 35 {
		t.Errorf("expected 35 total deletions (7*5 tables), got %d", deleted)
	}

	for _, table := range []string{
		"dependency_latency_history",
		"dependency_error_history",
		"status_change_events",
		"alert_history",
		"audit_log",
	} {
		if store.callCount(table) != 1 {
			t.Errorf("expected one delete call against %s, got %d", table, store.callCount(table))
		}
	}
}

func TestSweepNowUsesRetentionDaysCutoff(t *testing.T) {
	settings := fakeSettings{retentionDays: 10, cleanupTime: "02:00"}
	store := newFakeHistoryStore()

	now := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	m := NewManager(settings, store, func() time.Time { return now })

	if _, err := m.SweepNow(context.Background()); err != nil {
		t.Fatalf("SweepNow: %v", err)
	}

	want := now.AddDate(0, 0, -10)
	got := store.cutoffs["dependency_latency_history"]
	if !got.Equal(want) {
		t.Errorf("expected cutoff %v, got %v", want, got)
	}
}

func TestSweepNowContinuesPastAPerTableError(t *testing.T) {
	settings := fakeSettings{retentionDays: 365, cleanupTime: "02:00"}
	store := newFakeHistoryStore()
	store.failOn = "alert_history"

	now := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	m := NewManager(settings, store, func() time.Time { return now })

	_, err := m.SweepNow(context.Background())
	if err == nil {
		t.Fatal("expected an error surfaced from the failing table")
	}

	if store.callCount("audit_log") != 1 {
		t.Error("expected the sweep to continue past the alert_history failure to audit_log")
	}
}

func TestCheckAndSweepSkipsBeforeCleanupTime(t *testing.T) {
	settings := fakeSettings{retentionDays: 365, cleanupTime: "02:00"}
	store := newFakeHistoryStore()

	now := time.Date(2026, 7, 31, 1, 0, 0, 0, time.UTC)
	m := NewManager(settings, store, func() time.Time { return now })

	m.checkAndSweep(context.Background())

	if store.callCount("audit_log") != 0 {
		t.Error("expected no sweep before the configured cleanup time")
	}
}

func TestCheckAndSweepRunsOnceAtOrAfterCleanupTime(t *testing.T) {
	settings := fakeSettings{retentionDays: 365, cleanupTime: "02:00"}
	store := newFakeHistoryStore()

	current := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	m := NewManager(settings, store, func() time.Time { return current })

	m.checkAndSweep(context.Background())
	if store.callCount("audit_log") != 1 {
		t.Fatalf("expected exactly one sweep, got %d", store.callCount("audit_log"))
	}

	current = current.Add(2 * time.Hour)
	m.checkAndSweep(context.Background())
	if store.callCount("audit_log") != 1 {
		t.Errorf("expected no second sweep on the same calendar day, got %d", store.callCount("audit_log"))
	}
}

func TestCheckAndSweepRunsAgainOnNextCalendarDay(t *testing.T) {
	settings := fakeSettings{retentionDays: 365, cleanupTime: "02:00"}
	store := newFakeHistoryStore()

	current := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	m := NewManager(settings, store, func() time.Time { return current })

	m.checkAndSweep(context.Background())

	current = current.AddDate(0, 0, 1)
	m.checkAndSweep(context.Background())

	if store.callCount("audit_log") != 2 {
		t.Errorf("expected a sweep on each of the two calendar days, got %d", store.callCount("audit_log"))
	}
}

func TestSweepNowReentrancyGuardSkipsConcurrentCall(t *testing.T) {
	settings := fakeSettings{retentionDays: 365, cleanupTime: "02:00"}
	store := newFakeHistoryStore()

	now := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	m := NewManager(settings, store, func() time.Time { return now })

	m.mu.Lock()
	m.sweeping = true
	m.mu.Unlock()

	deleted, err := m.SweepNow(context.Background())
	if err != nil {
		t.Fatalf("SweepNow: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected a no-op while a sweep is already in flight, got %d deleted", deleted)
	}
	if store.callCount("audit_log") != 0 {
		t.Error("expected no delete calls while the reentrancy guard is held")
	}
}

func TestStartStopStopsBackgroundLoop(t *testing.T) {
	settings := fakeSettings{retentionDays: 365, cleanupTime: "02:00"}
	store := newFakeHistoryStore()

	now := time.Date(2026, 7, 31, 1, 0, 0, 0, time.UTC)
	m := NewManager(settings, store, func() time.Time { return now })
	m.checkInterval = time.Millisecond

	m.Start()
	time.Sleep(10 * time.Millisecond)
	m.Stop()

	if store.callCount("audit_log") != 0 {
		t.Error("expected no sweep before the configured cleanup time even across many ticks")
	}
}
