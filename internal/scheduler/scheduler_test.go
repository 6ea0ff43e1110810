package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/copperbox/depsera/internal/model"
	"github.com/copperbox/depsera/internal/pollexec"
)

// fakeExecutor records every RunOnce call and tracks, per service, whether a
// second call ever overlapped a call still in flight.
type fakeExecutor struct {
	mu          sync.Mutex
	inflight    map[string]bool
	overlapped  bool
	calls       int32
	runDuration time.Duration
	result      pollexec.PollResult
	err         error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{inflight: make(map[string]bool), result: pollexec.PollResult{Success: true}}
}

func (f *fakeExecutor) RunOnce(ctx context.Context, serviceID string) (pollexec.PollResult, error) {
	atomic.AddInt32(&f.calls, 1)

	f.mu.Lock()
	if f.inflight[serviceID] {
		f.overlapped = true
	}
	f.inflight[serviceID] = true
	f.mu.Unlock()

	if f.runDuration > 0 {
		time.Sleep(f.runDuration)
	}

	f.mu.Lock()
	f.inflight[serviceID] = false
	f.mu.Unlock()

	return f.result, f.err
}

func (f *fakeExecutor) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

func svc(id string, intervalMs int) model.Service {
	return model.Service{ID: id, Name: id, PollIntervalMs: intervalMs, IsActive: true}
}

// TestSchedulerNeverRunsSameServiceConcurrently verifies the invariant that
// a service is removed from the due-queue the moment it is dispatched and
// is only re-queued after its poll completes, so two workers never race the
// same service's poll.
func TestSchedulerNeverRunsSameServiceConcurrently(t *testing.T) {
	exec := newFakeExecutor()
	exec.runDuration = 20 * time.Millisecond

	s := New(exec, 8)
	s.tickInterval = 5 * time.Millisecond
	s.Seed([]model.Service{svc("svc-1", 10)}) // interval shorter than run duration

	s.Start(context.Background())
	time.Sleep(250 * time.Millisecond)
	s.Stop()

	if exec.overlapped {
		t.Error("expected no overlapping RunOnce calls for the same service")
	}
	if exec.callCount() < 2 {
		t.Errorf("expected at least 2 polls to have run, got %d", exec.callCount())
	}
}

func TestSchedulerSeedSkipsInactiveServices(t *testing.T) {
	exec := newFakeExecutor()
	s := New(exec, 2)
	s.Seed([]model.Service{
		svc("active", 1000),
		{ID: "inactive", Name: "inactive", PollIntervalMs: 1000, IsActive: false},
	})

	if got := s.Len(); got != 1 {
		t.Errorf("expected only the active service seeded, got %d queued", got)
	}
}

func TestSchedulerBackoffWidensIntervalAfterConsecutiveFailures(t *testing.T) {
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 1000 * time.Millisecond},
		{2, 1000 * time.Millisecond},
		{3, 2000 * time.Millisecond},
		{4, 3000 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := effectiveInterval(1000, tc.failures); got != tc.want {
			t.Errorf("effectiveInterval(1000, %d) = %v, want %v", tc.failures, got, tc.want)
		}
	}
}

func TestSchedulerBackoffCappedAtMaxMultiplier(t *testing.T) {
	got := effectiveInterval(1000, 1000)
	want := time.Duration(1000) * time.Millisecond * time.Duration(maxBackoffMultiplier)
	if got != want {
		t.Errorf("expected backoff to cap at %dx, got %v want %v", maxBackoffMultiplier, got, want)
	}
}

func TestOnServiceCreatedIgnoresInactiveService(t *testing.T) {
	exec := newFakeExecutor()
	s := New(exec, 2)
	s.OnServiceCreated(model.Service{ID: "svc-1", IsActive: false})
	if got := s.Len(); got != 0 {
		t.Errorf("expected inactive service not to be queued, got %d", got)
	}
}

func TestOnServiceCreatedIsIdempotent(t *testing.T) {
	exec := newFakeExecutor()
	s := New(exec, 2)
	s.OnServiceCreated(svc("svc-1", 1000))
	s.OnServiceCreated(svc("svc-1", 1000))
	if got := s.Len(); got != 1 {
		t.Errorf("expected a duplicate OnServiceCreated to be a no-op, got %d queued", got)
	}
}

func TestOnServiceDeletedRemovesFromQueue(t *testing.T) {
	exec := newFakeExecutor()
	s := New(exec, 2)
	s.OnServiceCreated(svc("svc-1", 1000))
	s.OnServiceDeleted("svc-1")
	if got := s.Len(); got != 0 {
		t.Errorf("expected the service to be removed from the queue, got %d", got)
	}
}

func TestOnServiceUpdatedDeactivatesRemovesFromQueue(t *testing.T) {
	exec := newFakeExecutor()
	s := New(exec, 2)
	s.OnServiceCreated(svc("svc-1", 1000))
	deactivated := svc("svc-1", 1000)
	deactivated.IsActive = false
	s.OnServiceUpdated(deactivated)
	if got := s.Len(); got != 0 {
		t.Errorf("expected deactivation via OnServiceUpdated to remove the queue entry, got %d", got)
	}
}

func TestSchedulerStopDrainsInflightWork(t *testing.T) {
	exec := newFakeExecutor()
	exec.runDuration = 30 * time.Millisecond

	s := New(exec, 4)
	s.tickInterval = 5 * time.Millisecond
	s.Seed([]model.Service{svc("svc-1", 1)})

	s.Start(context.Background())
	time.Sleep(15 * time.Millisecond)
	s.Stop()

	if exec.callCount() == 0 {
		t.Error("expected at least one poll to have started before Stop drained it")
	}
}
