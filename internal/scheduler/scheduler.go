// Package scheduler owns the authoritative poll loop: a container/heap
// priority queue keyed by next_poll_at, a bounded worker pool, and a
// dispatch loop modeled on the teacher's heartbeat_monitor.go ticker/
// stopCh/stoppedCh goroutine lifecycle (internal/controlplane/scheduler).
package scheduler

import (
	"container/heap"
	"context"
	"log"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/copperbox/depsera/internal/model"
	"github.com/copperbox/depsera/internal/pollexec"
)

// MaxWorkers caps the pool regardless of host CPU count.
const MaxWorkers = 32

// DefaultDrainTimeout bounds graceful shutdown (§4.G).
const DefaultDrainTimeout = 30 * time.Second

// backoffThreshold is the number of consecutive failures (N, default 3)
// before the effective interval starts stretching.
const backoffThreshold = 3

// maxBackoffMultiplier caps the stretched interval at 10x configured.
const maxBackoffMultiplier = 10

// Executor is the narrow poll-execution surface the scheduler drives.
type Executor interface {
	RunOnce(ctx context.Context, serviceID string) (pollexec.PollResult, error)
}

// Scheduler runs Executor.RunOnce for every active service on its own
// poll_interval_ms cadence, widening the interval on repeated failure and
// resetting it on the first subsequent success.
type Scheduler struct {
	executor Executor
	workers  int

	mu       sync.Mutex
	queue    slotQueue
	items    map[string]*slotItem
	inflight map[string]bool

	workerSem chan struct{}
	wg        sync.WaitGroup

	stopCh    chan struct{}
	stoppedCh chan struct{}
	running   bool

	rootCtx    context.Context
	rootCancel context.CancelFunc

	drainTimeout time.Duration
	tickInterval time.Duration
}

// New builds a Scheduler. workerCount <= 0 selects min(MaxWorkers,
// 4*NumCPU) via gopsutil/v3/cpu.Counts, mirroring the teacher's host
// capacity probe in internal/agent/types.go generalized from agent
// capacity to poll worker capacity.
func New(executor Executor, workerCount int) *Scheduler {
	if workerCount <= 0 {
		workerCount = detectWorkerCount()
	}
	return &Scheduler{
		executor:     executor,
		workers:      workerCount,
		items:        make(map[string]*slotItem),
		inflight:     make(map[string]bool),
		workerSem:    make(chan struct{}, workerCount),
		drainTimeout: DefaultDrainTimeout,
		tickInterval: 250 * time.Millisecond,
	}
}

func detectWorkerCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		n = 4
	}
	workers := n * 4
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// Seed populates the queue at startup from the set of active services,
// each initialized to a random jitter within poll_interval_ms to avoid a
// thundering herd of simultaneous first polls.
func (s *Scheduler) Seed(services []model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range services {
		if !svc.IsActive {
			continue
		}
		s.insertLocked(svc.ID, svc.PollIntervalMs, pollexec.RandomJitter(intervalDuration(svc.PollIntervalMs)))
	}
}

// Start begins the dispatch loop in a background goroutine. Safe to call
// multiple times; subsequent calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.stoppedCh = make(chan struct{})
	s.rootCtx, s.rootCancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.run()
}

// Stop halts dispatch, waits for in-flight workers to drain (default 30s),
// then cancels anything still running past the deadline.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.drainTimeout):
		log.Printf("scheduler: drain deadline exceeded, cancelling in-flight polls")
		s.rootCancel()
		<-done
	}

	<-s.stoppedCh
}

func (s *Scheduler) run() {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.dispatchDue()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) dispatchDue() {
	now := time.Now()
	var due []*slotItem

	s.mu.Lock()
	for s.queue.Len() > 0 && !s.queue[0].nextPollAt.After(now) {
		item := heap.Pop(&s.queue).(*slotItem)
		delete(s.items, item.serviceID)
		s.inflight[item.serviceID] = true
		due = append(due, item)
	}
	s.mu.Unlock()

	for _, item := range due {
		s.dispatch(item)
	}
}

func (s *Scheduler) dispatch(item *slotItem) {
	select {
	case s.workerSem <- struct{}{}:
	case <-s.stopCh:
		s.requeue(item, false)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.workerSem }()

		result, err := s.executor.RunOnce(s.rootCtx, item.serviceID)
		success := err == nil && result.Success
		if err != nil {
			log.Printf("scheduler: poll %s failed to run: %v", item.serviceID, err)
		}
		s.requeue(item, success)
	}()
}

func (s *Scheduler) requeue(item *slotItem, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, item.serviceID)

	if success {
		item.consecutiveFailures = 0
	} else {
		item.consecutiveFailures++
	}
	item.nextPollAt = time.Now().Add(effectiveInterval(item.intervalMs, item.consecutiveFailures))
	heap.Push(&s.queue, item)
	s.items[item.serviceID] = item
}

func effectiveInterval(intervalMs, consecutiveFailures int) time.Duration {
	base := intervalDuration(intervalMs)
	if consecutiveFailures < backoffThreshold {
		return base
	}
	multiplier := consecutiveFailures - backoffThreshold + 2
	if multiplier > maxBackoffMultiplier {
		multiplier = maxBackoffMultiplier
	}
	return base * time.Duration(multiplier)
}

func intervalDuration(ms int) time.Duration {
	if ms <= 0 {
		ms = 60_000
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *Scheduler) insertLocked(serviceID string, intervalMs int, delay time.Duration) {
	item := &slotItem{
		serviceID:  serviceID,
		intervalMs: intervalMs,
		nextPollAt: time.Now().Add(delay),
	}
	heap.Push(&s.queue, item)
	s.items[serviceID] = item
}

// OnServiceCreated adds a newly-created active service to the due-queue.
func (s *Scheduler) OnServiceCreated(svc model.Service) {
	if !svc.IsActive {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[svc.ID]; exists {
		return
	}
	s.insertLocked(svc.ID, svc.PollIntervalMs, pollexec.RandomJitter(intervalDuration(svc.PollIntervalMs)))
}

// OnServiceUpdated applies a changed poll_interval_ms (or endpoint, handled
// downstream by the executor reloading the row) without disturbing a poll
// already in flight.
func (s *Scheduler) OnServiceUpdated(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, exists := s.items[svc.ID]
	if !exists {
		if svc.IsActive && !s.inflight[svc.ID] {
			s.insertLocked(svc.ID, svc.PollIntervalMs, pollexec.RandomJitter(intervalDuration(svc.PollIntervalMs)))
		}
		return
	}
	item.intervalMs = svc.PollIntervalMs
	if !svc.IsActive {
		heap.Remove(&s.queue, item.index)
		delete(s.items, svc.ID)
	}
}

// OnServiceDeleted removes a service from the due-queue. A poll already in
// flight for it is left to finish; the executor's own store lookup will
// simply find no row on its next invocation if it is ever resubmitted.
func (s *Scheduler) OnServiceDeleted(serviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, exists := s.items[serviceID]; exists {
		heap.Remove(&s.queue, item.index)
		delete(s.items, serviceID)
	}
}

// OnServiceActivated adds a service back into rotation.
func (s *Scheduler) OnServiceActivated(svc model.Service) {
	s.OnServiceCreated(svc)
}

// OnServiceDeactivated removes a service from rotation without touching
// its persisted rows.
func (s *Scheduler) OnServiceDeactivated(serviceID string) {
	s.OnServiceDeleted(serviceID)
}

// Len reports the number of services currently scheduled (idle or due, not
// in flight), for tests.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}
