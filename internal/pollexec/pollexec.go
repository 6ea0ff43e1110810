// Package pollexec runs a single service's poll-and-persist cycle: SSRF
// check, fetch, parse, diff against stored rows, persist in one
// transaction, then hand any alertable transitions to the dispatcher.
// Orchestration follows the teacher's runmanager.Manager style — one method
// per pipeline stage and a typed error for anything that aborts the cycle
// early — with a per-service lock standing in for the teacher's per-run
// state machine.
package pollexec

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/copperbox/depsera/internal/events"
	"github.com/copperbox/depsera/internal/fetchhttp"
	"github.com/copperbox/depsera/internal/healthparser"
	"github.com/copperbox/depsera/internal/model"
	"github.com/copperbox/depsera/internal/pollerr"
	"github.com/copperbox/depsera/internal/ssrfguard"
	"github.com/copperbox/depsera/internal/store"
)

const defaultTimeout = 10 * time.Second

// Dispatcher receives alertable transitions after a poll commits.
type Dispatcher interface {
	Dispatch(ctx context.Context, event AlertEvent)
}

// AlertEvent carries everything the dispatcher needs about one transition.
type AlertEvent struct {
	Service        model.Service
	DependencyID   string
	DependencyName string
	Kind           model.TransitionKind
	Severity       model.Severity
}

// PollResult is the external contract's return shape for runOnce / manual
// "poll now".
type PollResult struct {
	ServiceID string
	Success   bool
	Error     string
	Warnings  []string
}

// Executor runs poll cycles against the store, taking a per-service lock so
// a manual RunOnce can never race the scheduler's own dispatch of the same
// service (§6: "it takes the per-service lock").
type Executor struct {
	Store        *store.Store
	Fetcher      *fetchhttp.Fetcher
	Guard        *ssrfguard.Guard
	Dispatcher   Dispatcher
	Now          func() time.Time
	MaxBodyBytes int64

	// NewLogger builds the structured event logger used for one poll,
	// carrying the polled service's id as correlation context (§7: "each
	// [internal error] is logged with structured context (service id,
	// error kind, correlation id)"). Defaults to events.NewEventLogger;
	// tests override it to capture output against a buffer.
	NewLogger func(serviceID string) *events.EventLogger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds an Executor.
func New(st *store.Store, fetcher *fetchhttp.Fetcher, guard *ssrfguard.Guard, dispatcher Dispatcher) *Executor {
	return &Executor{
		Store:      st,
		Fetcher:    fetcher,
		Guard:      guard,
		Dispatcher: dispatcher,
		Now:        time.Now,
		NewLogger:  events.NewEventLogger,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (e *Executor) lockFor(serviceID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[serviceID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[serviceID] = l
	}
	return l
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Executor) logger(serviceID string) *events.EventLogger {
	if e.NewLogger != nil {
		return e.NewLogger(serviceID)
	}
	return events.NewEventLogger(serviceID)
}

// RunOnce executes one full poll cycle for serviceID: §4.F steps 1-9. It
// takes the per-service lock, so it is safe to call concurrently with the
// scheduler's own submission of the same service.
func (e *Executor) RunOnce(ctx context.Context, serviceID string) (PollResult, error) {
	lock := e.lockFor(serviceID)
	lock.Lock()
	defer lock.Unlock()

	svc, err := e.Store.GetService(ctx, serviceID)
	if err != nil {
		return PollResult{ServiceID: serviceID}, fmt.Errorf("pollexec: load service %s: %w", serviceID, err)
	}

	return e.poll(ctx, svc), nil
}

func (e *Executor) poll(ctx context.Context, svc model.Service) PollResult {
	result := PollResult{ServiceID: svc.ID}
	logger := e.logger(svc.ID)
	logger.LogPollStarted()

	// Step 1: SSRF check.
	check := e.Guard.Check(ctx, svc.HealthEndpoint)
	if !check.Approved {
		e.recordFailure(ctx, logger, svc, pollerr.KindSSRFBlocked.String(), check.Reason)
		result.Error = check.Reason
		return result
	}

	// Step 2: fetch with the fixed 10s timeout; there is no per-service
	// timeout override.
	resp, ferr := e.Fetcher.Fetch(ctx, svc.HealthEndpoint, defaultTimeout, e.maxBodyBytes())
	if ferr != nil {
		msg := ferr.Error()
		kind := pollerr.KindInternal.String()
		if pe := pollerr.As(ferr); pe != nil {
			msg = pe.Message
			kind = pe.Kind.String()
		}
		e.recordFailure(ctx, logger, svc, kind, msg)
		result.Error = msg
		return result
	}

	// Step 3: non-2xx status.
	if resp.Status < 200 || resp.Status >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.Status)
		e.recordFailure(ctx, logger, svc, pollerr.KindHTTPStatus.String(), msg)
		result.Error = msg
		return result
	}

	// Step 4: parse.
	parsed := healthparser.Parse(resp.Body, svc.SchemaConfig)
	warnings := parsed.Warnings
	if resp.Truncated {
		warnings = append(warnings, resp.OversizeWarning)
	}
	warnings = boundWarnings(append(append([]string{}, svc.PollWarnings...), warnings...))
	result.Warnings = warnings

	now := e.now()
	var alertEvents []AlertEvent

	txErr := e.Store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return e.persist(ctx, tx, svc, parsed.Records, now, warnings, &alertEvents)
	})
	if txErr != nil {
		// §7 db_write_failed: the poll aborts without commit — no row in
		// this transaction was published, so there is nothing to mark
		// last_poll_error against; the scheduler simply re-enqueues.
		logger.LogPollFailed(pollerr.KindDBWriteFailed.String(), txErr.Error())
		result.Error = txErr.Error()
		return result
	}

	result.Success = true
	logger.LogPollSucceeded(len(parsed.Records), resp.LatencyMs)
	for _, ev := range alertEvents {
		logger.LogTransition(ev.DependencyName, string(ev.Kind))
		if e.Dispatcher != nil {
			e.Dispatcher.Dispatch(ctx, ev)
		}
	}
	return result
}

func (e *Executor) maxBodyBytes() int64 {
	if e.MaxBodyBytes > 0 {
		return e.MaxBodyBytes
	}
	return fetchhttp.DefaultMaxBytes
}

// recordFailure persists the poll failure (§4.F steps 1-3: no dependency
// updates on failure) and logs it with the service id and error kind for
// correlation, per §7's "each [internal error] is logged with structured
// context (service id, error kind, correlation id)".
func (e *Executor) recordFailure(ctx context.Context, logger *events.EventLogger, svc model.Service, kind, reason string) {
	logger.LogPollFailed(kind, reason)
	if err := store.SetPollResult(ctx, e.Store.DB(), svc.ID, false, &reason, svc.PollWarnings); err != nil {
		logger.LogPollFailed(pollerr.KindDBWriteFailed.String(), fmt.Sprintf("recording poll failure for %s: %v", svc.ID, err))
	}
}

// RandomJitter returns a duration uniformly distributed in [0, interval),
// used by the scheduler to stagger first-poll times across services.
func RandomJitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(interval)))
}

func boundWarnings(all []string) []string {
	if len(all) <= model.MaxPollWarnings {
		return all
	}
	return all[len(all)-model.MaxPollWarnings:]
}

func newID() string { return uuid.NewString() }
