// Package adminhttp exposes the minimal HTTP surface a running depserad
// process needs: liveness/readiness probes, a Prometheus scrape endpoint,
// and thin handlers for the two collaborator operations that otherwise
// have no caller in a headless process (manual poll trigger, schema
// dry-run). It is explicitly not a general-purpose REST/CRUD/UI API —
// server lifecycle (Start/Shutdown over a net.Listener, draining through
// http.Server.Shutdown) is adapted from the teacher's controlplane/api.Server.
package adminhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/copperbox/depsera/internal/model"
	"github.com/copperbox/depsera/internal/pollexec"
	"github.com/copperbox/depsera/internal/schemamap"
	"github.com/copperbox/depsera/internal/store"
)

// PollExecutor is the narrow poll-execution surface the manual-trigger
// handler drives.
type PollExecutor interface {
	RunOnce(ctx context.Context, serviceID string) (pollexec.PollResult, error)
}

// ReadinessChecker reports whether the process has finished warm-up (e.g.
// the store is open and the scheduler has been seeded) and can serve
// traffic.
type ReadinessChecker interface {
	Ready() bool
}

// Server is the admin HTTP surface. Addr, Start, and Shutdown follow the
// teacher's api.Server lifecycle shape, trimmed to what a single-binary
// daemon needs.
type Server struct {
	addr     string
	executor PollExecutor
	ready    ReadinessChecker
	auth     *TokenMiddleware

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	running  bool
}

// New builds a Server. token is the bearer token required on every route
// except /healthz and /readyz; an empty token disables authentication.
func New(addr string, executor PollExecutor, ready ReadinessChecker, token string) *Server {
	return &Server{
		addr:     addr,
		executor: executor,
		ready:    ready,
		auth:     NewTokenMiddleware(token),
	}
}

// Start begins serving in the background. It returns once the listener is
// bound; serving itself happens on a separate goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /internal/poll/{serviceId}", s.handlePollService)
	mux.HandleFunc("POST /internal/schema/dry-run", s.handleSchemaDryRun)

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:           s.auth.Handler(mux),
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running = true

	srv := s.server
	go func() {
		_ = srv.Serve(listener)
	}()

	return nil
}

// Shutdown gracefully stops the server, waiting up to ctx's deadline for
// in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Addr returns the bound listener address, useful when addr was ":0".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (s *Server) handlePollService(w http.ResponseWriter, r *http.Request) {
	serviceID := strings.TrimSpace(r.PathValue("serviceId"))
	if serviceID == "" {
		http.Error(w, "missing serviceId", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := s.executor.RunOnce(ctx, serviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

type schemaDryRunRequest struct {
	Body   json.RawMessage     `json:"body"`
	Schema model.SchemaMapping `json:"schema"`
}

func (s *Server) handleSchemaDryRun(w http.ResponseWriter, r *http.Request) {
	var req schemaDryRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result := schemamap.DryRun(req.Body, req.Schema)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
