package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/copperbox/depsera/internal/adminhttp"
	"github.com/copperbox/depsera/internal/alerting"
	"github.com/copperbox/depsera/internal/events"
	"github.com/copperbox/depsera/internal/fetchhttp"
	depsotel "github.com/copperbox/depsera/internal/otel"
	"github.com/copperbox/depsera/internal/pollexec"
	"github.com/copperbox/depsera/internal/retention"
	"github.com/copperbox/depsera/internal/scheduler"
	"github.com/copperbox/depsera/internal/settings"
	"github.com/copperbox/depsera/internal/ssrfguard"
	"github.com/copperbox/depsera/internal/store"
)

// readiness flips to true once the scheduler has been seeded and started,
// matching the teacher's health/ready split: healthz is "process is up",
// readyz is "process can serve its purpose".
type readiness struct {
	ready atomic.Bool
}

func (r *readiness) Ready() bool { return r.ready.Load() }
func (r *readiness) markReady()  { r.ready.Store(true) }

func newServeCmd() *cobra.Command {
	var (
		adminAddr    string
		adminToken   string
		otelExporter string
		otelEndpoint string
		workerCount  int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the polling scheduler and admin HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			dbPath, _ := cmd.Flags().GetString("db")
			return runServe(serveConfig{
				configPath:   configPath,
				dbPath:       dbPath,
				adminAddr:    adminAddr,
				adminToken:   adminToken,
				otelExporter: otelExporter,
				otelEndpoint: otelEndpoint,
				workerCount:  workerCount,
			})
		},
	}

	cmd.Flags().StringVar(&adminAddr, "admin-addr", ":8090", "address for the admin HTTP surface")
	cmd.Flags().StringVar(&adminToken, "admin-token", "", "bearer token required on the admin surface (empty disables auth)")
	cmd.Flags().StringVar(&otelExporter, "otel-exporter", "none", "metrics exporter: none, stdout, otlp-grpc, otlp-http")
	cmd.Flags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP endpoint (for otlp-grpc/otlp-http exporters)")
	cmd.Flags().IntVar(&workerCount, "workers", 0, "poll worker count (0 = auto-detect from host CPU count)")

	return cmd
}

type serveConfig struct {
	configPath   string
	dbPath       string
	adminAddr    string
	adminToken   string
	otelExporter string
	otelEndpoint string
	workerCount  int
}

func runServe(cfg serveConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sp, err := settings.New(cfg.configPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	st, err := store.Open(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	metrics, err := depsotel.NewMetrics(ctx, &depsotel.MetricsConfig{
		Enabled:      cfg.otelExporter != "none",
		ServiceName:  "depserad",
		ExporterType: depsotel.ExporterType(cfg.otelExporter),
		OTLPEndpoint: cfg.otelEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	depsotel.SetGlobalMetrics(metrics)
	defer metrics.Shutdown(context.Background())

	events.SetGlobalEventLogger(events.NewEventLogger("depserad"))

	guard := ssrfguard.New(sp.SSRFAllowlist(), nil)
	fetcher := fetchhttp.New(&http.Client{})
	dispatcher := alerting.New(st, sp)
	executor := pollexec.New(st, fetcher, guard, dispatcher)

	sched := scheduler.New(executor, cfg.workerCount)

	services, err := st.ListActiveServices(ctx)
	if err != nil {
		return fmt.Errorf("list active services: %w", err)
	}
	sched.Seed(services)
	metrics.SetActiveServices(ctx, int64(len(services)))

	sweeper := retention.NewManager(sp, st, nil)
	sweeper.Start()
	defer sweeper.Stop()

	ready := &readiness{}
	admin := adminhttp.New(cfg.adminAddr, executor, ready, cfg.adminToken)
	if err := admin.Start(); err != nil {
		return fmt.Errorf("start admin http: %w", err)
	}

	sched.Start(ctx)
	ready.markReady()

	fmt.Printf("depserad listening on %s (admin surface), polling %d active services\n", admin.Addr(), len(services))

	<-ctx.Done()
	fmt.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sched.Stop()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "admin http shutdown: %v\n", err)
	}

	return nil
}
