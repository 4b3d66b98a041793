package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"workspace-audit/internal/admin"
	jwttoken "workspace-audit/internal/jwt_token"
	"workspace-audit/internal/platform/config"
	"workspace-audit/internal/platform/health"
	"workspace-audit/internal/platform/logger"
	"workspace-audit/internal/platform/metrics"
	"workspace-audit/pkg/platform/audit/analytics"
	"workspace-audit/pkg/platform/audit/archive"
	"workspace-audit/pkg/platform/audit/deadletter"
	"workspace-audit/pkg/platform/audit/integrity"
	"workspace-audit/pkg/platform/audit/loggers"
	auditmetrics "workspace-audit/pkg/platform/audit/metrics"
	"workspace-audit/pkg/platform/audit/monitor"
	"workspace-audit/pkg/platform/audit/retention"
	"workspace-audit/pkg/platform/audit/search"
	"workspace-audit/pkg/platform/audit/tracer"
	"workspace-audit/pkg/platform/middleware/auth"
	"workspace-audit/pkg/platform/middleware/metadata"
	request "workspace-audit/pkg/platform/middleware/request"
	"workspace-audit/pkg/platform/middleware/requesttime"
	"workspace-audit/pkg/platform/validation"
)

const (
	adminTokenTTL  = 15 * time.Minute
	requestTimeout = 30 * time.Second
)

// main wires the audit subsystem behind the admin HTTP API and keeps the
// server lifecycle small. Audit logic lives under pkg/platform/audit.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.Environment, cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("audit server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing workspace audit",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
	)

	in := &infra{}
	defer func() {
		closeCtx, cancel := shutdownContext(cfg.Server.ShutdownTimeout)
		defer cancel()
		in.close(closeCtx, log)
	}()

	auditMetrics := auditmetrics.New()
	tr := tracer.NewOTel()

	store, err := openStore(ctx, cfg.Database, in, log)
	if err != nil {
		return fmt.Errorf("audit store: %w", err)
	}
	blobs, err := openBlobStore(ctx, cfg.Archive, log)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	counter, err := openCounter(ctx, cfg.Redis, in, log)
	if err != nil {
		return fmt.Errorf("window counter: %w", err)
	}
	dispatcher, err := buildDispatcher(cfg, in, log, auditMetrics)
	if err != nil {
		return fmt.Errorf("alert dispatcher: %w", err)
	}
	spool, err := deadletter.NewFileSpool(cfg.Trail.SpoolPath, log)
	if err != nil {
		return fmt.Errorf("dead-letter spool: %w", err)
	}

	mon := monitor.New(
		monitor.WithCounter(counter),
		monitor.WithThresholds(thresholds(cfg.Monitoring)),
		monitor.WithLogger(log),
		monitor.WithMetrics(auditMetrics),
	)
	manager, err := buildTrail(cfg, store, spool, dispatcher, mon, log, auditMetrics)
	if err != nil {
		return fmt.Errorf("trail manager: %w", err)
	}
	replayer := deadletter.NewReplayer(spool, store,
		deadletter.WithPollInterval(cfg.Trail.ReplayInterval),
		deadletter.WithMetrics(auditMetrics),
		deadletter.WithLogger(log),
	)

	exporter := search.NewExporter(store, blobs,
		search.WithExportLogger(log),
		search.WithExportMetrics(auditMetrics),
		search.WithExportTracer(tr),
		search.WithBaseURL(cfg.Export.BaseURL),
		search.WithExportTimeout(cfg.Export.Timeout),
		search.WithMaxRecords(cfg.Export.MaxRecords),
	)
	cleaner := retention.New(store,
		archive.NewBlobSink(blobs, archive.WithLogger(log), archive.WithTracer(tr)),
		retention.WithLogger(log),
		retention.WithMetrics(auditMetrics),
		retention.WithTracer(tr),
		retention.WithPageSize(cfg.Retention.PageSize),
	)

	signingKey := cfg.Server.JWTSigningKey
	if signingKey == "" {
		log.Warn("JWT_SIGNING_KEY not set, using the development signing key")
		signingKey = jwttoken.DevSigningKey
	}
	jwtService := jwttoken.NewJWTService(signingKey, cfg.Server.JWTIssuer, adminTokenTTL)

	adminHandler := admin.New(admin.Services{
		Search:     search.New(store, search.WithLogger(log), search.WithTracer(tr)),
		Exports:    exporter,
		Analytics:  analytics.New(store, analytics.WithLogger(log), analytics.WithTracer(tr), analytics.WithBusinessHours(businessHours(cfg.Monitoring))),
		Integrity:  integrity.NewVerifier(store, integrity.WithLogger(log), integrity.WithTracer(tr)),
		Retention:  cleaner,
		Compliance: loggers.NewComplianceAudit(manager),
	}, log, metrics.New())

	healthHandler := health.New(cfg.Server.Environment, manager.InstanceID())
	in.registerChecks(healthHandler, manager, cfg.Trail.MaxQueue, spool)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(metadata.New(cfg.Server.TrustedProxies).Handler)
	r.Use(requesttime.Middleware)
	r.Use(request.Instrument(request.NewMetrics()))
	r.Use(request.BodyLimit(validation.MaxBodySize))
	r.Use(request.ContentTypeJSON)
	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(requestTimeout))
		adminHandler.Register(r, auth.RequireAdmin(jwttoken.NewVerifier(jwtService), log))
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var scheduler *cron.Cron
	if cfg.Retention.Schedule != "" {
		scheduler = cron.New(cron.WithLocation(time.UTC))
		if _, err := scheduler.AddFunc(cfg.Retention.Schedule, func() { runCleanup(ctx, cleaner, log) }); err != nil {
			return fmt.Errorf("retention schedule %q: %w", cfg.Retention.Schedule, err)
		}
		scheduler.Start()
		log.Info("retention cleanup scheduled", "schedule", cfg.Retention.Schedule)
	}

	replayer.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")

		shutdownCtx, cancel := shutdownContext(cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if scheduler != nil {
			<-scheduler.Stop().Done()
		}
		if err := exporter.Wait(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("export jobs: %w", err))
		}
		if err := replayer.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("dead-letter replayer: %w", err))
		}
		if err := manager.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("trail manager: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func runCleanup(ctx context.Context, cleaner *retention.Service, log *slog.Logger) {
	result, err := cleaner.CleanupExpiredAudits(ctx)
	if err != nil {
		log.ErrorContext(ctx, "scheduled retention cleanup failed", "error", err)
		return
	}
	log.InfoContext(ctx, "scheduled retention cleanup finished",
		"total_deleted", result.TotalDeleted,
		"archived", result.Archived,
		"duration", result.Duration,
	)
}
