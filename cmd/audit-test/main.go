// Command audit-test drives the trail manager against the in-memory store so
// batching, monitoring alerts and metrics can be watched by hand.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/alert"
	"workspace-audit/pkg/platform/audit/loggers"
	auditmetrics "workspace-audit/pkg/platform/audit/metrics"
	"workspace-audit/pkg/platform/audit/monitor"
	auditstore "workspace-audit/pkg/platform/audit/store/memory"
	"workspace-audit/pkg/platform/audit/trail"
	"workspace-audit/pkg/requestcontext"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	metrics := auditmetrics.New()
	store := auditstore.NewInMemoryStore()
	dispatcher := alert.NewDispatcher(nil, alert.WithFallback(alert.NewLogNotifier(logger)), alert.WithMetrics(metrics))
	mon := monitor.New(monitor.WithMetrics(metrics), monitor.WithLogger(logger))

	manager, err := trail.New(store,
		trail.WithLogger(logger),
		trail.WithMetrics(metrics),
		trail.WithDispatcher(dispatcher),
		trail.WithObserver(mon),
		trail.WithBatchSize(10),
	)
	if err != nil {
		logger.Error("trail manager", "error", err)
		os.Exit(1)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		fmt.Println("Metrics available at http://localhost:9090/metrics")
		if err := http.ListenAndServe(":9090", nil); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	ctx := requestcontext.WithAdmin(context.Background(), requestcontext.Admin{ID: "smoke-admin", Roles: []string{"admin"}})
	security := loggers.NewSecurityAudit(manager)
	users := loggers.NewUserManagementAudit(manager)

	fmt.Println("\n=== Audit Trail Smoke Test ===")

	fmt.Println("1. Logging 5 user creations...")
	for i := range 5 {
		userID := fmt.Sprintf("user-%d", i+1)
		if _, err := users.LogUserCreate(ctx, userID, map[string]any{"email": userID + "@example.com", "password": "hunter2"}, nil); err != nil {
			fmt.Printf("   %s failed: %v\n", userID, err)
		}
	}

	fmt.Println("\n2. Logging 12 failed logins for one identity (threshold is 10)...")
	for range 12 {
		if _, err := security.LogFailedLogin(ctx, "mallory@example.com", "bad password"); err != nil {
			fmt.Printf("   failed login rejected: %v\n", err)
		}
	}

	fmt.Println("\n3. Logging a CRITICAL suspicious activity (batch alert)...")
	if _, err := security.LogSuspiciousActivity(ctx, "mallory@example.com", "credential stuffing", map[string]any{"attempts": 12}); err != nil {
		fmt.Printf("   rejected: %v\n", err)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := manager.Flush(flushCtx); err != nil {
		fmt.Printf("   flush failed: %v\n", err)
	}

	fmt.Println("\n4. Checking store contents...")
	success := false
	total, err := store.Count(ctx, audit.Filter{})
	if err != nil {
		fmt.Printf("   count failed: %v\n", err)
	}
	failures, err := store.Count(ctx, audit.Filter{Success: &success})
	if err != nil {
		fmt.Printf("   count failed: %v\n", err)
	}
	fmt.Printf("   Total events in store: %d (%d failed)\n", total, failures)

	if err := manager.Close(flushCtx); err != nil {
		fmt.Printf("   close failed: %v\n", err)
	}

	fmt.Println("\n=== Metrics Summary ===")
	fmt.Println("View full metrics at: http://localhost:9090/metrics")
	fmt.Println("Filter with: curl -s http://localhost:9090/metrics | grep workspace_audit")
	fmt.Println("\nPress Ctrl+C to exit...")

	select {}
}
