// Command audit-retention runs one retention cleanup pass and exits. It is the
// entry point for external job runners (Kubernetes CronJob, systemd timer).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workspace-audit/internal/platform/blobstore"
	"workspace-audit/internal/platform/config"
	"workspace-audit/internal/platform/database"
	"workspace-audit/internal/platform/logger"
	"workspace-audit/pkg/platform/audit/archive"
	"workspace-audit/pkg/platform/audit/retention"
	"workspace-audit/pkg/platform/audit/store/postgres"
)

func main() {
	timeout := flag.Duration("timeout", 30*time.Minute, "Abort the run after this long")
	jsonOut := flag.Bool("json", false, "Print the result as JSON")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	result, err := run(ctx, cfg)
	if err != nil {
		log.Error("retention cleanup failed", "error", err)
		os.Exit(1)
	}

	log.Info("retention cleanup finished",
		"total_deleted", result.TotalDeleted,
		"archived", result.Archived,
		"duration", result.Duration,
	)
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			log.Error("encode result", "error", err)
			os.Exit(1)
		}
	}
}

func run(ctx context.Context, cfg config.Config) (*retention.Result, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.Archive.Bucket == "" {
		return nil, errors.New("ARCHIVE_S3_BUCKET is required: HIGH and CRITICAL events are archived before deletion")
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	dbCfg.ApplicationName = "workspace-audit-retention"
	dbCfg.MaxOpenConns = 2
	dbCfg.MaxIdleConns = 1
	pool, err := database.New(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	defer pool.Close() //nolint:errcheck // process exits next

	blobs, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
		Bucket:       cfg.Archive.Bucket,
		Prefix:       cfg.Archive.Prefix,
		Region:       cfg.Archive.Region,
		Endpoint:     cfg.Archive.Endpoint,
		UsePathStyle: cfg.Archive.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.Server.Environment, cfg.LogLevel)
	svc := retention.New(postgres.New(pool.DB()),
		archive.NewBlobSink(blobs, archive.WithLogger(log)),
		retention.WithLogger(log),
		retention.WithPageSize(cfg.Retention.PageSize),
	)
	return svc.CleanupExpiredAudits(ctx)
}
