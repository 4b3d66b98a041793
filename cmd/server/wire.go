package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"workspace-audit/internal/platform/blobstore"
	"workspace-audit/internal/platform/config"
	"workspace-audit/internal/platform/database"
	"workspace-audit/internal/platform/health"
	"workspace-audit/internal/platform/kafka/producer"
	"workspace-audit/internal/platform/redis"
	"workspace-audit/migrations"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/alert"
	"workspace-audit/pkg/platform/audit/deadletter"
	auditmetrics "workspace-audit/pkg/platform/audit/metrics"
	"workspace-audit/pkg/platform/audit/monitor"
	"workspace-audit/pkg/platform/audit/redact"
	"workspace-audit/pkg/platform/audit/store/memory"
	"workspace-audit/pkg/platform/audit/store/postgres"
	"workspace-audit/pkg/platform/audit/trail"
)

// infra holds the optional backends selected by configuration. Nil fields
// mean the in-memory fallback is in use.
type infra struct {
	pool     *database.Pool
	redis    *redis.Client
	producer *producer.Producer
}

func (i *infra) close(ctx context.Context, logger *slog.Logger) {
	if i.producer != nil {
		if err := i.producer.Close(ctx); err != nil {
			logger.Warn("kafka producer close failed", "error", err)
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			logger.Warn("redis close failed", "error", err)
		}
	}
	if i.pool != nil {
		if err := i.pool.Close(); err != nil {
			logger.Warn("database close failed", "error", err)
		}
	}
}

// registerChecks adds readiness checks for every configured backend plus the
// ingestion pipeline itself.
func (i *infra) registerChecks(h *health.Handler, manager *trail.Manager, maxQueue int, spool deadletter.Spool) {
	if i.pool != nil {
		h.RegisterCheck("postgres", health.CheckFunc(i.pool.Health))
	}
	if i.redis != nil {
		h.RegisterDegradable("redis", i.redis)
	}
	if i.producer != nil {
		h.RegisterDegradable("kafka", i.producer)
	}
	h.RegisterDegradable("audit_queue", health.CheckFunc(func(context.Context) error {
		if n := manager.QueueLen(); n*10 >= maxQueue*9 {
			return fmt.Errorf("%d of %d queued events", n, maxQueue)
		}
		return nil
	}))
	h.RegisterDegradable("dead_letter", health.CheckFunc(func(ctx context.Context) error {
		n, err := spool.Len(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%d events awaiting replay", n)
		}
		return nil
	}))
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, in *infra, logger *slog.Logger) (audit.Store, error) {
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.URL
	dbCfg.MaxOpenConns = cfg.MaxOpenConns
	dbCfg.MaxIdleConns = cfg.MaxIdleConns

	pool, err := database.New(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		logger.Warn("DATABASE_URL not set, audit events are kept in memory only")
		return memory.NewInMemoryStore(), nil
	}
	in.pool = pool

	if cfg.AutoMigrate {
		applied, err := database.Migrate(ctx, pool.DB(), migrations.FS)
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database migrations applied", "versions", applied)
	}
	return postgres.New(pool.DB()), nil
}

func openBlobStore(ctx context.Context, cfg config.ArchiveConfig, logger *slog.Logger) (blobstore.Store, error) {
	if cfg.Bucket == "" {
		logger.Warn("ARCHIVE_S3_BUCKET not set, archives and exports are kept in memory only")
		return blobstore.NewMemoryStore(), nil
	}
	return blobstore.NewS3Store(ctx, blobstore.S3Config{
		Bucket:       cfg.Bucket,
		Prefix:       cfg.Prefix,
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		UsePathStyle: cfg.UsePathStyle,
	})
}

func openCounter(ctx context.Context, cfg config.RedisConfig, in *infra, logger *slog.Logger) (monitor.WindowCounter, error) {
	client, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		logger.Warn("REDIS_URL not set, monitoring windows are per-process")
		return monitor.NewMemoryCounter(), nil
	}
	in.redis = client
	if err := client.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		logger.Warn("redis pool metrics not registered", "error", err)
	}
	return monitor.NewRedisCounter(client.Client), nil
}

// buildDispatcher assembles the notification channels. The log notifier is
// always the fallback so an alert is never silently dropped.
func buildDispatcher(cfg config.Config, in *infra, logger *slog.Logger, m *auditmetrics.Metrics) (*alert.Dispatcher, error) {
	var notifiers []alert.Notifier
	if cfg.Kafka.Brokers != "" {
		pcfg := producer.DefaultConfig()
		pcfg.Brokers = cfg.Kafka.Brokers
		p, err := producer.New(pcfg, logger)
		if err != nil {
			return nil, err
		}
		in.producer = p
		notifiers = append(notifiers, alert.NewKafkaNotifier(p, cfg.Kafka.AlertTopic))
	}
	if cfg.Alerts.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewWebhookNotifier(cfg.Alerts.WebhookURL, &http.Client{Timeout: cfg.Alerts.Timeout}))
	}
	return alert.NewDispatcher(notifiers,
		alert.WithTimeout(cfg.Alerts.Timeout),
		alert.WithLogger(logger),
		alert.WithMetrics(m),
		alert.WithFallback(alert.NewLogNotifier(logger)),
	), nil
}

func businessHours(cfg config.MonitoringConfig) audit.BusinessHours {
	h := audit.DefaultBusinessHours()
	h.Location = cfg.BusinessHoursLocation
	h.StartHour = cfg.BusinessHoursStart
	h.EndHour = cfg.BusinessHoursEnd
	return h
}

func thresholds(cfg config.MonitoringConfig) monitor.Thresholds {
	return monitor.Thresholds{
		FailedLogins:      monitor.Rule{Threshold: cfg.FailedLoginThreshold, Window: cfg.FailedLoginWindow},
		UserModifications: monitor.Rule{Threshold: cfg.UserModificationThreshold, Window: cfg.UserModificationWindow},
		CriticalActions:   monitor.Rule{Threshold: cfg.CriticalActionThreshold, Window: cfg.CriticalActionWindow},
		BusinessHours:     businessHours(cfg),
	}
}

func buildTrail(cfg config.Config, store audit.Writer, spool deadletter.Spool, d trail.Dispatcher, o trail.Observer, logger *slog.Logger, m *auditmetrics.Metrics) (*trail.Manager, error) {
	t := cfg.Trail
	return trail.New(store,
		trail.WithLogger(logger),
		trail.WithMetrics(m),
		trail.WithRedactor(redact.New()),
		trail.WithSpool(spool),
		trail.WithDispatcher(d),
		trail.WithObserver(o),
		trail.WithBatchSize(t.BatchSize),
		trail.WithMaxQueue(t.MaxQueue),
		trail.WithMaxAttempts(t.MaxAttempts),
		trail.WithRetryBackoff(t.RetryBackoff, t.MaxBackoff),
		trail.WithPersistTimeout(t.PersistTimeout),
		trail.WithAlertTimeout(cfg.Alerts.Timeout),
	)
}

func shutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
