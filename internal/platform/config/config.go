// Package config loads the audit server configuration from environment
// variables. Every setting has a default so a bare `go run ./cmd/server`
// starts with in-memory backends.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full server configuration.
type Config struct {
	Server     Server
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Alerts     AlertConfig
	Archive    ArchiveConfig
	Trail      TrailConfig
	Monitoring MonitoringConfig
	Retention  RetentionConfig
	Export     ExportConfig
	LogLevel   string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	Environment     string
	JWTSigningKey   string
	JWTIssuer       string
	ShutdownTimeout time.Duration
	// TrustedProxies may set X-Forwarded-For. Empty means the socket address
	// is always used as the client address.
	TrustedProxies []netip.Prefix
}

// DatabaseConfig configures the Postgres audit store. An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

// RedisConfig configures the distributed window counters. An empty URL selects in-memory counters.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the alert notifier. Empty brokers disable it.
type KafkaConfig struct {
	Brokers    string
	AlertTopic string
}

// AlertConfig holds non-Kafka notification channels.
type AlertConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// ArchiveConfig configures the blob store used for archives and export
// artifacts. An empty bucket selects the in-memory store.
type ArchiveConfig struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// TrailConfig tunes the trail manager.
type TrailConfig struct {
	BatchSize      int
	MaxQueue       int
	MaxAttempts    int
	RetryBackoff   time.Duration
	MaxBackoff     time.Duration
	PersistTimeout time.Duration
	SpoolPath      string
	ReplayInterval time.Duration
}

// MonitoringConfig holds the real-time alert thresholds and business hours.
type MonitoringConfig struct {
	FailedLoginThreshold      int
	FailedLoginWindow         time.Duration
	UserModificationThreshold int
	UserModificationWindow    time.Duration
	CriticalActionThreshold   int
	CriticalActionWindow      time.Duration
	BusinessHoursStart        int
	BusinessHoursEnd          int
	BusinessHoursLocation     *time.Location
}

// RetentionConfig holds the optional in-process cleanup schedule.
type RetentionConfig struct {
	// Schedule is a cron expression; empty leaves cleanup to an external job runner.
	Schedule string
	PageSize int
}

// ExportConfig configures export jobs.
type ExportConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRecords int
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	r := reader{}

	cfg := Config{
		Server: Server{
			Addr:            r.string("AUDIT_ADDR", ":8080"),
			Environment:     r.string("ENVIRONMENT", "development"),
			JWTSigningKey:   r.string("JWT_SIGNING_KEY", ""),
			JWTIssuer:       r.string("JWT_ISSUER", ""),
			ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
			TrustedProxies:  r.prefixes("TRUSTED_PROXIES"),
		},
		Database: DatabaseConfig{
			URL:          r.string("DATABASE_URL", ""),
			MaxOpenConns: r.int("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: r.int("DB_MAX_IDLE_CONNS", 5),
			AutoMigrate:  r.bool("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			URL:          r.string("REDIS_URL", ""),
			PoolSize:     r.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    r.string("KAFKA_BROKERS", ""),
			AlertTopic: r.string("KAFKA_ALERT_TOPIC", "workspace-audit-alerts"),
		},
		Alerts: AlertConfig{
			WebhookURL: r.string("ALERT_WEBHOOK_URL", ""),
			Timeout:    r.duration("ALERT_TIMEOUT", 3*time.Second),
		},
		Archive: ArchiveConfig{
			Bucket:       r.string("ARCHIVE_S3_BUCKET", ""),
			Prefix:       r.string("ARCHIVE_S3_PREFIX", ""),
			Region:       r.string("ARCHIVE_S3_REGION", "us-east-1"),
			Endpoint:     r.string("ARCHIVE_S3_ENDPOINT", ""),
			UsePathStyle: r.bool("ARCHIVE_S3_PATH_STYLE", false),
		},
		Trail: TrailConfig{
			BatchSize:      r.int("AUDIT_BATCH_SIZE", 100),
			MaxQueue:       r.int("AUDIT_MAX_QUEUE", 10000),
			MaxAttempts:    r.int("AUDIT_MAX_ATTEMPTS", 5),
			RetryBackoff:   r.duration("AUDIT_RETRY_BACKOFF", 500*time.Millisecond),
			MaxBackoff:     r.duration("AUDIT_MAX_BACKOFF", 30*time.Second),
			PersistTimeout: r.duration("AUDIT_PERSIST_TIMEOUT", 5*time.Second),
			SpoolPath:      r.string("AUDIT_SPOOL_PATH", "audit-deadletter.jsonl"),
			ReplayInterval: r.duration("AUDIT_REPLAY_INTERVAL", time.Minute),
		},
		Monitoring: MonitoringConfig{
			FailedLoginThreshold:      r.int("MONITOR_FAILED_LOGIN_THRESHOLD", 10),
			FailedLoginWindow:         r.duration("MONITOR_FAILED_LOGIN_WINDOW", 5*time.Minute),
			UserModificationThreshold: r.int("MONITOR_USER_MOD_THRESHOLD", 50),
			UserModificationWindow:    r.duration("MONITOR_USER_MOD_WINDOW", time.Hour),
			CriticalActionThreshold:   r.int("MONITOR_CRITICAL_THRESHOLD", 5),
			CriticalActionWindow:      r.duration("MONITOR_CRITICAL_WINDOW", 15*time.Minute),
			BusinessHoursStart:        r.int("BUSINESS_HOURS_START", 8),
			BusinessHoursEnd:          r.int("BUSINESS_HOURS_END", 18),
			BusinessHoursLocation:     r.location("BUSINESS_HOURS_TZ", time.Local),
		},
		Retention: RetentionConfig{
			Schedule: r.string("RETENTION_SCHEDULE", ""),
			PageSize: r.int("RETENTION_PAGE_SIZE", 500),
		},
		Export: ExportConfig{
			BaseURL:    r.string("EXPORT_BASE_URL", "/admin/audit/exports"),
			Timeout:    r.duration("EXPORT_TIMEOUT", 5*time.Minute),
			MaxRecords: r.int("EXPORT_MAX_RECORDS", 100000),
		},
		LogLevel: r.string("LOG_LEVEL", "info"),
	}

	if err := r.err(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.JWTSigningKey == "" && c.IsProduction() {
		return fmt.Errorf("JWT_SIGNING_KEY is required in production")
	}
	m := c.Monitoring
	if m.BusinessHoursStart < 0 || m.BusinessHoursEnd > 24 || m.BusinessHoursStart >= m.BusinessHoursEnd {
		return fmt.Errorf("business hours %d-%d are invalid", m.BusinessHoursStart, m.BusinessHoursEnd)
	}
	if c.Kafka.Brokers != "" && c.Kafka.AlertTopic == "" {
		return fmt.Errorf("KAFKA_ALERT_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// reader collects parse errors so Load reports every bad variable at once.
type reader struct {
	errs []string
}

func (r *reader) string(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (r *reader) int(key string, fallback int) int {
	v := r.string(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s: %q is not an integer", key, v))
		return fallback
	}
	return n
}

func (r *reader) bool(key string, fallback bool) bool {
	v := r.string(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
		return fallback
	}
	return b
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	v := r.string(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s: %q is not a duration", key, v))
		return fallback
	}
	return d
}

func (r *reader) location(key string, fallback *time.Location) *time.Location {
	v := r.string(key, "")
	if v == "" {
		return fallback
	}
	loc, err := time.LoadLocation(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s: unknown time zone %q", key, v))
		return fallback
	}
	return loc
}

// prefixes reads a comma separated list of CIDRs. Bare addresses are taken
// as single host prefixes.
func (r *reader) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, raw := range strings.Split(r.string(key, ""), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			r.errs = append(r.errs, fmt.Sprintf("%s: %q is not an address or CIDR", key, raw))
			continue
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

func (r *reader) err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(r.errs, "; "))
}
