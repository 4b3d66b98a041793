package loggers

import (
	"context"
	"strings"

	"workspace-audit/pkg/platform/audit"
)

// criticalConfigKeys are the "category.key" settings whose change is CRITICAL.
var criticalConfigKeys = map[string]struct{}{
	"security.encryption_key":         {},
	"security.jwt_secret":             {},
	"security.two_factor_enforcement": {},
	"system.maintenance_mode":         {},
}

// IsCriticalConfigKey reports whether category.key is on the critical list.
func IsCriticalConfigKey(category, key string) bool {
	_, ok := criticalConfigKeys[category+"."+key]
	return ok
}

// SystemConfigAudit records configuration, feature flag and maintenance changes.
type SystemConfigAudit struct {
	base
}

func NewSystemConfigAudit(rec Recorder) *SystemConfigAudit {
	return &SystemConfigAudit{base{rec: rec}}
}

// LogConfigUpdate records CRITICAL for keys on the critical list, MEDIUM otherwise.
// The resource ID is "category.key".
func (a *SystemConfigAudit) LogConfigUpdate(ctx context.Context, category, key string, oldValue, newValue any, reason string, opErr error) (audit.Event, error) {
	if err := required("config category", category); err != nil {
		return audit.Event{}, err
	}
	if err := required("config key", key); err != nil {
		return audit.Event{}, err
	}
	severity := audit.SeverityMedium
	if IsCriticalConfigKey(category, key) {
		severity = audit.SeverityCritical
	}
	e, err := a.entry(ctx, audit.ActionConfigUpdate, severity, "config", category+"."+key)
	if err != nil {
		return audit.Event{}, err
	}
	e.OldValues = map[string]any{"value": oldValue}
	e.NewValues = map[string]any{"value": newValue}
	return a.record(ctx, e, reasonMeta(reason), opErr)
}

// LogFeatureFlagToggle records HIGH in the PRODUCTION environment, MEDIUM elsewhere.
func (a *SystemConfigAudit) LogFeatureFlagToggle(ctx context.Context, flag string, enabled bool, environment string, opErr error) (audit.Event, error) {
	if err := required("feature flag", flag); err != nil {
		return audit.Event{}, err
	}
	severity := audit.SeverityMedium
	if strings.EqualFold(environment, "PRODUCTION") {
		severity = audit.SeverityHigh
	}
	e, err := a.entry(ctx, audit.ActionFeatureFlagToggle, severity, "feature_flag", flag)
	if err != nil {
		return audit.Event{}, err
	}
	e.OldValues = map[string]any{"enabled": !enabled}
	e.NewValues = map[string]any{"enabled": enabled, "environment": environment}
	return a.record(ctx, e, nil, opErr)
}

// LogMaintenanceMode always records CRITICAL.
func (a *SystemConfigAudit) LogMaintenanceMode(ctx context.Context, enabled bool, reason string, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionMaintenanceMode, audit.SeverityCritical, "system", "maintenance_mode")
	if err != nil {
		return audit.Event{}, err
	}
	e.OldValues = map[string]any{"enabled": !enabled}
	e.NewValues = map[string]any{"enabled": enabled}
	return a.record(ctx, e, reasonMeta(reason), opErr)
}

func (a *SystemConfigAudit) LogIntegrationUpdate(ctx context.Context, integrationID string, oldValues, newValues map[string]any, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionIntegrationUpdate, audit.SeverityMedium, "integration", integrationID)
	if err != nil {
		return audit.Event{}, err
	}
	e.OldValues = oldValues
	e.NewValues = newValues
	return a.record(ctx, e, nil, opErr)
}

func (a *SystemConfigAudit) LogBackupCreate(ctx context.Context, backupID string, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionBackupCreate, audit.SeverityMedium, "backup", backupID)
	if err != nil {
		return audit.Event{}, err
	}
	return a.record(ctx, e, nil, opErr)
}

func (a *SystemConfigAudit) LogDataMigration(ctx context.Context, migrationID string, affectedRecords int, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionDataMigration, audit.SeverityHigh, "migration", migrationID)
	if err != nil {
		return audit.Event{}, err
	}
	return a.record(ctx, e, map[string]any{audit.MetaAffectedRecords: affectedRecords}, opErr)
}
