package loggers

import (
	"context"
	"reflect"
	"slices"

	"workspace-audit/pkg/platform/audit"
)

// sensitiveUserFields raise a user update to HIGH when any of them changes.
var sensitiveUserFields = []string{"email", "status", "subscription", "roles"}

// UserManagementAudit records user lifecycle and permission changes.
type UserManagementAudit struct {
	base
}

func NewUserManagementAudit(rec Recorder) *UserManagementAudit {
	return &UserManagementAudit{base{rec: rec}}
}

func (a *UserManagementAudit) LogUserCreate(ctx context.Context, userID string, values map[string]any, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionUserCreate, audit.SeverityMedium, "user", userID)
	if err != nil {
		return audit.Event{}, err
	}
	e.NewValues = values
	return a.record(ctx, e, nil, opErr)
}

// LogUserUpdate records a field update. Severity is HIGH when email, status,
// subscription or roles changed, MEDIUM otherwise. metadata.changedFields lists
// every key whose new value differs from the old one.
func (a *UserManagementAudit) LogUserUpdate(ctx context.Context, userID string, oldValues, newValues map[string]any, opErr error) (audit.Event, error) {
	changed := ChangedFields(oldValues, newValues)
	severity := audit.SeverityMedium
	for _, f := range changed {
		if slices.Contains(sensitiveUserFields, f) {
			severity = audit.SeverityHigh
			break
		}
	}

	e, err := a.entry(ctx, audit.ActionUserUpdate, severity, "user", userID)
	if err != nil {
		return audit.Event{}, err
	}
	e.OldValues = oldValues
	e.NewValues = newValues
	return a.record(ctx, e, map[string]any{audit.MetaChangedFields: changed}, opErr)
}

func (a *UserManagementAudit) LogUserDelete(ctx context.Context, userID string, snapshot map[string]any, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionUserDelete, audit.SeverityHigh, "user", userID)
	if err != nil {
		return audit.Event{}, err
	}
	e.OldValues = snapshot
	return a.record(ctx, e, nil, opErr)
}

// LogUserSuspend always records HIGH. The reason is required and kept in both
// newValues and metadata.
func (a *UserManagementAudit) LogUserSuspend(ctx context.Context, userID, reason string, opErr error) (audit.Event, error) {
	if err := required("reason", reason); err != nil {
		return audit.Event{}, err
	}
	e, err := a.entry(ctx, audit.ActionUserSuspend, audit.SeverityHigh, "user", userID)
	if err != nil {
		return audit.Event{}, err
	}
	e.NewValues = map[string]any{"status": "suspended", audit.MetaReason: reason}
	return a.record(ctx, e, reasonMeta(reason), opErr)
}

func (a *UserManagementAudit) LogUserActivate(ctx context.Context, userID string, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionUserActivate, audit.SeverityMedium, "user", userID)
	if err != nil {
		return audit.Event{}, err
	}
	e.NewValues = map[string]any{"status": "active"}
	return a.record(ctx, e, nil, opErr)
}

// LogRoleAssignment always records CRITICAL.
func (a *UserManagementAudit) LogRoleAssignment(ctx context.Context, userID string, oldRoles, newRoles []string, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionRoleAssignment, audit.SeverityCritical, "user", userID)
	if err != nil {
		return audit.Event{}, err
	}
	e.OldValues = map[string]any{"roles": oldRoles}
	e.NewValues = map[string]any{"roles": newRoles}
	return a.record(ctx, e, nil, opErr)
}

func (a *UserManagementAudit) LogPermissionChange(ctx context.Context, userID string, oldPermissions, newPermissions map[string]any, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionPermissionChange, audit.SeverityHigh, "user", userID)
	if err != nil {
		return audit.Event{}, err
	}
	e.OldValues = oldPermissions
	e.NewValues = newPermissions
	return a.record(ctx, e, map[string]any{audit.MetaChangedFields: ChangedFields(oldPermissions, newPermissions)}, opErr)
}

// ChangedFields returns, sorted, every key of newValues whose value differs
// from the same key in oldValues.
func ChangedFields(oldValues, newValues map[string]any) []string {
	changed := []string{}
	for k, nv := range newValues {
		ov, ok := oldValues[k]
		if !ok || !reflect.DeepEqual(ov, nv) {
			changed = append(changed, k)
		}
	}
	slices.Sort(changed)
	return changed
}
