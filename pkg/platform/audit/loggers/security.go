package loggers

import (
	"context"

	"workspace-audit/pkg/platform/audit"
)

// SecurityAudit records authentication, credential and security policy events.
type SecurityAudit struct {
	base
}

func NewSecurityAudit(rec Recorder) *SecurityAudit {
	return &SecurityAudit{base{rec: rec}}
}

// LogLogin records a successful login. The admin is not in the request context
// yet, so the identity is passed explicitly.
func (a *SecurityAudit) LogLogin(ctx context.Context, adminID string, roles []string) (audit.Event, error) {
	if err := required("admin id", adminID); err != nil {
		return audit.Event{}, err
	}
	e := audit.Entry{
		Action:     audit.ActionLogin,
		Severity:   audit.SeverityLow,
		AdminID:    adminID,
		AdminRoles: roles,
		Resource:   "session",
	}
	return a.record(ctx, e, nil, nil)
}

// LogFailedLogin always records MEDIUM with success=false and no roles; the
// identity may not belong to an admin at all.
func (a *SecurityAudit) LogFailedLogin(ctx context.Context, identity, reason string) (audit.Event, error) {
	if err := required("identity", identity); err != nil {
		return audit.Event{}, err
	}
	if reason == "" {
		reason = "authentication failed"
	}
	e := audit.Entry{
		Action:     audit.ActionFailedLogin,
		Severity:   audit.SeverityMedium,
		AdminID:    identity,
		AdminRoles: []string{},
		Resource:   "session",
	}
	return a.record(ctx, e, nil, failure(reason))
}

func (a *SecurityAudit) LogLogout(ctx context.Context) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionLogout, audit.SeverityLow, "session", "")
	if err != nil {
		return audit.Event{}, err
	}
	return a.record(ctx, e, nil, nil)
}

func (a *SecurityAudit) LogPasswordReset(ctx context.Context, userID string, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionPasswordReset, audit.SeverityMedium, "user", userID)
	if err != nil {
		return audit.Event{}, err
	}
	return a.record(ctx, e, nil, opErr)
}

// LogMFAChange records enabling as MEDIUM and disabling as HIGH.
func (a *SecurityAudit) LogMFAChange(ctx context.Context, userID string, enabled bool, opErr error) (audit.Event, error) {
	action, severity := audit.ActionMFAEnabled, audit.SeverityMedium
	if !enabled {
		action, severity = audit.ActionMFADisabled, audit.SeverityHigh
	}
	e, err := a.entry(ctx, action, severity, "user", userID)
	if err != nil {
		return audit.Event{}, err
	}
	return a.record(ctx, e, nil, opErr)
}

func (a *SecurityAudit) LogSecurityPolicyUpdate(ctx context.Context, policy string, oldValues, newValues map[string]any, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionSecurityPolicyUpdate, audit.SeverityHigh, "security_policy", policy)
	if err != nil {
		return audit.Event{}, err
	}
	e.OldValues = oldValues
	e.NewValues = newValues
	return a.record(ctx, e, map[string]any{audit.MetaChangedFields: ChangedFields(oldValues, newValues)}, opErr)
}

func (a *SecurityAudit) LogAPIKeyCreate(ctx context.Context, keyID string, scopes []string, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionAPIKeyCreate, audit.SeverityHigh, "api_key", keyID)
	if err != nil {
		return audit.Event{}, err
	}
	e.NewValues = map[string]any{"scopes": scopes}
	return a.record(ctx, e, nil, opErr)
}

func (a *SecurityAudit) LogAPIKeyRevoke(ctx context.Context, keyID, reason string, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionAPIKeyRevoke, audit.SeverityHigh, "api_key", keyID)
	if err != nil {
		return audit.Event{}, err
	}
	return a.record(ctx, e, reasonMeta(reason), opErr)
}

// LogSuspiciousActivity records HIGH against the subject under suspicion.
func (a *SecurityAudit) LogSuspiciousActivity(ctx context.Context, subject, description string, details map[string]any) (audit.Event, error) {
	if err := required("subject", subject); err != nil {
		return audit.Event{}, err
	}
	e := audit.Entry{
		Action:     audit.ActionSuspiciousActivity,
		Severity:   audit.SeverityHigh,
		AdminID:    subject,
		AdminRoles: []string{},
		Resource:   "security",
		NewValues:  details,
	}
	return a.record(ctx, e, reasonMeta(description), nil)
}

// LogImpersonation records CRITICAL; the impersonated admin is the resource.
func (a *SecurityAudit) LogImpersonation(ctx context.Context, targetAdminID, reason string, opErr error) (audit.Event, error) {
	if err := required("reason", reason); err != nil {
		return audit.Event{}, err
	}
	e, err := a.entry(ctx, audit.ActionAdminImpersonation, audit.SeverityCritical, "admin", targetAdminID)
	if err != nil {
		return audit.Event{}, err
	}
	return a.record(ctx, e, reasonMeta(reason), opErr)
}

// LogBulkOperation records HIGH with the number of affected records.
func (a *SecurityAudit) LogBulkOperation(ctx context.Context, operation, resource string, affectedRecords int, opErr error) (audit.Event, error) {
	if err := required("operation", operation); err != nil {
		return audit.Event{}, err
	}
	e, err := a.entry(ctx, audit.ActionBulkOperation, audit.SeverityHigh, resource, "")
	if err != nil {
		return audit.Event{}, err
	}
	e.NewValues = map[string]any{"operation": operation}
	return a.record(ctx, e, map[string]any{audit.MetaAffectedRecords: affectedRecords}, opErr)
}

type failure string

func (f failure) Error() string { return string(f) }
