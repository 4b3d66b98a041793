// Package loggers holds the domain-specific audit façades. Each method turns one
// business operation into an audit entry with its category and severity fixed
// by policy, and hands it to the trail manager.
//
// Methods take the outcome of the audited operation as opErr: nil records a
// success, anything else a failure with the error text.
package loggers

import (
	"context"
	"strings"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/requestcontext"
)

// Recorder accepts audit entries. *trail.Manager implements it.
type Recorder interface {
	LogEvent(ctx context.Context, entry audit.Entry) (audit.Event, error)
}

type base struct {
	rec Recorder
}

// entry starts an entry for the admin principal found in ctx.
func (b base) entry(ctx context.Context, action audit.Action, severity audit.Severity, resource, resourceID string) (audit.Entry, error) {
	admin, ok := requestcontext.AdminFrom(ctx)
	if !ok || admin.ID == "" {
		return audit.Entry{}, dErrors.New(dErrors.CodeValidation, "admin principal missing from context")
	}
	return audit.Entry{
		Action:     action,
		Severity:   severity,
		AdminID:    admin.ID,
		AdminRoles: admin.Roles,
		Resource:   resource,
		ResourceID: resourceID,
	}, nil
}

func (b base) record(ctx context.Context, e audit.Entry, extra map[string]any, opErr error) (audit.Event, error) {
	e.Metadata = audit.RequestMetadata(ctx, extra)
	e.Success = opErr == nil
	if opErr != nil {
		e.Error = opErr.Error()
	}
	return b.rec.LogEvent(ctx, e)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	return nil
}

func reasonMeta(reason string) map[string]any {
	if reason == "" {
		return nil
	}
	return map[string]any{audit.MetaReason: reason}
}
