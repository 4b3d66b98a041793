package loggers

import (
	"context"
	"time"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
)

// DataAccessType is the kind of access to protected data.
type DataAccessType string

const (
	AccessView   DataAccessType = "view"
	AccessExport DataAccessType = "export"
	AccessModify DataAccessType = "modify"
	AccessDelete DataAccessType = "delete"
)

// accessPolicy escalates severity with the destructiveness of the access.
var accessPolicy = map[DataAccessType]struct {
	action   audit.Action
	severity audit.Severity
}{
	AccessView:   {audit.ActionDataView, audit.SeverityLow},
	AccessExport: {audit.ActionDataExport, audit.SeverityMedium},
	AccessModify: {audit.ActionDataModify, audit.SeverityHigh},
	AccessDelete: {audit.ActionDataDelete, audit.SeverityCritical},
}

// GDPRRequestType is the kind of data subject request.
type GDPRRequestType string

const (
	GDPRExport    GDPRRequestType = "export"
	GDPRDelete    GDPRRequestType = "delete"
	GDPRAnonymize GDPRRequestType = "anonymize"
)

// ComplianceAudit records data access, data subject requests and audit exports.
type ComplianceAudit struct {
	base
}

func NewComplianceAudit(rec Recorder) *ComplianceAudit {
	return &ComplianceAudit{base{rec: rec}}
}

// LogDataAccess records view as LOW, export as MEDIUM, modify as HIGH and
// delete as CRITICAL.
func (a *ComplianceAudit) LogDataAccess(ctx context.Context, accessType DataAccessType, resource, resourceID string, affectedRecords int, reason string, opErr error) (audit.Event, error) {
	policy, ok := accessPolicy[accessType]
	if !ok {
		return audit.Event{}, dErrors.New(dErrors.CodeValidation, "unknown data access type: "+string(accessType))
	}
	if err := required("resource", resource); err != nil {
		return audit.Event{}, err
	}
	e, err := a.entry(ctx, policy.action, policy.severity, resource, resourceID)
	if err != nil {
		return audit.Event{}, err
	}
	meta := map[string]any{audit.MetaAffectedRecords: affectedRecords}
	if reason != "" {
		meta[audit.MetaReason] = reason
	}
	return a.record(ctx, e, meta, opErr)
}

// LogGDPRRequest always records HIGH.
func (a *ComplianceAudit) LogGDPRRequest(ctx context.Context, requestType GDPRRequestType, subjectID string, opErr error) (audit.Event, error) {
	switch requestType {
	case GDPRExport, GDPRDelete, GDPRAnonymize:
	default:
		return audit.Event{}, dErrors.New(dErrors.CodeValidation, "unknown GDPR request type: "+string(requestType))
	}
	if err := required("subject id", subjectID); err != nil {
		return audit.Event{}, err
	}
	e, err := a.entry(ctx, audit.ActionGDPRRequest, audit.SeverityHigh, "data_subject", subjectID)
	if err != nil {
		return audit.Event{}, err
	}
	e.NewValues = map[string]any{"requestType": string(requestType)}
	return a.record(ctx, e, nil, opErr)
}

// LogAuditExport records MEDIUM for an export of the audit log itself.
func (a *ComplianceAudit) LogAuditExport(ctx context.Context, exportID, format string, filters map[string]any, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionAuditExport, audit.SeverityMedium, "audit_export", exportID)
	if err != nil {
		return audit.Event{}, err
	}
	e.NewValues = map[string]any{"format": format, "filters": filters}
	return a.record(ctx, e, nil, opErr)
}

func (a *ComplianceAudit) LogComplianceReport(ctx context.Context, reportType string, from, to time.Time, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionComplianceReport, audit.SeverityLow, "compliance_report", reportType)
	if err != nil {
		return audit.Event{}, err
	}
	e.NewValues = map[string]any{"from": from.UTC().Format(time.RFC3339), "to": to.UTC().Format(time.RFC3339)}
	return a.record(ctx, e, nil, opErr)
}
