package analytics

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/loggers"
	"workspace-audit/pkg/platform/audit/tracer"
)

// ReportType names a compliance regime.
type ReportType string

const (
	ReportGDPR  ReportType = "gdpr"
	ReportSOX   ReportType = "sox"
	ReportHIPAA ReportType = "hipaa"
	ReportPCI   ReportType = "pci"
)

// ReportTypes lists every supported regime.
func ReportTypes() []ReportType {
	return []ReportType{ReportGDPR, ReportSOX, ReportHIPAA, ReportPCI}
}

// ParseReportType accepts regime names case-insensitively.
func ParseReportType(s string) (ReportType, error) {
	t := ReportType(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(ReportTypes(), t) {
		return "", dErrors.Newf(dErrors.CodeValidation, "unsupported report type %q", s)
	}
	return t, nil
}

// ViolationCode names one checklist item.
type ViolationCode string

const (
	ViolationGDPRRequestFailed          ViolationCode = "GDPR_REQUEST_FAILED"
	ViolationExportWithoutJustification ViolationCode = "EXPORT_WITHOUT_JUSTIFICATION"
	ViolationSelfRoleAssignment         ViolationCode = "SELF_ROLE_ASSIGNMENT"
	ViolationUndocumentedCriticalChange ViolationCode = "UNDOCUMENTED_CRITICAL_CHANGE"
	ViolationUnauthorizedAccessAttempt  ViolationCode = "UNAUTHORIZED_ACCESS_ATTEMPT"
	ViolationExcessiveDataAccess        ViolationCode = "EXCESSIVE_DATA_ACCESS"
	ViolationRepeatedAuthFailure        ViolationCode = "REPEATED_AUTH_FAILURE"
	ViolationUnjustifiedLargeRefund     ViolationCode = "UNJUSTIFIED_LARGE_REFUND"
)

const (
	// ExcessiveAccessRecords is the affectedRecords count above which a single
	// data access is flagged.
	ExcessiveAccessRecords = 1000
	// RepeatedAuthFailures is the failed login count per identity that is flagged.
	RepeatedAuthFailures = 6
)

// Violation is one checklist finding.
type Violation struct {
	Code        ViolationCode  `json:"code"`
	Severity    audit.Severity `json:"severity"`
	Description string         `json:"description"`
	AdminID     string         `json:"adminId"`
	EventIDs    []string       `json:"eventIds"`
}

// ComplianceSummary describes the events a report covers.
type ComplianceSummary struct {
	TotalEvents    int                  `json:"totalEvents"`
	FailedEvents   int                  `json:"failedEvents"`
	UniqueAdmins   int                  `json:"uniqueAdmins"`
	ByAction       map[audit.Action]int `json:"byAction"`
	ViolationCount int                  `json:"violationCount"`
}

// ComplianceReport is a regime-specific extract of the audit log.
type ComplianceReport struct {
	ReportType      ReportType        `json:"reportType"`
	From            time.Time         `json:"from"`
	To              time.Time         `json:"to"`
	Summary         ComplianceSummary `json:"summary"`
	Events          []audit.Event     `json:"events"`
	Truncated       bool              `json:"truncated"`
	Violations      []Violation       `json:"violations"`
	Recommendations []string          `json:"recommendations"`
	GeneratedAt     time.Time         `json:"generatedAt"`
}

type regime struct {
	actions         []audit.Action
	check           func(events []audit.Event) []Violation
	recommendations []string
}

var regimes = map[ReportType]regime{
	ReportGDPR: {
		actions: []audit.Action{
			audit.ActionGDPRRequest, audit.ActionDataExport, audit.ActionDataDelete,
			audit.ActionDataView, audit.ActionUserDelete,
		},
		check: checkGDPR,
		recommendations: []string{
			"Resolve failed data subject requests within the statutory 30 day deadline.",
			"Require a documented justification for every personal data export.",
			"Review data access logs for processing without a lawful basis.",
		},
	},
	ReportSOX: {
		actions: []audit.Action{
			audit.ActionConfigUpdate, audit.ActionRoleAssignment, audit.ActionPermissionChange,
			audit.ActionPaymentRefund, audit.ActionBillingUpdate, audit.ActionAuditExport,
		},
		check: checkSOX,
		recommendations: []string{
			"Enforce segregation of duties so no admin can change their own roles.",
			"Attach a change ticket or reason to every critical configuration change.",
			"Review financial adjustments and privilege changes each quarter.",
		},
	},
	ReportHIPAA: {
		actions: []audit.Action{
			audit.ActionDataView, audit.ActionDataExport, audit.ActionDataModify,
			audit.ActionDataDelete, audit.ActionLogin, audit.ActionFailedLogin,
		},
		check: checkHIPAA,
		recommendations: []string{
			"Investigate failed data access attempts and confirm access rights.",
			"Apply minimum necessary access and review bulk record access.",
			"Keep access logs for at least six years.",
		},
	},
	ReportPCI: {
		actions: []audit.Action{
			audit.ActionPaymentRefund, audit.ActionBillingUpdate, audit.ActionSubscriptionUpdate,
			audit.ActionSecurityPolicyUpdate, audit.ActionAPIKeyCreate, audit.ActionAPIKeyRevoke,
			audit.ActionFailedLogin,
		},
		check: checkPCI,
		recommendations: []string{
			"Lock accounts after six failed authentication attempts.",
			"Require a documented reason and second approval for large refunds.",
			"Rotate API keys regularly and review security policy changes.",
		},
	},
}

// RelevantActions returns the actions a regime reports on.
func RelevantActions(t ReportType) []audit.Action {
	return slices.Clone(regimes[t].actions)
}

// GenerateComplianceReport extracts the regime's events in [from, to) and runs
// its violation checklist.
func (s *Service) GenerateComplianceReport(ctx context.Context, reportType string, from, to time.Time) (report *ComplianceReport, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanCompliance, tracer.String(tracer.AttrReportType, reportType))
	defer func() { span.End(err) }()

	t, err := ParseReportType(reportType)
	if err != nil {
		return nil, err
	}
	if from.IsZero() || to.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "from and to are required")
	}
	if from.After(to) {
		return nil, dErrors.New(dErrors.CodeValidation, "from must not be after to")
	}
	reg := regimes[t]

	events, err := s.collect(ctx, audit.Filter{Actions: reg.actions, From: from, To: to})
	if err != nil {
		return nil, s.storeError(ctx, "compliance", err)
	}

	violations := reg.check(events)
	report = &ComplianceReport{
		ReportType:      t,
		From:            from,
		To:              to,
		Summary:         summarize(events, len(violations)),
		Events:          events,
		Violations:      violations,
		Recommendations: slices.Clone(reg.recommendations),
		GeneratedAt:     s.now().UTC(),
	}
	if len(events) > s.maxReportEvents {
		report.Events = events[:s.maxReportEvents]
		report.Truncated = true
	}
	span.SetAttributes(
		tracer.Int(tracer.AttrTotal, len(events)),
		tracer.Int(tracer.AttrResultCount, len(violations)),
	)
	return report, nil
}

func summarize(events []audit.Event, violations int) ComplianceSummary {
	sum := ComplianceSummary{
		TotalEvents:    len(events),
		ByAction:       make(map[audit.Action]int),
		ViolationCount: violations,
	}
	admins := make(map[string]struct{})
	for _, e := range events {
		sum.ByAction[e.Action]++
		admins[e.AdminID] = struct{}{}
		if e.Failed() {
			sum.FailedEvents++
		}
	}
	sum.UniqueAdmins = len(admins)
	return sum
}

func checkGDPR(events []audit.Event) []Violation {
	out := []Violation{}
	for _, e := range events {
		switch {
		case e.Action == audit.ActionGDPRRequest && e.Failed():
			out = append(out, single(ViolationGDPRRequestFailed, audit.SeverityHigh, e,
				"data subject request failed"))
		case e.Action == audit.ActionDataExport && !hasReason(e):
			out = append(out, single(ViolationExportWithoutJustification, audit.SeverityMedium, e,
				"personal data exported without a documented reason"))
		}
	}
	return out
}

func checkSOX(events []audit.Event) []Violation {
	out := []Violation{}
	for _, e := range events {
		switch {
		case e.Action == audit.ActionRoleAssignment && e.ResourceID != "" && e.ResourceID == e.AdminID:
			out = append(out, single(ViolationSelfRoleAssignment, audit.SeverityCritical, e,
				"admin assigned roles to their own account"))
		case e.Action == audit.ActionConfigUpdate && e.Severity == audit.SeverityCritical && !hasReason(e):
			out = append(out, single(ViolationUndocumentedCriticalChange, audit.SeverityHigh, e,
				fmt.Sprintf("critical configuration %s changed without a reason", e.ResourceID)))
		}
	}
	return out
}

func checkHIPAA(events []audit.Event) []Violation {
	out := []Violation{}
	for _, e := range events {
		if e.Category != audit.CategoryDataAccess {
			continue
		}
		if e.Failed() {
			out = append(out, single(ViolationUnauthorizedAccessAttempt, audit.SeverityHigh, e,
				fmt.Sprintf("failed %s on %s", strings.ToLower(string(e.Action)), e.Resource)))
			continue
		}
		if n, ok := e.MetaNumber(audit.MetaAffectedRecords); ok && n > ExcessiveAccessRecords {
			out = append(out, single(ViolationExcessiveDataAccess, audit.SeverityMedium, e,
				fmt.Sprintf("%.0f records accessed in one operation", n)))
		}
	}
	return out
}

func checkPCI(events []audit.Event) []Violation {
	out := []Violation{}
	failures := make(map[string][]audit.Event)
	var identities []string
	for _, e := range events {
		switch e.Action {
		case audit.ActionFailedLogin:
			if _, seen := failures[e.AdminID]; !seen {
				identities = append(identities, e.AdminID)
			}
			failures[e.AdminID] = append(failures[e.AdminID], e)
		case audit.ActionPaymentRefund:
			if amount, ok := number(e.NewValues["refundAmount"]); ok && amount > loggers.LargeRefundThreshold && !hasReason(e) {
				out = append(out, single(ViolationUnjustifiedLargeRefund, audit.SeverityHigh, e,
					fmt.Sprintf("refund of %.2f issued without a reason", amount)))
			}
		}
	}
	for _, id := range identities {
		attempts := failures[id]
		if len(attempts) < RepeatedAuthFailures {
			continue
		}
		out = append(out, Violation{
			Code:        ViolationRepeatedAuthFailure,
			Severity:    audit.SeverityHigh,
			Description: fmt.Sprintf("%d failed logins for %s", len(attempts), id),
			AdminID:     id,
			EventIDs:    eventIDs(attempts),
		})
	}
	return out
}

func single(code ViolationCode, sev audit.Severity, e audit.Event, description string) Violation {
	return Violation{
		Code:        code,
		Severity:    sev,
		Description: description,
		AdminID:     e.AdminID,
		EventIDs:    []string{e.ID},
	}
}

func hasReason(e audit.Event) bool {
	return strings.TrimSpace(e.MetaString(audit.MetaReason)) != ""
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
