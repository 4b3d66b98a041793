package analytics_test

import (
	"time"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/analytics"
)

func newValues(kv map[string]any) mod {
	return func(e *audit.Event) { e.NewValues = kv }
}

func resourceID(id string) mod {
	return func(e *audit.Event) { e.ResourceID = id }
}

func codes(r *analytics.ComplianceReport) []analytics.ViolationCode {
	out := []analytics.ViolationCode{}
	for _, v := range r.Violations {
		out = append(out, v.Code)
	}
	return out
}

func (s *AnalyticsSuite) report(t string) *analytics.ComplianceReport {
	r, err := s.service.GenerateComplianceReport(s.ctx, t, s.ago(24*time.Hour), s.now)
	s.Require().NoError(err)
	return r
}

func (s *AnalyticsSuite) TestGDPRReport() {
	badRequest := s.put(audit.ActionGDPRRequest, audit.SeverityHigh, s.ago(5*time.Hour), failed)
	s.put(audit.ActionGDPRRequest, audit.SeverityHigh, s.ago(4*time.Hour))
	export := s.put(audit.ActionDataExport, audit.SeverityMedium, s.ago(3*time.Hour))
	s.put(audit.ActionDataExport, audit.SeverityMedium, s.ago(2*time.Hour), meta(audit.MetaReason, "legal hold"))
	s.put(audit.ActionConfigUpdate, audit.SeverityCritical, s.ago(time.Hour))

	r := s.report("GDPR")
	s.Equal(analytics.ReportGDPR, r.ReportType)
	s.Len(r.Events, 4, "only regime actions are extracted")
	s.Equal(4, r.Summary.TotalEvents)
	s.Equal(1, r.Summary.FailedEvents)
	s.Equal(2, r.Summary.ByAction[audit.ActionGDPRRequest])
	s.Equal([]analytics.ViolationCode{
		analytics.ViolationGDPRRequestFailed,
		analytics.ViolationExportWithoutJustification,
	}, codes(r))
	s.Equal([]string{badRequest.ID}, r.Violations[0].EventIDs)
	s.Equal([]string{export.ID}, r.Violations[1].EventIDs)
	s.Equal(2, r.Summary.ViolationCount)
	s.NotEmpty(r.Recommendations)
	s.True(r.Events[0].Timestamp.Before(r.Events[3].Timestamp), "events are chronological")
}

func (s *AnalyticsSuite) TestSOXReport() {
	self := s.put(audit.ActionRoleAssignment, audit.SeverityCritical, s.ago(5*time.Hour), resourceID("adm_1"))
	s.put(audit.ActionRoleAssignment, audit.SeverityCritical, s.ago(4*time.Hour), resourceID("usr_9"))
	undocumented := s.put(audit.ActionConfigUpdate, audit.SeverityCritical, s.ago(3*time.Hour))
	s.put(audit.ActionConfigUpdate, audit.SeverityCritical, s.ago(2*time.Hour), meta(audit.MetaReason, "CHG-1042"))
	s.put(audit.ActionConfigUpdate, audit.SeverityMedium, s.ago(time.Hour))

	r := s.report("sox")
	s.Equal([]analytics.ViolationCode{
		analytics.ViolationSelfRoleAssignment,
		analytics.ViolationUndocumentedCriticalChange,
	}, codes(r))
	s.Equal([]string{self.ID}, r.Violations[0].EventIDs)
	s.Equal([]string{undocumented.ID}, r.Violations[1].EventIDs)
	s.Equal(audit.SeverityCritical, r.Violations[0].Severity)
}

func (s *AnalyticsSuite) TestHIPAAReport() {
	s.put(audit.ActionDataView, audit.SeverityLow, s.ago(5*time.Hour), failed)
	s.put(audit.ActionDataExport, audit.SeverityMedium, s.ago(4*time.Hour), meta(audit.MetaAffectedRecords, 1000))
	s.put(audit.ActionDataExport, audit.SeverityMedium, s.ago(3*time.Hour), meta(audit.MetaAffectedRecords, float64(1001)))
	s.put(audit.ActionFailedLogin, audit.SeverityMedium, s.ago(2*time.Hour), failed)

	r := s.report("hipaa")
	s.Len(r.Events, 4)
	s.Equal([]analytics.ViolationCode{
		analytics.ViolationUnauthorizedAccessAttempt,
		analytics.ViolationExcessiveDataAccess,
	}, codes(r), "failed logins are not data access")
}

func (s *AnalyticsSuite) TestPCIReport() {
	for i := range 6 {
		s.put(audit.ActionFailedLogin, audit.SeverityMedium, s.ago(time.Duration(10-i)*time.Hour), failed, by("attacker@example.test"))
	}
	for i := range 5 {
		s.put(audit.ActionFailedLogin, audit.SeverityMedium, s.ago(time.Duration(10-i)*time.Hour), failed, by("adm_2"))
	}
	refund := s.put(audit.ActionPaymentRefund, audit.SeverityHigh, s.ago(time.Hour),
		newValues(map[string]any{"refundAmount": 1500.0, "currency": "usd"}))
	s.put(audit.ActionPaymentRefund, audit.SeverityHigh, s.ago(time.Hour),
		newValues(map[string]any{"refundAmount": 1500.0}), meta(audit.MetaReason, "duplicate charge"))
	s.put(audit.ActionPaymentRefund, audit.SeverityMedium, s.ago(time.Hour),
		newValues(map[string]any{"refundAmount": 1000}))

	r := s.report("pci")
	s.Equal([]analytics.ViolationCode{
		analytics.ViolationUnjustifiedLargeRefund,
		analytics.ViolationRepeatedAuthFailure,
	}, codes(r))
	s.Equal([]string{refund.ID}, r.Violations[0].EventIDs)
	s.Equal("attacker@example.test", r.Violations[1].AdminID)
	s.Len(r.Violations[1].EventIDs, 6)
}

func (s *AnalyticsSuite) TestReportTruncatesEventsButNotFindings() {
	s.service = analytics.New(s.store,
		analytics.WithClock(func() time.Time { return s.now }),
		analytics.WithMaxReportEvents(3),
	)
	for i := range 5 {
		s.put(audit.ActionDataExport, audit.SeverityMedium, s.ago(time.Duration(i+1)*time.Hour))
	}

	r := s.report("gdpr")
	s.Len(r.Events, 3)
	s.True(r.Truncated)
	s.Equal(5, r.Summary.TotalEvents)
	s.Len(r.Violations, 5)
}

func (s *AnalyticsSuite) TestReportValidation() {
	_, err := s.service.GenerateComplianceReport(s.ctx, "iso27001", s.ago(time.Hour), s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.GenerateComplianceReport(s.ctx, "gdpr", s.now, s.ago(time.Hour))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.GenerateComplianceReport(s.ctx, "gdpr", time.Time{}, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *AnalyticsSuite) TestRelevantActionsMatchRegimes() {
	for _, t := range analytics.ReportTypes() {
		actions := analytics.RelevantActions(t)
		s.NotEmpty(actions, t)
		for _, a := range actions {
			s.True(a.IsValid(), "%s lists unknown action %s", t, a)
		}
	}
	s.Contains(analytics.RelevantActions(analytics.ReportPCI), audit.ActionFailedLogin)
}
