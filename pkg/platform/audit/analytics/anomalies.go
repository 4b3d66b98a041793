package analytics

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mssola/useragent"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/tracer"
	"workspace-audit/pkg/platform/privacy"
)

// AnomalyType names one detection rule.
type AnomalyType string

const (
	AnomalyHighVolume       AnomalyType = "HIGH_VOLUME"
	AnomalyOffHoursCritical AnomalyType = "OFF_HOURS_CRITICAL"
	AnomalyHighFailureRate  AnomalyType = "HIGH_FAILURE_RATE"
	AnomalyBulkDeletion     AnomalyType = "BULK_DELETION"
	AnomalyPrivilegeChanges AnomalyType = "PRIVILEGE_CHANGES"
	AnomalyMultipleNetworks AnomalyType = "MULTIPLE_NETWORKS"
	AnomalyMultipleClients  AnomalyType = "MULTIPLE_CLIENTS"
)

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

const (
	DefaultWindowHours = 24
	MaxWindowHours     = 720
	maxRiskScore       = 100
	maxAnomalyEventIDs = 20
)

// AnomalyRules holds the thresholds and risk points for each rule.
type AnomalyRules struct {
	// HighVolume fires when the window holds more than this many events.
	HighVolume       int
	HighVolumePoints int

	OffHoursCriticalPoints int

	// HighFailureRate fires with at least FailureMinCount failures and a
	// failure fraction above FailureRate.
	FailureMinCount       int
	FailureRate           float64
	HighFailureRatePoints int

	BulkDeletionMin    int
	BulkDeletionPoints int

	PrivilegeChangePoints int

	// Distinct anonymized networks and browser/OS pairs.
	DistinctNetworks       int
	MultipleNetworksPoints int
	DistinctClients        int
	MultipleClientsPoints  int
}

func DefaultAnomalyRules() AnomalyRules {
	return AnomalyRules{
		HighVolume:             100,
		HighVolumePoints:       30,
		OffHoursCriticalPoints: 25,
		FailureMinCount:        5,
		FailureRate:            0.3,
		HighFailureRatePoints:  20,
		BulkDeletionMin:        10,
		BulkDeletionPoints:     25,
		PrivilegeChangePoints:  15,
		DistinctNetworks:       3,
		MultipleNetworksPoints: 15,
		DistinctClients:        3,
		MultipleClientsPoints:  10,
	}
}

var deletionActions = []audit.Action{audit.ActionUserDelete, audit.ActionDataDelete, audit.ActionBulkOperation}

// Anomaly is one rule hit. EventIDs holds at most the first 20 contributing events.
type Anomaly struct {
	Type        AnomalyType    `json:"type"`
	Severity    audit.Severity `json:"severity"`
	Description string         `json:"description"`
	Count       int            `json:"count"`
	Points      int            `json:"points"`
	EventIDs    []string       `json:"eventIds,omitempty"`
}

// AnomalyReport is the result of one scan.
type AnomalyReport struct {
	AdminID     string    `json:"adminId"`
	WindowHours int       `json:"windowHours"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	EventCount  int       `json:"eventCount"`
	Anomalies   []Anomaly `json:"anomalies"`
	RiskScore   int       `json:"riskScore"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// LevelFor maps a 0-100 score to a level.
func LevelFor(score int) RiskLevel {
	switch {
	case score < 30:
		return RiskLow
	case score < 60:
		return RiskMedium
	case score < 80:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// DetectAnomalies scans one admin's activity over the last windowHours hours.
// A windowHours of 0 means DefaultWindowHours.
func (s *Service) DetectAnomalies(ctx context.Context, adminID string, windowHours int) (report *AnomalyReport, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanAnomalies, tracer.String(tracer.AttrAdminID, adminID))
	defer func() { span.End(err) }()

	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "admin id is required")
	}
	if windowHours == 0 {
		windowHours = DefaultWindowHours
	}
	if windowHours < 1 || windowHours > MaxWindowHours {
		return nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("window hours must be between 1 and %d", MaxWindowHours))
	}

	now := s.now().UTC()
	from := now.Add(-time.Duration(windowHours) * time.Hour)
	events, err := s.collect(ctx, audit.Filter{AdminID: adminID, From: from})
	if err != nil {
		return nil, s.storeError(ctx, "anomalies", err)
	}

	anomalies := s.evaluate(events)
	score := 0
	for _, a := range anomalies {
		score += a.Points
	}
	score = min(score, maxRiskScore)

	report = &AnomalyReport{
		AdminID:     adminID,
		WindowHours: windowHours,
		From:        from,
		To:          now,
		EventCount:  len(events),
		Anomalies:   anomalies,
		RiskScore:   score,
		RiskLevel:   LevelFor(score),
		GeneratedAt: now,
	}
	span.SetAttributes(
		tracer.Int(tracer.AttrResultCount, len(anomalies)),
		tracer.Int(tracer.AttrRiskScore, score),
	)
	if score > 0 {
		s.logger.InfoContext(ctx, "audit anomalies detected",
			"admin_id", adminID,
			"risk_score", score,
			"risk_level", report.RiskLevel,
			"anomalies", len(anomalies),
		)
	}
	return report, nil
}

// evaluate applies every rule in a fixed order. events must be ascending.
func (s *Service) evaluate(events []audit.Event) []Anomaly {
	r := s.rules
	anomalies := []Anomaly{}

	if len(events) > r.HighVolume {
		anomalies = append(anomalies, Anomaly{
			Type:        AnomalyHighVolume,
			Severity:    audit.SeverityMedium,
			Description: fmt.Sprintf("%d actions in window exceeds %d", len(events), r.HighVolume),
			Count:       len(events),
			Points:      r.HighVolumePoints,
		})
	}

	var offHours, failed, deletions, privilege []audit.Event
	networks := make(map[string]struct{})
	clients := make(map[string]struct{})
	for _, e := range events {
		if e.Severity == audit.SeverityCritical && !s.hours.Contains(e.Timestamp) {
			offHours = append(offHours, e)
		}
		if e.Failed() {
			failed = append(failed, e)
		}
		if slices.Contains(deletionActions, e.Action) {
			deletions = append(deletions, e)
		}
		if e.Action == audit.ActionRoleAssignment || e.Action == audit.ActionPermissionChange {
			privilege = append(privilege, e)
		}
		if n := network(e.MetaString(audit.MetaIPAddress)); n != "" {
			networks[n] = struct{}{}
		}
		if c := ClientFingerprint(e.MetaString(audit.MetaUserAgent)); c != "" {
			clients[c] = struct{}{}
		}
	}

	if len(offHours) > 0 {
		anomalies = append(anomalies, Anomaly{
			Type:        AnomalyOffHoursCritical,
			Severity:    audit.SeverityHigh,
			Description: fmt.Sprintf("%d critical actions outside business hours", len(offHours)),
			Count:       len(offHours),
			Points:      r.OffHoursCriticalPoints,
			EventIDs:    eventIDs(offHours),
		})
	}
	if len(failed) >= r.FailureMinCount && float64(len(failed))/float64(len(events)) > r.FailureRate {
		anomalies = append(anomalies, Anomaly{
			Type:     AnomalyHighFailureRate,
			Severity: audit.SeverityMedium,
			Description: fmt.Sprintf("%d of %d actions failed (%.0f%%)",
				len(failed), len(events), 100*float64(len(failed))/float64(len(events))),
			Count:    len(failed),
			Points:   r.HighFailureRatePoints,
			EventIDs: eventIDs(failed),
		})
	}
	if len(deletions) >= r.BulkDeletionMin {
		anomalies = append(anomalies, Anomaly{
			Type:        AnomalyBulkDeletion,
			Severity:    audit.SeverityHigh,
			Description: fmt.Sprintf("%d deletion actions in window", len(deletions)),
			Count:       len(deletions),
			Points:      r.BulkDeletionPoints,
			EventIDs:    eventIDs(deletions),
		})
	}
	if len(privilege) > 0 {
		anomalies = append(anomalies, Anomaly{
			Type:        AnomalyPrivilegeChanges,
			Severity:    audit.SeverityMedium,
			Description: fmt.Sprintf("%d role or permission changes", len(privilege)),
			Count:       len(privilege),
			Points:      r.PrivilegeChangePoints,
			EventIDs:    eventIDs(privilege),
		})
	}
	if len(networks) >= r.DistinctNetworks {
		anomalies = append(anomalies, Anomaly{
			Type:        AnomalyMultipleNetworks,
			Severity:    audit.SeverityMedium,
			Description: fmt.Sprintf("activity from %d distinct networks", len(networks)),
			Count:       len(networks),
			Points:      r.MultipleNetworksPoints,
		})
	}
	if len(clients) >= r.DistinctClients {
		anomalies = append(anomalies, Anomaly{
			Type:        AnomalyMultipleClients,
			Severity:    audit.SeverityLow,
			Description: fmt.Sprintf("activity from %d distinct browser and OS combinations", len(clients)),
			Count:       len(clients),
			Points:      r.MultipleClientsPoints,
		})
	}
	return anomalies
}

// ClientFingerprint reduces a User-Agent to "browser|os", lowercased.
// Versions are dropped so routine browser updates do not count as new clients.
// Returns "" for an empty User-Agent.
func ClientFingerprint(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	browser = strings.ToLower(strings.TrimSpace(browser))
	if browser == "" {
		browser = "unknown"
	}
	os := strings.ToLower(strings.TrimSpace(ua.OS()))
	if os == "" {
		os = "unknown"
	}
	return browser + "|" + os
}

// network normalizes a stored address to its anonymized network. Stored values
// are already anonymized; raw addresses from older records are reduced here.
func network(ip string) string {
	n := privacy.AnonymizeIP(ip)
	if n == "unknown" || n == "invalid" {
		return ""
	}
	return n
}

func eventIDs(events []audit.Event) []string {
	n := min(len(events), maxAnomalyEventIDs)
	ids := make([]string, 0, n)
	for _, e := range events[:n] {
		ids = append(ids, e.ID)
	}
	return ids
}
