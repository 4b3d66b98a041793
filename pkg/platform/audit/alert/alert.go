// Package alert defines the transient alert record raised by audit monitoring
// and batch inspection, and dispatches it to notification channels.
//
// Alerts are never persisted as audit data. Dispatch failures are logged and
// counted but never fail the audit write path.
package alert

import (
	"fmt"
	"time"

	"workspace-audit/pkg/platform/audit"
)

// Type identifies what raised an alert.
type Type string

const (
	TypeCriticalBatch      Type = "critical_audit_events"
	TypeSuspiciousLogin    Type = "suspicious_login_activity"
	TypeHighVolumeUserMods Type = "high_volume_user_modifications"
	TypeCriticalEscalation Type = "critical_action_escalation"
	TypeAfterHoursCritical Type = "after_hours_critical_action"
)

// EventRef is the slice of an event an alert carries. Payload fields stay in the store.
type EventRef struct {
	ID        string         `json:"id"`
	Category  audit.Category `json:"category"`
	Action    audit.Action   `json:"action"`
	Severity  audit.Severity `json:"severity"`
	AdminID   string         `json:"adminId"`
	Resource  string         `json:"resource"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
}

// Alert is produced when a threshold is crossed or a batch contains
// CRITICAL or failed HIGH events.
type Alert struct {
	Type        Type           `json:"type"`
	Severity    audit.Severity `json:"severity"`
	Description string         `json:"description"`
	Subject     string         `json:"subject,omitempty"`
	Count       int            `json:"count,omitempty"`
	Window      time.Duration  `json:"window,omitempty"`
	Events      []EventRef     `json:"events"`
	RaisedAt    time.Time      `json:"raisedAt"`
}

// Ref builds an EventRef from an event.
func Ref(e audit.Event) EventRef {
	return EventRef{
		ID:        e.ID,
		Category:  e.Category,
		Action:    e.Action,
		Severity:  e.Severity,
		AdminID:   e.AdminID,
		Resource:  e.Resource,
		Timestamp: e.Timestamp,
		Success:   e.Success,
	}
}

// EventIDs returns the IDs of the triggering events.
func (a Alert) EventIDs() []string {
	ids := make([]string, len(a.Events))
	for i, r := range a.Events {
		ids[i] = r.ID
	}
	return ids
}

// QualifiesForBatchAlert reports whether an event must be forwarded to alerting
// on flush: any CRITICAL event, or a HIGH event that failed.
func QualifiesForBatchAlert(e audit.Event) bool {
	return e.Severity == audit.SeverityCritical || (e.Severity == audit.SeverityHigh && !e.Success)
}

// ForBatch builds the single alert for a flushed batch, or false when no event qualifies.
func ForBatch(batch []audit.Event, now time.Time) (Alert, bool) {
	var refs []EventRef
	severity := audit.SeverityHigh
	for _, e := range batch {
		if !QualifiesForBatchAlert(e) {
			continue
		}
		if e.Severity == audit.SeverityCritical {
			severity = audit.SeverityCritical
		}
		refs = append(refs, Ref(e))
	}
	if len(refs) == 0 {
		return Alert{}, false
	}
	return Alert{
		Type:        TypeCriticalBatch,
		Severity:    severity,
		Description: fmt.Sprintf("%d critical or failed high-severity audit events persisted", len(refs)),
		Count:       len(refs),
		Events:      refs,
		RaisedAt:    now,
	}, true
}
