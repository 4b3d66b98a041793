package audit

import (
	"time"
)

// Category groups actions into audit domains.
type Category string

const (
	CategoryAuthentication    Category = "AUTHENTICATION"
	CategoryUserManagement    Category = "USER_MANAGEMENT"
	CategoryPaymentManagement Category = "PAYMENT_MANAGEMENT"
	CategorySystemConfig      Category = "SYSTEM_CONFIG"
	CategorySecurity          Category = "SECURITY"
	CategoryDataAccess        Category = "DATA_ACCESS"
	CategoryAdminActions      Category = "ADMIN_ACTIONS"
	CategoryFeatureFlags      Category = "FEATURE_FLAGS"
	CategoryMaintenance       Category = "MAINTENANCE"
	CategoryCompliance        Category = "COMPLIANCE"
)

// Severity drives retention duration and real-time alert eligibility.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every tier from least to most severe.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	return s.rank() > 0
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Well-known metadata keys.
const (
	MetaIPAddress       = "ipAddress"
	MetaUserAgent       = "userAgent"
	MetaSessionID       = "sessionId"
	MetaRequestID       = "requestId"
	MetaDuration        = "duration"
	MetaAffectedRecords = "affectedRecords"
	MetaReason          = "reason"
	MetaChangedFields   = "changedFields"
)

// Event is an immutable record of one administrative or security-relevant action.
// ID, Timestamp, InstanceID, Sequence and VerificationHash are server-assigned.
type Event struct {
	ID               string         `json:"id"`
	Category         Category       `json:"category"`
	Action           Action         `json:"action"`
	Severity         Severity       `json:"severity"`
	AdminID          string         `json:"adminId"`
	AdminRoles       []string       `json:"adminRoles"`
	Resource         string         `json:"resource"`
	ResourceID       string         `json:"resourceId,omitempty"`
	OldValues        map[string]any `json:"oldValues,omitempty"`
	NewValues        map[string]any `json:"newValues,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	Success          bool           `json:"success"`
	Error            string         `json:"error,omitempty"`
	InstanceID       string         `json:"instanceId"`
	Sequence         int64          `json:"sequence"`
	VerificationHash string         `json:"verificationHash"`
}

// Failed reports whether the underlying operation did not succeed.
func (e Event) Failed() bool {
	return !e.Success
}

// MetaString returns a string metadata value, or "" when absent.
func (e Event) MetaString(key string) string {
	if e.Metadata == nil {
		return ""
	}
	s, _ := e.Metadata[key].(string)
	return s
}

// MetaNumber returns a numeric metadata value. JSON round trips turn numbers into float64.
func (e Event) MetaNumber(key string) (float64, bool) {
	if e.Metadata == nil {
		return 0, false
	}
	switch v := e.Metadata[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// Entry is what callers hand to the trail manager. It carries no id or timestamp;
// both are always assigned at ingestion. Category may be left empty to derive it
// from the action.
type Entry struct {
	Category   Category
	Action     Action
	Severity   Severity
	AdminID    string
	AdminRoles []string
	Resource   string
	ResourceID string
	OldValues  map[string]any
	NewValues  map[string]any
	Metadata   map[string]any
	Success    bool
	Error      string
}
