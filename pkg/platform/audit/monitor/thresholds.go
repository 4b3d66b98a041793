package monitor

import (
	"time"

	"workspace-audit/pkg/platform/audit"
)

// Rule is a sliding-window threshold: Threshold or more matching events
// within Window raise an alert.
type Rule struct {
	Threshold int
	Window    time.Duration
}

// Thresholds configures every monitoring rule.
type Thresholds struct {
	// FailedLogins counts FAILED_LOGIN events per acting identity.
	FailedLogins Rule
	// UserModifications counts USER_MANAGEMENT events per admin.
	UserModifications Rule
	// CriticalActions counts CRITICAL events across all admins.
	CriticalActions Rule
	// BusinessHours bounds the after-hours rule; any CRITICAL event outside it alerts.
	BusinessHours audit.BusinessHours
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		FailedLogins:      Rule{Threshold: 10, Window: 5 * time.Minute},
		UserModifications: Rule{Threshold: 50, Window: 60 * time.Minute},
		CriticalActions:   Rule{Threshold: 5, Window: 15 * time.Minute},
		BusinessHours:     audit.DefaultBusinessHours(),
	}
}
