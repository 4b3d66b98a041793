package audit

import "time"

const day = 24 * time.Hour

// RetentionPeriods maps each severity to how long its events are kept.
var RetentionPeriods = map[Severity]time.Duration{
	SeverityLow:      90 * day,
	SeverityMedium:   365 * day,
	SeverityHigh:     7 * 365 * day,
	SeverityCritical: 10 * 365 * day,
}

// RetentionFor returns the retention period for s. Unknown severities get the
// longest period so nothing is purged by accident.
func RetentionFor(s Severity) time.Duration {
	if d, ok := RetentionPeriods[s]; ok {
		return d
	}
	return RetentionPeriods[SeverityCritical]
}

// RetentionCutoff returns the instant before which events of severity s expire.
func RetentionCutoff(s Severity, now time.Time) time.Time {
	return now.Add(-RetentionFor(s))
}

// Expired reports whether e is strictly older than its tier's cutoff.
func (e Event) Expired(now time.Time) bool {
	return e.Timestamp.Before(RetentionCutoff(e.Severity, now))
}

// RequiresArchive reports whether events of severity s go to cold storage before deletion.
func RequiresArchive(s Severity) bool {
	return s == SeverityHigh || s == SeverityCritical
}

// ShortestRetention is the smallest retention period across tiers.
func ShortestRetention() time.Duration {
	shortest := RetentionPeriods[SeverityLow]
	for _, d := range RetentionPeriods {
		if d < shortest {
			shortest = d
		}
	}
	return shortest
}
