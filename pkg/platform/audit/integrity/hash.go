// Package integrity provides tamper evidence for persisted audit events.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
	"time"

	"workspace-audit/pkg/platform/audit"
)

// TimestampLayout is the fixed ISO-8601 form hashed for the event timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// ComputeEventHash returns the hex SHA-256 fingerprint over category, action,
// adminId, resource, resourceId and timestamp, in that order. Each field is
// written as "<len>:<value>|" so that adjacent fields cannot be shifted into
// one another.
func ComputeEventHash(e audit.Event) string {
	h := sha256.New()
	for _, field := range []string{
		string(e.Category),
		string(e.Action),
		e.AdminID,
		e.Resource,
		e.ResourceID,
		formatTimestamp(e.Timestamp),
	} {
		_, _ = io.WriteString(h, strconv.Itoa(len(field)))
		_, _ = io.WriteString(h, ":")
		_, _ = io.WriteString(h, field)
		_, _ = io.WriteString(h, "|")
	}
	return hex.EncodeToString(h.Sum(nil))
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}
