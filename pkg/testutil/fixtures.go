package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/integrity"
)

// BaseTime is the fixed instant fixtures are stamped relative to.
var BaseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

var fixtureSeq atomic.Int64

// EventBuilder provides a fluent interface for building stored audit events.
type EventBuilder struct {
	event    audit.Event
	customID bool
}

// NewEventBuilder creates a successful AUTHENTICATION/LOGIN event with a unique ID.
func NewEventBuilder() *EventBuilder {
	n := fixtureSeq.Add(1)
	return &EventBuilder{
		event: audit.Event{
			ID:         fixtureID(BaseTime, n),
			Category:   audit.CategoryAuthentication,
			Action:     audit.ActionLogin,
			Severity:   audit.SeverityMedium,
			AdminID:    "admin-1",
			AdminRoles: []string{"admin"},
			Resource:   "session",
			Timestamp:  BaseTime,
			Success:    true,
			InstanceID: "fixture",
			Sequence:   n,
		},
	}
}

func (b *EventBuilder) WithID(id string) *EventBuilder {
	b.event.ID = id
	b.customID = true
	return b
}

// WithAction sets the action and its category.
func (b *EventBuilder) WithAction(action audit.Action) *EventBuilder {
	b.event.Action = action
	b.event.Category = action.Category()
	return b
}

func (b *EventBuilder) WithSeverity(severity audit.Severity) *EventBuilder {
	b.event.Severity = severity
	return b
}

func (b *EventBuilder) WithAdmin(adminID string) *EventBuilder {
	b.event.AdminID = adminID
	return b
}

func (b *EventBuilder) WithResource(resource, resourceID string) *EventBuilder {
	b.event.Resource = resource
	b.event.ResourceID = resourceID
	return b
}

// WithTimestamp sets the timestamp and, unless WithID was used, re-stamps the
// ID so the two agree.
func (b *EventBuilder) WithTimestamp(ts time.Time) *EventBuilder {
	b.event.Timestamp = ts.UTC()
	if !b.customID {
		b.event.ID = fixtureID(b.event.Timestamp, b.event.Sequence)
	}
	return b
}

// Ago stamps the event d before BaseTime.
func (b *EventBuilder) Ago(d time.Duration) *EventBuilder {
	return b.WithTimestamp(BaseTime.Add(-d))
}

// Failed marks the event unsuccessful with the given error text.
func (b *EventBuilder) Failed(msg string) *EventBuilder {
	b.event.Success = false
	b.event.Error = msg
	return b
}

func (b *EventBuilder) WithMetadata(key string, value any) *EventBuilder {
	if b.event.Metadata == nil {
		b.event.Metadata = map[string]any{}
	}
	b.event.Metadata[key] = value
	return b
}

func (b *EventBuilder) WithNewValues(values map[string]any) *EventBuilder {
	b.event.NewValues = values
	return b
}

// Build seals the event with its verification hash and returns it.
func (b *EventBuilder) Build() audit.Event {
	e := b.event
	e.VerificationHash = integrity.ComputeEventHash(e)
	return e
}

func fixtureID(ts time.Time, seq int64) string {
	return fmt.Sprintf("aud_%d_%016x", ts.UnixMilli(), seq)
}
