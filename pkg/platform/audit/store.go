package audit

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	dErrors "workspace-audit/pkg/domain-errors"
)

// ErrNotFound is returned by stores when an event does not exist.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "audit event not found")

// Order controls result ordering. Ties on timestamp are broken by ID.
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

// Filter selects persisted events. Zero values mean "no constraint".
// From is inclusive and To is exclusive.
type Filter struct {
	AdminID          string
	Category         Category
	Action           Action
	Actions          []Action
	Severity         Severity
	Resource         string
	ResourceContains string
	ResourceID       string
	Text             string
	From             time.Time
	To               time.Time
	Success          *bool

	Limit  int
	Offset int
	Order  Order
}

// Writer persists batches. Implementations must treat a repeated event ID as a no-op
// so retried batches never create duplicates.
type Writer interface {
	InsertBatch(ctx context.Context, events []Event) error
}

// Reader is the read side used by search, analytics and integrity.
type Reader interface {
	Get(ctx context.Context, id string) (*Event, error)
	Find(ctx context.Context, filter Filter) ([]Event, error)
	Count(ctx context.Context, filter Filter) (int64, error)
}

// Purger removes expired events for retention.
type Purger interface {
	// ListExpired returns up to limit events of severity strictly older than cutoff, oldest first.
	ListExpired(ctx context.Context, severity Severity, cutoff time.Time, limit int) ([]Event, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	DeleteExpired(ctx context.Context, severity Severity, cutoff time.Time) (int64, error)
}

// Store is the full durable append-only store contract.
type Store interface {
	Writer
	Reader
	Purger
}

// ForEach pages through every event matching filter, calling fn for each page.
// filter.Limit is used as the page size.
func ForEach(ctx context.Context, r Reader, filter Filter, fn func([]Event) error) error {
	if filter.Limit <= 0 {
		filter.Limit = 500
	}
	filter.Offset = 0
	for {
		page, err := r.Find(ctx, filter)
		if err != nil {
			return err
		}
		if len(page) > 0 {
			if err := fn(page); err != nil {
				return err
			}
		}
		if len(page) < filter.Limit {
			return nil
		}
		filter.Offset += len(page)
	}
}

// Matches reports whether e satisfies every constraint in f. Pagination and
// ordering fields are ignored.
func (f Filter) Matches(e Event) bool {
	switch {
	case f.AdminID != "" && e.AdminID != f.AdminID,
		f.Category != "" && e.Category != f.Category,
		f.Action != "" && e.Action != f.Action,
		len(f.Actions) > 0 && !slices.Contains(f.Actions, e.Action),
		f.Severity != "" && e.Severity != f.Severity,
		f.Resource != "" && e.Resource != f.Resource,
		f.ResourceID != "" && e.ResourceID != f.ResourceID,
		f.ResourceContains != "" && !containsFold(e.Resource, f.ResourceContains),
		!f.From.IsZero() && e.Timestamp.Before(f.From),
		!f.To.IsZero() && !e.Timestamp.Before(f.To),
		f.Success != nil && e.Success != *f.Success:
		return false
	}
	if f.Text != "" {
		return containsFold(e.Resource, f.Text) ||
			containsFold(e.ResourceID, f.Text) ||
			containsFold(e.Error, f.Text) ||
			containsFold(metadataText(e.Metadata), f.Text)
	}
	return true
}

// SortEvents orders events by timestamp, breaking ties by ID.
func SortEvents(events []Event, order Order) {
	slices.SortStableFunc(events, func(a, b Event) int {
		c := a.Timestamp.Compare(b.Timestamp)
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if order == NewestFirst {
			return -c
		}
		return c
	})
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func metadataText(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
