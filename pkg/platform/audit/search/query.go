package search

import (
	"strings"
	"time"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/validation"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxPage bounds the store offset at MaxPage*MaxLimit rows.
	MaxPage = 10000
)

// Query filters persisted events. Resource matches as a case-insensitive
// substring; Text searches resource, resource ID, error and metadata.
// From is inclusive, To is exclusive.
type Query struct {
	AdminID    string         `json:"adminId,omitempty" validate:"max=128"`
	Category   audit.Category `json:"category,omitempty" validate:"omitempty,audit_category"`
	Action     audit.Action   `json:"action,omitempty" validate:"omitempty,audit_action"`
	Actions    []audit.Action `json:"actions,omitempty" validate:"max=50,dive,audit_action"`
	Severity   audit.Severity `json:"severity,omitempty" validate:"omitempty,audit_severity"`
	Resource   string         `json:"resource,omitempty" validate:"max=128"`
	ResourceID string         `json:"resourceId,omitempty" validate:"max=128"`
	Text       string         `json:"text,omitempty" validate:"max=200"`
	From       time.Time      `json:"from,omitzero"`
	To         time.Time      `json:"to,omitzero"`
	Success    *bool          `json:"success,omitempty"`
	Page       int            `json:"page,omitempty" validate:"gte=0,lte=10000"`
	Limit      int            `json:"limit,omitempty" validate:"gte=0,lte=100"`
}

// Normalize validates q and fills pagination defaults.
func (q Query) Normalize() (Query, error) {
	q.AdminID = strings.TrimSpace(q.AdminID)
	q.Resource = strings.TrimSpace(q.Resource)
	q.ResourceID = strings.TrimSpace(q.ResourceID)
	q.Text = strings.TrimSpace(q.Text)
	if err := validation.Validate(q); err != nil {
		return Query{}, err
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return Query{}, dErrors.New(dErrors.CodeValidation, "from must not be after to")
	}
	if q.Category != "" && q.Action != "" && q.Action.Category() != q.Category {
		return Query{}, dErrors.New(dErrors.CodeValidation,
			"action "+string(q.Action)+" does not belong to category "+string(q.Category))
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	return q, nil
}

// Filter converts a normalized query to a store filter for one page.
func (q Query) Filter() audit.Filter {
	return audit.Filter{
		AdminID:          q.AdminID,
		Category:         q.Category,
		Action:           q.Action,
		Actions:          q.Actions,
		Severity:         q.Severity,
		ResourceContains: q.Resource,
		ResourceID:       q.ResourceID,
		Text:             q.Text,
		From:             q.From,
		To:               q.To,
		Success:          q.Success,
		Limit:            q.Limit,
		Offset:           (q.Page - 1) * q.Limit,
		Order:            audit.NewestFirst,
	}
}
