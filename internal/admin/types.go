package admin

import (
	"strings"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/search"
	platformstrings "workspace-audit/pkg/platform/strings"
	"workspace-audit/pkg/platform/validation"
)

type exportRequest struct {
	Format string       `json:"format"`
	Query  search.Query `json:"query"`
}

// Normalize canonicalizes the format and enum filters so the body accepts the
// same spellings as the search query string.
func (r *exportRequest) Normalize() {
	r.Format = strings.ToLower(strings.TrimSpace(r.Format))
	r.Query.Category = audit.Category(strings.ToUpper(strings.TrimSpace(string(r.Query.Category))))
	r.Query.Severity = audit.Severity(strings.ToUpper(strings.TrimSpace(string(r.Query.Severity))))
	r.Query.Action = audit.Action(strings.ToUpper(strings.TrimSpace(string(r.Query.Action))))
	if len(r.Query.Actions) > 0 {
		raw := make([]string, len(r.Query.Actions))
		for i, a := range r.Query.Actions {
			raw[i] = string(a)
		}
		r.Query.Actions = r.Query.Actions[:0]
		for _, a := range platformstrings.DedupeAndTrimUpper(raw) {
			r.Query.Actions = append(r.Query.Actions, audit.Action(a))
		}
	}
}

// Validate only checks the shape of the body. Unsupported formats are left to
// the exporter so the rejected attempt is still recorded.
func (r *exportRequest) Validate() error {
	if r.Format == "" {
		return dErrors.New(dErrors.CodeValidation, "format is required")
	}
	return validation.CheckSliceCount("actions", len(r.Query.Actions), validation.MaxFilterActions)
}

type trailResponse struct {
	Events []audit.Event `json:"events"`
	Count  int           `json:"count"`
}
