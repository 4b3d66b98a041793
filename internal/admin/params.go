package admin

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/analytics"
	"workspace-audit/pkg/platform/audit/search"
	platformstrings "workspace-audit/pkg/platform/strings"
	"workspace-audit/pkg/platform/validation"
)

// parseSearchQuery reads search filters from query parameters. A single
// action fills Action; repeated action parameters fill Actions.
func parseSearchQuery(v url.Values) (search.Query, error) {
	q := search.Query{
		AdminID:    v.Get("adminId"),
		Category:   audit.Category(strings.ToUpper(strings.TrimSpace(v.Get("category")))),
		Severity:   audit.Severity(strings.ToUpper(strings.TrimSpace(v.Get("severity")))),
		Resource:   v.Get("resource"),
		ResourceID: v.Get("resourceId"),
		Text:       v.Get("text"),
	}

	actions := platformstrings.DedupeAndTrimUpper(v["action"])
	if err := validation.CheckSliceCount("actions", len(actions), validation.MaxFilterActions); err != nil {
		return search.Query{}, err
	}
	if err := validation.CheckEachStringLength("action", actions, validation.MaxActionLength); err != nil {
		return search.Query{}, err
	}
	switch len(actions) {
	case 0:
	case 1:
		q.Action = audit.Action(actions[0])
	default:
		for _, a := range actions {
			q.Actions = append(q.Actions, audit.Action(a))
		}
	}

	var err error
	if q.From, err = parseTime(v, "from"); err != nil {
		return search.Query{}, err
	}
	if q.To, err = parseTime(v, "to"); err != nil {
		return search.Query{}, err
	}
	if q.Page, err = parseInt(v, "page"); err != nil {
		return search.Query{}, err
	}
	if q.Limit, err = parseInt(v, "limit"); err != nil {
		return search.Query{}, err
	}
	if raw := strings.TrimSpace(v.Get("success")); raw != "" {
		b, perr := strconv.ParseBool(raw)
		if perr != nil {
			return search.Query{}, dErrors.New(dErrors.CodeValidation, "success must be true or false")
		}
		q.Success = &b
	}
	return q, nil
}

func parseSummaryQuery(v url.Values) (analytics.SummaryQuery, error) {
	q := analytics.SummaryQuery{
		AdminID:  strings.TrimSpace(v.Get("adminId")),
		Category: audit.Category(strings.ToUpper(strings.TrimSpace(v.Get("category")))),
		Severity: audit.Severity(strings.ToUpper(strings.TrimSpace(v.Get("severity")))),
	}
	from, to, err := parseRange(v, true)
	if err != nil {
		return analytics.SummaryQuery{}, err
	}
	q.From, q.To = from, to
	return q, nil
}

// parseRange reads from and to. With required set, both must be present.
func parseRange(v url.Values, required bool) (time.Time, time.Time, error) {
	from, err := parseTime(v, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseTime(v, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if required && (from.IsZero() || to.IsZero()) {
		return time.Time{}, time.Time{}, dErrors.New(dErrors.CodeValidation, "from and to are required")
	}
	return from, to, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates (midnight UTC).
func parseTime(v url.Values, name string) (time.Time, error) {
	raw := strings.TrimSpace(v.Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, dErrors.New(dErrors.CodeValidation, name+" must be an RFC 3339 timestamp or a YYYY-MM-DD date")
}

func parseInt(v url.Values, name string) (int, error) {
	raw := strings.TrimSpace(v.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be an integer")
	}
	return n, nil
}

// filterSummary is the export filter recorded in the compliance audit entry.
func filterSummary(q search.Query) map[string]any {
	out := map[string]any{}
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put("adminId", q.AdminID)
	put("category", string(q.Category))
	put("action", string(q.Action))
	put("severity", string(q.Severity))
	put("resource", q.Resource)
	put("resourceId", q.ResourceID)
	put("text", q.Text)
	if len(q.Actions) > 0 {
		actions := make([]string, len(q.Actions))
		for i, a := range q.Actions {
			actions[i] = string(a)
		}
		out["actions"] = actions
	}
	if !q.From.IsZero() {
		out["from"] = q.From.UTC().Format(time.RFC3339)
	}
	if !q.To.IsZero() {
		out["to"] = q.To.UTC().Format(time.RFC3339)
	}
	if q.Success != nil {
		out["success"] = *q.Success
	}
	return out
}

// checkPathParams bounds path segments before they reach the store.
func checkPathParams(params map[string]string) error {
	for name, value := range params {
		limit := validation.MaxResourceLength
		if name == "admin id" {
			limit = validation.MaxAdminIDLength
		}
		if err := validation.CheckStringLength(name, value, limit); err != nil {
			return err
		}
	}
	return nil
}
