package postgres

import (
	"fmt"
	"strings"

	audit "workspace-audit/pkg/platform/audit"
)

// queryBuilder accumulates WHERE conditions with positional parameters.
type queryBuilder struct {
	conds []string
	args  []any
}

func (b *queryBuilder) add(format string, value any) {
	b.args = append(b.args, value)
	b.conds = append(b.conds, fmt.Sprintf(format, len(b.args)))
}

// addLike adds an ILIKE condition on each column, OR-ed together, sharing one parameter.
func (b *queryBuilder) addLike(value string, cols ...string) {
	b.args = append(b.args, "%"+escapeLike(value)+"%")
	n := len(b.args)
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", c, n)
	}
	if len(parts) == 1 {
		b.conds = append(b.conds, parts[0])
		return
	}
	b.conds = append(b.conds, "("+strings.Join(parts, " OR ")+")")
}

func (b *queryBuilder) where() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

func buildWhere(f audit.Filter) (string, []any) {
	var b queryBuilder
	if f.AdminID != "" {
		b.add("admin_id = $%d", f.AdminID)
	}
	if f.Category != "" {
		b.add("category = $%d", string(f.Category))
	}
	if f.Action != "" {
		b.add("action = $%d", string(f.Action))
	}
	if len(f.Actions) > 0 {
		actions := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			actions[i] = string(a)
		}
		b.add("action = ANY($%d)", actions)
	}
	if f.Severity != "" {
		b.add("severity = $%d", string(f.Severity))
	}
	if f.Resource != "" {
		b.add("resource = $%d", f.Resource)
	}
	if f.ResourceID != "" {
		b.add("resource_id = $%d", f.ResourceID)
	}
	if f.ResourceContains != "" {
		b.addLike(f.ResourceContains, "resource")
	}
	if f.Text != "" {
		b.addLike(f.Text, "resource", "resource_id", "error", "COALESCE(metadata::text, '')")
	}
	if !f.From.IsZero() {
		b.add("timestamp >= $%d", f.From.UTC())
	}
	if !f.To.IsZero() {
		b.add("timestamp < $%d", f.To.UTC())
	}
	if f.Success != nil {
		b.add("success = $%d", *f.Success)
	}
	return b.where(), b.args
}

func orderBy(o audit.Order) string {
	if o == audit.OldestFirst {
		return " ORDER BY timestamp ASC, id ASC"
	}
	return " ORDER BY timestamp DESC, id DESC"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
