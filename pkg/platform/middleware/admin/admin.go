// Package admin authorizes authenticated admins by role.
package admin

import (
	"log/slog"
	"net/http"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/httputil"
	"workspace-audit/pkg/requestcontext"
)

// Roles allowed on the audit API.
const (
	RoleAdmin      = "admin"
	RoleAuditor    = "auditor"
	RoleCompliance = "compliance"
)

// AuditRoles is every role that may read audit data.
var AuditRoles = []string{RoleAdmin, RoleAuditor, RoleCompliance}

// RequireRole lets the request through only when the admin principal holds at
// least one of roles. It must run after auth.RequireAdmin.
func RequireRole(logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			admin, ok := requestcontext.AdminFrom(ctx)
			if !ok {
				logger.ErrorContext(ctx, "admin missing from context despite auth middleware",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin authentication required"))
				return
			}
			if !admin.HasAnyRole(roles...) {
				logger.WarnContext(ctx, "admin role denied",
					"admin_id", admin.ID,
					"roles", admin.Roles,
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
