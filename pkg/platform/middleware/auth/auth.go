// Package auth authenticates admin bearer tokens and places the admin principal
// in the request context.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/httputil"
	platformstrings "workspace-audit/pkg/platform/strings"
	"workspace-audit/pkg/requestcontext"
)

// Principal is the identity a verified token asserts.
type Principal struct {
	AdminID   string
	SessionID string
	Roles     []string
}

// Verifier checks a raw bearer token.
type Verifier interface {
	VerifyAdminToken(ctx context.Context, raw string) (*Principal, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, raw string) (*Principal, error)

func (f VerifierFunc) VerifyAdminToken(ctx context.Context, raw string) (*Principal, error) {
	return f(ctx, raw)
}

var (
	errMissingToken = dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header")
	errBadToken     = dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token")
)

// bearerToken extracts the credential. The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAdmin rejects requests without a valid admin token. Accepted
// requests carry the principal and session in their context.
func RequireAdmin(verifier Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reject := func(reason string, err error) {
				logger.WarnContext(ctx, "unauthorized admin request",
					"reason", reason,
					"error", err,
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				if err == nil || !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
					err = errBadToken
				}
				httputil.WriteError(w, err)
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				reject("missing_token", errMissingToken)
				return
			}
			p, err := verifier.VerifyAdminToken(ctx, token)
			switch {
			case err != nil:
				reject("invalid_token", err)
				return
			case p == nil || strings.TrimSpace(p.AdminID) == "":
				reject("no_subject", nil)
				return
			}

			ctx = requestcontext.WithAdmin(ctx, requestcontext.Admin{
				ID:    p.AdminID,
				Roles: platformstrings.DedupeAndTrimLower(p.Roles),
			})
			if p.SessionID != "" {
				ctx = requestcontext.WithSessionID(ctx, p.SessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
