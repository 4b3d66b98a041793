// Package requesttime pins one "now" per request so the audit event, token
// checks and recorded durations agree.
package requesttime

import (
	"context"
	"net/http"
	"time"

	"workspace-audit/pkg/requestcontext"
)

// Clock reports the current time.
type Clock func() time.Time

// Middleware stamps each request with the wall clock.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock stamps each request with now(). Tests use it to freeze time.
func WithClock(now Clock) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithRequestTime(r.Context(), now().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Now is the request time, or the wall clock outside a request.
func Now(ctx context.Context) time.Time {
	if t, ok := requestcontext.RequestTime(ctx); ok {
		return t
	}
	return time.Now().UTC()
}

// Since is the time elapsed since the request was stamped, zero when it was not.
func Since(ctx context.Context) time.Duration {
	t, ok := requestcontext.RequestTime(ctx)
	if !ok {
		return 0
	}
	return time.Since(t)
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return requestcontext.WithRequestTime(ctx, t)
}
