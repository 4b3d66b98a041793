package audit

import (
	"context"
	"maps"
	"time"

	"workspace-audit/pkg/requestcontext"
)

// RequestMetadata builds the contextual metadata bag from request-scoped values.
// Values already present in extra win over values taken from ctx.
func RequestMetadata(ctx context.Context, extra map[string]any) map[string]any {
	meta := make(map[string]any, len(extra)+4)
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		meta[MetaIPAddress] = ip
	}
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		meta[MetaUserAgent] = ua
	}
	if rid := requestcontext.RequestID(ctx); rid != "" {
		meta[MetaRequestID] = rid
	}
	if sid := requestcontext.SessionID(ctx); sid != "" {
		meta[MetaSessionID] = sid
	}
	if started, ok := requestcontext.RequestTime(ctx); ok {
		meta[MetaDuration] = time.Since(started).Milliseconds()
	}
	maps.Copy(meta, extra)
	return meta
}

// Actor returns the admin principal from ctx, or a zero Admin.
func Actor(ctx context.Context) requestcontext.Admin {
	a, _ := requestcontext.AdminFrom(ctx)
	return a
}
