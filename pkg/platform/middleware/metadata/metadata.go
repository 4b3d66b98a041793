// Package metadata captures client network metadata for audit attribution.
package metadata

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"workspace-audit/pkg/requestcontext"
)

const (
	// MaxForwardedHeaderLength bounds X-Forwarded-For before it is parsed.
	MaxForwardedHeaderLength = 512
	// MaxUserAgentLength bounds the User-Agent recorded in audit metadata.
	MaxUserAgentLength = 512

	unknownAddr = "unknown"
)

// Middleware stores the client address and User-Agent in the request context,
// where domain audit loggers read them as ipAddress and userAgent metadata.
type Middleware struct {
	trusted []netip.Prefix
}

// New returns a Middleware that believes forwarding headers only when the
// socket peer is inside one of trusted. A nil list trusts nobody.
func New(trusted []netip.Prefix) *Middleware {
	return &Middleware{trusted: trusted}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		if len(ua) > MaxUserAgentLength {
			ua = ua[:MaxUserAgentLength]
		}
		ctx := requestcontext.WithClientIP(r.Context(), m.clientAddr(r))
		ctx = requestcontext.WithUserAgent(ctx, ua)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientAddr walks X-Forwarded-For from the right, skipping trusted hops, and
// returns the first untrusted address. Anything malformed falls back to the
// socket peer.
func (m *Middleware) clientAddr(r *http.Request) string {
	peer, ok := peerAddr(r.RemoteAddr)
	if !ok {
		return unknownAddr
	}
	if !m.isTrusted(peer) {
		return peer.String()
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
			return xri.Unmap().String()
		}
		return peer.String()
	}
	if len(xff) > MaxForwardedHeaderLength {
		return peer.String()
	}

	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			return peer.String()
		}
		addr = addr.Unmap()
		if !m.isTrusted(addr) || i == 0 {
			return addr.String()
		}
	}
	return peer.String()
}

func (m *Middleware) isTrusted(addr netip.Addr) bool {
	for _, p := range m.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func peerAddr(remote string) (netip.Addr, bool) {
	if remote == "" {
		return netip.Addr{}, false
	}
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
