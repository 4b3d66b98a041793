package metadata

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"workspace-audit/pkg/requestcontext"
)

type MetadataSuite struct {
	suite.Suite
	proxies []netip.Prefix
}

func TestMetadataSuite(t *testing.T) {
	suite.Run(t, new(MetadataSuite))
}

func (s *MetadataSuite) SetupTest() {
	s.proxies = []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("fd00::/8"),
	}
}

// capture runs the middleware and returns what it stored in the context.
func (s *MetadataSuite) capture(m *Middleware, remote string, headers map[string]string) (ip, ua string) {
	h := m.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/admin/audit/events", nil)
	r.RemoteAddr = remote
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	h.ServeHTTP(httptest.NewRecorder(), r)
	return ip, ua
}

// Justification: the client address is recorded as ipAddress on every audit
// event, so a spoofed header from an untrusted peer must never win.
func (s *MetadataSuite) TestUntrustedPeerIgnoresForwardingHeaders() {
	ip, _ := s.capture(New(s.proxies), "198.51.100.9:4431", map[string]string{
		"X-Forwarded-For": "203.0.113.5",
		"X-Real-IP":       "203.0.113.6",
	})
	s.Equal("198.51.100.9", ip)

	ip, _ = s.capture(New(nil), "10.1.2.3:80", map[string]string{"X-Forwarded-For": "203.0.113.5"})
	s.Equal("10.1.2.3", ip)
}

func (s *MetadataSuite) TestTrustedChain() {
	cases := []struct {
		name, remote, xff, want string
	}{
		{"single hop", "10.0.0.1:80", "203.0.113.5", "203.0.113.5"},
		{"skips trusted hops from the right", "10.0.0.1:80", "203.0.113.5, 198.51.100.7, 10.0.0.9", "198.51.100.7"},
		{"all trusted keeps the leftmost", "10.0.0.1:80", "10.9.9.9, 10.0.0.9", "10.9.9.9"},
		{"malformed hop falls back to peer", "10.0.0.1:80", "203.0.113.5, not-an-ip", "10.0.0.1"},
		{"ipv6 proxy", "[fd00::1]:443", "2001:db8::7", "2001:db8::7"},
		{"mapped ipv4 is unmapped", "10.0.0.1:80", "::ffff:203.0.113.5", "203.0.113.5"},
		{"oversized header falls back to peer", "10.0.0.1:80", strings.Repeat("1.1.1.1,", 100), "10.0.0.1"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			ip, _ := s.capture(New(s.proxies), tc.remote, map[string]string{"X-Forwarded-For": tc.xff})
			s.Equal(tc.want, ip)
		})
	}
}

func (s *MetadataSuite) TestRealIPFromTrustedPeer() {
	ip, _ := s.capture(New(s.proxies), "10.0.0.1:80", map[string]string{"X-Real-IP": " 203.0.113.8 "})
	s.Equal("203.0.113.8", ip)

	ip, _ = s.capture(New(s.proxies), "10.0.0.1:80", map[string]string{"X-Real-IP": "garbage"})
	s.Equal("10.0.0.1", ip)
}

func (s *MetadataSuite) TestUnparseablePeer() {
	ip, _ := s.capture(New(s.proxies), "", nil)
	s.Equal("unknown", ip)

	ip, _ = s.capture(New(s.proxies), "pipe", nil)
	s.Equal("unknown", ip)
}

func (s *MetadataSuite) TestUserAgentIsBounded() {
	_, ua := s.capture(New(nil), "198.51.100.9:1", map[string]string{"User-Agent": "Mozilla/5.0 (X11; Linux x86_64)"})
	s.Equal("Mozilla/5.0 (X11; Linux x86_64)", ua)

	_, ua = s.capture(New(nil), "198.51.100.9:1", map[string]string{"User-Agent": strings.Repeat("a", 2*MaxUserAgentLength)})
	s.Len(ua, MaxUserAgentLength)
}
