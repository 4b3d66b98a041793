package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"workspace-audit/pkg/requestcontext"
)

// MetadataSuite tests request metadata enrichment.
//
// Justification: Domain loggers rely on this helper for IP, user agent and
// request correlation. Precedence between caller values and context values is
// easy to regress.
type MetadataSuite struct {
	suite.Suite
}

func TestMetadataSuite(t *testing.T) {
	suite.Run(t, new(MetadataSuite))
}

func (s *MetadataSuite) TestRequestMetadata() {
	ctx := requestcontext.WithRequestID(context.Background(), "req-12345")
	ctx = requestcontext.WithClientIP(ctx, "203.0.113.7")
	ctx = requestcontext.WithUserAgent(ctx, "Mozilla/5.0")
	ctx = requestcontext.WithSessionID(ctx, "sess-1")

	s.Run("enriches from context", func() {
		meta := RequestMetadata(ctx, nil)
		s.Equal("req-12345", meta[MetaRequestID])
		s.Equal("203.0.113.7", meta[MetaIPAddress])
		s.Equal("Mozilla/5.0", meta[MetaUserAgent])
		s.Equal("sess-1", meta[MetaSessionID])
	})

	s.Run("caller values win", func() {
		meta := RequestMetadata(ctx, map[string]any{MetaIPAddress: "198.51.100.1", MetaReason: "ticket 42"})
		s.Equal("198.51.100.1", meta[MetaIPAddress])
		s.Equal("ticket 42", meta[MetaReason])
	})

	s.Run("empty context yields only extras", func() {
		meta := RequestMetadata(context.Background(), map[string]any{MetaReason: "r"})
		s.Len(meta, 1)
	})

	s.Run("records duration when request time is known", func() {
		c := requestcontext.WithRequestTime(context.Background(), time.Now().Add(-time.Second))
		meta := RequestMetadata(c, nil)
		s.GreaterOrEqual(meta[MetaDuration].(int64), int64(1000))
	})
}

func (s *MetadataSuite) TestActor() {
	s.Run("returns admin from context", func() {
		ctx := requestcontext.WithAdmin(context.Background(), requestcontext.Admin{ID: "adm_1", Roles: []string{"admin"}})
		s.Equal("adm_1", Actor(ctx).ID)
	})

	s.Run("zero admin when absent", func() {
		s.Empty(Actor(context.Background()).ID)
	})
}
