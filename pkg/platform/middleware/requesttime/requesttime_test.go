package requesttime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// RequestTimeSuite checks that a request sees one stable clock reading.
//
// Justification: token expiry and audit timestamps are compared against it.
type RequestTimeSuite struct {
	suite.Suite
}

func TestRequestTimeSuite(t *testing.T) {
	suite.Run(t, new(RequestTimeSuite))
}

func (s *RequestTimeSuite) serve(mw func(http.Handler) http.Handler, fn func(ctx context.Context)) {
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fn(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin/audit/events", nil))
}

func (s *RequestTimeSuite) TestStampIsStableWithinRequest() {
	var first, second time.Time
	before := time.Now()
	s.serve(Middleware, func(ctx context.Context) {
		first = Now(ctx)
		time.Sleep(5 * time.Millisecond)
		second = Now(ctx)
	})

	s.Equal(first, second)
	s.False(first.Before(before.Truncate(time.Microsecond)))
	s.Equal(time.UTC, first.Location())
}

func (s *RequestTimeSuite) TestWithClockFreezesTime() {
	frozen := time.Date(2024, 6, 15, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	var got time.Time
	s.serve(WithClock(func() time.Time { return frozen }), func(ctx context.Context) {
		got = Now(ctx)
	})

	s.True(frozen.Equal(got))
	s.Equal(time.UTC, got.Location())
}

func (s *RequestTimeSuite) TestOutsideRequest() {
	ctx := context.Background()
	before := time.Now()

	s.False(Now(ctx).Before(before.Truncate(time.Microsecond)))
	s.Zero(Since(ctx))
}

func (s *RequestTimeSuite) TestSinceAndOverride() {
	ctx := WithTime(context.Background(), time.Now().Add(-time.Second))
	s.GreaterOrEqual(Since(ctx), time.Second)

	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Equal(fixed, Now(WithTime(ctx, fixed)))
}
