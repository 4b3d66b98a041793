package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/requestcontext"
)

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) VerifyAdminToken(ctx context.Context, raw string) (*Principal, error) {
	args := m.Called(ctx, raw)
	if p := args.Get(0); p != nil {
		return p.(*Principal), args.Error(1)
	}
	return nil, args.Error(1)
}

// AuthMiddlewareSuite tests admin token authentication.
//
// Justification: every audit API route sits behind this middleware; an
// unauthenticated request must never reach a handler.
type AuthMiddlewareSuite struct {
	suite.Suite
	verifier *mockVerifier
	called   bool
	seen     context.Context
	handler  http.Handler
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.verifier = new(mockVerifier)
	s.called, s.seen = false, nil
	s.handler = RequireAdmin(s.verifier, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.called = true
		s.seen = r.Context()
		w.WriteHeader(http.StatusOK)
	}))
}

func (s *AuthMiddlewareSuite) serve(authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin/audit/events", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *AuthMiddlewareSuite) TestValidTokenPopulatesContext() {
	s.verifier.On("VerifyAdminToken", mock.Anything, "good").Return(&Principal{
		AdminID:   "admin-1",
		SessionID: "sess-9",
		Roles:     []string{"auditor"},
	}, nil)

	w := s.serve("Bearer good")

	s.Equal(http.StatusOK, w.Code)
	s.Require().True(s.called)
	admin, ok := requestcontext.AdminFrom(s.seen)
	s.Require().True(ok)
	s.Equal("admin-1", admin.ID)
	s.Equal([]string{"auditor"}, admin.Roles)
	s.Equal("sess-9", requestcontext.SessionID(s.seen))
}

func (s *AuthMiddlewareSuite) TestSchemeIsCaseInsensitive() {
	s.verifier.On("VerifyAdminToken", mock.Anything, "good").Return(&Principal{AdminID: "admin-1"}, nil)

	w := s.serve("bearer   good ")

	s.Equal(http.StatusOK, w.Code)
	s.Empty(requestcontext.SessionID(s.seen))
}

func (s *AuthMiddlewareSuite) TestRolesAreNormalized() {
	s.verifier.On("VerifyAdminToken", mock.Anything, "mixed").Return(&Principal{
		AdminID: "admin-2",
		Roles:   []string{" Auditor", "auditor", "", "COMPLIANCE"},
	}, nil)

	w := s.serve("Bearer mixed")

	s.Equal(http.StatusOK, w.Code)
	admin, ok := requestcontext.AdminFrom(s.seen)
	s.Require().True(ok)
	s.Equal([]string{"auditor", "compliance"}, admin.Roles)
}

func (s *AuthMiddlewareSuite) TestRejections() {
	s.verifier.On("VerifyAdminToken", mock.Anything, "expired").
		Return(nil, dErrors.New(dErrors.CodeUnauthorized, "token expired"))
	s.verifier.On("VerifyAdminToken", mock.Anything, "broken").Return(nil, errors.New("parser exploded"))
	s.verifier.On("VerifyAdminToken", mock.Anything, "anon").Return(&Principal{Roles: []string{"admin"}}, nil)

	cases := map[string]string{
		"no header":   "",
		"basic auth":  "Basic YWRtaW46cGFzcw==",
		"empty token": "Bearer ",
		"expired":     "Bearer expired",
		"broken":      "Bearer broken",
		"no subject":  "Bearer anon",
	}
	for name, header := range cases {
		s.Run(name, func() {
			s.called = false
			w := s.serve(header)
			s.Equal(http.StatusUnauthorized, w.Code)
			s.Contains(w.Header().Get("WWW-Authenticate"), "Bearer")
			s.NotContains(w.Body.String(), "exploded")
			s.False(s.called)
		})
	}
	s.Contains(s.serve("Bearer expired").Body.String(), "token expired")
}

func (s *AuthMiddlewareSuite) TestVerifierFunc() {
	v := VerifierFunc(func(_ context.Context, raw string) (*Principal, error) {
		return &Principal{AdminID: raw}, nil
	})
	p, err := v.VerifyAdminToken(context.Background(), "admin-7")
	s.Require().NoError(err)
	s.Equal("admin-7", p.AdminID)
}
