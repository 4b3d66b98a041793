package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// Justification: every handler maps these codes to status codes, so a code lost
// while wrapping turns a client mistake into a 500.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestMessage() {
	s.Equal("export job not found", New(CodeNotFound, "export job not found").Error())
	s.Equal("not_found", (&Error{Code: CodeNotFound}).Error())
	s.Equal(`unknown audit action "NOPE"`, Newf(CodeValidation, "unknown audit action %q", "NOPE").Error())
}

func (s *DomainErrorsSuite) TestWrapKeepsInnerCode() {
	inner := New(CodeValidation, "limit must be at most 100")
	wrapped := Wrap(inner, CodeInternal, "search failed")

	s.True(HasCode(wrapped, CodeValidation))
	s.False(HasCode(wrapped, CodeInternal))
	s.Equal("search failed", wrapped.Error())
	s.ErrorIs(wrapped, inner)
}

func (s *DomainErrorsSuite) TestWrapForeignError() {
	cause := errors.New("batch insert: connection reset")
	wrapped := Wrap(cause, CodeUnavailable, "audit store unavailable")

	s.True(HasCode(wrapped, CodeUnavailable))
	s.ErrorIs(wrapped, cause)
}

func (s *DomainErrorsSuite) TestIsMatchesByCode() {
	err := fmt.Errorf("verify event: %w", New(CodeNotFound, "audit event aud_1 not found"))

	s.ErrorIs(err, &Error{Code: CodeNotFound})
	s.NotErrorIs(err, &Error{Code: CodeIntegrity})
	s.False((&Error{Code: CodeNotFound}).Is(errors.New("not_found")))
}

func (s *DomainErrorsSuite) TestHasCode() {
	s.False(HasCode(nil, CodeInternal))
	s.False(HasCode(errors.New("plain"), CodeInternal))
	s.True(HasCode(fmt.Errorf("outer: %w", New(CodeForbidden, "role required")), CodeForbidden))
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeValidation, CodeOf(Wrap(New(CodeValidation, "bad limit"), CodeInternal, "search failed")))
	s.Equal(CodeInternal, CodeOf(errors.New("connection reset")))
}

func (s *DomainErrorsSuite) TestIsServerFault() {
	for _, err := range []error{
		New(CodeInternal, "x"),
		New(CodeUnavailable, "x"),
		New(CodeTimeout, "x"),
		errors.New("driver: bad connection"),
	} {
		s.True(IsServerFault(err), err.Error())
	}
	for _, err := range []error{
		New(CodeValidation, "x"),
		New(CodeNotFound, "x"),
		New(CodeForbidden, "x"),
		New(CodeIntegrity, "x"),
	} {
		s.False(IsServerFault(err), err.Error())
	}
}
