package integrity_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/integrity"
	"workspace-audit/pkg/platform/audit/store/memory"
)

// IntegritySuite tests tamper-evidence hashing and verification.
//
// Justification: The hash is the only thing standing between a silent edit of
// the audit log and a compliance finding. Field order and timestamp format
// must never drift, and verification must report findings rather than fix them.
type IntegritySuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.InMemoryStore
	verifier *integrity.Verifier
	now      time.Time
}

func TestIntegritySuite(t *testing.T) {
	suite.Run(t, new(IntegritySuite))
}

func (s *IntegritySuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.store = memory.NewInMemoryStore()
	s.verifier = integrity.NewVerifier(s.store, integrity.WithClock(func() time.Time { return s.now }))
}

func (s *IntegritySuite) event(instance string, seq int64, at time.Time) audit.Event {
	id, err := audit.NewEventID(at)
	s.Require().NoError(err)
	e := audit.Event{
		ID:         id,
		Category:   audit.CategoryUserManagement,
		Action:     audit.ActionUserUpdate,
		Severity:   audit.SeverityMedium,
		AdminID:    "adm_1",
		Resource:   "user",
		ResourceID: fmt.Sprintf("usr_%d", seq),
		Timestamp:  at,
		Success:    true,
		InstanceID: instance,
		Sequence:   seq,
	}
	e.VerificationHash = integrity.ComputeEventHash(e)
	return e
}

func (s *IntegritySuite) TestHashIsDeterministic() {
	e := s.event("i1", 1, s.now)
	s.Equal(integrity.ComputeEventHash(e), integrity.ComputeEventHash(e))
	s.Len(integrity.ComputeEventHash(e), 64)

	s.Run("ignores fields outside the fingerprint", func() {
		other := e
		other.Metadata = map[string]any{"reason": "changed"}
		other.Success = false
		s.Equal(integrity.ComputeEventHash(e), integrity.ComputeEventHash(other))
	})

	s.Run("timestamp zone does not matter", func() {
		other := e
		other.Timestamp = e.Timestamp.In(time.FixedZone("X", 3600))
		s.Equal(integrity.ComputeEventHash(e), integrity.ComputeEventHash(other))
	})
}

func (s *IntegritySuite) TestChangingAnyFingerprintFieldChangesHash() {
	base := s.event("i1", 1, s.now)
	mutations := map[string]func(*audit.Event){
		"category":   func(e *audit.Event) { e.Category = audit.CategorySecurity },
		"action":     func(e *audit.Event) { e.Action = audit.ActionUserDelete },
		"adminId":    func(e *audit.Event) { e.AdminID = "adm_2" },
		"resource":   func(e *audit.Event) { e.Resource = "contact" },
		"resourceId": func(e *audit.Event) { e.ResourceID = "usr_999" },
		"timestamp":  func(e *audit.Event) { e.Timestamp = e.Timestamp.Add(time.Millisecond) },
	}
	for field, mutate := range mutations {
		s.Run(field, func() {
			changed := base
			mutate(&changed)
			s.NotEqual(integrity.ComputeEventHash(base), integrity.ComputeEventHash(changed))
		})
	}
}

func (s *IntegritySuite) TestFieldBoundariesAreUnambiguous() {
	a := s.event("i1", 1, s.now)
	a.Resource, a.ResourceID = "user", "x"
	b := a
	b.Resource, b.ResourceID = "use", "rx"
	s.NotEqual(integrity.ComputeEventHash(a), integrity.ComputeEventHash(b))
}

func (s *IntegritySuite) TestNoCollisionsAcrossFuzzSet() {
	seen := map[string]string{}
	for i := range 2000 {
		e := s.event("i1", int64(i+1), s.now.Add(time.Duration(i%50)*time.Millisecond))
		e.AdminID = fmt.Sprintf("adm_%d", i%37)
		e.ResourceID = fmt.Sprintf("res_%d", i)
		key := fmt.Sprintf("%s|%s|%s", e.AdminID, e.ResourceID, e.Timestamp)
		h := integrity.ComputeEventHash(e)
		prev, dup := seen[h]
		s.False(dup, "collision between %s and %s", prev, key)
		seen[h] = key
	}
}

func (s *IntegritySuite) TestVerifyValidEvent() {
	e := s.event("i1", 1, s.now.Add(-time.Hour))
	s.store.Put(e)

	r, err := s.verifier.VerifyAuditIntegrity(s.ctx, e.ID)
	s.Require().NoError(err)
	s.True(r.Valid)
	s.Empty(r.Issues)
	s.Equal(e.VerificationHash, r.ComputedHash)
}

func (s *IntegritySuite) TestVerifyReportsTampering() {
	e := s.event("i1", 1, s.now.Add(-time.Hour))
	e.AdminID = "adm_attacker"
	s.store.Put(e)

	r, err := s.verifier.VerifyAuditIntegrity(s.ctx, e.ID)
	s.Require().NoError(err)
	s.False(r.Valid)
	s.Require().Len(r.Issues, 1)
	s.Equal(integrity.IssueHashMismatch, r.Issues[0].Code)

	stored, err := s.store.Get(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal("adm_attacker", stored.AdminID, "verification must not correct the record")
}

func (s *IntegritySuite) TestVerifyReportsAnomalies() {
	s.Run("missing hash and field", func() {
		e := s.event("i1", 1, s.now.Add(-time.Hour))
		e.VerificationHash = ""
		e.Resource = ""
		r := integrity.Check(e, s.now)
		s.False(r.Valid)
		s.Equal([]integrity.IssueCode{integrity.IssueMissingField, integrity.IssueMissingHash}, codes(r.Issues))
	})

	s.Run("future timestamp", func() {
		e := s.event("i1", 1, s.now.Add(2*time.Minute))
		r := integrity.Check(e, s.now)
		s.Equal([]integrity.IssueCode{integrity.IssueFutureTimestamp}, codes(r.Issues))
	})

	s.Run("id and timestamp disagree", func() {
		e := s.event("i1", 1, s.now.Add(-time.Hour))
		e.Timestamp = e.Timestamp.Add(5 * time.Second)
		e.VerificationHash = integrity.ComputeEventHash(e)
		r := integrity.Check(e, s.now)
		s.Equal([]integrity.IssueCode{integrity.IssueIDTimestampMismatch}, codes(r.Issues))
	})
}

func (s *IntegritySuite) TestVerifyUnknownEvent() {
	_, err := s.verifier.VerifyAuditIntegrity(s.ctx, "aud_1_0000000000000000")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.verifier.VerifyAuditIntegrity(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *IntegritySuite) TestChainIntact() {
	base := s.now.Add(-time.Hour)
	for i := range 5 {
		s.store.Put(s.event("i1", int64(i+1), base.Add(time.Duration(i)*time.Second)))
		s.store.Put(s.event("i2", int64(i+1), base.Add(time.Duration(i)*time.Second)))
	}

	r, err := s.verifier.ValidateAuditChain(s.ctx, base.Add(-time.Minute), s.now)
	s.Require().NoError(err)
	s.True(r.Valid)
	s.Equal(10, r.EventsChecked)
	s.Equal(2, r.Instances)
}

func (s *IntegritySuite) TestChainBreaks() {
	base := s.now.Add(-time.Hour)
	s.store.Put(s.event("i1", 1, base))
	s.store.Put(s.event("i1", 2, base.Add(time.Second)))
	// sequence 3 deleted
	s.store.Put(s.event("i1", 4, base.Add(3*time.Second)))
	s.store.Put(s.event("i1", 4, base.Add(4*time.Second)))
	s.store.Put(s.event("i1", 5, base.Add(2*time.Second)))
	tampered := s.event("i1", 6, base.Add(5*time.Second))
	tampered.ResourceID = "usr_changed"
	s.store.Put(tampered)

	r, err := s.verifier.ValidateAuditChain(s.ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	s.False(r.Valid)

	got := map[integrity.BreakCode]int{}
	for _, b := range r.Breaks {
		got[b.Code]++
		s.Equal("i1", b.InstanceID)
	}
	s.Equal(map[integrity.BreakCode]int{
		integrity.BreakSequenceGap:         1,
		integrity.BreakDuplicateSequence:   1,
		integrity.BreakTimestampRegression: 1,
		integrity.BreakHashMismatch:        1,
	}, got)
}

func (s *IntegritySuite) TestChainIgnoresGapsOlderThanRetention() {
	old := s.now.Add(-2 * audit.ShortestRetention())
	s.store.Put(s.event("i1", 1, old))
	s.store.Put(s.event("i1", 7, old.Add(time.Hour)))

	r, err := s.verifier.ValidateAuditChain(s.ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	s.True(r.Valid)
}

func (s *IntegritySuite) TestChainRejectsInvertedRange() {
	_, err := s.verifier.ValidateAuditChain(s.ctx, s.now, s.now.Add(-time.Hour))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func codes(issues []integrity.Issue) []integrity.IssueCode {
	out := make([]integrity.IssueCode, len(issues))
	for i, is := range issues {
		out[i] = is.Code
	}
	return out
}
