package redact

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"workspace-audit/pkg/platform/audit"
)

// RedactorSuite tests PII redaction.
//
// Justification: Redaction is the last line before values reach storage and
// logs. Name matching has known traps (emailTemplate, e_mail) that need pinning.
type RedactorSuite struct {
	suite.Suite
	r *Redactor
}

func TestRedactorSuite(t *testing.T) {
	suite.Run(t, new(RedactorSuite))
}

func (s *RedactorSuite) SetupTest() {
	s.r = New()
}

func (s *RedactorSuite) TestShouldRedact() {
	redacted := []string{
		"email", "e_mail", "EMAIL", "userEmail", "emailAddress", "phone_number",
		"password", "newPassword", "SSN", "userSSN", "card_number", "cvv",
		"dateOfBirth", "apiKey", "API_KEY", "refresh-token", "billingAddress",
		"firstName", "iban",
	}
	for _, f := range redacted {
		s.Run("redacts "+f, func() {
			s.True(s.r.ShouldRedact("user", f))
		})
	}

	kept := []string{
		"emailTemplate", "emailVerified", "phoneVerified", "passwordPolicy",
		"status", "plan", "roles", "subscription", "classname", "pinned", "changedFields",
	}
	for _, f := range kept {
		s.Run("keeps "+f, func() {
			s.False(s.r.ShouldRedact("user", f))
		})
	}
}

func (s *RedactorSuite) TestEntityDeny() {
	s.True(s.r.ShouldRedact("user", "name"))
	s.False(s.r.ShouldRedact("project", "name"))
	s.True(s.r.ShouldRedact("Contact", "notes"))

	custom := New(WithEntityDeny("project", "clientName"), WithDeny("badge"), WithSafe("secretSanta"))
	s.True(custom.ShouldRedact("project", "client_name"))
	s.True(custom.ShouldRedact("invoice", "badge"))
	s.False(custom.ShouldRedact("team", "secretSanta"))
}

func (s *RedactorSuite) TestRedactPII() {
	in := map[string]any{
		"email":  "ada@example.com",
		"status": "active",
		"profile": map[string]any{
			"phone": "555-123-4567",
			"bio":   "reach me at ada@example.com",
		},
		"tags":      []any{"vip", "call 555 123 4567"},
		"ipAddress": "203.0.113.77",
	}

	out := s.r.RedactPII("user", in)

	s.Equal(Marker, out["email"])
	s.Equal("active", out["status"])
	profile := out["profile"].(map[string]any)
	s.Equal(Marker, profile["phone"])
	s.Equal("reach me at [REDACTED_EMAIL]", profile["bio"])
	s.Equal([]any{"vip", "call [REDACTED_PHONE]"}, out["tags"])
	s.Equal("203.0.113.0", out["ipAddress"])

	s.Equal("ada@example.com", in["email"], "input must not be mutated")
	s.Nil(s.r.RedactPII("user", nil))
}

type contactCard struct {
	Email   string `json:"email"`
	Company string `json:"company"`
	Note    string `json:"note"`
}

func (s *RedactorSuite) TestRedactNestedComposites() {
	in := map[string]any{
		"contacts": []map[string]any{
			{"email": "alice@example.com", "password": "hunter2", "role": "owner"},
		},
		"labels":  []map[string]string{{"phone": "555-123-4567", "kind": "work"}},
		"card":    contactCard{Email: "bob@example.com", Company: "Acme", Note: "ssn 123-45-6789"},
		"cards":   []*contactCard{{Email: "carol@example.com", Company: "Initech"}},
		"counts":  map[string]int{"seats": 12},
		"level":   audit.SeverityHigh,
		"handler": func() {},
	}

	out := s.r.RedactPII("user", in)

	contacts := out["contacts"].([]any)
	first := contacts[0].(map[string]any)
	s.Equal(Marker, first["email"])
	s.Equal(Marker, first["password"])
	s.Equal("owner", first["role"])

	labels := out["labels"].([]any)
	s.Equal(Marker, labels[0].(map[string]any)["phone"])
	s.Equal("work", labels[0].(map[string]any)["kind"])

	card := out["card"].(map[string]any)
	s.Equal(Marker, card["email"])
	s.Equal("Acme", card["company"])
	s.Equal("ssn [REDACTED_SSN]", card["note"])

	cards := out["cards"].([]any)
	s.Equal(Marker, cards[0].(map[string]any)["email"])

	s.Equal(json.Number("12"), out["counts"].(map[string]any)["seats"])
	s.Equal("HIGH", out["level"])
	s.Equal(Marker, out["handler"], "values that cannot be encoded are never passed through")

	encoded, err := json.Marshal(out)
	s.Require().NoError(err)
	s.NotContains(string(encoded), "alice@example.com")
	s.NotContains(string(encoded), "hunter2")
	s.NotContains(string(encoded), "bob@example.com")
	s.NotContains(string(encoded), "carol@example.com")
	s.NotContains(string(encoded), "555-123-4567")
}

func (s *RedactorSuite) TestScrubValues() {
	cases := map[string]string{
		"ssn 123-45-6789 on file":     "ssn [REDACTED_SSN] on file",
		"card 4111 1111 1111 1111":    "card [REDACTED_CC]",
		"call +1 (555) 123-4567 now":  "call [REDACTED_PHONE] now",
		"event aud_1717243200000_abc": "event aud_1717243200000_abc",
		"2025-06-01T12:00:00Z":        "2025-06-01T12:00:00Z",
	}
	for in, want := range cases {
		s.Equal(want, s.r.scrubber.scrub(in), in)
	}
}

func (s *RedactorSuite) TestRedactEvent() {
	e := audit.Event{
		Resource:   "user",
		AdminRoles: []string{"admin"},
		OldValues:  map[string]any{"email": "old@example.com"},
		NewValues:  map[string]any{"email": "new@example.com"},
		Metadata:   map[string]any{"reason": "requested by jo@example.com", "ipAddress": "10.1.2.3"},
		Error:      "duplicate key for new@example.com",
	}

	out := s.r.RedactEvent(e)

	s.Equal(Marker, out.OldValues["email"])
	s.Equal(Marker, out.NewValues["email"])
	s.Equal("requested by [REDACTED_EMAIL]", out.Metadata["reason"])
	s.Equal("10.1.2.0", out.Metadata["ipAddress"])
	s.Equal("duplicate key for [REDACTED_EMAIL]", out.Error)
	s.Equal("old@example.com", e.OldValues["email"])
}

var piiKeys = []string{
	"email", "e_mail", "Email", "contactEmail", "phone", "phoneNumber", "mobile",
	"password", "ssn", "SSN", "creditCard", "card_number", "cvv", "dob", "dateOfBirth",
	"address", "homeAddress", "apiKey", "secret", "accessToken", "iban", "taxId",
}

// TestNoRawValueSurvives generates random PII-keyed payloads and checks that
// no raw value appears anywhere in the serialized redacted output.
func TestNoRawValueSurvives(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	r := New()

	for i := 0; i < 500; i++ {
		payload := map[string]any{}
		var raws []string
		for j := 0; j < 1+rng.IntN(5); j++ {
			key := piiKeys[rng.IntN(len(piiKeys))]
			raw := fmt.Sprintf("pii-%016x", rng.Uint64())
			raws = append(raws, raw)
			if rng.IntN(3) == 0 {
				payload["nested"+fmt.Sprint(j)] = map[string]any{key: raw}
			} else {
				payload[key] = raw
			}
		}
		payload["status"] = "active"

		out, err := json.Marshal(r.RedactPII("user", payload))
		require.NoError(t, err)
		for _, raw := range raws {
			assert.NotContains(t, string(out), raw, "iteration %d", i)
		}
	}
}
