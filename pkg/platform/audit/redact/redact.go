// Package redact removes personally identifiable information from audit payloads
// before they reach the console, storage or alert channels.
//
// Field names are matched against explicit sets rather than free substrings:
//   - a global deny set and a per-entity deny set keyed by resource type
//   - short tokens (ssn, dob, cvv, ...) that match whole name segments only
//   - long tokens (email, password, ...) that match anywhere in the normalized
//     name unless the name is on the safe list (emailTemplate, emailVerified, ...)
//
// Unknown names that look like PII are redacted. String values are additionally
// scanned for email, SSN, card and phone shapes. Redaction is one-way.
package redact

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"unicode"

	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/privacy"
)

// Marker replaces any value whose field name is PII.
const Marker = "[REDACTED]"

var defaultDeny = []string{
	"email", "emailaddress", "phone", "phonenumber", "mobile", "password", "passwordhash",
	"ssn", "socialsecuritynumber", "creditcard", "cardnumber", "cvv", "iban",
	"accountnumber", "routingnumber", "taxid", "passport", "dateofbirth", "dob",
	"birthdate", "address", "streetaddress", "postalcode", "zipcode", "firstname",
	"lastname", "fullname", "secret", "apikey", "accesstoken", "refreshtoken",
	"privatekey", "encryptionkey", "jwtsecret",
}

var defaultEntityDeny = map[string][]string{
	"user":         {"name", "displayname", "avatarurl", "location", "username"},
	"contact":      {"name", "title", "notes", "linkedin"},
	"payment":      {"cardholder", "last4", "billingname", "billingaddress"},
	"subscription": {"billingname", "billingaddress"},
	"config":       {"value"},
}

var shortTokens = []string{"ssn", "dob", "cvv", "cvc", "pin", "otp", "pwd", "sin"}

var longTokens = []string{
	"email", "phone", "mobile", "password", "passwd", "secret", "token", "creditcard",
	"cardnumber", "iban", "taxid", "passport", "birth", "address", "apikey",
	"privatekey", "socialsecurity", "accountnumber", "routingnumber",
}

var defaultSafe = []string{
	"emailtemplate", "emailverified", "emailnotifications", "emailenabled",
	"phoneverified", "passwordpolicy", "passwordchangedat", "passwordresetrequired",
	"tokenexpiry", "tokentype", "addressverified", "changedfields",
}

var ipKeys = map[string]struct{}{
	"ipaddress": {}, "ip": {}, "clientip": {}, "remoteaddr": {},
}

// Redactor applies PII redaction. It is safe for concurrent use once built.
type Redactor struct {
	deny       map[string]struct{}
	entityDeny map[string]map[string]struct{}
	safe       map[string]struct{}
	scrubber   *scrubber
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithDeny adds field names to the global deny set.
func WithDeny(fields ...string) Option {
	return func(r *Redactor) {
		for _, f := range fields {
			r.deny[normalize(f)] = struct{}{}
		}
	}
}

// WithEntityDeny adds field names that are PII only for one resource type.
func WithEntityDeny(resource string, fields ...string) Option {
	return func(r *Redactor) {
		set := r.entityDeny[strings.ToLower(resource)]
		if set == nil {
			set = map[string]struct{}{}
			r.entityDeny[strings.ToLower(resource)] = set
		}
		for _, f := range fields {
			set[normalize(f)] = struct{}{}
		}
	}
}

// WithSafe marks field names that look like PII but never carry it.
func WithSafe(fields ...string) Option {
	return func(r *Redactor) {
		for _, f := range fields {
			r.safe[normalize(f)] = struct{}{}
		}
	}
}

// New builds a Redactor with the default sets plus any options.
func New(opts ...Option) *Redactor {
	r := &Redactor{
		deny:       toSet(defaultDeny),
		entityDeny: make(map[string]map[string]struct{}, len(defaultEntityDeny)),
		safe:       toSet(defaultSafe),
		scrubber:   newScrubber(),
	}
	for entity, fields := range defaultEntityDeny {
		r.entityDeny[entity] = toSet(fields)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ShouldRedact reports whether a field of the given resource type carries PII.
func (r *Redactor) ShouldRedact(resource, field string) bool {
	words := splitWords(field)
	key := strings.Join(words, "")
	if key == "" {
		return false
	}
	if _, ok := r.safe[key]; ok {
		return false
	}
	if _, ok := r.deny[key]; ok {
		return true
	}
	if set, ok := r.entityDeny[strings.ToLower(resource)]; ok {
		if _, ok := set[key]; ok {
			return true
		}
	}
	for _, w := range words {
		for _, t := range shortTokens {
			if w == t {
				return true
			}
		}
	}
	for _, t := range longTokens {
		if strings.Contains(key, t) {
			return true
		}
	}
	return false
}

// RedactPII returns a redacted deep copy of values. The input is not modified.
func (r *Redactor) RedactPII(resource string, values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = r.redactField(resource, k, v)
	}
	return out
}

// RedactEvent redacts every free-form payload on an event.
func (r *Redactor) RedactEvent(e audit.Event) audit.Event {
	e.OldValues = r.RedactPII(e.Resource, e.OldValues)
	e.NewValues = r.RedactPII(e.Resource, e.NewValues)
	e.Metadata = r.RedactPII(e.Resource, e.Metadata)
	e.Error = r.scrubber.scrub(e.Error)
	e.AdminRoles = append([]string(nil), e.AdminRoles...)
	return e
}

func (r *Redactor) redactField(resource, key string, v any) any {
	if _, ok := ipKeys[normalize(key)]; ok {
		if s, ok := v.(string); ok {
			return privacy.AnonymizeIP(s)
		}
	}
	if r.ShouldRedact(resource, key) {
		return Marker
	}
	return r.redactValue(resource, v)
}

func (r *Redactor) redactValue(resource string, v any) any {
	switch val := v.(type) {
	case string:
		return r.scrubber.scrub(val)
	case map[string]any:
		return r.RedactPII(resource, val)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return r.RedactPII(resource, m)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.redactValue(resource, item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = r.scrubber.scrub(item)
		}
		return out
	case json.Number:
		return val
	default:
		return r.redactOther(resource, v)
	}
}

// redactOther handles values outside the generic JSON shapes. Scalars pass
// through, typed strings are scrubbed, and composites (structs, typed maps and
// slices, pointers) are walked in their JSON form. A composite that cannot be
// encoded is replaced by Marker.
func (r *Redactor) redactOther(resource string, v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return v
	case reflect.String:
		if _, ok := v.(json.Marshaler); !ok {
			return r.scrubber.scrub(rv.String())
		}
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return Marker
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return Marker
	}
	return r.redactValue(resource, generic)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[normalize(it)] = struct{}{}
	}
	return set
}

func normalize(field string) string {
	return strings.Join(splitWords(field), "")
}

// splitWords lowercases a field name and splits it on separators and camelCase
// boundaries: "userSSN_last4" -> [user ssn last4].
func splitWords(field string) []string {
	var words []string
	var cur []rune
	runes := []rune(field)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	for i, c := range runes {
		switch {
		case c == '_' || c == '-' || c == '.' || unicode.IsSpace(c):
			flush()
		case unicode.IsUpper(c):
			prevLower := i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]))
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			prevUpper := i > 0 && unicode.IsUpper(runes[i-1])
			if prevLower || (prevUpper && nextLower) {
				flush()
			}
			cur = append(cur, c)
		default:
			cur = append(cur, c)
		}
	}
	flush()
	return words
}
