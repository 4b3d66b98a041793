package redact

import "regexp"

type valuePattern struct {
	re    *regexp.Regexp
	token string
}

type scrubber struct {
	patterns []valuePattern
}

// Order matters: card numbers before phone numbers so a 16-digit card is not
// partially consumed as a phone.
func newScrubber() *scrubber {
	return &scrubber{patterns: []valuePattern{
		{regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`), "[REDACTED_EMAIL]"},
		{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[REDACTED_SSN]"},
		{regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`), "[REDACTED_CC]"},
		{regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?\(?\b\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`), "[REDACTED_PHONE]"},
	}}
}

func (s *scrubber) scrub(v string) string {
	if v == "" {
		return v
	}
	for _, p := range s.patterns {
		v = p.re.ReplaceAllString(v, p.token)
	}
	return v
}
