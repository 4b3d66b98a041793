// Package strings normalizes user-supplied string lists such as role claims
// and repeated query parameters.
package strings

import (
	"strings"
)

// DedupeAndTrimLower trims and lowercases each value, then drops empties and
// duplicates, keeping first-seen order.
func DedupeAndTrimLower(values []string) []string {
	return dedupe(values, func(v string) string { return strings.ToLower(strings.TrimSpace(v)) })
}

// DedupeAndTrimUpper is DedupeAndTrimLower for the upper-case form taxonomy
// constants use.
func DedupeAndTrimUpper(values []string) []string {
	return dedupe(values, func(v string) string { return strings.ToUpper(strings.TrimSpace(v)) })
}

func dedupe(values []string, norm func(string) string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = norm(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
