package audit

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UnencodablePayload replaces a payload that could not be JSON-encoded.
const UnencodablePayload = "unencodable"

// UnencodableError is returned by Writer.InsertBatch when some events could
// not be encoded. Every other event in the batch was stored.
type UnencodableError struct {
	IDs []string
	Err error
}

func (e *UnencodableError) Error() string {
	return fmt.Sprintf("%d audit events could not be encoded (%s): %v",
		len(e.IDs), strings.Join(e.IDs, ", "), e.Err)
}

func (e *UnencodableError) Unwrap() error { return e.Err }

// CheckEncodable reports the first payload that cannot be JSON-encoded, such
// as one holding NaN or a channel.
func CheckEncodable(oldValues, newValues, metadata map[string]any) error {
	for _, p := range []struct {
		name   string
		values map[string]any
	}{
		{"oldValues", oldValues},
		{"newValues", newValues},
		{"metadata", metadata},
	} {
		if p.values == nil {
			continue
		}
		if _, err := json.Marshal(p.values); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}
	return nil
}

// StripUnencodable returns e with every payload that cannot be JSON-encoded
// replaced by {"error": UnencodablePayload}. The verification hash does not
// cover payloads, so the stripped event still verifies. The bool reports
// whether anything was replaced.
func StripUnencodable(e Event) (Event, bool) {
	stripped := false
	strip := func(values map[string]any) map[string]any {
		if values == nil {
			return nil
		}
		if _, err := json.Marshal(values); err != nil {
			stripped = true
			return map[string]any{"error": UnencodablePayload}
		}
		return values
	}
	e.OldValues = strip(e.OldValues)
	e.NewValues = strip(e.NewValues)
	e.Metadata = strip(e.Metadata)
	return e, stripped
}
