package audit

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const idPrefix = "aud"

// NewEventID returns "aud_<unix-millis>_<16 hex chars>" using 8 random bytes.
func NewEventID(at time.Time) (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random suffix: %w", err)
	}
	return idPrefix + "_" + strconv.FormatInt(at.UnixMilli(), 10) + "_" + hex.EncodeToString(b[:]), nil
}

// EventIDTime extracts the millisecond timestamp embedded in an event ID.
func EventIDTime(id string) (time.Time, bool) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 || parts[0] != idPrefix || len(parts[2]) != 16 {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// ServerTime normalizes a clock reading to the precision events are stored with.
func ServerTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
