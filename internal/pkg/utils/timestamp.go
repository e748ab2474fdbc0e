package utils

import (
	"fmt"
	"strings"
	"time"
)

// Layouts the gateway has been observed to deliver. Naive forms (no zone)
// are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601-ish timestamp string into a UTC instant.
// A trailing "Z" denotes UTC; explicit offsets are honored and converted;
// naive timestamps are assumed to already be UTC.
func ParseTimestamp(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}

// NormalizeTimestamp re-renders a timestamp string in RFC 3339 UTC form.
// Unparseable input is preserved as-is so the raw value is never lost.
func NormalizeTimestamp(value string) string {
	t, err := ParseTimestamp(value)
	if err != nil {
		return strings.TrimSpace(value)
	}
	return t.Format(time.RFC3339)
}

// DaysUntil returns floor(until - now, in days). Negative once the instant
// has passed.
func DaysUntil(now, until time.Time) int {
	diff := until.Sub(now)
	days := int(diff.Hours() / 24)
	// Go truncates toward zero; floor needs one more step down for negatives.
	if diff < 0 && time.Duration(days)*24*time.Hour != diff {
		days--
	}
	return days
}
