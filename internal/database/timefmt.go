package database

import (
	"fmt"
	"strings"
	"time"
)

// layouts are tried in order by ParseTime. The bare forms cover rows written by
// SQLite's CURRENT_TIMESTAMP and by older tools using ISO-8601 without a zone.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatTime renders t the way every timestamp column is written.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTime parses a stored timestamp. Zone-less values are read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatDisplay formats a stored timestamp for human-readable display,
// e.g. "Feb 06, 2026". Unparsable values are returned unchanged.
func FormatDisplay(s *string) string {
	if s == nil {
		return ""
	}
	t, err := ParseTime(*s)
	if err != nil {
		return *s
	}
	return t.Format("Jan 02, 2006")
}

// later returns whichever of a and b is the later timestamp. An unparsable
// value loses against a parsable one.
func later(a, b *string) *string {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	ta, errA := ParseTime(*a)
	tb, errB := ParseTime(*b)
	switch {
	case errA != nil:
		return b
	case errB != nil:
		return a
	case tb.After(ta):
		return b
	}
	return a
}
