package db

import (
	"database/sql"
	"strings"
	"time"
)

// tsLayout is the format the server writes and the format we write back.
const tsLayout = "2006-01-02 15:04:05.000000"

var tsLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	time.RFC3339Nano,
}

// formatTS renders t as mirror text in UTC.
func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

// ParseTimestamp accepts the server's text format as well as RFC 3339.
// Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range tsLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// nullTime converts a scanned timestamp column to *time.Time.
func nullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, ok := ParseTimestamp(ns.String)
	if !ok {
		return nil
	}
	return &t
}

// stringFromNull returns the value or empty.
func stringFromNull(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
