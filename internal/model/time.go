// internal/model/time.go
package model

import "time"

// isoLayout matches RFC3339 but renders UTC with an explicit "+00:00"
// offset instead of "Z".
const isoLayout = "2006-01-02T15:04:05-07:00"

// NormalizeTime parses an RFC3339 timestamp and returns it in UTC.
// Empty or malformed input yields the current UTC time; this is a
// total function and never fails.
func NormalizeTime(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now().UTC()
	}
	return t.UTC()
}

// NormalizeTimestamp is NormalizeTime rendered as a UTC ISO-8601
// string with an explicit numeric offset.
func NormalizeTimestamp(s string) string {
	return FormatTimestamp(NormalizeTime(s))
}

// FormatTimestamp renders a time as UTC ISO-8601 with a "+00:00" offset.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(isoLayout)
}
