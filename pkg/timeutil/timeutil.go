// Package timeutil parses the timestamps exchanged with the adaptive learning
// service and converts them to Unix time.
// Unix reads the wall clock as UTC and ignores any zone offset.
package timeutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnparsable is returned when no known layout matches a timestamp.
var ErrUnparsable = errors.New("unparsable timestamp")

// layouts are tried in order. Zoned layouts come first.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parse parses s using the first matching layout.
func Parse(s string) (time.Time, error) {
	value := strings.TrimSpace(s)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrUnparsable)
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsable, s)
}

// Unix parses s and returns the Unix timestamp of its wall clock read as UTC.
// The zone offset is ignored, so "05:00+05:00" and "05:00Z" are equal.
// Fractional seconds are dropped.
func Unix(s string) (int64, error) {
	t, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC).Unix(), nil
}
