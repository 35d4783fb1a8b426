package parser

import (
	"strings"
	"time"

	"github.com/rpaflow/rpaflow/pkg/errors"
)

// Common timestamp layouts ordered by likelihood. Layouts without a zone
// are interpreted in the location passed to ParseTimestamp.
var commonLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

// ParseTimestamp parses value with the common layouts. A nil loc means UTC.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.InvalidTimestamp(value)
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range commonLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.InvalidTimestamp(value)
}

// parseLayout parses value with a single configured layout in loc.
func parseLayout(layout, value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(layout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.CodeInvalidTimestamp, "failed to parse timestamp").
			WithContext("value", value).
			WithContext("layout", layout)
	}
	return t, nil
}

// loadLocation resolves a configured IANA zone name. Empty means UTC.
func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidArgument, "unknown timezone %q", name)
	}
	return loc, nil
}
