package utils

import (
	"fmt"
	"time"
)

// UTCNow returns the current UTC datetime with timezone information
func UTCNow() time.Time {
	return time.Now().UTC()
}

// EnsureUTC normalizes a datetime to UTC.
func EnsureUTC(dt time.Time) time.Time {
	if dt.Location() == time.UTC {
		return dt
	}
	return dt.UTC()
}

// EnsureUTCPtr normalizes a nullable datetime to UTC, keeping nil.
func EnsureUTCPtr(dt *time.Time) *time.Time {
	if dt == nil {
		return nil
	}
	utc := EnsureUTC(*dt)
	return &utc
}

// ParseDBDate parses the date representations graph drivers hand back:
// native time.Time, RFC3339 strings, ISO strings without zone, or nil.
func ParseDBDate(inputDate interface{}) (*time.Time, error) {
	switch v := inputDate.(type) {
	case time.Time:
		return &v, nil
	case *time.Time:
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			parsed, err = time.Parse("2006-01-02T15:04:05", v)
			if err != nil {
				return nil, fmt.Errorf("failed to parse date string %q: %w", v, err)
			}
		}
		return &parsed, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported date type: %T", v)
	}
}

// FormatTimeForDB formats a time for database storage
func FormatTimeForDB(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FormatOptionalTime formats a nullable time for database storage,
// returning nil for nil input so drivers write a null property.
func FormatOptionalTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return FormatTimeForDB(*t)
}
