package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is fixed-width so that stored timestamps compare lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in UTC using the storage layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// NullTime renders t, or NULL when t is zero.
func NullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTime(t), Valid: true}
}

// ParseTime parses a stored timestamp. Empty values yield the zero time.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, value); err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
		}
	}
	return t.UTC(), nil
}

// ParseNullTime parses a nullable stored timestamp.
func ParseNullTime(value sql.NullString) (time.Time, error) {
	if !value.Valid {
		return time.Time{}, nil
	}
	return ParseTime(value.String)
}
