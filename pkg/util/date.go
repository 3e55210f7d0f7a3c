package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTime reads RFC3339(Nano), a bare date or unix seconds. Bare dates and
// zone-less timestamps are taken in loc.
func ParseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).In(loc), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses s or returns def when s is empty or invalid.
func ParseTimeDefault(s string, loc *time.Location, def time.Time) time.Time {
	if t, ok := ParseTime(s, loc); ok {
		return t
	}
	return def
}

// ParseRange parses an optional from/to pair. A bare-date "to" covers the
// whole day. Empty bounds stay zero (open).
func ParseRange(from, to string, loc *time.Location) (time.Time, time.Time, error) {
	var f, t time.Time
	if strings.TrimSpace(from) != "" {
		v, ok := ParseTime(from, loc)
		if !ok {
			return f, t, fmt.Errorf("invalid from %q", from)
		}
		f = v
	}
	if s := strings.TrimSpace(to); s != "" {
		v, ok := ParseTime(s, loc)
		if !ok {
			return f, t, fmt.Errorf("invalid to %q", to)
		}
		if len(s) == len("2006-01-02") {
			v = v.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		t = v
	}
	if !f.IsZero() && !t.IsZero() && t.Before(f) {
		return f, t, fmt.Errorf("to %s is before from %s", to, from)
	}
	return f, t, nil
}
