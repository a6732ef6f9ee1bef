package model

import "time"

// DateLayout is the wire layout for calendar dates.
const DateLayout = "2006-01-02"

// DayOf returns the calendar day of t, read in t's own location, as midnight
// UTC. A submission stamped 02:00 at +05:30 belongs to that local date.
func DayOf(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the calendar day n days after t.
func AddDays(t time.Time, n int) time.Time {
	return DayOf(t).AddDate(0, 0, n)
}

// ParseDate parses a YYYY-MM-DD date, also accepting RFC 3339 timestamps.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return DayOf(t), nil
}
