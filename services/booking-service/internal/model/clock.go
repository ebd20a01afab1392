package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// ParseWallTime accepts "HH:MM" or "HH:MM:SS".
func ParseWallTime(raw string) (civil.Time, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")
	if len(parts) == 3 {
		return civil.ParseTime(raw)
	}
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) != 2 {
		return civil.Time{}, fmt.Errorf("invalid time %q (want HH:MM)", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return civil.Time{}, fmt.Errorf("invalid time %q (want HH:MM)", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return civil.Time{}, fmt.Errorf("invalid time %q (want HH:MM)", raw)
	}
	t := civil.Time{Hour: h, Minute: m}
	if !t.IsValid() {
		return civil.Time{}, fmt.Errorf("invalid time %q (want HH:MM)", raw)
	}
	return t, nil
}

func FormatWallTime(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func ParseDate(raw string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", raw)
	}
	return d, nil
}

// Weekday returns the day of week of a calendar date.
func Weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

// Instant anchors a calendar date and wall time in loc.
func Instant(d civil.Date, t civil.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateTime{Date: d, Time: t}.In(loc)
}
