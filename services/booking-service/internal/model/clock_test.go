package model

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestParseWallTime(t *testing.T) {
	got, err := ParseWallTime("09:05")
	if err != nil {
		t.Fatalf("ParseWallTime failed: %v", err)
	}
	if got != (civil.Time{Hour: 9, Minute: 5}) {
		t.Fatalf("unexpected time %v", got)
	}
	if FormatWallTime(got) != "09:05" {
		t.Fatalf("unexpected format %s", FormatWallTime(got))
	}
	for _, bad := range []string{"", "9", "24:00", "10:7", "ab:cd", "10:60"} {
		if _, err := ParseWallTime(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestWeekday(t *testing.T) {
	// 2026-01-28 is a Wednesday.
	if got := Weekday(civil.Date{Year: 2026, Month: time.January, Day: 28}); got != time.Wednesday {
		t.Fatalf("expected Wednesday, got %s", got)
	}
}
