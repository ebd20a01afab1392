package storage

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5/pgtype"
)

const microsPerSecond = int64(time.Second / time.Microsecond)

func pgDate(d civil.Date) pgtype.Date {
	if d.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC), Valid: true}
}

func civilDate(d pgtype.Date) civil.Date {
	if !d.Valid {
		return civil.Date{}
	}
	return civil.DateOf(d.Time)
}

// pgTime stores a wall time as microseconds since midnight, which is how Postgres
// encodes the time type.
func pgTime(t civil.Time) pgtype.Time {
	us := int64(t.Hour*3600+t.Minute*60+t.Second)*microsPerSecond + int64(t.Nanosecond/1000)
	return pgtype.Time{Microseconds: us, Valid: true}
}

func civilTime(t pgtype.Time) civil.Time {
	if !t.Valid {
		return civil.Time{}
	}
	us := t.Microseconds
	secs := us / microsPerSecond
	return civil.Time{
		Hour:       int(secs / 3600),
		Minute:     int(secs % 3600 / 60),
		Second:     int(secs % 60),
		Nanosecond: int(us%microsPerSecond) * 1000,
	}
}

func pgTimeOrNull(t civil.Time, null bool) pgtype.Time {
	if null {
		return pgtype.Time{}
	}
	return pgTime(t)
}

func nullableInt(p *int) pgtype.Int4 {
	if p == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*p), Valid: true}
}

func intPtr(v pgtype.Int4) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int32)
	return &n
}

func timePtr(v pgtype.Timestamptz) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
