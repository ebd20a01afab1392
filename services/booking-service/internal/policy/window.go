package policy

import (
	"fmt"
	"time"
)

const (
	RuleMinNotice  = "min_notice"
	RuleMaxAdvance = "max_advance"
)

// WindowViolation explains why a start time is outside the booking window and the
// nearest acceptable bound.
type WindowViolation struct {
	Rule    string
	Bound   time.Time
	Message string
}

func (v *WindowViolation) Error() string { return v.Message }

// CheckWindow passes iff now+MinNotice <= at <= now+MaxAdvance. Both ends are inclusive.
func CheckWindow(now, at time.Time, r Rules) error {
	loc := r.Loc()
	earliest := now.Add(r.MinNotice)
	if at.Before(earliest) {
		return &WindowViolation{
			Rule:  RuleMinNotice,
			Bound: earliest,
			Message: fmt.Sprintf("bookings require at least %s notice; the earliest bookable time is %s",
				humanDuration(r.MinNotice), earliest.In(loc).Format("2006-01-02 15:04")),
		}
	}
	latest := now.Add(r.MaxAdvance)
	if at.After(latest) {
		return &WindowViolation{
			Rule:  RuleMaxAdvance,
			Bound: latest,
			Message: fmt.Sprintf("bookings can be made at most %s ahead; the latest bookable time is %s",
				humanDuration(r.MaxAdvance), latest.In(loc).Format("2006-01-02 15:04")),
		}
	}
	return nil
}

func humanDuration(d time.Duration) string {
	day := 24 * time.Hour
	switch {
	case d >= day && d%day == 0:
		return plural(int(d/day), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d/time.Minute), "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
