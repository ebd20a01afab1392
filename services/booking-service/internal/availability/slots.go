package availability

import "time"

// Interval is a half-open span [Start, End). Ref optionally names the appointment
// that occupies it.
type Interval struct {
	Start time.Time
	End   time.Time
	Ref   string
}

// Occupancy is the span a booking blocks: its service duration followed by the
// provider's buffer.
func Occupancy(start time.Time, duration, buffer time.Duration) Interval {
	return Interval{Start: start, End: start.Add(duration + buffer)}
}

// Overlaps reports whether two half-open intervals share any instant. Touching
// endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// GenerateSlots returns candidate start times within [open, close), stepping by step,
// for which start+duration+buffer still fits before close. It never consults bookings.
//
// open and close are expected to be in the same location.
func GenerateSlots(open, close time.Time, duration, step, buffer time.Duration) []time.Time {
	if duration <= 0 || step <= 0 || buffer < 0 {
		return nil
	}
	if !close.After(open) {
		return nil
	}

	var slots []time.Time
	for t := open; !t.Add(duration + buffer).After(close); t = t.Add(step) {
		slots = append(slots, t)
	}
	return slots
}

// FilterConflicts keeps, in order, the candidates whose occupancy overlaps none of busy.
func FilterConflicts(candidates []time.Time, duration, buffer time.Duration, busy []Interval) []time.Time {
	out := make([]time.Time, 0, len(candidates))
	for _, c := range candidates {
		if _, clash := FirstConflict(Occupancy(c, duration, buffer), busy); !clash {
			out = append(out, c)
		}
	}
	return out
}

// FirstConflict returns the first busy interval overlapping candidate.
func FirstConflict(candidate Interval, busy []Interval) (Interval, bool) {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return b, true
		}
	}
	return Interval{}, false
}

// Fits reports whether candidate lies entirely inside [open, close].
func Fits(candidate Interval, open, close time.Time) bool {
	return !candidate.Start.Before(open) && !candidate.End.After(close)
}
