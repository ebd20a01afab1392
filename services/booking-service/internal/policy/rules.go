package policy

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Rules are the booking-window and calendar parameters applied to one provider.
type Rules struct {
	SlotInterval     time.Duration
	Buffer           time.Duration
	MinNotice        time.Duration
	MaxAdvance       time.Duration
	FallbackDuration time.Duration
	Location         *time.Location
}

func Defaults() Rules {
	return Rules{
		SlotInterval:     15 * time.Minute,
		Buffer:           15 * time.Minute,
		MinNotice:        2 * time.Hour,
		MaxAdvance:       30 * 24 * time.Hour,
		FallbackDuration: 60 * time.Minute,
		Location:         time.UTC,
	}
}

// Override replaces individual rule values. Nil fields keep the base value.
type Override struct {
	SlotInterval *time.Duration
	Buffer       *time.Duration
	MinNotice    *time.Duration
	MaxAdvance   *time.Duration
}

func (r Rules) Apply(o Override) Rules {
	if o.SlotInterval != nil {
		r.SlotInterval = *o.SlotInterval
	}
	if o.Buffer != nil {
		r.Buffer = *o.Buffer
	}
	if o.MinNotice != nil {
		r.MinNotice = *o.MinNotice
	}
	if o.MaxAdvance != nil {
		r.MaxAdvance = *o.MaxAdvance
	}
	return r
}

// ForProvider applies the provider's own notice and horizon settings.
func (r Rules) ForProvider(p model.Provider) Rules {
	if p.MinNoticeHours != nil && *p.MinNoticeHours >= 0 {
		r.MinNotice = time.Duration(*p.MinNoticeHours) * time.Hour
	}
	if p.MaxAdvanceDays != nil && *p.MaxAdvanceDays > 0 {
		r.MaxAdvance = time.Duration(*p.MaxAdvanceDays) * 24 * time.Hour
	}
	return r
}

func (r Rules) Validate() error {
	switch {
	case r.SlotInterval <= 0:
		return fmt.Errorf("slot interval must be positive")
	case r.Buffer < 0:
		return fmt.Errorf("buffer must not be negative")
	case r.MinNotice < 0:
		return fmt.Errorf("minimum notice must not be negative")
	case r.MaxAdvance <= r.MinNotice:
		return fmt.Errorf("maximum advance must exceed minimum notice")
	case r.FallbackDuration <= 0:
		return fmt.Errorf("fallback duration must be positive")
	}
	return nil
}

func (r Rules) Loc() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}
