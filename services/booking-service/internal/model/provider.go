package model

import (
	"time"

	"cloud.google.com/go/civil"
)

// Provider is the party whose calendar is booked. The optional fields override the
// default booking window for this provider.
type Provider struct {
	ID             string
	Name           string
	Active         bool
	MinNoticeHours *int
	MaxAdvanceDays *int
}

type Service struct {
	ID              string
	ProviderID      string
	Name            string
	DurationMinutes int
	PriceCents      int64
	Active          bool
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// DayHours is the operating window for one weekday. A missing or Closed entry
// means no slots that day.
type DayHours struct {
	Weekday time.Weekday
	Closed  bool
	Open    civil.Time
	Close   civil.Time
}

func (h DayHours) IsOpen() bool {
	if h.Closed || h.Open.IsZero() || h.Close.IsZero() {
		return false
	}
	return h.Open.Before(h.Close)
}
