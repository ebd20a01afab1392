package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type EventType string

const (
	EventReserved    EventType = "appointment.reserved"
	EventConfirmed   EventType = "appointment.confirmed"
	EventCancelled   EventType = "appointment.cancelled"
	EventCompleted   EventType = "appointment.completed"
	EventRescheduled EventType = "appointment.rescheduled"
)

func eventForStatus(s model.Status) EventType {
	switch s {
	case model.StatusConfirmed:
		return EventConfirmed
	case model.StatusCancelled:
		return EventCancelled
	case model.StatusCompleted:
		return EventCompleted
	default:
		return EventReserved
	}
}

// Event describes a committed change, delivered after the store write succeeded.
type Event struct {
	Type        EventType
	Appointment model.Appointment
	Actor       model.Actor
	Previous    *model.Appointment
	OccurredAt  time.Time
}

// Notifier receives lifecycle events. Failures never undo the committed change.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

type NotifierFunc func(ctx context.Context, evt Event) error

func (f NotifierFunc) Notify(ctx context.Context, evt Event) error { return f(ctx, evt) }

// LogNotifier records events in the service log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, evt Event) error {
	n.Logger.InfoContext(ctx, "appointment event",
		"event", string(evt.Type),
		"appointment_id", evt.Appointment.ID,
		"provider_id", evt.Appointment.ProviderID,
		"status", string(evt.Appointment.Status),
		"date", evt.Appointment.Date.String(),
		"start", model.FormatWallTime(evt.Appointment.Start),
		"recipient", evt.Appointment.Customer.Email,
	)
	return nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) error { return nil }

const notifyTimeout = 5 * time.Second

// notify delivers evt without letting the caller's cancellation or the sink's error
// reach the operation result.
func (e *Engine) notify(ctx context.Context, evt Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = e.now()
	}
	if err := e.notifier.Notify(ctx, evt); err != nil {
		e.logger.WarnContext(ctx, "notification delivery failed",
			"event", string(evt.Type),
			"appointment_id", evt.Appointment.ID,
			"err", err,
		)
	}
}
