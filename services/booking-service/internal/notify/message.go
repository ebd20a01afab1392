// Package notify delivers appointment events to customers by email and SMS.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// render builds the customer-facing subject and body. ok is false for events the
// customer is not told about.
func render(evt booking.Event) (subject, body string, ok bool) {
	a := evt.Appointment
	when := fmt.Sprintf("%s at %s", a.Date, model.FormatWallTime(a.Start))
	switch evt.Type {
	case booking.EventReserved:
		if a.Status == model.StatusConfirmed {
			return "Appointment confirmed", fmt.Sprintf("Hi %s, your appointment on %s is confirmed. Reference: %s", a.Customer.Name, when, a.ID), true
		}
		return "Appointment requested", fmt.Sprintf("Hi %s, we received your request for %s. You will hear from us once it is confirmed. Reference: %s", a.Customer.Name, when, a.ID), true
	case booking.EventConfirmed:
		return "Appointment confirmed", fmt.Sprintf("Hi %s, your appointment on %s is confirmed. Reference: %s", a.Customer.Name, when, a.ID), true
	case booking.EventCancelled:
		body := fmt.Sprintf("Hi %s, your appointment on %s was cancelled.", a.Customer.Name, when)
		if a.CancellationReason != "" {
			body += " Reason: " + a.CancellationReason
		}
		return "Appointment cancelled", body, true
	case booking.EventRescheduled:
		body := fmt.Sprintf("Hi %s, your appointment moved to %s.", a.Customer.Name, when)
		if p := evt.Previous; p != nil {
			body = fmt.Sprintf("Hi %s, your appointment on %s at %s moved to %s.", a.Customer.Name, p.Date, model.FormatWallTime(p.Start), when)
		}
		return "Appointment rescheduled", body, true
	default:
		return "", "", false
	}
}

// Fanout delivers every event to each notifier and joins their errors.
type Fanout []booking.Notifier

func (f Fanout) Notify(ctx context.Context, evt booking.Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
