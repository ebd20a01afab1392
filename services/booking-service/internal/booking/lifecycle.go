package booking

import (
	"context"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type StatusChange struct {
	AppointmentID string
	To            model.Status
	Reason        string
	Actor         model.Actor
}

// ChangeStatus moves an appointment along the lifecycle. The write is conditional on
// the status read here, so a concurrent change yields a ConflictError.
func (e *Engine) ChangeStatus(ctx context.Context, req StatusChange) (model.Appointment, error) {
	ctx, span := e.tracer.Start(ctx, "booking.ChangeStatus", trace.WithAttributes(
		attribute.String("appointment_id", req.AppointmentID),
		attribute.String("to", string(req.To)),
	))
	defer span.End()

	id := strings.TrimSpace(req.AppointmentID)
	if id == "" {
		return model.Appointment{}, e.fail(span, &ValidationError{Field: "appointment_id", Message: "is required"})
	}
	if !req.To.IsValid() {
		return model.Appointment{}, e.fail(span, &ValidationError{Field: "status", Message: "must be one of pending, confirmed, completed, cancelled"})
	}

	appt, err := e.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, e.fail(span, notFoundOr("appointment", id, "load appointment", err))
	}
	if err := authorize(req.Actor, appt, req.To); err != nil {
		return model.Appointment{}, e.fail(span, err)
	}
	if !appt.Status.CanTransitionTo(req.To) {
		return model.Appointment{}, e.fail(span, &TransitionError{From: appt.Status, To: req.To})
	}

	reason := strings.TrimSpace(req.Reason)
	if req.To == model.StatusCancelled {
		if reason == "" && req.Actor.Role != model.RoleSystem {
			return model.Appointment{}, e.fail(span, &ValidationError{Field: "reason", Message: "a cancellation reason is required"})
		}
	} else {
		reason = ""
	}

	updated, err := e.store.UpdateStatus(ctx, StatusUpdate{
		ID:     appt.ID,
		From:   appt.Status,
		To:     req.To,
		Reason: reason,
		At:     e.now(),
	})
	if err != nil {
		return model.Appointment{}, e.fail(span, notFoundOr("appointment", id, "update status", err))
	}

	e.logger.InfoContext(ctx, "appointment status changed",
		"appointment_id", updated.ID,
		"from", string(appt.Status),
		"to", string(updated.Status),
		"actor", string(req.Actor.Role),
	)
	e.notify(ctx, Event{Type: eventForStatus(updated.Status), Appointment: updated, Actor: req.Actor, Previous: &appt})
	return updated, nil
}

type RescheduleRequest struct {
	AppointmentID string
	Date          civil.Date
	Start         civil.Time
	Actor         model.Actor
}

// Reschedule moves an active appointment to a new date and start time in place,
// keeping its status. The appointment never conflicts with itself.
func (e *Engine) Reschedule(ctx context.Context, req RescheduleRequest) (model.Appointment, error) {
	ctx, span := e.tracer.Start(ctx, "booking.Reschedule", trace.WithAttributes(
		attribute.String("appointment_id", req.AppointmentID),
		attribute.String("date", req.Date.String()),
	))
	defer span.End()

	id := strings.TrimSpace(req.AppointmentID)
	switch {
	case id == "":
		return model.Appointment{}, e.fail(span, &ValidationError{Field: "appointment_id", Message: "is required"})
	case !req.Date.IsValid():
		return model.Appointment{}, e.fail(span, &ValidationError{Field: "date", Message: "must be a valid calendar date"})
	case !req.Start.IsValid():
		return model.Appointment{}, e.fail(span, &ValidationError{Field: "time", Message: "must be a valid time of day"})
	}

	appt, err := e.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, e.fail(span, notFoundOr("appointment", id, "load appointment", err))
	}
	if err := authorize(req.Actor, appt, ""); err != nil {
		return model.Appointment{}, e.fail(span, err)
	}
	if !appt.Status.IsActive() {
		return model.Appointment{}, e.fail(span, &TransitionError{From: appt.Status, To: appt.Status, Action: "reschedule"})
	}
	if appt.Date == req.Date && appt.Start == req.Start {
		return appt, nil
	}

	plan, err := e.planSlot(ctx, appt.ProviderID, appt.ServiceID, req.Date, req.Start)
	if err != nil {
		return model.Appointment{}, e.fail(span, err)
	}

	keys := []LockKey{
		{ProviderID: appt.ProviderID, Date: req.Date},
		{ProviderID: appt.ProviderID, Date: appt.Date},
	}
	var updated model.Appointment
	err = e.atomically(ctx, "reschedule", keys, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetAppointment(ctx, appt.ID)
		if err != nil {
			return err
		}
		if current.Status != appt.Status || current.Date != appt.Date || current.Start != appt.Start {
			return ErrStatusChanged
		}
		booked, err := tx.ListActive(ctx, appt.ProviderID, req.Date, appt.ID)
		if err != nil {
			return err
		}
		if err := plan.checkFree(req.Date, booked); err != nil {
			return err
		}
		updated, err = tx.UpdateSchedule(ctx, appt.ID, req.Date, req.Start, e.now())
		return err
	})
	if err != nil {
		return model.Appointment{}, e.fail(span, notFoundOr("appointment", id, "reschedule", err))
	}

	e.logger.InfoContext(ctx, "appointment rescheduled",
		"appointment_id", updated.ID,
		"from_date", appt.Date.String(),
		"from_start", model.FormatWallTime(appt.Start),
		"to_date", updated.Date.String(),
		"to_start", model.FormatWallTime(updated.Start),
	)
	e.notify(ctx, Event{Type: EventRescheduled, Appointment: updated, Actor: req.Actor, Previous: &appt})
	return updated, nil
}

// authorize checks that actor may act on appt. A customer may only cancel or
// reschedule a booking made under their own email; to is empty for reschedules.
// Appointments outside the actor's scope read as not found.
func authorize(actor model.Actor, appt model.Appointment, to model.Status) error {
	switch actor.Role {
	case model.RoleSystem:
		return nil
	case model.RoleProvider:
		if actor.ProviderID != "" && actor.ProviderID == appt.ProviderID {
			return nil
		}
		return &NotFoundError{Entity: "appointment", ID: appt.ID}
	case model.RoleCustomer:
		if actor.Email == "" || !strings.EqualFold(actor.Email, appt.Customer.Email) {
			return &NotFoundError{Entity: "appointment", ID: appt.ID}
		}
		if to != "" && to != model.StatusCancelled {
			return &PolicyError{Rule: "permission", Message: "customers can only cancel their appointments"}
		}
		return nil
	default:
		return &PolicyError{Rule: "permission", Message: "unidentified caller"}
	}
}
