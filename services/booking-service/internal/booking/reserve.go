package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ReserveRequest struct {
	ProviderID string             `json:"provider_id" validate:"required"`
	ServiceID  string             `json:"service_id" validate:"required"`
	Date       civil.Date         `json:"date" validate:"-"`
	Start      civil.Time         `json:"time" validate:"-"`
	Customer   model.CustomerInfo `json:"customer"`
	// Origin decides the initial status. Empty means customer.
	Origin model.Origin `json:"-" validate:"-"`
	Actor  model.Actor  `json:"-" validate:"-"`
}

func (r *ReserveRequest) normalize() {
	r.ProviderID = strings.TrimSpace(r.ProviderID)
	r.ServiceID = strings.TrimSpace(r.ServiceID)
	r.Customer.Name = strings.TrimSpace(r.Customer.Name)
	r.Customer.Email = strings.ToLower(strings.TrimSpace(r.Customer.Email))
	r.Customer.Phone = strings.TrimSpace(r.Customer.Phone)
	r.Customer.Notes = strings.TrimSpace(r.Customer.Notes)
	if r.Origin == "" {
		r.Origin = model.OriginCustomer
	}
}

// Reserve books the requested start time or fails; it never substitutes another
// time. Customer bookings start pending and provider bookings start confirmed.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (model.Appointment, error) {
	ctx, span := e.tracer.Start(ctx, "booking.Reserve", trace.WithAttributes(
		attribute.String("provider_id", req.ProviderID),
		attribute.String("date", req.Date.String()),
	))
	defer span.End()

	req.normalize()
	if err := e.validateReserve(req); err != nil {
		return model.Appointment{}, e.fail(span, err)
	}
	if req.Origin == model.OriginProvider {
		if err := authorizeProviderBooking(req.Actor, req.ProviderID); err != nil {
			return model.Appointment{}, e.fail(span, err)
		}
	}

	plan, err := e.planSlot(ctx, req.ProviderID, req.ServiceID, req.Date, req.Start)
	if err != nil {
		return model.Appointment{}, e.fail(span, err)
	}

	now := e.now()
	appt := model.Appointment{
		ProviderID: req.ProviderID,
		ServiceID:  req.ServiceID,
		Date:       req.Date,
		Start:      req.Start,
		Status:     req.Origin.InitialStatus(),
		Origin:     req.Origin,
		Customer:   req.Customer,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if appt.Status == model.StatusConfirmed {
		appt.ConfirmedAt = &now
	}

	var created model.Appointment
	key := LockKey{ProviderID: req.ProviderID, Date: req.Date}
	err = e.atomically(ctx, "reserve", []LockKey{key}, func(ctx context.Context, tx Tx) error {
		booked, err := tx.ListActive(ctx, req.ProviderID, req.Date, "")
		if err != nil {
			return err
		}
		if err := plan.checkFree(req.Date, booked); err != nil {
			return err
		}
		created, err = tx.InsertAppointment(ctx, appt)
		return err
	})
	if err != nil {
		err = storeErr("reserve", err)
		var ce *ConflictError
		if errors.As(err, &ce) {
			e.logger.InfoContext(ctx, "reservation lost to an existing booking",
				"provider_id", req.ProviderID,
				"date", req.Date.String(),
				"start", model.FormatWallTime(req.Start),
				"conflicting_id", ce.ConflictingID,
			)
		}
		return model.Appointment{}, e.fail(span, err)
	}

	e.logger.InfoContext(ctx, "appointment reserved",
		"appointment_id", created.ID,
		"provider_id", created.ProviderID,
		"service_id", created.ServiceID,
		"date", created.Date.String(),
		"start", model.FormatWallTime(created.Start),
		"status", string(created.Status),
	)
	e.notify(ctx, Event{Type: EventReserved, Appointment: created, Actor: req.Actor})
	return created, nil
}

func (e *Engine) validateReserve(req ReserveRequest) error {
	if err := e.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return &ValidationError{Message: err.Error()}
	}
	if !req.Date.IsValid() {
		return &ValidationError{Field: "date", Message: "must be a valid calendar date"}
	}
	if !req.Start.IsValid() {
		return &ValidationError{Field: "time", Message: "must be a valid time of day"}
	}
	switch req.Origin {
	case model.OriginCustomer, model.OriginProvider:
	default:
		return &ValidationError{Field: "origin", Message: fmt.Sprintf("unknown origin %q", req.Origin)}
	}
	return nil
}

func fieldError(fe validator.FieldError) *ValidationError {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "email":
		msg = "must be a valid email address"
	case "max":
		msg = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		msg = fmt.Sprintf("must be at least %s characters", fe.Param())
	default:
		msg = "is invalid"
	}
	return &ValidationError{Field: field, Message: msg}
}

func authorizeProviderBooking(actor model.Actor, providerID string) error {
	switch {
	case actor.Role == model.RoleSystem:
		return nil
	case actor.Role == model.RoleProvider && actor.ProviderID == providerID:
		return nil
	default:
		return &PolicyError{Rule: "permission", Message: "only the provider can create a confirmed booking on this calendar"}
	}
}
