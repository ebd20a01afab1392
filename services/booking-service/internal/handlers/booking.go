package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Engine is the booking surface the HTTP API needs.
type Engine interface {
	GetAvailableSlots(ctx context.Context, providerID, serviceID string, date civil.Date) ([]civil.Time, error)
	Reserve(ctx context.Context, req booking.ReserveRequest) (model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, f booking.ListFilter) ([]model.Appointment, error)
	ChangeStatus(ctx context.Context, req booking.StatusChange) (model.Appointment, error)
	Reschedule(ctx context.Context, req booking.RescheduleRequest) (model.Appointment, error)
	RunAutoCompletionSweep(ctx context.Context) (booking.SweepResult, error)
	Stats() booking.Stats
}

type BookingHandler struct {
	engine Engine
	logger *slog.Logger
}

func NewBookingHandler(engine Engine, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: engine, logger: logger}
}

type bookRequest struct {
	ProviderID string             `json:"provider_id"`
	ServiceID  string             `json:"service_id"`
	Date       string             `json:"date"`
	Time       string             `json:"time"`
	Customer   model.CustomerInfo `json:"customer"`
}

type publicCancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Email         string `json:"email"`
	Reason        string `json:"reason"`
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
}

type slotsResponse struct {
	ProviderID string   `json:"provider_id"`
	ServiceID  string   `json:"service_id"`
	Date       string   `json:"date"`
	Slots      []string `json:"slots"`
}

type listResponse struct {
	Appointments []appointmentResponse `json:"appointments"`
}

type statsResponse struct {
	Strategy             string `json:"strategy"`
	DegradedReservations int64  `json:"degraded_reservations"`
}

// Slots answers GET /api/v1/public/slots?provider_id=&service_id=&date=YYYY-MM-DD.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("provider_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	date, err := model.ParseDate(q.Get("date"))
	if err != nil {
		h.writeError(w, r, &booking.ValidationError{Field: "date", Message: err.Error()})
		return
	}

	slots, err := h.engine.GetAvailableSlots(r.Context(), providerID, serviceID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := slotsResponse{ProviderID: providerID, ServiceID: serviceID, Date: date.String(), Slots: make([]string, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, model.FormatWallTime(s))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// PublicBook creates a pending, customer-initiated booking.
func (h *BookingHandler) PublicBook(w http.ResponseWriter, r *http.Request) {
	h.book(w, r, model.OriginCustomer, model.Actor{Role: model.RoleCustomer})
}

// ProviderBook creates a confirmed booking on the caller's own calendar.
func (h *BookingHandler) ProviderBook(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.book(w, r, model.OriginProvider, actor)
}

func (h *BookingHandler) book(w http.ResponseWriter, r *http.Request, origin model.Origin, actor model.Actor) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	date, start, err := parseSlot(req.Date, req.Time)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if actor.Role == model.RoleCustomer {
		actor.Email = req.Customer.Email
	}

	appt, err := h.engine.Reserve(r.Context(), booking.ReserveRequest{
		ProviderID: req.ProviderID,
		ServiceID:  req.ServiceID,
		Date:       date,
		Start:      start,
		Customer:   req.Customer,
		Origin:     origin,
		Actor:      actor,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// PublicCancel lets a customer cancel a booking made under their email.
func (h *BookingHandler) PublicCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req publicCancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	appt, err := h.engine.ChangeStatus(r.Context(), booking.StatusChange{
		AppointmentID: req.AppointmentID,
		To:            model.StatusCancelled,
		Reason:        req.Reason,
		Actor:         model.Actor{Role: model.RoleCustomer, Email: strings.TrimSpace(req.Email)},
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// List answers GET /api/v1/appointments. Providers see their own calendar; admins
// may pass provider_id.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	f := booking.ListFilter{ProviderID: actor.ProviderID}
	if actor.Role == model.RoleSystem {
		f.ProviderID = strings.TrimSpace(q.Get("provider_id"))
	}
	f.CustomerEmail = strings.TrimSpace(q.Get("customer_email"))
	for _, raw := range strings.Split(q.Get("status"), ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			f.Statuses = append(f.Statuses, model.Status(raw))
		}
	}
	var err error
	if raw := strings.TrimSpace(q.Get("date_from")); raw != "" {
		if f.DateFrom, err = model.ParseDate(raw); err != nil {
			h.writeError(w, r, &booking.ValidationError{Field: "date_from", Message: err.Error()})
			return
		}
	}
	if raw := strings.TrimSpace(q.Get("date_to")); raw != "" {
		if f.DateTo, err = model.ParseDate(raw); err != nil {
			h.writeError(w, r, &booking.ValidationError{Field: "date_to", Message: err.Error()})
			return
		}
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil || f.Limit <= 0 {
			h.writeError(w, r, &booking.ValidationError{Field: "limit", Message: "must be a positive integer"})
			return
		}
	}

	appts, err := h.engine.ListAppointments(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := listResponse{Appointments: make([]appointmentResponse, 0, len(appts))}
	for _, a := range appts {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(a))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Get answers GET /api/v1/appointments/detail?id=.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	appt, err := h.engine.GetAppointment(r.Context(), strings.TrimSpace(r.URL.Query().Get("id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if actor.Role == model.RoleProvider && appt.ProviderID != actor.ProviderID {
		h.writeError(w, r, &booking.NotFoundError{Entity: "appointment", ID: appt.ID})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	appt, err := h.engine.ChangeStatus(r.Context(), booking.StatusChange{
		AppointmentID: req.AppointmentID,
		To:            model.Status(strings.ToLower(strings.TrimSpace(req.Status))),
		Reason:        req.Reason,
		Actor:         actor,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	date, start, err := parseSlot(req.Date, req.Time)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	appt, err := h.engine.Reschedule(r.Context(), booking.RescheduleRequest{
		AppointmentID: req.AppointmentID,
		Date:          date,
		Start:         start,
		Actor:         actor,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// Sweep runs one auto-completion pass on demand.
func (h *BookingHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	res, err := h.engine.RunAutoCompletionSweep(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *BookingHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	s := h.engine.Stats()
	httpx.WriteJSON(w, http.StatusOK, statsResponse{Strategy: s.Strategy, DegradedReservations: s.DegradedReservations})
}

// actor maps the verified token onto an engine actor. Admin tokens act as the system.
func (h *BookingHandler) actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
		return model.Actor{}, false
	}
	switch claims.Role {
	case auth.RoleAdmin:
		return model.SystemActor(claims.Sub), true
	case auth.RoleProvider:
		if claims.ProviderID == "" {
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "provider token without provider_id")
			return model.Actor{}, false
		}
		return model.Actor{Role: model.RoleProvider, ProviderID: claims.ProviderID, Subject: claims.Sub}, true
	default:
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "insufficient role")
		return model.Actor{}, false
	}
}

func parseSlot(rawDate, rawTime string) (civil.Date, civil.Time, error) {
	date, err := model.ParseDate(rawDate)
	if err != nil {
		return civil.Date{}, civil.Time{}, &booking.ValidationError{Field: "date", Message: err.Error()}
	}
	start, err := model.ParseWallTime(rawTime)
	if err != nil {
		return civil.Date{}, civil.Time{}, &booking.ValidationError{Field: "time", Message: err.Error()}
	}
	return date, start, nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}
