package handlers

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type appointmentResponse struct {
	AppointmentID      string             `json:"appointment_id"`
	ProviderID         string             `json:"provider_id"`
	ServiceID          string             `json:"service_id"`
	Date               string             `json:"date"`
	Time               string             `json:"time"`
	Status             string             `json:"status"`
	Origin             string             `json:"origin"`
	Customer           model.CustomerInfo `json:"customer"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
	CreatedAt          string             `json:"created_at"`
	UpdatedAt          string             `json:"updated_at"`
	ConfirmedAt        string             `json:"confirmed_at,omitempty"`
	CompletedAt        string             `json:"completed_at,omitempty"`
	CancelledAt        string             `json:"cancelled_at,omitempty"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		AppointmentID:      a.ID,
		ProviderID:         a.ProviderID,
		ServiceID:          a.ServiceID,
		Date:               a.Date.String(),
		Time:               model.FormatWallTime(a.Start),
		Status:             string(a.Status),
		Origin:             string(a.Origin),
		Customer:           a.Customer,
		CancellationReason: a.CancellationReason,
		CreatedAt:          formatTime(&a.CreatedAt),
		UpdatedAt:          formatTime(&a.UpdatedAt),
		ConfirmedAt:        formatTime(a.ConfirmedAt),
		CompletedAt:        formatTime(a.CompletedAt),
		CancelledAt:        formatTime(a.CancelledAt),
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
