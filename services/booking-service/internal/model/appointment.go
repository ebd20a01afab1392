package model

import (
	"time"

	"cloud.google.com/go/civil"
)

// Origin records who created a booking. Provider-created bookings start confirmed.
type Origin string

const (
	OriginCustomer Origin = "customer"
	OriginProvider Origin = "provider"
)

func (o Origin) InitialStatus() Status {
	if o == OriginProvider {
		return StatusConfirmed
	}
	return StatusPending
}

type CustomerInfo struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email,max=254"`
	Phone string `json:"phone" validate:"omitempty,min=7,max=32"`
	Notes string `json:"notes" validate:"max=2000"`
}

// Appointment is a booking of one service with one provider. Date and Start are
// wall-clock values in the provider's local calendar.
type Appointment struct {
	ID                 string
	ProviderID         string
	ServiceID          string
	Date               civil.Date
	Start              civil.Time
	Status             Status
	Origin             Origin
	Customer           CustomerInfo
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ConfirmedAt        *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
}

// Role is the kind of caller acting on an appointment.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
	RoleSystem   Role = "system"
)

type Actor struct {
	Role       Role
	ProviderID string
	Email      string
	Subject    string
}

func SystemActor(subject string) Actor {
	return Actor{Role: RoleSystem, Subject: subject}
}
