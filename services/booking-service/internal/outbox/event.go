package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Event is the envelope written to the outbox table. The Kafka topic name equals
// EventType, one topic per event kind.
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const aggregateAppointment = "appointment"

// Topic maps an engine event type to its versioned topic, for example
// appointment.reserved to booking.appointment.reserved.v1.
func Topic(t booking.EventType) string {
	return "booking." + string(t) + ".v1"
}

type customerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type previousPayload struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	Status    string `json:"status"`
}

// AppointmentPayload is the JSON body of every appointment event.
type AppointmentPayload struct {
	EventID            string           `json:"event_id"`
	EventType          string           `json:"event_type"`
	OccurredAt         string           `json:"occurred_at"`
	AppointmentID      string           `json:"appointment_id"`
	ProviderID         string           `json:"provider_id"`
	ServiceID          string           `json:"service_id"`
	Date               string           `json:"date"`
	StartTime          string           `json:"start_time"`
	Status             string           `json:"status"`
	Origin             string           `json:"origin"`
	Customer           customerPayload  `json:"customer"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
	ActorRole          string           `json:"actor_role,omitempty"`
	Previous           *previousPayload `json:"previous,omitempty"`
}

// FromBookingEvent builds the outbox envelope for evt with a fresh event id.
func FromBookingEvent(evt booking.Event) (Event, error) {
	id := uuid.NewString()
	occurred := evt.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	a := evt.Appointment
	p := AppointmentPayload{
		EventID:       id,
		EventType:     Topic(evt.Type),
		OccurredAt:    occurred.UTC().Format(time.RFC3339),
		AppointmentID: a.ID,
		ProviderID:    a.ProviderID,
		ServiceID:     a.ServiceID,
		Date:          a.Date.String(),
		StartTime:     model.FormatWallTime(a.Start),
		Status:        string(a.Status),
		Origin:        string(a.Origin),
		Customer: customerPayload{
			Name:  a.Customer.Name,
			Email: a.Customer.Email,
			Phone: a.Customer.Phone,
		},
		CancellationReason: a.CancellationReason,
		ActorRole:          string(evt.Actor.Role),
	}
	if evt.Previous != nil {
		p.Previous = &previousPayload{
			Date:      evt.Previous.Date.String(),
			StartTime: model.FormatWallTime(evt.Previous.Start),
			Status:    string(evt.Previous.Status),
		}
	}
	body, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:       id,
		AggregateType: aggregateAppointment,
		AggregateID:   a.ID,
		EventType:     p.EventType,
		Payload:       body,
	}, nil
}
