package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestFromBookingEvent(t *testing.T) {
	prev := model.Appointment{
		Date:   civil.Date{Year: 2026, Month: time.January, Day: 28},
		Start:  civil.Time{Hour: 10},
		Status: model.StatusPending,
	}
	evt := booking.Event{
		Type: booking.EventRescheduled,
		Appointment: model.Appointment{
			ID:         "appt-1",
			ProviderID: "prov-1",
			ServiceID:  "svc-30",
			Date:       civil.Date{Year: 2026, Month: time.January, Day: 29},
			Start:      civil.Time{Hour: 11, Minute: 15},
			Status:     model.StatusPending,
			Origin:     model.OriginCustomer,
			Customer:   model.CustomerInfo{Name: "Ada", Email: "ada@example.com"},
		},
		Actor:      model.Actor{Role: model.RoleCustomer, Email: "ada@example.com"},
		Previous:   &prev,
		OccurredAt: time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC),
	}

	out, err := FromBookingEvent(evt)
	if err != nil {
		t.Fatalf("FromBookingEvent failed: %v", err)
	}
	if out.EventType != "booking.appointment.rescheduled.v1" || out.AggregateID != "appt-1" || out.EventID == "" {
		t.Fatalf("unexpected envelope %+v", out)
	}

	var p AppointmentPayload
	if err := json.Unmarshal(out.Payload, &p); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if p.EventID != out.EventID || p.Date != "2026-01-29" || p.StartTime != "11:15" {
		t.Fatalf("unexpected payload %+v", p)
	}
	if p.Previous == nil || p.Previous.StartTime != "10:00" || p.Previous.Date != "2026-01-28" {
		t.Fatalf("previous slot missing: %+v", p.Previous)
	}
	if p.OccurredAt != "2026-01-20T08:00:00Z" || p.ActorRole != "customer" {
		t.Fatalf("unexpected metadata %+v", p)
	}
}

func TestMessageCarriesHeadersAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	msg := message(context.Background(), Record{
		ID:            7,
		EventID:       "evt-1",
		AggregateType: "appointment",
		AggregateID:   "appt-1",
		EventType:     "booking.appointment.reserved.v1",
		Payload:       []byte(`{}`),
		Traceparent:   traceparent,
	})
	if msg.Topic != "booking.appointment.reserved.v1" || string(msg.Key) != "appt-1" {
		t.Fatalf("unexpected message routing %+v", msg)
	}
	if kafkax.HeaderValue(msg.Headers, "event_id") != "evt-1" {
		t.Fatalf("event_id header missing: %+v", msg.Headers)
	}
	if got := kafkax.HeaderValue(msg.Headers, "traceparent"); got != traceparent {
		t.Fatalf("expected trace context to be forwarded, got %q", got)
	}
}
