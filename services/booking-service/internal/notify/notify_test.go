package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type fakeMailer struct {
	to, subject, body string
	err               error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	f.to, f.subject, f.body = to, subject, body
	return f.err
}

func event(typ booking.EventType, status model.Status) booking.Event {
	return booking.Event{
		Type: typ,
		Appointment: model.Appointment{
			ID:       "appt-1",
			Date:     civil.Date{Year: 2026, Month: 1, Day: 28},
			Start:    civil.Time{Hour: 10, Minute: 30},
			Status:   status,
			Customer: model.CustomerInfo{Name: "Ada", Email: "ada@example.com", Phone: "+15550100"},
		},
	}
}

func TestEmailNotifier(t *testing.T) {
	m := &fakeMailer{}
	n := EmailNotifier{Sender: m}

	if err := n.Notify(context.Background(), event(booking.EventReserved, model.StatusPending)); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if m.to != "ada@example.com" || m.subject != "Appointment requested" || !strings.Contains(m.body, "2026-01-28 at 10:30") {
		t.Fatalf("unexpected mail %+v", m)
	}

	cancelled := event(booking.EventCancelled, model.StatusCancelled)
	cancelled.Appointment.CancellationReason = "sick"
	if err := n.Notify(context.Background(), cancelled); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if !strings.HasSuffix(m.body, "Reason: sick") {
		t.Fatalf("cancellation mail must carry the reason, got %q", m.body)
	}

	m.subject = ""
	if err := n.Notify(context.Background(), event(booking.EventCompleted, model.StatusCompleted)); err != nil || m.subject != "" {
		t.Fatalf("completion must not mail the customer, got %q %v", m.subject, err)
	}

	m.err = errors.New("relay down")
	if err := n.Notify(context.Background(), event(booking.EventConfirmed, model.StatusConfirmed)); err == nil {
		t.Fatal("expected sender error")
	}
}

func TestRescheduleMentionsPreviousSlot(t *testing.T) {
	evt := event(booking.EventRescheduled, model.StatusConfirmed)
	prev := evt.Appointment
	prev.Start = civil.Time{Hour: 9}
	evt.Previous = &prev
	_, body, ok := render(evt)
	if !ok || !strings.Contains(body, "at 09:00 moved to 2026-01-28 at 10:30") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestSMSNotifierPostsToWebhook(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := SMSNotifier{Sender: NewWebhookSender(srv.URL, "tok")}
	if err := n.Notify(context.Background(), event(booking.EventConfirmed, model.StatusConfirmed)); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if got["to"] != "+15550100" || !strings.Contains(got["body"], "confirmed") {
		t.Fatalf("unexpected payload %v", got)
	}

	bad := SMSNotifier{Sender: NewWebhookSender(srv.URL, "wrong")}
	if err := bad.Notify(context.Background(), event(booking.EventConfirmed, model.StatusConfirmed)); err == nil {
		t.Fatal("expected error on non-2xx")
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	calls := 0
	ok := booking.NotifierFunc(func(context.Context, booking.Event) error { calls++; return nil })
	fail := booking.NotifierFunc(func(context.Context, booking.Event) error { calls++; return errors.New("x") })
	err := Fanout{fail, ok}.Notify(context.Background(), booking.Event{})
	if err == nil || calls != 2 {
		t.Fatalf("expected both notifiers to run and an error, got calls=%d err=%v", calls, err)
	}
}
