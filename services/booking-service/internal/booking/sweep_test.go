package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memory"
)

func put(s *memory.Store, id, service string, day int, h, m int, status model.Status) {
	s.PutAppointment(model.Appointment{
		ID: id, ProviderID: "prov-1", ServiceID: service,
		Date: wednesday.AddDays(day), Start: hm(h, m), Status: status, Customer: customer(),
	})
}

func status(t *testing.T, s *memory.Store, id string) model.Status {
	t.Helper()
	a, err := s.GetAppointment(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAppointment(%s) failed: %v", id, err)
	}
	return a.Status
}

func TestRunAutoCompletionSweep(t *testing.T) {
	f := newFixture(t, nil)
	f.now = time.Date(2026, 1, 28, 10, 31, 0, 0, time.UTC)

	put(f.store, "ended-a-minute-ago", "svc-30", 0, 10, 0, model.StatusConfirmed)
	put(f.store, "cancelled", "svc-30", 0, 9, 0, model.StatusCancelled)
	put(f.store, "still-running", "svc-30", 0, 10, 15, model.StatusPending)
	put(f.store, "service-gone-ended", "svc-gone", 0, 9, 0, model.StatusConfirmed)
	put(f.store, "service-gone-running", "svc-gone", 0, 9, 45, model.StatusConfirmed)
	put(f.store, "yesterday", "svc-30", -1, 14, 0, model.StatusPending)
	put(f.store, "tomorrow", "svc-30", 1, 9, 0, model.StatusConfirmed)

	res, err := f.engine.RunAutoCompletionSweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if res.Completed != 3 || len(res.FailedIDs) != 0 {
		t.Fatalf("expected 3 completed and no failures, got %+v", res)
	}

	want := map[string]model.Status{
		"ended-a-minute-ago":   model.StatusCompleted,
		"cancelled":            model.StatusCancelled,
		"still-running":        model.StatusPending,
		"service-gone-ended":   model.StatusCompleted,
		"service-gone-running": model.StatusConfirmed,
		"yesterday":            model.StatusCompleted,
		"tomorrow":             model.StatusConfirmed,
	}
	for id, st := range want {
		if got := status(t, f.store, id); got != st {
			t.Errorf("%s: expected %s, got %s", id, st, got)
		}
	}

	f.notifier.mu.Lock()
	for _, evt := range f.notifier.events {
		if evt.Type != booking.EventCompleted || evt.Actor.Role != model.RoleSystem {
			t.Errorf("unexpected sweep event %+v", evt)
		}
	}
	f.notifier.mu.Unlock()

	again, err := f.engine.RunAutoCompletionSweep(context.Background())
	if err != nil || again.Completed != 0 {
		t.Fatalf("second sweep must be a no-op, got %+v, %v", again, err)
	}
}

// flakyStore fails status updates for one appointment.
type flakyStore struct {
	*memory.Store
	failID string
}

func (s flakyStore) UpdateStatus(ctx context.Context, u booking.StatusUpdate) (model.Appointment, error) {
	if u.ID == s.failID {
		return model.Appointment{}, errors.New("disk full")
	}
	return s.Store.UpdateStatus(ctx, u)
}

func TestRunAutoCompletionSweep_IsolatesFailures(t *testing.T) {
	mem := memory.New()
	f := newFixture(t, mem, withStore(flakyStore{Store: mem, failID: "b"}))
	f.now = time.Date(2026, 1, 28, 16, 0, 0, 0, time.UTC)

	put(mem, "a", "svc-30", 0, 9, 0, model.StatusConfirmed)
	put(mem, "b", "svc-30", 0, 10, 0, model.StatusConfirmed)
	put(mem, "c", "svc-30", 0, 11, 0, model.StatusPending)

	res, err := f.engine.RunAutoCompletionSweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if res.Completed != 2 || len(res.FailedIDs) != 1 || res.FailedIDs[0] != "b" {
		t.Fatalf("expected 2 completed and b failed, got %+v", res)
	}
	if status(t, mem, "b") != model.StatusConfirmed {
		t.Fatal("failed appointment must keep its status")
	}
}
