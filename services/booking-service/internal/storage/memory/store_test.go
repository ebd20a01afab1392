package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

var day = civil.Date{Year: 2026, Month: time.January, Day: 28}

func TestAtomicTimesOutOnHeldKey(t *testing.T) {
	s := New(WithLockTimeout(50 * time.Millisecond))
	key := booking.LockKey{ProviderID: "p1", Date: day}

	entered := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.Atomic(context.Background(), []booking.LockKey{key}, func(context.Context, booking.Tx) error {
			close(entered)
			<-done
			return nil
		})
	}()
	<-entered
	defer close(done)

	err := s.Atomic(context.Background(), []booking.LockKey{key}, func(context.Context, booking.Tx) error {
		t.Fatal("must not enter while the key is held")
		return nil
	})
	if !errors.Is(err, booking.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}

func TestAtomicOtherKeysDoNotContend(t *testing.T) {
	s := New(WithLockTimeout(50 * time.Millisecond))

	entered := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.Atomic(context.Background(), []booking.LockKey{{ProviderID: "p1", Date: day}}, func(context.Context, booking.Tx) error {
			close(entered)
			<-done
			return nil
		})
	}()
	<-entered
	defer close(done)

	if err := s.Atomic(context.Background(), []booking.LockKey{{ProviderID: "p2", Date: day}}, func(context.Context, booking.Tx) error {
		return nil
	}); err != nil {
		t.Fatalf("different provider must not wait: %v", err)
	}
}

func TestAtomicDiscardsWritesOnError(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	err := s.Atomic(context.Background(), []booking.LockKey{{ProviderID: "p1", Date: day}}, func(ctx context.Context, tx booking.Tx) error {
		if _, err := tx.InsertAppointment(ctx, model.Appointment{ProviderID: "p1", Date: day, Status: model.StatusPending}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	all, _ := s.ListAppointments(context.Background(), booking.ListFilter{})
	if len(all) != 0 {
		t.Fatalf("expected no appointments after rollback, got %d", len(all))
	}
}

func TestTxSeesItsOwnInsert(t *testing.T) {
	s := New()
	err := s.Atomic(context.Background(), []booking.LockKey{{ProviderID: "p1", Date: day}}, func(ctx context.Context, tx booking.Tx) error {
		if _, err := tx.InsertAppointment(ctx, model.Appointment{ProviderID: "p1", Date: day, Start: civil.Time{Hour: 9}, Status: model.StatusPending}); err != nil {
			return err
		}
		booked, err := tx.ListActive(ctx, "p1", day, "")
		if err != nil {
			return err
		}
		if len(booked) != 1 {
			t.Fatalf("expected own insert to be visible, got %d", len(booked))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Atomic failed: %v", err)
	}
}

func TestWithoutAtomic(t *testing.T) {
	s := New(WithoutAtomic())
	err := s.Atomic(context.Background(), nil, func(context.Context, booking.Tx) error {
		t.Fatal("fn must not run")
		return nil
	})
	if !errors.Is(err, booking.ErrAtomicUnavailable) {
		t.Fatalf("expected ErrAtomicUnavailable, got %v", err)
	}
}

func TestUpdateStatusIsConditional(t *testing.T) {
	s := New()
	a := s.PutAppointment(model.Appointment{ProviderID: "p1", Date: day, Status: model.StatusPending})

	at := time.Date(2026, 1, 27, 10, 0, 0, 0, time.UTC)
	if _, err := s.UpdateStatus(context.Background(), booking.StatusUpdate{ID: a.ID, From: model.StatusConfirmed, To: model.StatusCompleted, At: at}); !errors.Is(err, booking.ErrStatusChanged) {
		t.Fatalf("expected ErrStatusChanged, got %v", err)
	}
	got, err := s.UpdateStatus(context.Background(), booking.StatusUpdate{ID: a.ID, From: model.StatusPending, To: model.StatusCancelled, Reason: "sick", At: at})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if got.CancellationReason != "sick" || got.CancelledAt == nil || !got.CancelledAt.Equal(at) {
		t.Fatalf("unexpected appointment %+v", got)
	}
}
