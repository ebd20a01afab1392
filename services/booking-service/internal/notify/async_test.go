package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAsyncQueuesAndDrains(t *testing.T) {
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	var delivered atomic.Int32
	next := booking.NotifierFunc(func(context.Context, booking.Event) error {
		started <- struct{}{}
		<-release
		delivered.Add(1)
		return nil
	})
	a := NewAsync(next, discard(), AsyncConfig{QueueSize: 1})

	evt := event(booking.EventConfirmed, model.StatusConfirmed)
	if err := a.Notify(context.Background(), evt); err != nil {
		t.Fatalf("first Notify failed: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first event")
	}
	if err := a.Notify(context.Background(), evt); err != nil {
		t.Fatalf("second Notify failed: %v", err)
	}
	if err := a.Notify(context.Background(), evt); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := delivered.Load(); got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
	if err := a.Notify(context.Background(), evt); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestAsyncBoundsStuckSink(t *testing.T) {
	next := booking.NotifierFunc(func(ctx context.Context, _ booking.Event) error {
		<-ctx.Done()
		return ctx.Err()
	})
	a := NewAsync(next, discard(), AsyncConfig{Timeout: 50 * time.Millisecond})

	// A cancelled caller context must not cut delivery short or block the caller.
	caller, cancelCaller := context.WithCancel(context.Background())
	cancelCaller()
	if err := a.Notify(caller, event(booking.EventConfirmed, model.StatusConfirmed)); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close should finish once the delivery timeout fires: %v", err)
	}
}

func TestAsyncEmailDoesNotBlockCaller(t *testing.T) {
	host, port := silentSMTP(t)
	a := NewAsync(EmailNotifier{Sender: NewSMTPSender(host, port, "")}, discard(), AsyncConfig{Timeout: 200 * time.Millisecond})

	done := make(chan error, 1)
	go func() {
		done <- a.Notify(context.Background(), event(booking.EventReserved, model.StatusPending))
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Notify failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a silent SMTP server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
