package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
)

var (
	// ErrQueueFull is returned when Async has no room for another event; the event is
	// dropped.
	ErrQueueFull = errors.New("notification queue full")
	ErrClosed    = errors.New("notifier closed")
)

// Async hands events to a single background worker so slow sinks never hold up the
// caller. Notify only enqueues.
type Async struct {
	next    booking.Notifier
	logger  *slog.Logger
	timeout time.Duration
	queue   chan queued
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

type queued struct {
	ctx context.Context
	evt booking.Event
}

type AsyncConfig struct {
	// QueueSize bounds buffered events. Defaults to 256.
	QueueSize int
	// Timeout bounds each delivery. Defaults to 15s.
	Timeout time.Duration
}

func NewAsync(next booking.Notifier, logger *slog.Logger, cfg AsyncConfig) *Async {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	a := &Async{
		next:    next,
		logger:  logger,
		timeout: cfg.Timeout,
		queue:   make(chan queued, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Notify(ctx context.Context, evt booking.Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- queued{ctx: context.WithoutCancel(ctx), evt: evt}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for q := range a.queue {
		ctx, cancel := context.WithTimeout(q.ctx, a.timeout)
		if err := a.next.Notify(ctx, q.evt); err != nil {
			a.logger.WarnContext(ctx, "customer notification failed",
				"event", string(q.evt.Type),
				"appointment_id", q.evt.Appointment.ID,
				"err", err,
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queued ones, or for ctx.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
