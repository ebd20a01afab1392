package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/policy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"

// ReservationStrategy decides what happens when the store cannot serialize a
// reservation.
type ReservationStrategy int

const (
	// StrictReservation fails with a StoreError instead of booking without a lock.
	StrictReservation ReservationStrategy = iota
	// BestEffortReservation falls back to check-then-write, logging each occurrence
	// as degraded. Two concurrent requests may then both succeed.
	BestEffortReservation
)

func ParseReservationStrategy(raw string) (ReservationStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "strict":
		return StrictReservation, nil
	case "best_effort", "best-effort":
		return BestEffortReservation, nil
	default:
		return StrictReservation, fmt.Errorf("unknown reservation strategy %q", raw)
	}
}

func (s ReservationStrategy) String() string {
	if s == BestEffortReservation {
		return "best_effort"
	}
	return "strict"
}

type Options struct {
	Store    Store
	Policy   policy.Provider
	Notifier Notifier
	Strategy ReservationStrategy
	Logger   *slog.Logger
	// Now is the engine clock. Defaults to time.Now.
	Now func() time.Time
}

// Engine answers availability queries and applies every booking state change. It
// holds no calendar state between calls.
type Engine struct {
	store    Store
	policy   policy.Provider
	notifier Notifier
	strategy ReservationStrategy
	logger   *slog.Logger
	now      func() time.Time
	validate *validator.Validate
	tracer   trace.Tracer
	degraded atomic.Int64
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("booking: store is required")
	}
	if opts.Policy == nil {
		opts.Policy = policy.NewStaticProvider(policy.Defaults(), nil)
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	return &Engine{
		store:    opts.Store,
		policy:   opts.Policy,
		notifier: opts.Notifier,
		strategy: opts.Strategy,
		logger:   opts.Logger,
		now:      opts.Now,
		validate: v,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

type Stats struct {
	Strategy             string
	DegradedReservations int64
}

func (e *Engine) Stats() Stats {
	return Stats{Strategy: e.strategy.String(), DegradedReservations: e.degraded.Load()}
}

// GetAvailableSlots returns the bookable start times for service with provider on
// date, ascending. A closed day yields an empty list.
func (e *Engine) GetAvailableSlots(ctx context.Context, providerID, serviceID string, date civil.Date) ([]civil.Time, error) {
	ctx, span := e.tracer.Start(ctx, "booking.GetAvailableSlots")
	defer span.End()

	if err := requireIDs(providerID, serviceID); err != nil {
		return nil, e.fail(span, err)
	}
	if !date.IsValid() {
		return nil, e.fail(span, &ValidationError{Field: "date", Message: "must be a valid calendar date"})
	}

	_, service, rules, err := e.resolve(ctx, providerID, serviceID)
	if err != nil {
		return nil, e.fail(span, err)
	}
	hours, err := e.store.GetOperatingHours(ctx, providerID, model.Weekday(date))
	if err != nil {
		return nil, e.fail(span, storeErr("load operating hours", err))
	}
	if !hours.IsOpen() {
		return []civil.Time{}, nil
	}

	candidates := availability.GenerateSlots(anchor(date, hours.Open), anchor(date, hours.Close),
		service.Duration(), rules.SlotInterval, rules.Buffer)
	if len(candidates) == 0 {
		return []civil.Time{}, nil
	}

	booked, err := e.store.ListActive(ctx, providerID, date, "")
	if err != nil {
		return nil, e.fail(span, storeErr("list active appointments", err))
	}
	free := availability.FilterConflicts(candidates, service.Duration(), rules.Buffer, busyIntervals(date, booked, rules))

	now := e.now()
	out := make([]civil.Time, 0, len(free))
	for _, s := range free {
		wall := civil.TimeOf(s)
		if policy.CheckWindow(now, model.Instant(date, wall, rules.Loc()), rules) != nil {
			continue
		}
		out = append(out, wall)
	}
	return out, nil
}

func (e *Engine) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return model.Appointment{}, &ValidationError{Field: "appointment_id", Message: "is required"}
	}
	appt, err := e.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, notFoundOr("appointment", id, "load appointment", err)
	}
	return appt, nil
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (e *Engine) ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	for _, s := range f.Statuses {
		if !s.IsValid() {
			return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", s)}
		}
	}
	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() && f.DateTo.Before(f.DateFrom) {
		return nil, &ValidationError{Field: "date_to", Message: "must not be before date_from"}
	}
	appts, err := e.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, storeErr("list appointments", err)
	}
	return appts, nil
}

// resolve loads the provider and service and the rules for the provider. Inactive or
// mismatched records read as not found.
func (e *Engine) resolve(ctx context.Context, providerID, serviceID string) (model.Provider, model.Service, policy.Rules, error) {
	provider, err := e.store.GetProvider(ctx, providerID)
	if err != nil {
		return model.Provider{}, model.Service{}, policy.Rules{}, notFoundOr("provider", providerID, "load provider", err)
	}
	if !provider.Active {
		return model.Provider{}, model.Service{}, policy.Rules{}, &NotFoundError{Entity: "provider", ID: providerID}
	}
	service, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return model.Provider{}, model.Service{}, policy.Rules{}, notFoundOr("service", serviceID, "load service", err)
	}
	if !service.Active || service.ProviderID != providerID || service.DurationMinutes <= 0 {
		return model.Provider{}, model.Service{}, policy.Rules{}, &NotFoundError{Entity: "service", ID: serviceID}
	}
	rules, err := e.policy.Rules(ctx, providerID)
	if err != nil {
		return model.Provider{}, model.Service{}, policy.Rules{}, &StoreError{Op: "resolve booking policy", Err: err}
	}
	return provider, service, rules.ForProvider(provider), nil
}

// slotPlan is a validated target for a reservation or a reschedule.
type slotPlan struct {
	service   model.Service
	rules     policy.Rules
	occupancy availability.Interval
}

// planSlot runs every check that does not need the lock: existence, booking window
// and operating hours.
func (e *Engine) planSlot(ctx context.Context, providerID, serviceID string, date civil.Date, start civil.Time) (slotPlan, error) {
	_, service, rules, err := e.resolve(ctx, providerID, serviceID)
	if err != nil {
		return slotPlan{}, err
	}

	if err := policy.CheckWindow(e.now(), model.Instant(date, start, rules.Loc()), rules); err != nil {
		var v *policy.WindowViolation
		if errors.As(err, &v) {
			return slotPlan{}, &PolicyError{Rule: v.Rule, Message: v.Message}
		}
		return slotPlan{}, &PolicyError{Rule: "booking_window", Message: err.Error()}
	}

	hours, err := e.store.GetOperatingHours(ctx, providerID, model.Weekday(date))
	if err != nil {
		return slotPlan{}, storeErr("load operating hours", err)
	}
	if !hours.IsOpen() {
		return slotPlan{}, &PolicyError{
			Rule:    "operating_hours",
			Message: fmt.Sprintf("the provider is closed on %s", model.Weekday(date)),
		}
	}
	occ := availability.Occupancy(anchor(date, start), service.Duration(), rules.Buffer)
	if !availability.Fits(occ, anchor(date, hours.Open), anchor(date, hours.Close)) {
		return slotPlan{}, &PolicyError{
			Rule: "operating_hours",
			Message: fmt.Sprintf("a %d minute booking at %s does not fit within operating hours %s-%s",
				service.DurationMinutes, model.FormatWallTime(start),
				model.FormatWallTime(hours.Open), model.FormatWallTime(hours.Close)),
		}
	}
	return slotPlan{service: service, rules: rules, occupancy: occ}, nil
}

func (p slotPlan) checkFree(date civil.Date, booked []Booked) error {
	if hit, clash := availability.FirstConflict(p.occupancy, busyIntervals(date, booked, p.rules)); clash {
		return &ConflictError{
			Message:       "the requested time overlaps an existing booking; choose another slot",
			ConflictingID: hit.Ref,
		}
	}
	return nil
}

// atomically runs fn under keys. With BestEffortReservation a store without the
// atomic primitive runs fn directly against itself, and the occurrence is counted
// and logged.
func (e *Engine) atomically(ctx context.Context, op string, keys []LockKey, fn func(ctx context.Context, tx Tx) error) error {
	err := e.store.Atomic(ctx, keys, fn)
	if !errors.Is(err, ErrAtomicUnavailable) || e.strategy != BestEffortReservation {
		return err
	}
	e.degraded.Add(1)
	attrs := []any{"op", op, "strategy", e.strategy.String()}
	for _, k := range keys {
		attrs = append(attrs, "lock_key", k.String())
	}
	e.logger.WarnContext(ctx, "degraded reservation: atomic unit unavailable, using unserialized check-then-write", attrs...)
	return fn(ctx, e.store)
}

func (e *Engine) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, Kind(err))
	return err
}

// anchor places a wall time on date in UTC. Interval arithmetic within one calendar
// day uses this neutral anchor; only booking-window checks use the real location.
func anchor(date civil.Date, t civil.Time) time.Time {
	return model.Instant(date, t, time.UTC)
}

func busyIntervals(date civil.Date, booked []Booked, rules policy.Rules) []availability.Interval {
	out := make([]availability.Interval, 0, len(booked))
	for _, b := range booked {
		d := time.Duration(b.DurationMinutes) * time.Minute
		if d <= 0 {
			d = rules.FallbackDuration
		}
		iv := availability.Occupancy(anchor(date, b.Start), d, rules.Buffer)
		iv.Ref = b.ID
		out = append(out, iv)
	}
	return out
}

func requireIDs(providerID, serviceID string) error {
	if strings.TrimSpace(providerID) == "" {
		return &ValidationError{Field: "provider_id", Message: "is required"}
	}
	if strings.TrimSpace(serviceID) == "" {
		return &ValidationError{Field: "service_id", Message: "is required"}
	}
	return nil
}
