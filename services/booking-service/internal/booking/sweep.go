package booking

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/policy"
	"go.opentelemetry.io/otel/attribute"
)

// SweepResult summarises one auto-completion pass. FailedIDs are retried by the
// next pass.
type SweepResult struct {
	Completed int      `json:"completed"`
	FailedIDs []string `json:"failed_ids"`
}

const sweepActor = "auto-completion"

// RunAutoCompletionSweep marks every pending or confirmed appointment whose end time
// (start + service duration) has passed as completed. A failure on one appointment
// is recorded and never stops the rest. The error is non-nil only when the
// candidates could not be listed.
func (e *Engine) RunAutoCompletionSweep(ctx context.Context) (SweepResult, error) {
	ctx, span := e.tracer.Start(ctx, "booking.RunAutoCompletionSweep")
	defer span.End()

	now := e.now()
	// One day of slack covers providers whose local date is ahead of UTC.
	through := civil.DateOf(now.UTC()).AddDays(1)
	appts, err := e.store.ListAppointments(ctx, ListFilter{
		Statuses: model.ActiveStatuses,
		DateTo:   through,
		Limit:    -1,
	})
	if err != nil {
		return SweepResult{}, e.fail(span, storeErr("list appointments for sweep", err))
	}

	res := SweepResult{FailedIDs: []string{}}
	rulesCache := map[string]policy.Rules{}
	durationCache := map[string]time.Duration{}
	actor := model.SystemActor(sweepActor)

	for _, a := range appts {
		rules, err := e.sweepRules(ctx, a.ProviderID, rulesCache)
		if err != nil {
			e.sweepFailed(ctx, &res, a, err)
			continue
		}
		duration, err := e.sweepDuration(ctx, a.ServiceID, rules, durationCache)
		if err != nil {
			e.sweepFailed(ctx, &res, a, err)
			continue
		}
		end := model.Instant(a.Date, a.Start, rules.Loc()).Add(duration)
		if now.Before(end) {
			continue
		}

		updated, err := e.store.UpdateStatus(ctx, StatusUpdate{
			ID:   a.ID,
			From: a.Status,
			To:   model.StatusCompleted,
			At:   now,
		})
		if errors.Is(err, ErrStatusChanged) {
			e.logger.DebugContext(ctx, "sweep skipped appointment changed concurrently", "appointment_id", a.ID)
			continue
		}
		if err != nil {
			e.sweepFailed(ctx, &res, a, err)
			continue
		}
		res.Completed++
		e.notify(ctx, Event{Type: EventCompleted, Appointment: updated, Actor: actor, Previous: &a})
	}

	span.SetAttributes(
		attribute.Int("completed", res.Completed),
		attribute.Int("failed", len(res.FailedIDs)),
	)
	if res.Completed > 0 || len(res.FailedIDs) > 0 {
		e.logger.InfoContext(ctx, "auto-completion sweep finished",
			"completed", res.Completed,
			"failed", len(res.FailedIDs),
		)
	}
	return res, nil
}

func (e *Engine) sweepFailed(ctx context.Context, res *SweepResult, a model.Appointment, err error) {
	res.FailedIDs = append(res.FailedIDs, a.ID)
	e.logger.WarnContext(ctx, "auto-completion failed", "appointment_id", a.ID, "err", err)
}

func (e *Engine) sweepRules(ctx context.Context, providerID string, cache map[string]policy.Rules) (policy.Rules, error) {
	if r, ok := cache[providerID]; ok {
		return r, nil
	}
	r, err := e.policy.Rules(ctx, providerID)
	if err != nil {
		return policy.Rules{}, err
	}
	p, err := e.store.GetProvider(ctx, providerID)
	switch {
	case err == nil:
		r = r.ForProvider(p)
	case !errors.Is(err, ErrNotFound):
		return policy.Rules{}, err
	}
	cache[providerID] = r
	return r, nil
}

// sweepDuration falls back to the configured duration when the service no longer
// exists.
func (e *Engine) sweepDuration(ctx context.Context, serviceID string, rules policy.Rules, cache map[string]time.Duration) (time.Duration, error) {
	if d, ok := cache[serviceID]; ok {
		return d, nil
	}
	svc, err := e.store.GetService(ctx, serviceID)
	var d time.Duration
	switch {
	case err == nil && svc.DurationMinutes > 0:
		d = svc.Duration()
	case err == nil, errors.Is(err, ErrNotFound):
		d = rules.FallbackDuration
	default:
		return 0, err
	}
	cache[serviceID] = d
	return d, nil
}
