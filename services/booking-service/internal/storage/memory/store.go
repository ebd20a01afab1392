// Package memory is a process-local booking.Store used for development, tests and
// single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type Option func(*Store)

// WithLockTimeout bounds how long Atomic waits for a busy key.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithoutAtomic makes Atomic report booking.ErrAtomicUnavailable, emulating a backend
// that cannot serialize reservations.
func WithoutAtomic() Option {
	return func(s *Store) { s.atomicDisabled = true }
}

type Store struct {
	mu           sync.RWMutex
	providers    map[string]model.Provider
	services     map[string]model.Service
	hours        map[string]map[time.Weekday]model.DayHours
	appointments map[string]model.Appointment

	locksMu        sync.Mutex
	locks          map[string]chan struct{}
	lockTimeout    time.Duration
	atomicDisabled bool
}

func New(opts ...Option) *Store {
	s := &Store{
		providers:    map[string]model.Provider{},
		services:     map[string]model.Service{},
		hours:        map[string]map[time.Weekday]model.DayHours{},
		appointments: map[string]model.Appointment{},
		locks:        map[string]chan struct{}{},
		lockTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) PutProvider(p model.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = p
}

func (s *Store) PutService(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

// DeleteService removes a service while leaving its appointments in place.
func (s *Store) DeleteService(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.services, id)
}

func (s *Store) PutHours(providerID string, hours ...model.DayHours) {
	s.mu.Lock()
	defer s.mu.Unlock()
	week := s.hours[providerID]
	if week == nil {
		week = map[time.Weekday]model.DayHours{}
		s.hours[providerID] = week
	}
	for _, h := range hours {
		week[h.Weekday] = h
	}
}

// SaveProvider, SaveService and SaveHours let the store serve as a seed.Catalog.
func (s *Store) SaveProvider(_ context.Context, p model.Provider) error {
	s.PutProvider(p)
	return nil
}

func (s *Store) SaveService(_ context.Context, svc model.Service) error {
	s.PutService(svc)
	return nil
}

func (s *Store) SaveHours(_ context.Context, providerID string, hours []model.DayHours) error {
	s.PutHours(providerID, hours...)
	return nil
}

// PutAppointment stores appt as-is, assigning an id when missing. Seeding only; it
// performs no conflict checks.
func (s *Store) PutAppointment(appt model.Appointment) model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	s.appointments[appt.ID] = appt
	return appt
}

func (s *Store) GetProvider(_ context.Context, id string) (model.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return model.Provider{}, booking.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetService(_ context.Context, id string) (model.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return model.Service{}, booking.ErrNotFound
	}
	return svc, nil
}

func (s *Store) GetOperatingHours(_ context.Context, providerID string, weekday time.Weekday) (model.DayHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hours[providerID][weekday]
	if !ok {
		return model.DayHours{Weekday: weekday, Closed: true}, nil
	}
	return h, nil
}

func (s *Store) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, booking.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListActive(_ context.Context, providerID string, date civil.Date, excludeID string) ([]booking.Booked, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listActiveLocked(providerID, date, excludeID), nil
}

func (s *Store) listActiveLocked(providerID string, date civil.Date, excludeID string) []booking.Booked {
	var out []booking.Booked
	for _, a := range s.appointments {
		if a.ProviderID != providerID || a.Date != date || !a.Status.IsActive() || a.ID == excludeID {
			continue
		}
		b := booking.Booked{ID: a.ID, Start: a.Start}
		if svc, ok := s.services[a.ServiceID]; ok {
			b.DurationMinutes = svc.DurationMinutes
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (s *Store) ListAppointments(_ context.Context, f booking.ListFilter) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Appointment
	for _, a := range s.appointments {
		if matches(a, f) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Start != out[j].Start {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(a model.Appointment, f booking.ListFilter) bool {
	if f.ProviderID != "" && a.ProviderID != f.ProviderID {
		return false
	}
	if !f.DateFrom.IsZero() && a.Date.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && a.Date.After(f.DateTo) {
		return false
	}
	if f.CustomerEmail != "" && !strings.EqualFold(a.Customer.Email, f.CustomerEmail) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if a.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// InsertAppointment writes immediately, without any serialization.
func (s *Store) InsertAppointment(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(appt), nil
}

func (s *Store) insertLocked(appt model.Appointment) model.Appointment {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	s.appointments[appt.ID] = appt
	return appt
}

func (s *Store) UpdateSchedule(_ context.Context, id string, date civil.Date, start civil.Time, at time.Time) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rescheduleLocked(id, date, start, at)
}

func (s *Store) rescheduleLocked(id string, date civil.Date, start civil.Time, at time.Time) (model.Appointment, error) {
	a, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, booking.ErrNotFound
	}
	a.Date = date
	a.Start = start
	a.UpdatedAt = at
	s.appointments[id] = a
	return a, nil
}

func (s *Store) UpdateStatus(_ context.Context, u booking.StatusUpdate) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[u.ID]
	if !ok {
		return model.Appointment{}, booking.ErrNotFound
	}
	if a.Status != u.From {
		return model.Appointment{}, booking.ErrStatusChanged
	}
	at := u.At
	a.Status = u.To
	a.UpdatedAt = at
	switch u.To {
	case model.StatusConfirmed:
		a.ConfirmedAt = &at
	case model.StatusCompleted:
		a.CompletedAt = &at
	case model.StatusCancelled:
		a.CancelledAt = &at
		a.CancellationReason = u.Reason
	}
	s.appointments[u.ID] = a
	return a, nil
}

// Atomic holds one semaphore per key for the duration of fn. Writes made through the
// Tx are buffered and applied only when fn succeeds.
func (s *Store) Atomic(ctx context.Context, keys []booking.LockKey, fn func(ctx context.Context, tx booking.Tx) error) error {
	if s.atomicDisabled {
		return booking.ErrAtomicUnavailable
	}

	release, err := s.acquire(ctx, booking.SortedKeys(keys))
	if err != nil {
		return err
	}
	defer release()

	tx := &memTx{store: s, inserts: map[string]model.Appointment{}, moves: map[string]move{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.apply()
}

func (s *Store) acquire(ctx context.Context, keys []booking.LockKey) (func(), error) {
	var held []chan struct{}
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	for _, k := range keys {
		sem := s.semaphore(k.String())
		select {
		case sem <- struct{}{}:
			held = append(held, sem)
		case <-ctx.Done():
			release()
			return nil, fmt.Errorf("%w: %s: %w", booking.ErrLockTimeout, k, ctx.Err())
		case <-timer.C:
			release()
			return nil, fmt.Errorf("%w: %s", booking.ErrLockTimeout, k)
		}
	}
	return release, nil
}

func (s *Store) semaphore(key string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	sem, ok := s.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[key] = sem
	}
	return sem
}

type move struct {
	date  civil.Date
	start civil.Time
	at    time.Time
}

// memTx overlays buffered writes on the store's committed state.
type memTx struct {
	store   *Store
	inserts map[string]model.Appointment
	moves   map[string]move
}

func (t *memTx) ListActive(_ context.Context, providerID string, date civil.Date, excludeID string) ([]booking.Booked, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	var out []booking.Booked
	for _, b := range t.store.listActiveLocked(providerID, date, excludeID) {
		if _, moved := t.moves[b.ID]; !moved {
			out = append(out, b)
		}
	}
	for id, a := range t.visibleLocked() {
		if a.ProviderID != providerID || a.Date != date || !a.Status.IsActive() || id == excludeID {
			continue
		}
		b := booking.Booked{ID: id, Start: a.Start}
		if svc, ok := t.store.services[a.ServiceID]; ok {
			b.DurationMinutes = svc.DurationMinutes
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// visibleLocked returns this transaction's inserted and moved appointments.
func (t *memTx) visibleLocked() map[string]model.Appointment {
	out := make(map[string]model.Appointment, len(t.inserts)+len(t.moves))
	for id, a := range t.inserts {
		out[id] = a
	}
	for id, m := range t.moves {
		a, ok := out[id]
		if !ok {
			a, ok = t.store.appointments[id]
		}
		if !ok {
			continue
		}
		a.Date, a.Start, a.UpdatedAt = m.date, m.start, m.at
		out[id] = a
	}
	return out
}

func (t *memTx) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	t.store.mu.RLock()
	a, ok := t.visibleLocked()[id]
	t.store.mu.RUnlock()
	if ok {
		return a, nil
	}
	return t.store.GetAppointment(ctx, id)
}

func (t *memTx) InsertAppointment(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	t.inserts[appt.ID] = appt
	return appt, nil
}

func (t *memTx) UpdateSchedule(ctx context.Context, id string, date civil.Date, start civil.Time, at time.Time) (model.Appointment, error) {
	if _, err := t.GetAppointment(ctx, id); err != nil {
		return model.Appointment{}, err
	}
	t.moves[id] = move{date: date, start: start, at: at}
	return t.GetAppointment(ctx, id)
}

func (t *memTx) apply() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, a := range t.inserts {
		t.store.insertLocked(a)
	}
	for id, m := range t.moves {
		if _, err := t.store.rescheduleLocked(id, m.date, m.start, m.at); err != nil {
			return err
		}
	}
	return nil
}
