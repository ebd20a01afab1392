package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Sentinels returned by Store implementations.
var (
	ErrNotFound = errors.New("not found")
	// ErrLockTimeout means the atomic unit could not be entered in time.
	ErrLockTimeout = errors.New("lock wait timed out")
	// ErrAtomicUnavailable means the store cannot provide the atomic check-and-insert.
	ErrAtomicUnavailable = errors.New("atomic reservation unavailable")
	// ErrStatusChanged means a conditional status update matched no row.
	ErrStatusChanged = errors.New("appointment status changed")
)

// LockKey scopes the atomic unit: one provider's calendar on one date.
type LockKey struct {
	ProviderID string
	Date       civil.Date
}

func (k LockKey) String() string {
	return fmt.Sprintf("booking:%s:%s", k.ProviderID, k.Date)
}

// SortedKeys returns keys deduplicated in a stable order so that multi-key callers
// always acquire locks in the same sequence.
func SortedKeys(keys []LockKey) []LockKey {
	seen := make(map[string]LockKey, len(keys))
	for _, k := range keys {
		seen[k.String()] = k
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]LockKey, 0, len(names))
	for _, name := range names {
		out = append(out, seen[name])
	}
	return out
}

// Booked is an active appointment as seen by the conflict detector. DurationMinutes
// is zero when the appointment's service can no longer be resolved.
type Booked struct {
	ID              string
	Start           civil.Time
	DurationMinutes int
}

// ListFilter selects appointments. Zero fields do not filter; Limit <= 0 means no
// limit. Results are ordered by date and start time.
type ListFilter struct {
	ProviderID    string
	Statuses      []model.Status
	DateFrom      civil.Date
	DateTo        civil.Date
	CustomerEmail string
	Limit         int
}

type StatusUpdate struct {
	ID     string
	From   model.Status
	To     model.Status
	Reason string
	At     time.Time
}

type ActiveReader interface {
	// ListActive returns pending and confirmed appointments of provider on date,
	// skipping excludeID when set.
	ListActive(ctx context.Context, providerID string, date civil.Date, excludeID string) ([]Booked, error)
}

// Tx is the view of the store inside an atomic unit.
type Tx interface {
	ActiveReader
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	UpdateSchedule(ctx context.Context, id string, date civil.Date, start civil.Time, at time.Time) (model.Appointment, error)
}

// Store is the persistence contract the engine depends on. Its embedded Tx methods
// write without serialization; only the best-effort fallback calls them directly.
type Store interface {
	Tx
	GetProvider(ctx context.Context, id string) (model.Provider, error)
	GetService(ctx context.Context, id string) (model.Service, error)
	// GetOperatingHours returns a Closed entry when the weekday has no hours.
	GetOperatingHours(ctx context.Context, providerID string, weekday time.Weekday) (model.DayHours, error)
	ListAppointments(ctx context.Context, filter ListFilter) ([]model.Appointment, error)
	// UpdateStatus applies the change only if the row still has status From, and
	// returns ErrStatusChanged otherwise.
	UpdateStatus(ctx context.Context, u StatusUpdate) (model.Appointment, error)
	// Atomic runs fn with the keys held exclusively. Nothing fn wrote survives an
	// error. A store that cannot serialize returns ErrAtomicUnavailable before fn runs.
	Atomic(ctx context.Context, keys []LockKey, fn func(ctx context.Context, tx Tx) error) error
}
