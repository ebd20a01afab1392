package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BookingRepository is the Postgres booking.Store. The atomic unit is a transaction
// holding one advisory lock per provider and date.
type BookingRepository struct {
	queries
	pool        *db.Pool
	lockTimeout time.Duration
}

type RepositoryConfig struct {
	// LockTimeout bounds the wait for a provider/date lock. Defaults to 5s.
	LockTimeout time.Duration
}

func NewBookingRepository(pool *db.Pool, cfg RepositoryConfig) *BookingRepository {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Second
	}
	return &BookingRepository{
		queries:     queries{q: pool},
		pool:        pool,
		lockTimeout: cfg.LockTimeout,
	}
}

var _ booking.Store = (*BookingRepository)(nil)

func (r *BookingRepository) Atomic(ctx context.Context, keys []booking.LockKey, fn func(ctx context.Context, tx booking.Tx) error) error {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", r.lockTimeout.Milliseconds())); err != nil {
			return err
		}
		for _, k := range booking.SortedKeys(keys) {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, k.String()); err != nil {
				return fmt.Errorf("lock %s: %w", k, err)
			}
		}
		return fn(ctx, queries{q: tx})
	})
	return classify(err)
}

func (r *BookingRepository) GetProvider(ctx context.Context, id string) (model.Provider, error) {
	var (
		p         model.Provider
		minNotice pgtype.Int4
		maxAdv    pgtype.Int4
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, active, min_notice_hours, max_advance_days
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Active, &minNotice, &maxAdv)
	if err != nil {
		return model.Provider{}, classify(err)
	}
	p.MinNoticeHours = intPtr(minNotice)
	p.MaxAdvanceDays = intPtr(maxAdv)
	return p, nil
}

func (r *BookingRepository) GetService(ctx context.Context, id string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, name, duration_minutes, price_cents, active
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.ProviderID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.Active)
	if err != nil {
		return model.Service{}, classify(err)
	}
	return s, nil
}

// GetOperatingHours reports a weekday without a row as closed.
func (r *BookingRepository) GetOperatingHours(ctx context.Context, providerID string, weekday time.Weekday) (model.DayHours, error) {
	var (
		closed        bool
		opens, closes pgtype.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT closed, open_time, close_time
		FROM operating_hours
		WHERE provider_id = $1 AND weekday = $2
	`, providerID, int16(weekday)).Scan(&closed, &opens, &closes)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DayHours{Weekday: weekday, Closed: true}, nil
	}
	if err != nil {
		return model.DayHours{}, classify(err)
	}
	if !opens.Valid || !closes.Valid {
		closed = true
	}
	return model.DayHours{Weekday: weekday, Closed: closed, Open: civilTime(opens), Close: civilTime(closes)}, nil
}

func (r *BookingRepository) ListAppointments(ctx context.Context, f booking.ListFilter) ([]model.Appointment, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.ProviderID != "" {
		where = append(where, "provider_id = "+arg(f.ProviderID))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if !f.DateFrom.IsZero() {
		where = append(where, "appt_date >= "+arg(pgDate(f.DateFrom)))
	}
	if !f.DateTo.IsZero() {
		where = append(where, "appt_date <= "+arg(pgDate(f.DateTo)))
	}
	if f.CustomerEmail != "" {
		where = append(where, "lower(customer_email) = lower("+arg(f.CustomerEmail)+")")
	}

	sql := "SELECT " + appointmentColumns + " FROM appointments"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY appt_date, start_time, id"
	if f.Limit > 0 {
		sql += " LIMIT " + arg(f.Limit)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return appts, nil
}

// UpdateStatus applies the change only while the stored status still equals u.From.
func (r *BookingRepository) UpdateStatus(ctx context.Context, u booking.StatusUpdate) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			updated_at = $4,
			confirmed_at = CASE WHEN $3 = 'confirmed' THEN $4 ELSE confirmed_at END,
			completed_at = CASE WHEN $3 = 'completed' THEN $4 ELSE completed_at END,
			cancelled_at = CASE WHEN $3 = 'cancelled' THEN $4 ELSE cancelled_at END,
			cancellation_reason = CASE WHEN $3 = 'cancelled' THEN NULLIF($5, '') ELSE cancellation_reason END
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentColumns,
		u.ID, string(u.From), string(u.To), u.At, u.Reason)
	a, err := scanAppointment(row)
	if !errors.Is(err, booking.ErrNotFound) {
		return a, err
	}

	var current string
	err = r.pool.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1`, u.ID).Scan(&current)
	if err != nil {
		return model.Appointment{}, classify(err)
	}
	return model.Appointment{}, booking.ErrStatusChanged
}

// queries holds the statements shared by the pool and Atomic transactions.
type queries struct {
	q querier
}

const appointmentColumns = `id::text, provider_id, service_id, appt_date, start_time, status, origin,
	customer_name, customer_email, customer_phone, customer_notes,
	COALESCE(cancellation_reason, ''), created_at, updated_at, confirmed_at, completed_at, cancelled_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a                               model.Appointment
		date                            pgtype.Date
		start                           pgtype.Time
		status, origin                  string
		confirmed, completed, cancelled pgtype.Timestamptz
	)
	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.ServiceID,
		&date,
		&start,
		&status,
		&origin,
		&a.Customer.Name,
		&a.Customer.Email,
		&a.Customer.Phone,
		&a.Customer.Notes,
		&a.CancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
		&confirmed,
		&completed,
		&cancelled,
	)
	if err != nil {
		return model.Appointment{}, classify(err)
	}
	a.Date = civilDate(date)
	a.Start = civilTime(start)
	a.Status = model.Status(status)
	a.Origin = model.Origin(origin)
	a.ConfirmedAt = timePtr(confirmed)
	a.CompletedAt = timePtr(completed)
	a.CancelledAt = timePtr(cancelled)
	return a, nil
}

func (s queries) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(s.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
}

// ListActive joins services for the duration; a deleted service yields zero and the
// engine substitutes its fallback.
func (s queries) ListActive(ctx context.Context, providerID string, date civil.Date, excludeID string) ([]booking.Booked, error) {
	rows, err := s.q.Query(ctx, `
		SELECT a.id::text, a.start_time, COALESCE(sv.duration_minutes, 0)
		FROM appointments a
		LEFT JOIN services sv ON sv.id = a.service_id
		WHERE a.provider_id = $1
			AND a.appt_date = $2
			AND a.status IN ('pending', 'confirmed')
			AND ($3::text = '' OR a.id::text <> $3::text)
		ORDER BY a.start_time ASC
	`, providerID, pgDate(date), excludeID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []booking.Booked
	for rows.Next() {
		var (
			b     booking.Booked
			start pgtype.Time
		)
		if err := rows.Scan(&b.ID, &start, &b.DurationMinutes); err != nil {
			return nil, classify(err)
		}
		b.Start = civilTime(start)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (s queries) InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	var confirmed pgtype.Timestamptz
	if appt.ConfirmedAt != nil {
		confirmed = pgtype.Timestamptz{Time: *appt.ConfirmedAt, Valid: true}
	}
	return scanAppointment(s.q.QueryRow(ctx, `
		INSERT INTO appointments
			(id, provider_id, service_id, appt_date, start_time, status, origin,
			 customer_name, customer_email, customer_phone, customer_notes,
			 created_at, updated_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+appointmentColumns,
		appt.ID, appt.ProviderID, appt.ServiceID, pgDate(appt.Date), pgTime(appt.Start),
		string(appt.Status), string(appt.Origin),
		appt.Customer.Name, appt.Customer.Email, appt.Customer.Phone, appt.Customer.Notes,
		appt.CreatedAt, appt.UpdatedAt, confirmed,
	))
}

func (s queries) UpdateSchedule(ctx context.Context, id string, date civil.Date, start civil.Time, at time.Time) (model.Appointment, error) {
	return scanAppointment(s.q.QueryRow(ctx, `
		UPDATE appointments
		SET appt_date = $2, start_time = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, pgDate(date), pgTime(start), at,
	))
}
