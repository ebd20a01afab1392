package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// SaveProvider inserts or replaces a provider.
func (r *BookingRepository) SaveProvider(ctx context.Context, p model.Provider) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO providers (id, name, active, min_notice_hours, max_advance_days)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name,
		              active = EXCLUDED.active,
		              min_notice_hours = EXCLUDED.min_notice_hours,
		              max_advance_days = EXCLUDED.max_advance_days,
		              updated_at = now()
	`, p.ID, p.Name, p.Active, nullableInt(p.MinNoticeHours), nullableInt(p.MaxAdvanceDays))
	return classify(err)
}

func (r *BookingRepository) SaveService(ctx context.Context, s model.Service) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (id, provider_id, name, duration_minutes, price_cents, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET provider_id = EXCLUDED.provider_id,
		              name = EXCLUDED.name,
		              duration_minutes = EXCLUDED.duration_minutes,
		              price_cents = EXCLUDED.price_cents,
		              active = EXCLUDED.active,
		              updated_at = now()
	`, s.ID, s.ProviderID, s.Name, s.DurationMinutes, s.PriceCents, s.Active)
	return classify(err)
}

// SaveHours replaces the given weekdays of a provider's week in one transaction.
func (r *BookingRepository) SaveHours(ctx context.Context, providerID string, hours []model.DayHours) error {
	return classify(r.pool.InTx(ctx, func(tx pgx.Tx) error {
		for _, h := range hours {
			closed := !h.IsOpen()
			_, err := tx.Exec(ctx, `
				INSERT INTO operating_hours (provider_id, weekday, closed, open_time, close_time)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (provider_id, weekday)
				DO UPDATE SET closed = EXCLUDED.closed,
				              open_time = EXCLUDED.open_time,
				              close_time = EXCLUDED.close_time
			`, providerID, int16(h.Weekday), closed, pgTimeOrNull(h.Open, closed), pgTimeOrNull(h.Close, closed))
			if err != nil {
				return err
			}
		}
		return nil
	}))
}
