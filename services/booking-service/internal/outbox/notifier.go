package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
)

// Notifier records engine events in the outbox. It runs after the booking write has
// committed, in its own transaction.
type Notifier struct {
	pool *db.Pool
	repo *Repository
}

func NewNotifier(pool *db.Pool, repo *Repository) *Notifier {
	return &Notifier{pool: pool, repo: repo}
}

var _ booking.Notifier = (*Notifier)(nil)

func (n *Notifier) Notify(ctx context.Context, evt booking.Event) error {
	e, err := FromBookingEvent(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", evt.Type, err)
	}
	return n.pool.InTx(ctx, func(tx pgx.Tx) error {
		return n.repo.Insert(ctx, tx, e)
	})
}
