// Package app assembles the booking engine and its backing store from configuration.
// It is shared by the service binary and slotctl.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/config"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/seed"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memory"
)

type App struct {
	Engine *booking.Engine
	// Pool is nil when the memory store is in use.
	Pool   *db.Pool
	Outbox *outbox.Repository
	Store  booking.Store

	customers *notify.Async
}

// Build opens the configured store, applies migrations and the seed file when asked,
// and wires the engine. Close drains customer notifications and releases the pool.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{}
	var (
		notifier booking.Notifier = booking.LogNotifier{Logger: logger}
		catalog  seed.Catalog
	)

	switch cfg.Store {
	case config.StorePostgres:
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.Pool = pool
		if cfg.AutoMigrate {
			if _, err := storage.Migrate(ctx, pool, logger); err != nil {
				pool.Close()
				return nil, err
			}
		}
		repo := storage.NewBookingRepository(pool, storage.RepositoryConfig{LockTimeout: cfg.LockTimeout})
		a.Store, catalog = repo, repo
		a.Outbox = outbox.NewRepository()
		notifier = outbox.NewNotifier(pool, a.Outbox)
	default:
		store := memory.New(memory.WithLockTimeout(cfg.LockTimeout))
		a.Store, catalog = store, store
	}

	notifier = a.customerNotifiers(cfg, logger, notifier)

	if cfg.SeedFile != "" {
		f, err := seed.LoadFile(cfg.SeedFile)
		if err == nil {
			err = seed.Apply(ctx, catalog, f)
		}
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("catalog seeded", "file", cfg.SeedFile, "providers", len(f.Providers))
	}

	engine, err := booking.New(booking.Options{
		Store:    a.Store,
		Policy:   policy.NewStaticProvider(cfg.Rules, cfg.Overrides),
		Notifier: notifier,
		Strategy: cfg.Strategy,
		Logger:   logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = engine
	return a, nil
}

// customerNotifiers adds direct email and SMS delivery when they are configured.
// Those sinks talk to outside servers, so they run behind an Async queue and never
// hold up the engine.
func (a *App) customerNotifiers(cfg config.Config, logger *slog.Logger, base booking.Notifier) booking.Notifier {
	var direct notify.Fanout
	if cfg.SMTPHost != "" {
		direct = append(direct, notify.EmailNotifier{Sender: notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)})
	}
	if cfg.SMSWebhookURL != "" {
		direct = append(direct, notify.SMSNotifier{Sender: notify.NewWebhookSender(cfg.SMSWebhookURL, cfg.SMSWebhookToken)})
	}
	if len(direct) == 0 {
		return base
	}
	a.customers = notify.NewAsync(direct, logger, notify.AsyncConfig{})
	return notify.Fanout{base, a.customers}
}

func (a *App) Close() {
	if a.customers != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.customers.Close(ctx)
		cancel()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
