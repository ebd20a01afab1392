package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/app"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/config"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/seed"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

type runContext struct {
	logger *slog.Logger
	out    io.Writer
}

func (rc *runContext) build(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, rc.logger)
}

type SlotsCmd struct {
	Provider string `required:"" help:"Provider id."`
	Service  string `required:"" help:"Service id."`
	Date     string `required:"" help:"Calendar date, YYYY-MM-DD."`
	JSON     bool   `help:"Print JSON instead of one time per line."`
}

func (c *SlotsCmd) Run(rc *runContext) error {
	date, err := model.ParseDate(c.Date)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := rc.build(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	slots, err := a.Engine.GetAvailableSlots(ctx, c.Provider, c.Service, date)
	if err != nil {
		return err
	}
	formatted := make([]string, 0, len(slots))
	for _, s := range slots {
		formatted = append(formatted, model.FormatWallTime(s))
	}
	if c.JSON {
		return json.NewEncoder(rc.out).Encode(formatted)
	}
	if len(formatted) == 0 {
		_, err = fmt.Fprintln(rc.out, "no slots")
		return err
	}
	_, err = fmt.Fprintln(rc.out, strings.Join(formatted, "\n"))
	return err
}

type SweepCmd struct{}

func (c *SweepCmd) Run(rc *runContext) error {
	ctx := context.Background()
	a, err := rc.build(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Engine.RunAutoCompletionSweep(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(rc.out, "completed %d appointment(s)\n", res.Completed)
	if len(res.FailedIDs) > 0 {
		return fmt.Errorf("%d appointment(s) failed: %s", len(res.FailedIDs), strings.Join(res.FailedIDs, ", "))
	}
	return nil
}

type MigrateCmd struct {
	DatabaseURL string `env:"DATABASE_URL" required:"" help:"Postgres connection string."`
}

func (c *MigrateCmd) Run(rc *runContext) error {
	ctx := context.Background()
	pool, err := db.Open(ctx, c.DatabaseURL, db.Options{MaxConns: 2})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	n, err := storage.Migrate(ctx, pool, rc.logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(rc.out, "applied %d migration(s)\n", n)
	return nil
}

type SeedCmd struct {
	File string `arg:"" type:"existingfile" help:"Seed YAML file."`
}

func (c *SeedCmd) Run(rc *runContext) error {
	f, err := seed.LoadFile(c.File)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Store != config.StorePostgres {
		return errors.New("seeding needs STORE=postgres; the memory store reads SEED_FILE at startup")
	}
	cfg.SeedFile = ""

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, rc.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	catalog, ok := a.Store.(seed.Catalog)
	if !ok {
		return errors.New("configured store cannot be seeded")
	}
	if err := seed.Apply(ctx, catalog, f); err != nil {
		return err
	}
	fmt.Fprintf(rc.out, "seeded %d provider(s)\n", len(f.Providers))
	return nil
}

type TokenCmd struct {
	Subject  string        `default:"slotctl" help:"Token subject."`
	Role     string        `enum:"provider,admin" default:"provider" help:"provider or admin."`
	Provider string        `help:"Provider id the token is scoped to (provider role)."`
	TTL      time.Duration `default:"1h" help:"Token lifetime."`
	Secret   string        `env:"JWT_SECRET" default:"dev-secret" help:"HS256 signing secret."`
}

func (c *TokenCmd) Run(rc *runContext) error {
	if c.Role == auth.RoleProvider && c.Provider == "" {
		return errors.New("--provider is required for provider tokens")
	}
	now := time.Now()
	tok, err := auth.SignHS256(auth.Claims{
		Sub:        c.Subject,
		Role:       c.Role,
		ProviderID: c.Provider,
		Iat:        now.Unix(),
		Exp:        now.Add(c.TTL).Unix(),
	}, c.Secret)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(rc.out, tok)
	return err
}
