// Package seed loads a provider catalog (providers, their weekly hours and services)
// from YAML and writes it through a Catalog.
package seed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"gopkg.in/yaml.v3"
)

// Catalog is implemented by the Postgres repository and the memory store.
type Catalog interface {
	SaveProvider(ctx context.Context, p model.Provider) error
	SaveService(ctx context.Context, s model.Service) error
	SaveHours(ctx context.Context, providerID string, hours []model.DayHours) error
}

type File struct {
	Providers []Provider `yaml:"providers" validate:"dive"`
}

type Provider struct {
	ID             string              `yaml:"id" validate:"required"`
	Name           string              `yaml:"name" validate:"required"`
	Active         *bool               `yaml:"active"`
	MinNoticeHours *int                `yaml:"min_notice_hours" validate:"omitempty,gte=0"`
	MaxAdvanceDays *int                `yaml:"max_advance_days" validate:"omitempty,gt=0"`
	Hours          map[string]DayRange `yaml:"hours"`
	Services       []Service           `yaml:"services" validate:"dive"`
}

// DayRange is one weekday entry. An entry with Closed set, or without times, closes
// the day.
type DayRange struct {
	Open   string `yaml:"open"`
	Close  string `yaml:"close"`
	Closed bool   `yaml:"closed"`
}

type Service struct {
	ID              string `yaml:"id" validate:"required"`
	Name            string `yaml:"name" validate:"required"`
	DurationMinutes int    `yaml:"duration_minutes" validate:"gt=0"`
	PriceCents      int64  `yaml:"price_cents" validate:"gte=0"`
	Active          *bool  `yaml:"active"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func LoadFile(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return File{}, fmt.Errorf("parse seed file: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return File{}, fmt.Errorf("invalid seed file: %w", err)
	}
	seen := map[string]bool{}
	for _, p := range f.Providers {
		if seen[p.ID] {
			return File{}, fmt.Errorf("invalid seed file: duplicate provider %q", p.ID)
		}
		seen[p.ID] = true
		if _, err := p.weekHours(); err != nil {
			return File{}, fmt.Errorf("invalid seed file: provider %s: %w", p.ID, err)
		}
	}
	return f, nil
}

// weekHours expands the YAML map to all seven days; unlisted days are closed.
func (p Provider) weekHours() ([]model.DayHours, error) {
	week := make([]model.DayHours, 7)
	for d := range week {
		week[d] = model.DayHours{Weekday: time.Weekday(d), Closed: true}
	}
	for name, r := range p.Hours {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		if r.Closed || (r.Open == "" && r.Close == "") {
			continue
		}
		opens, err := model.ParseWallTime(r.Open)
		if err != nil {
			return nil, fmt.Errorf("%s open: %w", name, err)
		}
		closes, err := model.ParseWallTime(r.Close)
		if err != nil {
			return nil, fmt.Errorf("%s close: %w", name, err)
		}
		h := model.DayHours{Weekday: wd, Open: opens, Close: closes}
		if !h.IsOpen() {
			return nil, fmt.Errorf("%s: open must be after 00:00 and before close", name)
		}
		week[wd] = h
	}
	return week, nil
}

// Apply writes every provider, its full week and its services. It is idempotent.
func Apply(ctx context.Context, c Catalog, f File) error {
	for _, p := range f.Providers {
		if err := c.SaveProvider(ctx, model.Provider{
			ID:             p.ID,
			Name:           p.Name,
			Active:         active(p.Active),
			MinNoticeHours: p.MinNoticeHours,
			MaxAdvanceDays: p.MaxAdvanceDays,
		}); err != nil {
			return fmt.Errorf("save provider %s: %w", p.ID, err)
		}
		week, err := p.weekHours()
		if err != nil {
			return fmt.Errorf("provider %s: %w", p.ID, err)
		}
		if err := c.SaveHours(ctx, p.ID, week); err != nil {
			return fmt.Errorf("save hours for %s: %w", p.ID, err)
		}
		for _, s := range p.Services {
			if err := c.SaveService(ctx, model.Service{
				ID:              s.ID,
				ProviderID:      p.ID,
				Name:            s.Name,
				DurationMinutes: s.DurationMinutes,
				PriceCents:      s.PriceCents,
				Active:          active(s.Active),
			}); err != nil {
				return fmt.Errorf("save service %s: %w", s.ID, err)
			}
		}
	}
	return nil
}

func active(v *bool) bool {
	return v == nil || *v
}
