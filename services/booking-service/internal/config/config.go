// Package config reads the booking service settings from the environment and the
// optional policy file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	envx "github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/policy"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Service  string `validate:"required"`
	Port     string `validate:"required"`
	GRPCPort string `validate:"required"`

	Store       string `validate:"oneof=memory postgres"`
	DatabaseURL string `validate:"required_if=Store postgres"`
	AutoMigrate bool
	LockTimeout time.Duration `validate:"gt=0"`
	SeedFile    string

	KafkaBrokers    string
	OutboxPollEvery time.Duration `validate:"gt=0"`
	RedisAddr       string

	SMTPHost        string
	SMTPPort        string `validate:"required_with=SMTPHost"`
	SMTPFrom        string
	SMSWebhookURL   string `validate:"omitempty,url"`
	SMSWebhookToken string

	JWTSecret   string `validate:"required"`
	CORSOrigins []string

	PublicRateLimit  int           `validate:"gte=0"`
	PublicRateWindow time.Duration `validate:"gt=0"`

	Strategy      booking.ReservationStrategy
	SweepInterval time.Duration `validate:"gte=0"`

	Rules     policy.Rules
	Overrides map[string]policy.Override
}

// Load reads the process environment. .env files are applied by the caller through
// libs/config.LoadDotEnv before Load.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		Service:      envx.String("SERVICE_NAME", "booking-service"),
		Store:        envx.String("STORE", StoreMemory),
		DatabaseURL:  envx.String("DATABASE_URL", ""),
		SeedFile:     envx.String("SEED_FILE", ""),
		KafkaBrokers: envx.String("KAFKA_BROKERS", ""),
		RedisAddr:    envx.String("REDIS_ADDR", ""),
		JWTSecret:    envx.String("JWT_SECRET", "dev-secret"),
		CORSOrigins:  envx.List("CORS_ALLOWED_ORIGINS"),

		SMTPHost:        envx.String("SMTP_HOST", ""),
		SMTPPort:        envx.String("SMTP_PORT", "1025"),
		SMTPFrom:        envx.String("SMTP_FROM", ""),
		SMSWebhookURL:   envx.String("SMS_WEBHOOK_URL", ""),
		SMSWebhookToken: envx.String("SMS_WEBHOOK_TOKEN", ""),
	}

	var err error
	cfg.Port, err = envx.Port("PORT", "8083")
	collect(err)
	cfg.GRPCPort, err = envx.Port("GRPC_PORT", "9093")
	collect(err)
	cfg.AutoMigrate, err = envx.Bool("AUTO_MIGRATE", true)
	collect(err)
	cfg.LockTimeout, err = envx.Duration("LOCK_TIMEOUT", 5*time.Second)
	collect(err)
	cfg.OutboxPollEvery, err = envx.Duration("OUTBOX_POLL_EVERY", 2*time.Second)
	collect(err)
	cfg.PublicRateLimit, err = envx.Int("PUBLIC_RATE_LIMIT", 60)
	collect(err)
	cfg.PublicRateWindow, err = envx.Duration("PUBLIC_RATE_WINDOW", time.Minute)
	collect(err)
	cfg.SweepInterval, err = envx.Duration("SWEEP_INTERVAL", time.Minute)
	collect(err)
	cfg.Strategy, err = booking.ParseReservationStrategy(envx.String("RESERVATION_STRATEGY", "strict"))
	collect(err)

	cfg.Rules = policy.Defaults()
	if path := envx.String("POLICY_FILE", ""); path != "" {
		cfg.Rules, cfg.Overrides, err = LoadPolicyFile(path)
		collect(err)
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// policyFile is the YAML shape of POLICY_FILE. Durations use Go syntax ("15m").
type policyFile struct {
	Defaults struct {
		SlotInterval     *time.Duration `yaml:"slot_interval"`
		Buffer           *time.Duration `yaml:"buffer"`
		MinNotice        *time.Duration `yaml:"min_notice"`
		MaxAdvance       *time.Duration `yaml:"max_advance"`
		FallbackDuration *time.Duration `yaml:"fallback_duration"`
		Timezone         string         `yaml:"timezone"`
	} `yaml:"defaults"`
	Providers map[string]providerOverride `yaml:"providers"`
}

type providerOverride struct {
	SlotInterval *time.Duration `yaml:"slot_interval"`
	Buffer       *time.Duration `yaml:"buffer"`
	MinNotice    *time.Duration `yaml:"min_notice"`
	MaxAdvance   *time.Duration `yaml:"max_advance"`
}

func LoadPolicyFile(path string) (policy.Rules, map[string]policy.Override, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return policy.Rules{}, nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy applies the file's defaults on top of policy.Defaults and validates the
// result for every provider override.
func ParsePolicy(raw []byte) (policy.Rules, map[string]policy.Override, error) {
	var f policyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return policy.Rules{}, nil, fmt.Errorf("parse policy file: %w", err)
	}

	d := f.Defaults
	rules := policy.Defaults().Apply(policy.Override{
		SlotInterval: d.SlotInterval,
		Buffer:       d.Buffer,
		MinNotice:    d.MinNotice,
		MaxAdvance:   d.MaxAdvance,
	})
	if d.FallbackDuration != nil {
		rules.FallbackDuration = *d.FallbackDuration
	}
	if d.Timezone != "" {
		loc, err := time.LoadLocation(d.Timezone)
		if err != nil {
			return policy.Rules{}, nil, fmt.Errorf("policy timezone: %w", err)
		}
		rules.Location = loc
	}
	if err := rules.Validate(); err != nil {
		return policy.Rules{}, nil, fmt.Errorf("policy defaults: %w", err)
	}

	overrides := make(map[string]policy.Override, len(f.Providers))
	for id, p := range f.Providers {
		o := policy.Override{
			SlotInterval: p.SlotInterval,
			Buffer:       p.Buffer,
			MinNotice:    p.MinNotice,
			MaxAdvance:   p.MaxAdvance,
		}
		if err := rules.Apply(o).Validate(); err != nil {
			return policy.Rules{}, nil, fmt.Errorf("policy for provider %s: %w", id, err)
		}
		overrides[id] = o
	}
	return rules, overrides, nil
}
