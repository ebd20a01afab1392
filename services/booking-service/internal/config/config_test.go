package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE", "")
	t.Setenv("POLICY_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store != StoreMemory || cfg.Port != "8083" || cfg.Strategy != booking.StrictReservation {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.SweepInterval != time.Minute || cfg.LockTimeout != 5*time.Second || cfg.Rules.Buffer != 15*time.Minute {
		t.Fatalf("unexpected durations %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE", "postgres")
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("postgres without DATABASE_URL must fail")
	}

	t.Setenv("STORE", "memory")
	t.Setenv("RESERVATION_STRATEGY", "yolo")
	t.Setenv("SWEEP_INTERVAL", "often")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "yolo") || !strings.Contains(err.Error(), "SWEEP_INTERVAL") {
		t.Fatalf("expected both errors reported, got %v", err)
	}
}

func TestLoadFallsBackToDevSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.JWTSecret != "dev-secret" {
		t.Fatalf("expected dev secret, got %q", cfg.JWTSecret)
	}
}

func TestParsePolicy(t *testing.T) {
	raw := []byte(`
defaults:
  slot_interval: 30m
  min_notice: 1h
  fallback_duration: 45m
  timezone: Europe/Berlin
providers:
  prov-1:
    buffer: 5m
`)
	rules, overrides, err := ParsePolicy(raw)
	if err != nil {
		t.Fatalf("ParsePolicy failed: %v", err)
	}
	if rules.SlotInterval != 30*time.Minute || rules.MinNotice != time.Hour || rules.FallbackDuration != 45*time.Minute {
		t.Fatalf("unexpected rules %+v", rules)
	}
	if rules.Buffer != 15*time.Minute || rules.MaxAdvance != 30*24*time.Hour {
		t.Fatalf("unset values must keep defaults, got %+v", rules)
	}
	if rules.Loc().String() != "Europe/Berlin" {
		t.Fatalf("unexpected location %s", rules.Loc())
	}
	o, ok := overrides["prov-1"]
	if !ok || o.Buffer == nil || *o.Buffer != 5*time.Minute || o.SlotInterval != nil {
		t.Fatalf("unexpected override %+v", o)
	}
}

func TestParsePolicyRejects(t *testing.T) {
	cases := map[string]string{
		"bad zone":      "defaults:\n  timezone: Mars/Olympus\n",
		"zero interval": "defaults:\n  slot_interval: 0s\n",
		"bad override":  "providers:\n  p:\n    max_advance: 1h\n",
		"bad duration":  "defaults:\n  buffer: soon\n",
	}
	for name, raw := range cases {
		if _, _, err := ParsePolicy([]byte(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("defaults:\n  buffer: 10m\n"), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("POLICY_FILE", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Rules.Buffer != 10*time.Minute {
		t.Fatalf("expected buffer from file, got %s", cfg.Rules.Buffer)
	}
}
