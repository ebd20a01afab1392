package seed

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memory"
)

const sample = `
providers:
  - id: prov-1
    name: Studio One
    min_notice_hours: 4
    hours:
      Monday: {open: "09:00", close: "17:00"}
      wednesday: {open: "10:30", close: "14:00"}
      friday: {closed: true}
    services:
      - id: svc-30
        name: Trim
        duration_minutes: 30
        price_cents: 2500
      - id: svc-old
        name: Retired
        duration_minutes: 45
        active: false
`

func TestApplyToMemoryStore(t *testing.T) {
	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	store := memory.New()
	ctx := context.Background()
	if err := Apply(ctx, store, f); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	p, err := store.GetProvider(ctx, "prov-1")
	if err != nil {
		t.Fatalf("GetProvider failed: %v", err)
	}
	if !p.Active || p.MinNoticeHours == nil || *p.MinNoticeHours != 4 || p.MaxAdvanceDays != nil {
		t.Fatalf("unexpected provider %+v", p)
	}

	wed, err := store.GetOperatingHours(ctx, "prov-1", time.Wednesday)
	if err != nil {
		t.Fatalf("GetOperatingHours failed: %v", err)
	}
	if !wed.IsOpen() || wed.Open != (civil.Time{Hour: 10, Minute: 30}) || wed.Close != (civil.Time{Hour: 14}) {
		t.Fatalf("unexpected wednesday hours %+v", wed)
	}
	for _, d := range []time.Weekday{time.Sunday, time.Friday, time.Saturday} {
		h, err := store.GetOperatingHours(ctx, "prov-1", d)
		if err != nil {
			t.Fatalf("GetOperatingHours(%s) failed: %v", d, err)
		}
		if h.IsOpen() {
			t.Fatalf("%s should be closed, got %+v", d, h)
		}
	}

	old, err := store.GetService(ctx, "svc-old")
	if err != nil {
		t.Fatalf("GetService failed: %v", err)
	}
	if old.Active || old.ProviderID != "prov-1" {
		t.Fatalf("unexpected service %+v", old)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing id":       "providers:\n  - name: x\n",
		"bad weekday":      "providers:\n  - id: p\n    name: x\n    hours:\n      funday: {open: \"09:00\", close: \"10:00\"}\n",
		"inverted hours":   "providers:\n  - id: p\n    name: x\n    hours:\n      monday: {open: \"17:00\", close: \"09:00\"}\n",
		"zero duration":    "providers:\n  - id: p\n    name: x\n    services:\n      - id: s\n        name: y\n        duration_minutes: 0\n",
		"duplicate":        "providers:\n  - id: p\n    name: x\n  - id: p\n    name: y\n",
		"not yaml mapping": "providers: 3\n",
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
