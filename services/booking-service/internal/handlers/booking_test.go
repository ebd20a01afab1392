package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memory"
)

const testSecret = "test-secret"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	store := memory.New()
	store.PutProvider(model.Provider{ID: "prov-1", Name: "Studio", Active: true})
	store.PutService(model.Service{ID: "svc-30", ProviderID: "prov-1", Name: "Trim", DurationMinutes: 30, Active: true})
	store.PutHours("prov-1", model.DayHours{Weekday: time.Wednesday, Open: civil.Time{Hour: 9}, Close: civil.Time{Hour: 17}})

	now := time.Date(2026, 1, 26, 8, 0, 0, 0, time.UTC)
	engine, err := booking.New(booking.Options{
		Store:  store,
		Policy: policy.NewStaticProvider(policy.Defaults(), nil),
		Logger: quietLogger(),
		Now:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("booking.New failed: %v", err)
	}

	mux := http.NewServeMux()
	NewBookingHandler(engine, quietLogger()).Register(mux, RouteConfig{Authenticate: auth.RequireAuth(testSecret)})
	return mux
}

func token(t *testing.T, role, providerID string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{
		Sub:        "user-1",
		Role:       role,
		ProviderID: providerID,
		Iat:        time.Now().Unix(),
		Exp:        time.Now().Add(time.Hour).Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func do(t *testing.T, mux http.Handler, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func bookBody(at string) map[string]any {
	return map[string]any{
		"provider_id": "prov-1",
		"service_id":  "svc-30",
		"date":        "2026-01-28",
		"time":        at,
		"customer":    map[string]string{"name": "Ada", "email": "ada@example.com"},
	}
}

func TestSlotsEndpoint(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, http.MethodGet, "/api/v1/public/slots?provider_id=prov-1&service_id=svc-30&date=2026-01-28", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[slotsResponse](t, rec)
	if len(resp.Slots) == 0 || resp.Slots[0] != "09:00" || resp.Slots[len(resp.Slots)-1] != "16:15" {
		t.Fatalf("unexpected slots %v", resp.Slots)
	}

	rec = do(t, mux, http.MethodGet, "/api/v1/public/slots?provider_id=prov-1&service_id=svc-30&date=28-01-2026", "", nil)
	if body := decode[errorBody](t, rec); rec.Code != http.StatusBadRequest || body.Field != "date" {
		t.Fatalf("expected 400 on bad date, got %d %+v", rec.Code, body)
	}

	rec = do(t, mux, http.MethodGet, "/api/v1/public/slots?provider_id=nope&service_id=svc-30&date=2026-01-28", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown provider, got %d", rec.Code)
	}

	rec = do(t, mux, http.MethodPost, "/api/v1/public/slots", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestPublicBookAndConflict(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/api/v1/public/book", "", bookBody("10:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	first := decode[appointmentResponse](t, rec)
	if first.Status != "pending" || first.Time != "10:00" || first.AppointmentID == "" {
		t.Fatalf("unexpected appointment %+v", first)
	}

	rec = do(t, mux, http.MethodPost, "/api/v1/public/book", "", bookBody("10:30"))
	body := decode[errorBody](t, rec)
	if rec.Code != http.StatusConflict || body.Code != "conflict" || body.ConflictingID != first.AppointmentID {
		t.Fatalf("expected 409 conflict with %s, got %d %+v", first.AppointmentID, rec.Code, body)
	}

	rec = do(t, mux, http.MethodPost, "/api/v1/public/book", "", bookBody("16:45"))
	if body := decode[errorBody](t, rec); rec.Code != http.StatusUnprocessableEntity || body.Rule != "operating_hours" {
		t.Fatalf("expected 422 operating_hours, got %d %+v", rec.Code, body)
	}

	bad := bookBody("11:00")
	bad["surprise"] = true
	rec = do(t, mux, http.MethodPost, "/api/v1/public/book", "", bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}

	bad = bookBody("11:00")
	bad["customer"] = map[string]string{"name": "Ada", "email": "nope"}
	rec = do(t, mux, http.MethodPost, "/api/v1/public/book", "", bad)
	if body := decode[errorBody](t, rec); rec.Code != http.StatusBadRequest || body.Field != "customer.email" {
		t.Fatalf("expected 400 on customer.email, got %d %+v", rec.Code, body)
	}
}

func TestPublicCancel(t *testing.T) {
	mux := newTestMux(t)
	appt := decode[appointmentResponse](t, do(t, mux, http.MethodPost, "/api/v1/public/book", "", bookBody("10:00")))

	rec := do(t, mux, http.MethodPost, "/api/v1/public/cancel", "", map[string]string{
		"appointment_id": appt.AppointmentID, "email": "eve@example.com", "reason": "x",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign email must get 404, got %d", rec.Code)
	}

	rec = do(t, mux, http.MethodPost, "/api/v1/public/cancel", "", map[string]string{
		"appointment_id": appt.AppointmentID, "email": "ADA@example.com", "reason": "sick",
	})
	got := decode[appointmentResponse](t, rec)
	if rec.Code != http.StatusOK || got.Status != "cancelled" || got.CancellationReason != "sick" {
		t.Fatalf("expected cancelled appointment, got %d %+v", rec.Code, got)
	}

	rec = do(t, mux, http.MethodPost, "/api/v1/public/cancel", "", map[string]string{
		"appointment_id": appt.AppointmentID, "email": "ada@example.com", "reason": "again",
	})
	if body := decode[errorBody](t, rec); rec.Code != http.StatusConflict || body.Code != "invalid_transition" {
		t.Fatalf("expected 409 invalid_transition, got %d %+v", rec.Code, body)
	}
}

func TestProviderRoutes(t *testing.T) {
	mux := newTestMux(t)
	owner := token(t, auth.RoleProvider, "prov-1")
	other := token(t, auth.RoleProvider, "prov-2")

	if rec := do(t, mux, http.MethodPost, "/api/v1/appointments/book", "", bookBody("10:00")); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec := do(t, mux, http.MethodPost, "/api/v1/appointments/book", other, bookBody("10:00"))
	if body := decode[errorBody](t, rec); rec.Code != http.StatusForbidden || body.Rule != "permission" {
		t.Fatalf("expected 403 for foreign provider, got %d %+v", rec.Code, body)
	}

	rec = do(t, mux, http.MethodPost, "/api/v1/appointments/book", owner, bookBody("10:00"))
	appt := decode[appointmentResponse](t, rec)
	if rec.Code != http.StatusCreated || appt.Status != "confirmed" || appt.Origin != "provider" {
		t.Fatalf("expected confirmed provider booking, got %d %+v", rec.Code, appt)
	}

	rec = do(t, mux, http.MethodPost, "/api/v1/appointments/status", other, map[string]string{
		"appointment_id": appt.AppointmentID, "status": "completed",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign provider must get 404, got %d", rec.Code)
	}
	rec = do(t, mux, http.MethodPost, "/api/v1/appointments/status", owner, map[string]string{
		"appointment_id": appt.AppointmentID, "status": "cancelled",
	})
	if body := decode[errorBody](t, rec); rec.Code != http.StatusBadRequest || body.Field != "reason" {
		t.Fatalf("expected 400 missing reason, got %d %+v", rec.Code, body)
	}

	rec = do(t, mux, http.MethodPost, "/api/v1/appointments/reschedule", owner, map[string]string{
		"appointment_id": appt.AppointmentID, "date": "2026-01-28", "time": "10:15",
	})
	if moved := decode[appointmentResponse](t, rec); rec.Code != http.StatusOK || moved.Time != "10:15" {
		t.Fatalf("expected reschedule to 10:15, got %d %+v", rec.Code, moved)
	}

	rec = do(t, mux, http.MethodGet, "/api/v1/appointments?status=confirmed", owner, nil)
	list := decode[listResponse](t, rec)
	if rec.Code != http.StatusOK || len(list.Appointments) != 1 {
		t.Fatalf("expected one confirmed appointment, got %d %+v", rec.Code, list)
	}
	rec = do(t, mux, http.MethodGet, "/api/v1/appointments", other, nil)
	if list := decode[listResponse](t, rec); len(list.Appointments) != 0 {
		t.Fatalf("listing must be scoped to the caller, got %+v", list)
	}
	rec = do(t, mux, http.MethodGet, "/api/v1/appointments?status=done", owner, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}

	rec = do(t, mux, http.MethodGet, "/api/v1/appointments/detail?id="+appt.AppointmentID, other, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign provider detail must be 404, got %d", rec.Code)
	}
	rec = do(t, mux, http.MethodGet, "/api/v1/appointments/detail?id="+appt.AppointmentID, owner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 detail, got %d", rec.Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	mux := newTestMux(t)

	if rec := do(t, mux, http.MethodPost, "/api/v1/admin/sweep", token(t, auth.RoleProvider, "prov-1"), nil); rec.Code != http.StatusForbidden {
		t.Fatalf("providers must not sweep, got %d", rec.Code)
	}
	admin := token(t, auth.RoleAdmin, "")
	rec := do(t, mux, http.MethodPost, "/api/v1/admin/sweep", admin, nil)
	if res := decode[booking.SweepResult](t, rec); rec.Code != http.StatusOK || res.Completed != 0 {
		t.Fatalf("unexpected sweep response %d %+v", rec.Code, res)
	}
	rec = do(t, mux, http.MethodGet, "/api/v1/admin/stats", admin, nil)
	if stats := decode[statsResponse](t, rec); rec.Code != http.StatusOK || stats.Strategy != "strict" {
		t.Fatalf("unexpected stats %d %+v", rec.Code, stats)
	}
}

func TestWriteErrorMapping(t *testing.T) {
	h := NewBookingHandler(nil, quietLogger())
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&booking.ValidationError{Field: "date"}, http.StatusBadRequest, "validation_error"},
		{&booking.PolicyError{Rule: "min_notice"}, http.StatusUnprocessableEntity, "policy_violation"},
		{&booking.PolicyError{Rule: "permission"}, http.StatusForbidden, "forbidden"},
		{&booking.ConflictError{}, http.StatusConflict, "conflict"},
		{&booking.NotFoundError{Entity: "service"}, http.StatusNotFound, "not_found"},
		{&booking.TransitionError{}, http.StatusConflict, "invalid_transition"},
		{&booking.StoreError{Op: "reserve", Retryable: true, Err: booking.ErrLockTimeout}, http.StatusServiceUnavailable, "busy"},
		{&booking.StoreError{Op: "reserve", Err: booking.ErrAtomicUnavailable}, http.StatusServiceUnavailable, "store_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		body := decode[errorBody](t, rec)
		if rec.Code != tc.status || body.Code != tc.code {
			t.Errorf("%T: got %d %q, want %d %q", tc.err, rec.Code, body.Code, tc.status, tc.code)
		}
		if tc.code == "busy" && rec.Header().Get("Retry-After") == "" {
			t.Error("retryable failures must set Retry-After")
		}
	}
}
