package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := Claims{
		Sub:        "user-1",
		ProviderID: "prov-1",
		Role:       RoleProvider,
		Iat:        time.Now().Unix(),
		Exp:        time.Now().Add(1 * time.Hour).Unix(),
	}
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, secret)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.ProviderID != claims.ProviderID || parsed.Role != claims.Role {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	now := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	token, err := SignHS256(Claims{Sub: "u", Role: RoleAdmin, Exp: now.Add(-time.Second).Unix()}, "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := parseAndVerify(token, "s", now); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRequireAuthAndRole(t *testing.T) {
	secret := "test-secret"
	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, _ := ClaimsFromContext(r.Context())
		w.Header().Set("X-Sub", c.Sub)
		w.WriteHeader(http.StatusOK)
	}), RequireAuth(secret), RequireRole(RoleAdmin))

	call := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/sweep", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := call(""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	providerToken, _ := SignHS256(Claims{Sub: "p", Role: RoleProvider}, secret)
	if rec := call(providerToken); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for provider token, got %d", rec.Code)
	}

	adminToken, _ := SignHS256(Claims{Sub: "ops", Role: RoleAdmin}, secret)
	rec := call(adminToken)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Sub") != "ops" {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
}
