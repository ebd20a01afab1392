package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
)

type RouteConfig struct {
	// Authenticate verifies bearer tokens; required for every non-public route.
	Authenticate httpx.Middleware
	// Public wraps the anonymous endpoints, typically with a rate limiter.
	Public httpx.Middleware
}

func (h *BookingHandler) Register(mux *http.ServeMux, cfg RouteConfig) {
	public := func(fn http.HandlerFunc) http.Handler {
		if cfg.Public == nil {
			return fn
		}
		return cfg.Public(fn)
	}
	staff := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, cfg.Authenticate, auth.RequireRole(auth.RoleProvider, auth.RoleAdmin))
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, cfg.Authenticate, auth.RequireRole(auth.RoleAdmin))
	}

	mux.Handle("/api/v1/public/slots", public(h.Slots))
	mux.Handle("/api/v1/public/book", public(h.PublicBook))
	mux.Handle("/api/v1/public/cancel", public(h.PublicCancel))

	mux.Handle("/api/v1/appointments", staff(h.List))
	mux.Handle("/api/v1/appointments/detail", staff(h.Get))
	mux.Handle("/api/v1/appointments/book", staff(h.ProviderBook))
	mux.Handle("/api/v1/appointments/status", staff(h.ChangeStatus))
	mux.Handle("/api/v1/appointments/reschedule", staff(h.Reschedule))

	mux.Handle("/api/v1/admin/sweep", admin(h.Sweep))
	mux.Handle("/api/v1/admin/stats", admin(h.Stats))
}
